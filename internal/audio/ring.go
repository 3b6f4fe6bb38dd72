package audio

// Ring is a growable FIFO of PCM16 samples indexed by read and write cursors.
// Writes never drop samples: a full ring doubles its capacity. It is not safe
// for concurrent use; the owning engine serializes access.
type Ring struct {
	buf []int16
	r   int
	w   int
	n   int
}

// NewRing returns a ring with room for capacity samples before it grows.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]int16, capacity)}
}

// Len is the number of buffered samples.
func (r *Ring) Len() int { return r.n }

// Cap is the current capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Write appends p.
func (r *Ring) Write(p []int16) {
	if len(p) == 0 {
		return
	}
	if r.n+len(p) > len(r.buf) {
		r.grow(r.n + len(p))
	}
	first := copy(r.buf[r.w:], p)
	if first < len(p) {
		copy(r.buf, p[first:])
	}
	r.w = (r.w + len(p)) % len(r.buf)
	r.n += len(p)
}

// Read moves up to len(p) samples into p and returns how many were moved.
func (r *Ring) Read(p []int16) int {
	k := len(p)
	if k > r.n {
		k = r.n
	}
	if k == 0 {
		return 0
	}
	first := copy(p[:k], r.buf[r.r:])
	if first < k {
		copy(p[first:k], r.buf)
	}
	r.r = (r.r + k) % len(r.buf)
	r.n -= k
	if r.n == 0 {
		r.r, r.w = 0, 0
	}
	return k
}

// Drain returns every buffered sample in order and empties the ring.
func (r *Ring) Drain() []int16 {
	out := make([]int16, r.n)
	r.Read(out)
	return out
}

// Reset discards buffered samples and keeps the allocated capacity.
func (r *Ring) Reset() {
	r.r, r.w, r.n = 0, 0, 0
}

func (r *Ring) grow(need int) {
	size := len(r.buf) * 2
	if size < need {
		size = need
	}
	next := make([]int16, size)
	n := r.n
	r.Read(next[:n])
	r.buf = next
	r.r = 0
	r.w = n
	r.n = n
}
