package benchmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/audio"
)

// ClipsManifestFile lists the clips in a clips directory.
const ClipsManifestFile = "clips_manifest.json"

var ErrInvalidClip = errors.New("invalid clip")

// Clip is a named test recording with optional reference text.
type Clip struct {
	Name         string  `json:"name"`
	Filename     string  `json:"filename"`
	Description  string  `json:"description"`
	ExpectedText *string `json:"expectedText,omitempty"`
	Language     string  `json:"language"`
	SampleRate   int     `json:"sampleRate"`
	Channels     int     `json:"channels"`
}

func text(s string) *string { return &s }

// DefaultClips seeds a new clips directory. The recordings themselves are
// added separately.
func DefaultClips() []Clip {
	return []Clip{
		{
			Name:         "Clean Male Voice (English)",
			Filename:     "clean_male_en.wav",
			Description:  "Clear male voice speaking English",
			ExpectedText: text("The quick brown fox jumps over the lazy dog"),
			Language:     "en", SampleRate: 16000, Channels: 1,
		},
		{
			Name:         "Clean Female Voice (English)",
			Filename:     "clean_female_en.wav",
			Description:  "Clear female voice speaking English",
			ExpectedText: text("Hello world this is a test of the voice recognition system"),
			Language:     "en", SampleRate: 16000, Channels: 1,
		},
		{
			Name:         "Accent Test (South Asian English)",
			Filename:     "accent_south_asian_en.wav",
			Description:  "South Asian English accent",
			ExpectedText: text("Please speak slowly and clearly for better recognition"),
			Language:     "en", SampleRate: 16000, Channels: 1,
		},
		{
			Name:         "Noisy Room Speech",
			Filename:     "noisy_room_en.wav",
			Description:  "Speech recorded in a noisy environment",
			ExpectedText: text("Testing speech recognition with background noise"),
			Language:     "en", SampleRate: 16000, Channels: 1,
		},
		{
			Name:         "Fast Dictation",
			Filename:     "fast_dictation_en.wav",
			Description:  "Fast-paced dictation",
			ExpectedText: text("This is a quick test of rapid speech recognition capabilities"),
			Language:     "en", SampleRate: 16000, Channels: 1,
		},
		{
			Name:        "Bengali Sample",
			Filename:    "bengali_sample.wav",
			Description: "Bengali language sample",
			Language:    "bn", SampleRate: 16000, Channels: 1,
		},
	}
}

// ClipManager owns a directory of WAV clips and their manifest.
type ClipManager struct {
	dir string
	mu  sync.Mutex
}

// NewClipManager opens dir and writes the default manifest if there is none.
func NewClipManager(dir string) (*ClipManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create clips dir: %w", err)
	}
	m := &ClipManager{dir: dir}
	if _, err := os.Stat(m.manifestPath()); errors.Is(err, os.ErrNotExist) {
		if err := m.write(DefaultClips()); err != nil {
			return nil, err
		}
		log.Info().Str("dir", dir).Msg("benchmark: clips manifest initialized")
	}
	return m, nil
}

func (m *ClipManager) Dir() string { return m.dir }

func (m *ClipManager) manifestPath() string { return filepath.Join(m.dir, ClipsManifestFile) }

// Clips returns the manifest entries, including clips whose file is missing.
func (m *ClipManager) Clips() ([]Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

// Available returns the clips whose recording is present.
func (m *ClipManager) Available() ([]Clip, error) {
	clips, err := m.Clips()
	if err != nil {
		return nil, err
	}
	var out []Clip
	for _, c := range clips {
		if _, ok := m.ClipPath(c); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ClipPath returns where c's recording lives and whether it exists.
func (m *ClipManager) ClipPath(c Clip) (string, bool) {
	path := filepath.Join(m.dir, filepath.Base(c.Filename))
	info, err := os.Stat(path)
	return path, err == nil && !info.IsDir()
}

// Read returns the WAV bytes of c.
func (m *ClipManager) Read(c Clip) ([]byte, error) {
	path, ok := m.ClipPath(c)
	if !ok {
		return nil, fmt.Errorf("clip %q: %w", c.Filename, os.ErrNotExist)
	}
	return os.ReadFile(path)
}

// AddClip stores wav under c.Filename and adds or replaces the manifest
// entry with the same filename. The recording must be a WAV the codec accepts.
func (m *ClipManager) AddClip(c Clip, wav []byte) error {
	if c.Filename == "" || filepath.Base(c.Filename) != c.Filename || filepath.Ext(c.Filename) != ".wav" {
		return fmt.Errorf("%w: filename %q", ErrInvalidClip, c.Filename)
	}
	info, err := audio.Inspect(wav)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClip, err)
	}
	if _, err := audio.Decode(wav, info.SampleRate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClip, err)
	}
	if c.Language == "" {
		c.Language = "en"
	}
	c.SampleRate = info.SampleRate
	c.Channels = info.Channels

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.WriteFile(filepath.Join(m.dir, c.Filename), wav, 0o644); err != nil {
		return fmt.Errorf("write clip: %w", err)
	}
	clips, err := m.read()
	if err != nil {
		return err
	}
	out := clips[:0]
	for _, existing := range clips {
		if existing.Filename != c.Filename {
			out = append(out, existing)
		}
	}
	return m.write(append(out, c))
}

// Duration reads the playback length from the WAV header.
func (m *ClipManager) Duration(c Clip) (time.Duration, error) {
	data, err := m.Read(c)
	if err != nil {
		return 0, err
	}
	info, err := audio.Inspect(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

func (m *ClipManager) read() ([]Clip, error) {
	data, err := os.ReadFile(m.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read clips manifest: %w", err)
	}
	var clips []Clip
	if err := json.Unmarshal(data, &clips); err != nil {
		return nil, fmt.Errorf("parse clips manifest: %w", err)
	}
	return clips, nil
}

func (m *ClipManager) write(clips []Clip) error {
	data, err := json.MarshalIndent(clips, "", "  ")
	if err != nil {
		return fmt.Errorf("encode clips manifest: %w", err)
	}
	if err := os.WriteFile(m.manifestPath(), data, 0o644); err != nil {
		return fmt.Errorf("write clips manifest: %w", err)
	}
	return nil
}
