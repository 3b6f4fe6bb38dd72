// Package onnx runs CTC speech models exported to ONNX, such as Parakeet.
//
// The model takes float32 audio shaped [1, samples] and returns logits shaped
// [1, frames, vocabulary]. Text comes from greedy CTC decoding against the
// tokens file named in the manifest. Inference needs the onnxruntime build
// tag and the onnxruntime shared library; other builds report
// "onnx not available" on load.
package onnx

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/obiente/voiceinput/internal/engine"
)

const (
	DefaultInputName  = "audio"
	DefaultOutputName = "logits"
	DefaultTokensFile = "tokens.txt"
)

// Options configure the onnxruntime environment.
type Options struct {
	// SharedLibrary is the onnxruntime library path. Empty uses the platform default.
	SharedLibrary string
	// Threads bounds intra-op parallelism. Zero leaves the runtime default.
	Threads int
}

// Variant returns the ONNX engine variant. It emits partial results.
func Variant(opts Options) engine.Variant {
	return engine.Variant{
		Type:            engine.TypeONNX,
		SupportsPartial: true,
		Open:            opener(opts),
	}
}

// Vocabulary maps CTC class ids to tokens.
type Vocabulary struct {
	tokens []string
	blank  int
}

// ParseVocabulary reads one token per line, optionally followed by its id
// ("▁the 42"). The blank is the token named <blk> or <blank>, else the last id.
func ParseVocabulary(lines []string) (*Vocabulary, error) {
	v := &Vocabulary{blank: -1}
	for n, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		tok, id := line, len(v.tokens)
		if i := strings.LastIndexByte(line, ' '); i > 0 {
			if parsed, err := strconv.Atoi(line[i+1:]); err == nil {
				tok, id = line[:i], parsed
			}
		}
		if id < 0 {
			return nil, fmt.Errorf("tokens line %d: negative id", n+1)
		}
		for len(v.tokens) <= id {
			v.tokens = append(v.tokens, "")
		}
		v.tokens[id] = tok
		if tok == "<blk>" || tok == "<blank>" {
			v.blank = id
		}
	}
	if len(v.tokens) == 0 {
		return nil, errors.New("tokens file is empty")
	}
	if v.blank < 0 {
		v.blank = len(v.tokens) - 1
	}
	return v, nil
}

// LoadVocabulary reads a tokens file from disk.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tokens: %w", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	return ParseVocabulary(lines)
}

func (v *Vocabulary) Size() int { return len(v.tokens) }

// Blank is the CTC blank class id.
func (v *Vocabulary) Blank() int { return v.blank }

// DecodeGreedy takes the best class per frame, collapses repeats and drops
// blanks. logits is frames*classes values in row-major order.
func (v *Vocabulary) DecodeGreedy(logits []float32, frames, classes int) string {
	var sb strings.Builder
	prev := -1
	for f := 0; f < frames; f++ {
		row := logits[f*classes : (f+1)*classes]
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		if best != prev && best != v.blank && best < len(v.tokens) {
			tok := v.tokens[best]
			if !strings.HasPrefix(tok, "<") {
				sb.WriteString(strings.ReplaceAll(tok, "▁", " "))
			}
		}
		prev = best
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
