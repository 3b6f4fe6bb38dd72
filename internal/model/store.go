package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound         = errors.New("model not found")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrInvalidID        = errors.New("invalid model id")
)

// Installed is a model directory with a readable manifest.
type Installed struct {
	ID          string
	DisplayName string
	Engine      string
	Dir         string
	Manifest    *Manifest
	// Ready is false when the manifest is present but its artifact is not.
	Ready bool
}

// Store manages the models directory: one sub-directory per model id.
type Store struct {
	dir string
}

// NewStore opens dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// ModelDir returns the directory for id without checking that it exists.
func (s *Store) ModelDir(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id), nil
}

// List returns every directory whose manifest parses, sorted by id.
// Unreadable manifests are logged and skipped.
func (s *Store) List() ([]Installed, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	var out []Installed
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.dir, e.Name())
		if !ManifestExists(dir) {
			continue
		}
		m, err := ReadManifest(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", e.Name()).Msg("models: skipping unreadable manifest")
			continue
		}
		out = append(out, installed(dir, m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get resolves a model by its directory name.
func (s *Store) Get(id string) (*Installed, error) {
	dir, err := s.ModelDir(id)
	if err != nil {
		return nil, err
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	inst := installed(dir, m)
	return &inst, nil
}

// Validate checks that the artifact exists and, when the manifest carries a
// checksum, that its SHA-256 matches.
func (s *Store) Validate(id string) error {
	inst, err := s.Get(id)
	if err != nil {
		return err
	}
	if !inst.Ready {
		return fmt.Errorf("%w: %s missing", ErrNotFound, inst.Manifest.File)
	}
	want := inst.Manifest.Checksum()
	if want == "" {
		return nil
	}
	got, err := fileSHA256(inst.Manifest.ModelPath(inst.Dir))
	if err != nil {
		return err
	}
	if got != want {
		log.Warn().Str("model", id).Str("want", want).Str("got", got).Msg("models: checksum mismatch")
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, id)
	}
	return nil
}

// Install copies src into the directory for id, keeping its base name.
func (s *Store) Install(src, id string) (string, error) {
	dir, err := s.ModelDir(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("install %s: %w", id, err)
	}
	log.Info().Str("model", id).Str("file", dst).Msg("models: installed file")
	return dst, nil
}

// Delete removes the directory for id. Deleting an absent model is not an error.
func (s *Store) Delete(id string) error {
	dir, err := s.ModelDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func installed(dir string, m *Manifest) Installed {
	return Installed{
		ID:          filepath.Base(dir),
		DisplayName: m.DisplayName,
		Engine:      m.Engine,
		Dir:         dir,
		Manifest:    m,
		Ready:       m.ModelFileExists(dir),
	}
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash model file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".installing"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
