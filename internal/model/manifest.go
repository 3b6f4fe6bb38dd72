package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ManifestFile is the metadata file every model directory carries.
const ManifestFile = "manifest.json"

var (
	ErrInvalidManifest  = errors.New("invalid manifest")
	ErrManifestNotFound = errors.New("manifest.json not found")
)

//go:embed manifest.schema.json
var manifestSchema []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Manifest describes an installed model: which engine runs it, where its
// artifact lives, and the metadata shown to users.
type Manifest struct {
	ID                  string   `json:"id"`
	DisplayName         string   `json:"display_name"`
	Engine              string   `json:"engine"`
	File                string   `json:"file"`
	Languages           []string `json:"languages,omitempty"`
	SizeBytes           int64    `json:"size_bytes,omitempty"`
	ChecksumSHA256      string   `json:"checksum_sha256,omitempty"`
	Quantization        string   `json:"quantization,omitempty"`
	RecommendedMinRAMMB int      `json:"recommended_min_ram_mb,omitempty"`
	Description         string   `json:"description,omitempty"`
	LicenseType         string   `json:"license_type,omitempty"`
	LicenseURL          string   `json:"license_url,omitempty"`
	CopyrightHolder     string   `json:"copyright_holder,omitempty"`

	// Backend hints. Zero values mean the backend default.
	SampleRate int    `json:"sample_rate,omitempty"`
	Tokens     string `json:"tokens,omitempty"`
	InputName  string `json:"input_name,omitempty"`
	OutputName string `json:"output_name,omitempty"`
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("manifest.schema.json", bytes.NewReader(manifestSchema)); err != nil {
			schemaErr = fmt.Errorf("add manifest schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("manifest.schema.json")
	})
	return schema, schemaErr
}

// ParseManifest validates data against the manifest schema and decodes it.
func ParseManifest(data []byte) (*Manifest, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if filepath.Base(m.File) != m.File {
		return nil, fmt.Errorf("%w: file %q must be a bare file name", ErrInvalidManifest, m.File)
	}
	return &m, nil
}

// ReadManifest loads dir/manifest.json.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// WriteManifest stores m as dir/manifest.json.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}

// ManifestExists reports whether dir holds a manifest file.
func ManifestExists(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil && !st.IsDir()
}

// ModelPath is the artifact location for this manifest inside dir.
func (m *Manifest) ModelPath(dir string) string {
	return filepath.Join(dir, m.File)
}

// ModelFileExists reports whether the artifact named by the manifest is present.
func (m *Manifest) ModelFileExists(dir string) bool {
	_, err := os.Stat(m.ModelPath(dir))
	return err == nil
}

// Checksum returns the expected hex digest without its optional "sha256:" prefix.
func (m *Manifest) Checksum() string {
	return strings.ToLower(strings.TrimPrefix(m.ChecksumSHA256, "sha256:"))
}
