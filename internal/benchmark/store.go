package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNoReports is returned by Latest when nothing matches.
	ErrNoReports = errors.New("no benchmark reports")
	// ErrMissingRunID rejects reports not built by GenerateReport.
	ErrMissingRunID = errors.New("report has no run id")
)

// ReportStore persists reports.
type ReportStore interface {
	Save(ctx context.Context, r *Report) error
	// Latest returns the newest report for modelID, or for any model when
	// modelID is empty.
	Latest(ctx context.Context, modelID string) (*Report, error)
	// List returns every report, newest first.
	List(ctx context.Context) ([]*Report, error)
	Close() error
}

const (
	reportPrefix     = "benchmark_"
	reportExt        = ".json"
	reportTimeLayout = "20060102_150405"
)

// FileStore keeps one pretty-printed JSON file per report in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

// ReportFileName is benchmark_<modelId>_<yyyyMMdd_HHmmss>.json in UTC.
func ReportFileName(r *Report) string {
	ts := time.UnixMilli(r.Timestamp).UTC().Format(reportTimeLayout)
	return reportPrefix + r.ModelID + "_" + ts + reportExt
}

func (s *FileStore) Save(_ context.Context, r *Report) error {
	_, err := s.SaveFile(r)
	return err
}

// SaveFile writes r and returns the file path.
func (s *FileStore) SaveFile(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	path := filepath.Join(s.dir, ReportFileName(r))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	log.Info().Str("model", r.ModelID).Str("path", path).Msg("benchmark: report saved")
	return path, nil
}

func (s *FileStore) Latest(ctx context.Context, modelID string) (*Report, error) {
	reports, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		if modelID == "" || r.ModelID == modelID {
			return r, nil
		}
	}
	return nil, ErrNoReports
}

// List reads every report file, newest first by modification time.
// Files that fail to parse are skipped.
func (s *FileStore) List(_ context.Context) ([]*Report, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read reports dir: %w", err)
	}
	type file struct {
		name string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, reportPrefix) || !strings.HasSuffix(name, reportExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{name: name, mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].mod.Equal(files[j].mod) {
			return files[i].mod.After(files[j].mod)
		}
		return files[i].name > files[j].name
	})

	out := make([]*Report, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(s.dir, f.name))
		if err != nil {
			log.Warn().Err(err).Str("file", f.name).Msg("benchmark: read report")
			continue
		}
		var r Report
		if err := json.Unmarshal(data, &r); err != nil {
			log.Warn().Err(err).Str("file", f.name).Msg("benchmark: skipping unreadable report")
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *FileStore) Close() error { return nil }
