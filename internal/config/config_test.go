package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Audio.FileChunkDelayDuration())
	assert.Equal(t, time.Duration(0), cfg.Engine.InferenceTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeoutDuration())
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "voice.yaml", `
models:
  dir: /var/lib/voice/models
  default: whisper-base
audio:
  queue_size: 4
  file_chunk_delay: 0s
engine:
  inference_timeout: 5s
logging:
  level: debug
  format: console
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/voice/models", cfg.Models.Dir)
	assert.Equal(t, "whisper-base", cfg.Models.Default)
	assert.Equal(t, 4, cfg.Audio.QueueSize)
	assert.Equal(t, 16000, cfg.Audio.SampleRate, "unset keys keep defaults")
	assert.Equal(t, time.Duration(0), cfg.Audio.FileChunkDelayDuration())
	assert.Equal(t, 5*time.Second, cfg.Engine.InferenceTimeoutDuration())
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "voice.toml", `
[benchmark]
report_store = "sqlite"
sqlite_path = "/tmp/reports.db"

[engine]
threads = 4
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Benchmark.ReportStore)
	assert.Equal(t, 4, cfg.Engine.Threads)
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "voice.json", `{"server": {"addr": ":9999"}}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICE_MODELS_DIR", "/models")
	t.Setenv("VOICE_QUEUE_SIZE", "2")
	t.Setenv("VOICE_MODELS_WATCH", "off")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/models", cfg.Models.Dir)
	assert.Equal(t, 2, cfg.Audio.QueueSize)
	assert.False(t, cfg.Models.Watch)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"sample rate":   func(c *Config) { c.Audio.SampleRate = 100 },
		"queue size":    func(c *Config) { c.Audio.QueueSize = 0 },
		"delay":         func(c *Config) { c.Audio.FileChunkDelay = "-1s" },
		"timeout parse": func(c *Config) { c.Engine.InferenceTimeout = "soon" },
		"store":         func(c *Config) { c.Benchmark.ReportStore = "s3" },
		"level":         func(c *Config) { c.Logging.Level = "loud" },
		"format":        func(c *Config) { c.Logging.Format = "xml" },
		"addr":          func(c *Config) { c.Server.Addr = "" },
		"read timeout":  func(c *Config) { c.Server.ReadTimeout = "0s" },
		"models dir":    func(c *Config) { c.Models.Dir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestUnsupportedExtension(t *testing.T) {
	p := writeFile(t, "voice.ini", "x=1")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := LoggingConfig{Level: "warn", Format: "json"}
	logger := l.Logger(&buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	l = LoggingConfig{Level: "debug", Format: "console"}
	logger = l.Logger(&buf)
	logger.Debug().Msg("pretty")
	assert.Contains(t, buf.String(), "pretty")
	assert.NotContains(t, buf.String(), `"message"`)
}
