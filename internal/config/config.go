package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration shared by the server and the benchmark CLI.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Models    ModelsConfig    `yaml:"models" toml:"models" json:"models"`
	Audio     AudioConfig     `yaml:"audio" toml:"audio" json:"audio"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine" json:"engine"`
	Benchmark BenchmarkConfig `yaml:"benchmark" toml:"benchmark" json:"benchmark"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" json:"logging"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr" toml:"addr" json:"addr"`
	ReadTimeout  string `yaml:"read_timeout" toml:"read_timeout" json:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" toml:"write_timeout" json:"write_timeout"`
}

type ModelsConfig struct {
	Dir     string `yaml:"dir" toml:"dir" json:"dir"`
	Default string `yaml:"default" toml:"default" json:"default"`
	Watch   bool   `yaml:"watch" toml:"watch" json:"watch"`
}

// AudioConfig controls capture cadence and buffering.
type AudioConfig struct {
	SampleRate        int    `yaml:"sample_rate" toml:"sample_rate" json:"sample_rate"`
	LiveBufferSamples int    `yaml:"live_buffer_samples" toml:"live_buffer_samples" json:"live_buffer_samples"`
	QueueSize         int    `yaml:"queue_size" toml:"queue_size" json:"queue_size"`
	FileChunkDelay    string `yaml:"file_chunk_delay" toml:"file_chunk_delay" json:"file_chunk_delay"`
}

type EngineConfig struct {
	InferenceTimeout string `yaml:"inference_timeout" toml:"inference_timeout" json:"inference_timeout"`
	Threads          int    `yaml:"threads" toml:"threads" json:"threads"`
	Language         string `yaml:"language" toml:"language" json:"language"`
	// ONNXRuntimeLib is the onnxruntime shared library path. Empty uses the loader default.
	ONNXRuntimeLib string `yaml:"onnxruntime_lib" toml:"onnxruntime_lib" json:"onnxruntime_lib"`
}

type BenchmarkConfig struct {
	ClipsDir    string `yaml:"clips_dir" toml:"clips_dir" json:"clips_dir"`
	ReportsDir  string `yaml:"reports_dir" toml:"reports_dir" json:"reports_dir"`
	ReportStore string `yaml:"report_store" toml:"report_store" json:"report_store"` // "file" or "sqlite"
	SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path" json:"sqlite_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"` // "json" or "console"
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  "30s",
			WriteTimeout: "60s",
		},
		Models: ModelsConfig{
			Dir:   "./models",
			Watch: true,
		},
		Audio: AudioConfig{
			SampleRate:        16000,
			LiveBufferSamples: 1600,
			QueueSize:         8,
			FileChunkDelay:    "50ms",
		},
		Engine: EngineConfig{
			InferenceTimeout: "0s",
			Language:         "auto",
		},
		Benchmark: BenchmarkConfig{
			ClipsDir:    "./test_audio_clips",
			ReportsDir:  "./reports",
			ReportStore: "file",
			SQLitePath:  "./reports/reports.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (YAML, TOML or JSON by extension), applies environment
// overrides and validates the result. An empty or missing path yields defaults
// plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".json":
		return json.Unmarshal(data, cfg)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

// ApplyEnvOverrides lets deployment environments override file settings.
func (c *Config) ApplyEnvOverrides() {
	c.Server.Addr = getenv("VOICE_ADDR", c.Server.Addr)
	c.Models.Dir = getenv("VOICE_MODELS_DIR", c.Models.Dir)
	c.Models.Default = getenv("VOICE_MODEL", c.Models.Default)
	c.Models.Watch = getenvBool("VOICE_MODELS_WATCH", c.Models.Watch)
	c.Audio.SampleRate = getenvInt("VOICE_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.QueueSize = getenvInt("VOICE_QUEUE_SIZE", c.Audio.QueueSize)
	c.Engine.InferenceTimeout = getenv("VOICE_INFERENCE_TIMEOUT", c.Engine.InferenceTimeout)
	c.Engine.Threads = getenvInt("WHISPER_THREADS", c.Engine.Threads)
	c.Engine.Language = getenv("VOICE_LANGUAGE", c.Engine.Language)
	c.Engine.ONNXRuntimeLib = getenv("ONNXRUNTIME_LIB", c.Engine.ONNXRuntimeLib)
	c.Benchmark.ReportsDir = getenv("VOICE_REPORTS_DIR", c.Benchmark.ReportsDir)
	c.Benchmark.ClipsDir = getenv("VOICE_CLIPS_DIR", c.Benchmark.ClipsDir)
	c.Logging.Level = getenv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getenv("LOG_FORMAT", c.Logging.Format)
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Models.Validate(); err != nil {
		return fmt.Errorf("models config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Benchmark.Validate(); err != nil {
		return fmt.Errorf("benchmark config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if _, err := positiveDuration("read_timeout", s.ReadTimeout); err != nil {
		return err
	}
	if _, err := positiveDuration("write_timeout", s.WriteTimeout); err != nil {
		return err
	}
	return nil
}

func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

func (m *ModelsConfig) Validate() error {
	if m.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}
	if a.LiveBufferSamples < 1 {
		return fmt.Errorf("live_buffer_samples must be at least 1, got %d", a.LiveBufferSamples)
	}
	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}
	if _, err := nonNegativeDuration("file_chunk_delay", a.FileChunkDelay); err != nil {
		return err
	}
	return nil
}

// FileChunkDelayDuration is the pause between chunks when replaying a file.
func (a *AudioConfig) FileChunkDelayDuration() time.Duration {
	d, _ := time.ParseDuration(a.FileChunkDelay)
	return d
}

func (e *EngineConfig) Validate() error {
	if _, err := nonNegativeDuration("inference_timeout", e.InferenceTimeout); err != nil {
		return err
	}
	if e.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", e.Threads)
	}
	return nil
}

// InferenceTimeoutDuration returns 0 when inference passes are unbounded.
func (e *EngineConfig) InferenceTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(e.InferenceTimeout)
	return d
}

func (b *BenchmarkConfig) Validate() error {
	switch b.ReportStore {
	case "file":
		if b.ReportsDir == "" {
			return fmt.Errorf("reports_dir cannot be empty for the file report store")
		}
	case "sqlite":
		if b.SQLitePath == "" {
			return fmt.Errorf("sqlite_path cannot be empty for the sqlite report store")
		}
	default:
		return fmt.Errorf("report_store must be file or sqlite, got %q", b.ReportStore)
	}
	if b.ClipsDir == "" {
		return fmt.Errorf("clips_dir cannot be empty")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("level must be a zerolog level name, got %q", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", l.Format)
	}
	return nil
}

func positiveDuration(name, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, v)
	}
	return d, nil
}

func nonNegativeDuration(name, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", name, v)
	}
	return d, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
