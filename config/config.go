package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	NetWatch NetWatchConfig `yaml:"netwatch"`
}

// NetWatchConfig is the project configuration.
type NetWatchConfig struct {
	Poll    PollConfig    `yaml:"poll"`
	Source  SourceConfig  `yaml:"source"`
	Changes ChangesConfig `yaml:"changes"`
	Risk    RiskConfig    `yaml:"risk"`
	Output  OutputConfig  `yaml:"output"`
	Capture CaptureConfig `yaml:"capture"`
	API     APIConfig     `yaml:"api"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// PollConfig controls the poll scheduler.
type PollConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// SourceConfig selects where raw connection tuples come from.
type SourceConfig struct {
	Mode   string             `yaml:"mode"` // system|replay
	Kind   string             `yaml:"kind"` // inet|tcp|udp|all and the 4/6 variants
	Replay ReplaySourceConfig `yaml:"replay"`
}

// ReplaySourceConfig reads capture frames from a JSONL file.
type ReplaySourceConfig struct {
	Path string `yaml:"path"`
	Loop bool   `yaml:"loop"`
}

// ChangesConfig controls the change event log.
type ChangesConfig struct {
	Capacity     int `yaml:"capacity"`
	DefaultLimit int `yaml:"default_limit"`
}

// RiskConfig controls classifier rules.
type RiskConfig struct {
	RulesFile string      `yaml:"rules_file"`
	Sigma     SigmaConfig `yaml:"sigma"`
}

// SigmaConfig loads extra Sigma rules over connection fields.
type SigmaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// OutputConfig controls the change event sink.
type OutputConfig struct {
	Mode          string                 `yaml:"mode"` // none|file|http|redis|clickhouse
	BatchSize     int                    `yaml:"batch_size"`
	FlushInterval time.Duration          `yaml:"flush_interval"`
	File          FileOutputConfig       `yaml:"file"`
	HTTP          HTTPOutputConfig       `yaml:"http"`
	Redis         RedisOutputConfig      `yaml:"redis"`
	ClickHouse    ClickHouseOutputConfig `yaml:"clickhouse"`
}

// CaptureConfig controls raw tuple capture for replay.
type CaptureConfig struct {
	Enabled bool             `yaml:"enabled"`
	File    FileOutputConfig `yaml:"file"`
}

// APIConfig controls the local HTTP API. Enabled is a pointer so an omitted
// key can default to on.
type APIConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// IsEnabled reports whether the API should be served. Unset means enabled.
func (c APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ExportConfig controls snapshot export files.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL      string            `yaml:"url"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
	MaxBatch int               `yaml:"max_batch"`
}

// RedisOutputConfig config for the Redis list sink.
type RedisOutputConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxLen   int64  `yaml:"max_len"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
