package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalog database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for extraction and enrichment.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	EnrichModel    string  `yaml:"enrich_model" mapstructure:"enrich_model"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMin float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
}

// BatchTier is one row of the volume-keyed batch sizing table. Inputs
// with more than MinLines lines use this tier; larger inputs get smaller
// batches and longer delays to stay under external rate limits.
type BatchTier struct {
	MinLines     int `yaml:"min_lines" mapstructure:"min_lines"`
	BatchSize    int `yaml:"batch_size" mapstructure:"batch_size"`
	ItemDelayMS  int `yaml:"item_delay_ms" mapstructure:"item_delay_ms"`
	BatchPauseMS int `yaml:"batch_pause_ms" mapstructure:"batch_pause_ms"`
}

// IngestConfig configures the ingestion pipeline and batch scheduler.
type IngestConfig struct {
	MinLineLength int         `yaml:"min_line_length" mapstructure:"min_line_length"`
	SampleSize    int         `yaml:"sample_size" mapstructure:"sample_size"`
	Workers       int         `yaml:"workers" mapstructure:"workers"`
	Tiers         []BatchTier `yaml:"tiers" mapstructure:"tiers"`
}

// EnrichConfig configures the enrichment scheduler and confidence gate.
type EnrichConfig struct {
	ItemDelayMS    int `yaml:"item_delay_ms" mapstructure:"item_delay_ms"`
	BatchLimit     int `yaml:"batch_limit" mapstructure:"batch_limit"`
	MinNotesLength int `yaml:"min_notes_length" mapstructure:"min_notes_length"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultTiers is the volume-keyed batch table: larger uploads get
// smaller batches and longer delays.
func DefaultTiers() []BatchTier {
	return []BatchTier{
		{MinLines: 1000, BatchSize: 25, ItemDelayMS: 250, BatchPauseMS: 2000},
		{MinLines: 500, BatchSize: 50, ItemDelayMS: 150, BatchPauseMS: 1500},
		{MinLines: 100, BatchSize: 100, ItemDelayMS: 100, BatchPauseMS: 1000},
		{MinLines: 0, BatchSize: 200, ItemDelayMS: 50, BatchPauseMS: 500},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CELLAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cellar.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.enrich_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 10)
	v.SetDefault("anthropic.requests_per_min", 50)
	v.SetDefault("ingest.min_line_length", 4)
	v.SetDefault("ingest.sample_size", 20)
	v.SetDefault("ingest.workers", 1)
	v.SetDefault("enrich.item_delay_ms", 1000)
	v.SetDefault("enrich.batch_limit", 50)
	v.SetDefault("enrich.min_notes_length", 75)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Ingest.Tiers) == 0 {
		cfg.Ingest.Tiers = DefaultTiers()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
