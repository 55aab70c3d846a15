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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Scrape   ScrapeConfig   `yaml:"scrape" mapstructure:"scrape"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Extract  ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Backfill BackfillConfig `yaml:"backfill" mapstructure:"backfill"`
	Fefta    FeftaConfig    `yaml:"fefta" mapstructure:"fefta"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	DelayMs     int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ScrapeConfig configures the listing scrape.
type ScrapeConfig struct {
	SearchURL      string `yaml:"search_url" mapstructure:"search_url"`
	ArchiveBaseURL string `yaml:"archive_base_url" mapstructure:"archive_base_url"`
	OutputDir      string `yaml:"output_dir" mapstructure:"output_dir"`
	ItemsPerPage   int    `yaml:"items_per_page" mapstructure:"items_per_page"`
	MaxRangeDays   int    `yaml:"max_range_days" mapstructure:"max_range_days"`
}

// SearchConfig configures the full-text tiered search.
type SearchConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	MaxPages int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// ClassifyConfig configures keyword classification.
type ClassifyConfig struct {
	// TiersPath points at a YAML tier definition; empty uses the built-in
	// placement tiers.
	TiersPath string `yaml:"tiers_path" mapstructure:"tiers_path"`
}

// ExtractConfig configures PDF text extraction.
type ExtractConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MinTextChars  int    `yaml:"min_text_chars" mapstructure:"min_text_chars"`
}

// BackfillConfig configures archive link recovery.
type BackfillConfig struct {
	LookbackDays int `yaml:"lookback_days" mapstructure:"lookback_days"`
}

// FeftaConfig configures the ministry classification-list crawl.
type FeftaConfig struct {
	PageURL   string `yaml:"page_url" mapstructure:"page_url"`
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISCLOSURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "disclosure.db")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.delay_ms", 1000)
	v.SetDefault("fetch.user_agent", "disclosure-cli/1.0")
	v.SetDefault("scrape.output_dir", "./downloads")
	v.SetDefault("scrape.items_per_page", 200)
	v.SetDefault("scrape.max_range_days", 31)
	v.SetDefault("search.max_pages", 100)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.min_text_chars", 100)
	v.SetDefault("backfill.lookback_days", 30)
	v.SetDefault("fefta.sheet_name", "")
	v.SetDefault("fefta.output_dir", "./downloads")
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
