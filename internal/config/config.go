package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gis-ops/hannibal/internal/sevas"
)

// Config holds the full application configuration.
type Config struct {
	SEVAS    SEVASConfig    `yaml:"sevas" mapstructure:"sevas"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	RunDB    string         `yaml:"run_db" mapstructure:"run_db"`
}

// SEVASConfig configures the SEVAS Web Feature Service endpoint.
type SEVASConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Version string `yaml:"version" mapstructure:"version"`
}

// DownloadConfig configures layer downloads.
type DownloadConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
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
	v.SetEnvPrefix("SEVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sevas.base_url", sevas.DefaultBaseURL)
	v.SetDefault("sevas.version", "2.0.0")
	v.SetDefault("download.concurrency", 2)
	v.SetDefault("download.requests_per_second", 1.0)
	v.SetDefault("download.timeout_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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
