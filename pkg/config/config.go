// Package config provides configuration loading and validation for issuetrack.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers       = errors.New("tracking workers must not be negative")
	ErrInvalidBlockHalfSize = errors.New("block half size must be positive")
	ErrInvalidMaxAge        = errors.New("closed issue max age must not be negative")
	ErrInvalidDriver        = errors.New("unknown storage driver")
	ErrInvalidStoragePath   = errors.New("sqlite storage needs a path")
	ErrInvalidLogLevel      = errors.New("unknown log level")
	ErrInvalidLogFormat     = errors.New("unknown log format")
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds all configuration of issuetrack.
type Config struct {
	Tracking      TrackingConfig      `mapstructure:"tracking"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Rules         RulesConfig         `mapstructure:"rules"`
	SCM           SCMConfig           `mapstructure:"scm"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// TrackingConfig holds the tracking engine settings.
type TrackingConfig struct {
	// Workers is the number of files tracked concurrently; 0 means GOMAXPROCS.
	Workers           int           `mapstructure:"workers"`
	BlockHalfSize     int           `mapstructure:"block_half_size"`
	ClosedIssueMaxAge time.Duration `mapstructure:"closed_issue_max_age"`
	HoursInDay        int           `mapstructure:"hours_in_day"`
	BackdateNewIssues bool          `mapstructure:"backdate_new_issues"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// RulesConfig locates the rule catalog.
type RulesConfig struct {
	Catalog string `mapstructure:"catalog"`
}

// SCMConfig maps SCM authors to users.
type SCMConfig struct {
	Accounts        []Account `mapstructure:"accounts"`
	DefaultAssignee string    `mapstructure:"default_assignee"`
}

// Account links an SCM author, usually an email, to a user login. Authors are
// listed rather than used as map keys because keys are split on dots.
type Account struct {
	Author string `mapstructure:"author"`
	Login  string `mapstructure:"login"`
}

// AccountMap returns the accounts keyed by author. Later entries win.
func (c SCMConfig) AccountMap() map[string]string {
	out := make(map[string]string, len(c.Accounts))
	for _, a := range c.Accounts {
		out[a.Author] = a.Login
	}

	return out
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds telemetry export settings.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	// OTLPHeaders is a "key=value,key=value" list sent as gRPC metadata.
	OTLPHeaders  string `mapstructure:"otlp_headers"`
	MetricsFile  string `mapstructure:"metrics_file"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("issuetrack")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/issuetrack")
	}

	viperCfg.SetEnvPrefix("ISSUETRACK")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("tracking.workers", DefaultWorkers)
	viperCfg.SetDefault("tracking.block_half_size", DefaultBlockHalfSize)
	viperCfg.SetDefault("tracking.closed_issue_max_age", DefaultClosedIssueMaxAge)
	viperCfg.SetDefault("tracking.hours_in_day", DefaultHoursInDay)
	viperCfg.SetDefault("tracking.backdate_new_issues", DefaultBackdateNewIssues)

	viperCfg.SetDefault("storage.driver", DriverSQLite)
	viperCfg.SetDefault("storage.path", DefaultStoragePath)
	viperCfg.SetDefault("storage.busy_timeout", DefaultBusyTimeout)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", FormatText)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	tr := config.Tracking

	if tr.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, tr.Workers)
	}

	if tr.BlockHalfSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBlockHalfSize, tr.BlockHalfSize)
	}

	if tr.ClosedIssueMaxAge < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMaxAge, tr.ClosedIssueMaxAge)
	}

	switch config.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if config.Storage.Path == "" {
			return ErrInvalidStoragePath
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, config.Storage.Driver)
	}

	_, err := config.Logging.SlogLevel()
	if err != nil {
		return err
	}

	if config.Logging.Format != FormatText && config.Logging.Format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}

	return level, nil
}
