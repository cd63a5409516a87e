package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tinytelemetry/canopy/internal/backup"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/duckdb"
	"github.com/tinytelemetry/canopy/internal/model"
)

const (
	defaultBindHost          = "127.0.0.1"
	defaultAPIPort           = 3000
	defaultVisibilityBackend = "duckdb"
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultRedisInstance     = "default"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultBackupInterval    = 6 * time.Hour
	defaultBackupKeepLast    = 10
)

// Visibility backends.
const (
	backendDuckDB = "duckdb"
	backendRedis  = "redis"
	backendMemory = "memory"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DBPath       string        `mapstructure:"db-path"`
	QueryTimeout time.Duration `mapstructure:"query-timeout"`

	ChartBaseURL          string        `mapstructure:"chart-base-url"`
	RefreshInterval       time.Duration `mapstructure:"refresh-interval"`
	FetchTimeout          time.Duration `mapstructure:"fetch-timeout"`
	CacheFailurePolicy    string        `mapstructure:"cache-failure-policy"`
	SkipOverlappingRounds bool          `mapstructure:"skip-overlapping-rounds"`
	BootstrapDefaults     bool          `mapstructure:"bootstrap-defaults"`

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIPort    int    `mapstructure:"api-port"`
	APIAddr    string `mapstructure:"api-addr"`

	VisibilityBackend string `mapstructure:"visibility-backend"`
	RedisAddr         string `mapstructure:"redis-addr"`
	RedisPassword     string `mapstructure:"redis-password"`
	RedisDB           int    `mapstructure:"redis-db"`
	RedisInstance     string `mapstructure:"redis-instance"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	Backup backup.Config `mapstructure:",squash"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

// loadConfig layers defaults, the optional config file, CANOPY_* environment
// variables and flags, in increasing precedence.
func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, *viper.Viper, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CANOPY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "canopy", "canopy.duckdb"))
	v.SetDefault("query-timeout", duckdb.DefaultQueryTimeout)
	v.SetDefault("chart-base-url", model.DefaultChartBaseURL)
	v.SetDefault("refresh-interval", model.DefaultRefreshInterval)
	v.SetDefault("fetch-timeout", model.DefaultFetchTimeout)
	v.SetDefault("cache-failure-policy", string(charts.PolicyDrop))
	v.SetDefault("skip-overlapping-rounds", false)
	v.SetDefault("bootstrap-defaults", true)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("visibility-backend", defaultVisibilityBackend)
	v.SetDefault("redis-addr", defaultRedisAddr)
	v.SetDefault("redis-password", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("redis-instance", defaultRedisInstance)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(home, ".local", "share", "canopy", "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-session-token", "")
	v.SetDefault("backup-s3-use-ssl", true)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, nil, err
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "canopy", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, nil, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, nil, err
	}
	cfg.ConfigPath = configFileUsed(v)

	// Expand ~ in paths
	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.Backup.LocalDir = expandHome(home, cfg.Backup.LocalDir)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	if err := cfg.validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, v, nil
}

func (c appConfig) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	ms := int(c.RefreshInterval / time.Millisecond)
	if ms < model.MinRefreshIntervalMs || ms > model.MaxRefreshIntervalMs {
		return fmt.Errorf("invalid refresh-interval %s: must be between %dms and %dms",
			c.RefreshInterval, model.MinRefreshIntervalMs, model.MaxRefreshIntervalMs)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("invalid fetch-timeout: %s", c.FetchTimeout)
	}
	if _, err := charts.ParseFailurePolicy(c.CacheFailurePolicy); err != nil {
		return fmt.Errorf("invalid cache-failure-policy: %w", err)
	}
	switch c.VisibilityBackend {
	case backendDuckDB, backendRedis, backendMemory:
	default:
		return fmt.Errorf("invalid visibility-backend %q: want duckdb, redis or memory", c.VisibilityBackend)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log-format %q: want json or console", c.LogFormat)
	}
	return nil
}

// configFileUsed returns the config file path only when it exists on disk.
func configFileUsed(v *viper.Viper) string {
	path := v.ConfigFileUsed()
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
