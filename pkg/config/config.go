package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Schema     SchemaConfig     `mapstructure:"schema"`
	Canonical  CanonicalConfig  `mapstructure:"canonical"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Journal    JournalConfig    `mapstructure:"journal"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Render     RenderConfig     `mapstructure:"render"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Plan       PlanConfig       `mapstructure:"plan"`
	Output     OutputConfig     `mapstructure:"output"`
	Log        LogConfig        `mapstructure:"log"`
}

type SchemaConfig struct {
	Paths []string `mapstructure:"paths"`
}

type CanonicalConfig struct {
	SortColumns bool `mapstructure:"sort_columns"`
}

type MigrationsConfig struct {
	Dir string `mapstructure:"dir"`
}

type StorageConfig struct {
	Backend string   `mapstructure:"backend"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type JournalConfig struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	URL      string `mapstructure:"url"`
	Table    string `mapstructure:"table"`
	LockPath string `mapstructure:"lock_path"`
}

type ClickHouseConfig struct {
	DSN         string            `mapstructure:"dsn"`
	Settings    map[string]string `mapstructure:"settings"`
	Retries     int               `mapstructure:"retries"`
	DialTimeout time.Duration     `mapstructure:"dial_timeout"`
}

type RenderConfig struct {
	Cluster string `mapstructure:"cluster"`
}

type RiskConfig struct {
	ResetSettingIsDanger bool `mapstructure:"reset_setting_is_danger"`
}

type PlanConfig struct {
	Exclude []string `mapstructure:"exclude"`
	MaxRisk string   `mapstructure:"max_risk"`
	Renames []string `mapstructure:"renames"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key on v, so environment variables are
// honored for keys that no file sets.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("schema.paths", []string{"schema"})
	v.SetDefault("canonical.sort_columns", false)
	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("journal.backend", "file")
	v.SetDefault("journal.path", "migrations/journal.json")
	v.SetDefault("journal.url", "")
	v.SetDefault("journal.table", "chschema_migrations")
	v.SetDefault("journal.lock_path", "")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("clickhouse.retries", 2)
	v.SetDefault("clickhouse.dial_timeout", "10s")
	v.SetDefault("render.cluster", "")
	v.SetDefault("risk.reset_setting_is_danger", false)
	v.SetDefault("plan.exclude", []string{})
	v.SetDefault("plan.max_risk", "")
	v.SetDefault("plan.renames", []string{})
	v.SetDefault("output.format", "text")
	v.SetDefault("log.level", "info")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(len(c.Schema.Paths) > 0, "schema.paths must name at least one file or directory")
	switch c.Storage.Backend {
	case "fs":
		check(c.Migrations.Dir != "", "migrations.dir is required for the fs storage backend")
	case "s3":
		check(c.Storage.S3.Bucket != "", "storage.s3.bucket is required for the s3 storage backend")
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend))
	}
	switch c.Journal.Backend {
	case "file":
		check(c.Journal.Path != "", "journal.path is required for the file journal")
	case "table":
		check(c.Journal.URL != "", "journal.url is required for the table journal")
		if strings.HasPrefix(c.Journal.URL, "clickhouse://") {
			check(c.Journal.LockPath != "", "journal.lock_path is required for a ClickHouse journal table")
		}
	default:
		errs = append(errs, fmt.Errorf("journal.backend must be file or table, got %q", c.Journal.Backend))
	}
	check(c.ClickHouse.Retries >= 0, "clickhouse.retries must not be negative")
	switch c.Plan.MaxRisk {
	case "", "safe", "caution", "danger":
	default:
		errs = append(errs, fmt.Errorf("plan.max_risk must be safe, caution or danger, got %q", c.Plan.MaxRisk))
	}
	switch c.Output.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("output.format must be text or json, got %q", c.Output.Format))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ClickHouseSettings converts settings to the map the driver expects.
func (c ClickHouseConfig) ClickHouseSettings() map[string]any {
	out := make(map[string]any, len(c.Settings))
	for k, v := range c.Settings {
		out[k] = v
	}
	return out
}

func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", level)
	}
	return l, nil
}
