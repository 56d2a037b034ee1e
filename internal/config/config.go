// Package config loads and validates exporter configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

// Session provider names accepted by session.provider.
const (
	ProviderChromedp   = "chromedp"
	ProviderPlaywright = "playwright"
	ProviderStatic     = "static"
)

// Config captures all exporter configuration knobs loaded via Viper.
type Config struct {
	Input    InputConfig    `mapstructure:"input"`
	Output   OutputConfig   `mapstructure:"output"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Schema   catalog.Schema `mapstructure:"schema"`
	Session  SessionConfig  `mapstructure:"session"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Progress ProgressConfig `mapstructure:"progress"`
	Ops      OpsConfig      `mapstructure:"ops"`
	DB       DBConfig       `mapstructure:"db"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// InputConfig names the identifier list.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig names the CSV file written by the run.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Width int `mapstructure:"width"`
}

// TimeoutsConfig bounds the marker waits.
type TimeoutsConfig struct {
	Probe time.Duration `mapstructure:"probe"`
	Field time.Duration `mapstructure:"field"`
}

// SessionConfig selects the session provider.
type SessionConfig struct {
	Provider  string `mapstructure:"provider"`
	StaticDir string `mapstructure:"static_dir"`
}

// HeadlessConfig configures the browser-backed providers.
type HeadlessConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	ExecPath          string        `mapstructure:"exec_path"`
	Headful           bool          `mapstructure:"headful"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProgressConfig tunes the diagnostic event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// OpsConfig controls the operator HTTP server. An empty Addr disables it.
type OpsConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DBConfig controls run bookkeeping in Postgres. An empty DSN disables it.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DeliveryConfig controls where the finished file is uploaded.
type DeliveryConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ArchiveDir  string `mapstructure:"archive_dir"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds the completion notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RedisConfig holds the completion notification stream.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// TracingConfig controls OpenTelemetry spans per task.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	schema := catalog.DefaultSchema()
	v.SetDefault("input.path", "")
	v.SetDefault("output.path", "export.csv")
	v.SetDefault("pool.width", 9)
	v.SetDefault("timeouts.probe", 5*time.Second)
	v.SetDefault("timeouts.field", 15*time.Second)
	v.SetDefault("schema.item_url", schema.ItemURL)
	v.SetDefault("schema.probe_marker", schema.ProbeMarker)
	v.SetDefault("schema.name", schema.Name)
	v.SetDefault("schema.description", schema.Description)
	v.SetDefault("schema.spec_table", schema.SpecTable)
	v.SetDefault("schema.shipping_anchor", schema.ShippingAnchor)
	v.SetDefault("schema.enclosing_tag", schema.EnclosingTag)
	v.SetDefault("schema.row", schema.Row)
	v.SetDefault("schema.cell", schema.Cell)
	v.SetDefault("schema.image", schema.Image)
	v.SetDefault("schema.image_attribute", schema.ImageAttribute)
	v.SetDefault("session.provider", ProviderChromedp)
	v.SetDefault("session.static_dir", "")
	v.SetDefault("headless.user_agent", "")
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.headful", false)
	v.SetDefault("headless.navigation_timeout", 45*time.Second)
	v.SetDefault("headless.action_timeout", 10*time.Second)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 500)
	v.SetDefault("progress.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("ops.addr", "")
	v.SetDefault("ops.cors_origins", []string{})
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("delivery.gcs_bucket", "")
	v.SetDefault("delivery.prefix", "exports")
	v.SetDefault("delivery.archive_dir", "")
	v.SetDefault("delivery.content_type", "text/csv")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "catalog.exports")
	v.SetDefault("redis.max_len", 10000)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "catalog-exporter")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Output.Path) == "" {
		return errors.New("output.path must be set")
	}
	if c.Pool.Width <= 0 {
		return errors.New("pool.width must be > 0")
	}
	if c.Timeouts.Probe <= 0 {
		return errors.New("timeouts.probe must be > 0")
	}
	if c.Timeouts.Field <= 0 {
		return errors.New("timeouts.field must be > 0")
	}
	if err := c.Schema.Validate(); err != nil {
		return err
	}
	switch c.Session.Provider {
	case ProviderChromedp, ProviderPlaywright:
	case ProviderStatic:
		if c.Session.StaticDir == "" {
			return errors.New("session.static_dir must be set when session.provider is static")
		}
	default:
		return fmt.Errorf("session.provider %q must be one of %s, %s, %s",
			c.Session.Provider, ProviderChromedp, ProviderPlaywright, ProviderStatic)
	}
	if c.Headless.NavigationTimeout < 0 || c.Headless.ActionTimeout < 0 {
		return errors.New("headless timeouts must be >= 0")
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return errors.New("db.max_conns must be > 0 when db.dsn is set")
	}
	if c.Delivery.GCSBucket != "" && c.Delivery.ArchiveDir != "" {
		return errors.New("delivery.gcs_bucket and delivery.archive_dir are mutually exclusive")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return errors.New("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Redis.Addr != "" && c.Redis.Stream == "" {
		return errors.New("redis.stream must be set when redis.addr is set")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Tracing.Enabled && c.Tracing.ServiceName == "" {
		return errors.New("tracing.service_name must be set when tracing is enabled")
	}
	return nil
}
