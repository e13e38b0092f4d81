// Package config loads service configuration from defaults, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvConfigFile names the variable holding the config file path.
const EnvConfigFile = "WEBRX_CONFIG"

// Store drivers.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`

	// RequireTLS rejects requests forwarded as plain HTTP.
	RequireTLS bool `mapstructure:"require_tls"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// StationsConfig holds station polling settings.
type StationsConfig struct {
	File            string        `mapstructure:"file"`
	TTL             time.Duration `mapstructure:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`

	// BackgroundRefresh runs the periodic refresh loop inside the API.
	// Turn it off when a worker owns the timer.
	BackgroundRefresh bool `mapstructure:"background_refresh"`
}

// StoreConfig selects where snapshots are persisted.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// TilesConfig holds tile proxy settings.
type TilesConfig struct {
	URLPattern string        `mapstructure:"url_pattern"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// PubSubConfig holds the worker's Pub/Sub trigger settings.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Subscription string `mapstructure:"subscription"`
}

// Config is the complete service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Stations  StationsConfig  `mapstructure:"stations"`
	Store     StoreConfig     `mapstructure:"store"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "3300")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.require_tls", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")

	v.SetDefault("stations.file", "public/locations.json")
	v.SetDefault("stations.ttl", 5*time.Minute)
	v.SetDefault("stations.refresh_interval", 5*time.Minute)
	v.SetDefault("stations.timeout", 5*time.Second)
	v.SetDefault("stations.max_attempts", 3)
	v.SetDefault("stations.retry_delay", time.Second)
	v.SetDefault("stations.max_concurrency", 0)
	v.SetDefault("stations.background_refresh", true)

	v.SetDefault("store.driver", StoreFile)
	v.SetDefault("store.path", "public/grabber/data.json")

	v.SetDefault("tiles.url_pattern", "https://{s}.tile.openstreetmap.org")
	v.SetDefault("tiles.ttl", 24*time.Hour)
	v.SetDefault("tiles.max_entries", 1000)
	v.SetDefault("tiles.timeout", 10*time.Second)
	v.SetDefault("tiles.user_agent", "WebRX Amateur Radio Map/1.0")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription", "")
}

// envAliases maps config keys to the conventional variable names used in
// deployment manifests. Every key can also be set as WEBRX_<SECTION>_<KEY>.
var envAliases = map[string][]string{
	"app.port":                {"APP_PORT", "PORT"},
	"app.env":                 {"APP_ENV"},
	"app.require_tls":         {"REQUIRE_TLS"},
	"log.level":               {"LOG_LEVEL"},
	"telemetry.enabled":       {"OTEL_ENABLED"},
	"telemetry.otlp_endpoint": {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"pubsub.project_id":       {"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
	"pubsub.subscription":     {"PUBSUB_SUBSCRIPTION"},
}

// Load reads configuration. path is an optional YAML file; when empty the
// WEBRX_CONFIG variable and then ./config.yaml are tried.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEBRX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.App),
		validation.Field(&c.Log),
		validation.Field(&c.Stations),
		validation.Field(&c.Store),
		validation.Field(&c.Tiles),
	)
}

// Validate implements validation.Validatable.
func (c AppConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.By(validatePort)),
		validation.Field(&c.Env, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.Required, validation.By(func(value interface{}) error {
			if _, err := zerolog.ParseLevel(value.(string)); err != nil {
				return validation.NewError("validation_invalid_level", "must be a valid log level")
			}
			return nil
		})),
	)
}

// ZerologLevel returns the parsed level, or info if it does not parse.
func (c LogConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Validate implements validation.Validatable.
func (c StationsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.File, validation.Required),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RefreshInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&c.RetryDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxConcurrency, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (c StoreConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreFile, StorePostgres, StoreMemory)),
		validation.Field(&c.Path, validation.When(c.Driver == StoreFile, validation.Required)),
	)
}

// Validate implements validation.Validatable.
func (c TilesConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URLPattern, validation.Required, validation.By(validateURLPattern)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.UserAgent, validation.Required),
	)
}

func validatePort(value interface{}) error {
	port, _ := value.(string)
	for _, r := range port {
		if r < '0' || r > '9' {
			return validation.NewError("validation_invalid_port", "must be numeric")
		}
	}
	return nil
}

func validateURLPattern(value interface{}) error {
	raw, _ := value.(string)
	u, err := url.Parse(strings.ReplaceAll(raw, "{s}", "a"))
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "must use http or https")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "must include a host")
	}
	return nil
}
