// Package config provides configuration loading and validation for the CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/jonathan/fee-agent/internal/objectstore"
)

// Config is the agent configuration. Values come from defaults, an optional config file and
// environment variables, in increasing order of precedence. CLI flags are applied on top by
// the command layer before Validate is called.
type Config struct {
	// Endpoints
	PageURL   string `mapstructure:"page_url" validate:"required,url"`
	SubmitURL string `mapstructure:"submit_url" validate:"required,url"`

	// Challenge solving
	AntiCaptchaKey   string  `mapstructure:"anticaptcha_key" validate:"required"`
	AntiCaptchaURL   string  `mapstructure:"anticaptcha_url" validate:"required,url"`
	CaptchaTimeoutMS int     `mapstructure:"captcha_timeout_ms" validate:"gt=0"`
	MinScore         float64 `mapstructure:"min_score" validate:"gt=0,lte=1"`

	// HTTP session
	HTTPTimeoutMS int    `mapstructure:"http_timeout_ms" validate:"gt=0"`
	UserAgent     string `mapstructure:"user_agent" validate:"required"`

	// Batch
	OutputDir     string `mapstructure:"output_dir" validate:"required"`
	Runs          int    `mapstructure:"runs" validate:"gte=1"`
	Concurrency   int    `mapstructure:"concurrency" validate:"gte=1"`
	RunIntervalMS int    `mapstructure:"run_interval_ms" validate:"gte=0"`
	CleanOutput   bool   `mapstructure:"clean_output"`
	PayloadSeed   uint64 `mapstructure:"payload_seed"`

	// Persistence
	DatabaseURL string `mapstructure:"database_url"`

	// Object storage archive, enabled when ObjectStoreEndpoint is set
	ObjectStoreEndpoint  string `mapstructure:"objectstore_endpoint"`
	ObjectStoreAccessKey string `mapstructure:"objectstore_access_key" validate:"required_with=ObjectStoreEndpoint"`
	ObjectStoreSecretKey string `mapstructure:"objectstore_secret_key" validate:"required_with=ObjectStoreEndpoint"`
	ObjectStoreRegion    string `mapstructure:"objectstore_region"`
	ObjectStoreUseSSL    bool   `mapstructure:"objectstore_use_ssl"`
	ObjectStoreBucket    string `mapstructure:"objectstore_bucket"`
	ObjectStorePrefix    string `mapstructure:"objectstore_prefix"`

	// Logging
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=console json"`
	Verbose   bool   `mapstructure:"verbose"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"page_url":           "PAGE_URL",
	"submit_url":         "SUBMIT_URL",
	"anticaptcha_key":    "ANTICAPTCHA_KEY",
	"anticaptcha_url":    "ANTICAPTCHA_URL",
	"captcha_timeout_ms": "CAPTCHA_TIMEOUT",
	"min_score":          "MIN_SCORE",
	"http_timeout_ms":    "HTTP_TIMEOUT",
	"user_agent":         "USER_AGENT",
	"output_dir":         "OUTPUT_DIR",
	"runs":               "RUNS",
	"concurrency":        "CONCURRENCY",
	"run_interval_ms":    "RUN_INTERVAL",
	"clean_output":       "CLEAN_OUTPUT",
	"payload_seed":       "PAYLOAD_SEED",
	"database_url":       "DATABASE_URL",

	"objectstore_endpoint":   "OBJECTSTORE_ENDPOINT",
	"objectstore_access_key": "OBJECTSTORE_ACCESS_KEY",
	"objectstore_secret_key": "OBJECTSTORE_SECRET_KEY",
	"objectstore_region":     "OBJECTSTORE_REGION",
	"objectstore_use_ssl":    "OBJECTSTORE_USE_SSL",
	"objectstore_bucket":     "OBJECTSTORE_BUCKET",
	"objectstore_prefix":     "OBJECTSTORE_PREFIX",

	"log_level":  "LOG_LEVEL",
	"log_format": "LOG_FORMAT",
	"verbose":    "VERBOSE",
}

// SetDefaults initializes default values for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("anticaptcha_url", "https://api.anti-captcha.com")
	v.SetDefault("captcha_timeout_ms", 60000)
	v.SetDefault("min_score", 0.3)

	v.SetDefault("http_timeout_ms", 60000)
	v.SetDefault("user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.0.0 Safari/537.36")

	v.SetDefault("output_dir", "results")
	v.SetDefault("runs", 10)
	v.SetDefault("concurrency", 1)
	v.SetDefault("run_interval_ms", 0)
	v.SetDefault("clean_output", true)
	v.SetDefault("payload_seed", 0)

	v.SetDefault("objectstore_region", "us-east-1")
	v.SetDefault("objectstore_use_ssl", false)
	v.SetDefault("objectstore_bucket", "fee-runs")
	v.SetDefault("objectstore_prefix", "runs")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("verbose", false)
}

// Load reads configuration from defaults, the optional file at path (JSON or YAML, chosen by
// extension) and the environment. It does not validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %s: %w", path, err)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	outputDir, err := homedir.Expand(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output dir: %w", err)
	}
	cfg.OutputDir = outputDir
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config error: invalid fields: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// CaptchaTimeout is the elapsed-time threshold above which a failed solve is retried.
func (c *Config) CaptchaTimeout() time.Duration {
	return time.Duration(c.CaptchaTimeoutMS) * time.Millisecond
}

// HTTPTimeout is the per-request timeout of a run's session.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// ObjectStore returns the archive settings for the objectstore package.
func (c *Config) ObjectStore() objectstore.Config {
	return objectstore.Config{
		Endpoint:  c.ObjectStoreEndpoint,
		AccessKey: c.ObjectStoreAccessKey,
		SecretKey: c.ObjectStoreSecretKey,
		Region:    c.ObjectStoreRegion,
		UseSSL:    c.ObjectStoreUseSSL,
		Bucket:    c.ObjectStoreBucket,
		Prefix:    c.ObjectStorePrefix,
	}
}

// RunInterval is the minimum spacing between run starts.
func (c *Config) RunInterval() time.Duration {
	return time.Duration(c.RunIntervalMS) * time.Millisecond
}
