package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/fitness-api/pkg/security"
)

// EnvPrefix prefixes every environment override, e.g. FITNESS_SERVER_PORT.
const EnvPrefix = "FITNESS"

type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Log        LogConfig             `mapstructure:"log"`
	Password   security.PolicyConfig `mapstructure:"password"`
	Throttle   ThrottleConfig        `mapstructure:"throttle"`
	Monitoring MonitoringConfig      `mapstructure:"monitoring"`

	v *viper.Viper
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ThrottleConfig carries the request budgets for the public API and for the
// auth routes.
type ThrottleConfig struct {
	Default ThrottlePolicy `mapstructure:"default"`
	Auth    ThrottlePolicy `mapstructure:"auth"`
}

type ThrottlePolicy struct {
	Limit int           `mapstructure:"limit" validate:"min=1"`
	TTL   time.Duration `mapstructure:"ttl" validate:"min=1ms"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path" validate:"required,startswith=/"`
}

// envOverrides lists the settings deployments commonly override. Unset
// variables leave the file value untouched.
type envOverrides struct {
	ServerPort        *int           `envconfig:"SERVER_PORT"`
	LogLevel          string         `envconfig:"LOG_LEVEL"`
	LogFormat         string         `envconfig:"LOG_FORMAT"`
	PasswordMinLength *int           `envconfig:"PASSWORD_MIN_LENGTH"`
	PasswordRules     []string       `envconfig:"PASSWORD_RULES"`
	DefaultLimit      *int           `envconfig:"THROTTLE_DEFAULT_LIMIT"`
	DefaultTTL        *time.Duration `envconfig:"THROTTLE_DEFAULT_TTL"`
	AuthLimit         *int           `envconfig:"THROTTLE_AUTH_LIMIT"`
	AuthTTL           *time.Duration `envconfig:"THROTTLE_AUTH_TTL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("password.min_length", security.DefaultMinLength)
	v.SetDefault("password.rules", ruleNames(security.DefaultRules()))

	v.SetDefault("throttle.default.limit", 100)
	v.SetDefault("throttle.default.ttl", time.Minute)
	v.SetDefault("throttle.auth.limit", 5)
	v.SetDefault("throttle.auth.ttl", time.Minute)

	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

func ruleNames(ids []security.RuleID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}

// LoadConfig reads config.yml from the usual locations, or the file named by
// CONFIG_FILE, then applies FITNESS_* environment overrides. A missing file is
// not an error: defaults apply.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load is LoadConfig with an explicit file path. An empty path searches the
// default locations.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.v = v

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if env.ServerPort != nil {
		c.Server.Port = *env.ServerPort
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		c.Log.Format = env.LogFormat
	}
	env.applyPassword(&c.Password)
	if env.DefaultLimit != nil {
		c.Throttle.Default.Limit = *env.DefaultLimit
	}
	if env.DefaultTTL != nil {
		c.Throttle.Default.TTL = *env.DefaultTTL
	}
	if env.AuthLimit != nil {
		c.Throttle.Auth.Limit = *env.AuthLimit
	}
	if env.AuthTTL != nil {
		c.Throttle.Auth.TTL = *env.AuthTTL
	}
	return nil
}

func (e envOverrides) applyPassword(p *security.PolicyConfig) {
	if e.PasswordMinLength != nil {
		p.MinLength = *e.PasswordMinLength
	}
	if e.PasswordRules != nil {
		p.Rules = make([]security.RuleID, len(e.PasswordRules))
		for i, r := range e.PasswordRules {
			p.Rules[i] = security.RuleID(r)
		}
	}
}

// WatchPasswordPolicy re-reads the password section whenever the config file
// changes and hands the result to onChange. Environment overrides are applied
// again so they keep precedence over the file. It reports false when no config
// file was loaded and there is nothing to watch.
func (c *Config) WatchPasswordPolicy(onChange func(security.PolicyConfig, error)) bool {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return false
	}

	c.v.OnConfigChange(func(fsnotify.Event) {
		onChange(c.reloadPassword())
	})
	c.v.WatchConfig()
	return true
}

// reloadPassword decodes the password section from the whole settings tree so
// keys missing from the file fall back to their defaults, then reapplies the
// environment overrides.
func (c *Config) reloadPassword() (security.PolicyConfig, error) {
	var fresh Config
	if err := c.v.Unmarshal(&fresh); err != nil {
		return security.PolicyConfig{}, fmt.Errorf("failed to unmarshal password policy: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return security.PolicyConfig{}, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	env.applyPassword(&fresh.Password)

	return fresh.Password, nil
}
