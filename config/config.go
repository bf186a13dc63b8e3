// Package config loads the svcguard configuration from a YAML file and
// SVCGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"svcguard/circuitbreaker"
	"svcguard/client"
	"svcguard/health"
	"svcguard/loadbalance"
	"svcguard/registry"
	"svcguard/transport"
)

const envPrefix = "SVCGUARD"

type Config struct {
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`

	// Admin API
	Admin struct {
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
	} `mapstructure:"admin"`

	HealthCheck    health.Settings         `mapstructure:"health_check"`
	CircuitBreaker circuitbreaker.Settings `mapstructure:"circuit_breaker"`
	RateLimit      client.RateLimit        `mapstructure:"rate_limit"`
	Transport      transport.PoolConfig    `mapstructure:"transport"`

	// Strategy used by the admin API when a request names none.
	DefaultStrategy string `mapstructure:"default_strategy"`

	// Services registered at startup.
	Services []registry.ServiceConfig `mapstructure:"services"`
}

// AdminAddr is the host:port the admin API listens on.
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Admin.ListenAddress, c.Admin.Port)
}

// Validate checks what viper cannot: strategy names and service entries.
func (c *Config) Validate() error {
	if _, err := loadbalance.ParseStrategy(c.DefaultStrategy); err != nil {
		return fmt.Errorf("config: default_strategy: %w", err)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("config: admin.port %d out of range", c.Admin.Port)
	}
	var errs []error
	for i, svc := range c.Services {
		if svc.Name == "" || svc.BaseURL == "" {
			errs = append(errs, fmt.Errorf("config: services[%d]: name and base_url are required", i))
		}
	}
	return errors.Join(errs...)
}

// Load reads configPath, or the first config.yaml found in the usual places
// when configPath is empty. Environment variables override file values, e.g.
// SVCGUARD_ADMIN_PORT for admin.port.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.svcguard")
		v.AddConfigPath("/etc/svcguard")
	}
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("admin.listen_address", "0.0.0.0")
	v.SetDefault("admin.port", 8080)

	hc := health.DefaultSettings()
	v.SetDefault("health_check.interval", hc.Interval)
	v.SetDefault("health_check.timeout", hc.Timeout)
	v.SetDefault("health_check.concurrency", hc.Concurrency)

	cb := circuitbreaker.DefaultSettings()
	v.SetDefault("circuit_breaker.failure_threshold", cb.FailureThreshold)
	v.SetDefault("circuit_breaker.open_duration", cb.OpenDuration)

	v.SetDefault("rate_limit.rate", 0)
	v.SetDefault("rate_limit.burst", 0)

	pool := transport.DefaultPoolConfig()
	v.SetDefault("transport.max_idle_conns", pool.MaxIdleConns)
	v.SetDefault("transport.max_idle_conns_per_host", pool.MaxIdleConnsPerHost)
	v.SetDefault("transport.idle_conn_timeout", pool.IdleConnTimeout)
	v.SetDefault("transport.dial_timeout", pool.DialTimeout)

	v.SetDefault("default_strategy", loadbalance.RoundRobin.String())
}
