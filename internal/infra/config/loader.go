// Package config loads and watches the engine's YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
	"toolmesh/internal/registry"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Servers []registry.Endpoint

	DiscoveryTimeout   time.Duration
	ExecutionTimeout   time.Duration
	HealthCheckTimeout time.Duration
	HealthInterval     time.Duration
	CacheTTL           time.Duration
	MaxRetries         int
	ParallelLimit      int
	RetryBackoffBase   time.Duration

	StatePath     string
	Observability ObservabilityConfig
}

type ObservabilityConfig struct {
	ListenAddress string
	EnableMetrics bool
}

type rawConfig struct {
	Servers []rawServerSpec `mapstructure:"servers"`

	DiscoveryTimeoutSeconds   int `mapstructure:"discoveryTimeoutSeconds"`
	ExecutionTimeoutSeconds   int `mapstructure:"executionTimeoutSeconds"`
	HealthCheckTimeoutSeconds int `mapstructure:"healthCheckTimeoutSeconds"`
	HealthIntervalSeconds     int `mapstructure:"healthIntervalSeconds"`
	CacheTTLSeconds           int `mapstructure:"cacheTTLSeconds"`
	MaxRetries                int `mapstructure:"maxRetries"`
	ParallelLimit             int `mapstructure:"parallelLimit"`
	RetryBackoffBaseMillis    int `mapstructure:"retryBackoffBaseMillis"`

	StatePath     string                 `mapstructure:"statePath"`
	Observability rawObservabilityConfig `mapstructure:"observability"`
}

type rawServerSpec struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Enabled *bool  `mapstructure:"enabled"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
	EnableMetrics bool   `mapstructure:"enableMetrics"`
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discoveryTimeoutSeconds", domain.DefaultDiscoveryTimeoutSeconds)
	v.SetDefault("executionTimeoutSeconds", domain.DefaultExecutionTimeoutSeconds)
	v.SetDefault("healthCheckTimeoutSeconds", domain.DefaultHealthCheckTimeoutSeconds)
	v.SetDefault("healthIntervalSeconds", domain.DefaultHealthIntervalSeconds)
	v.SetDefault("cacheTTLSeconds", domain.DefaultCacheTTLSeconds)
	v.SetDefault("maxRetries", domain.DefaultMaxRetries)
	v.SetDefault("parallelLimit", domain.DefaultParallelLimit)
	v.SetDefault("retryBackoffBaseMillis", domain.DefaultRetryBackoffBaseMillis)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.enableMetrics", true)
}

// Load reads, parses, and validates the config file at path.
func (l *Loader) Load(path string) (Config, error) {
	if path == "" {
		return Config{}, domain.E(domain.CodeInvalidArgument, "config.Load", "config path is required", nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, domain.E(domain.CodeInvalidArgument, "config.Load", "read config file", err)
	}
	return l.Parse(data)
}

// Parse resolves raw YAML bytes into a validated Config.
func (l *Loader) Parse(data []byte) (Config, error) {
	const op = "config.Parse"

	v := newConfigViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Config{}, domain.E(domain.CodeInvalidArgument, op, "parse yaml", err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, domain.E(domain.CodeInvalidArgument, op, "decode config", err)
	}

	servers, err := resolveServers(op, raw.Servers)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Servers:            servers,
		DiscoveryTimeout:   time.Duration(raw.DiscoveryTimeoutSeconds) * time.Second,
		ExecutionTimeout:   time.Duration(raw.ExecutionTimeoutSeconds) * time.Second,
		HealthCheckTimeout: time.Duration(raw.HealthCheckTimeoutSeconds) * time.Second,
		HealthInterval:     time.Duration(raw.HealthIntervalSeconds) * time.Second,
		CacheTTL:           time.Duration(raw.CacheTTLSeconds) * time.Second,
		MaxRetries:         raw.MaxRetries,
		ParallelLimit:      raw.ParallelLimit,
		RetryBackoffBase:   time.Duration(raw.RetryBackoffBaseMillis) * time.Millisecond,
		StatePath:          raw.StatePath,
		Observability: ObservabilityConfig{
			ListenAddress: raw.Observability.ListenAddress,
			EnableMetrics: raw.Observability.EnableMetrics,
		},
	}
	if err := validate(op, cfg); err != nil {
		return Config{}, err
	}

	l.logger.Debug("config loaded",
		zap.Int("servers", len(cfg.Servers)),
		zap.Duration("discoveryTimeout", cfg.DiscoveryTimeout),
		zap.Duration("cacheTTL", cfg.CacheTTL),
	)
	return cfg, nil
}

func resolveServers(op string, raw []rawServerSpec) ([]registry.Endpoint, error) {
	if len(raw) == 0 {
		return nil, domain.Wrap(domain.CodeFailedPrecond, op, domain.ErrNoServersConfigured)
	}

	seen := make(map[string]struct{}, len(raw))
	endpoints := make([]registry.Endpoint, 0, len(raw))
	for i, spec := range raw {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, domain.E(domain.CodeInvalidArgument, op,
				fmt.Sprintf("servers[%d]: name is required", i), nil)
		}
		if _, dup := seen[name]; dup {
			return nil, domain.E(domain.CodeInvalidArgument, op,
				fmt.Sprintf("servers[%d]: duplicate server name %q", i, name), nil)
		}
		seen[name] = struct{}{}

		parsed, err := url.Parse(strings.TrimSpace(spec.URL))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, domain.E(domain.CodeInvalidArgument, op,
				fmt.Sprintf("servers[%d] %s: url must be an absolute http(s) URL", i, name), err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, domain.E(domain.CodeInvalidArgument, op,
				fmt.Sprintf("servers[%d] %s: unsupported scheme %q", i, name, parsed.Scheme), nil)
		}

		enabled := true
		if spec.Enabled != nil {
			enabled = *spec.Enabled
		}
		endpoints = append(endpoints, registry.Endpoint{
			Name:    name,
			URL:     strings.TrimRight(parsed.String(), "/"),
			Enabled: enabled,
		})
	}
	return endpoints, nil
}

func validate(op string, cfg Config) error {
	checks := []struct {
		ok   bool
		what string
	}{
		{cfg.DiscoveryTimeout > 0, "discoveryTimeoutSeconds must be positive"},
		{cfg.ExecutionTimeout > 0, "executionTimeoutSeconds must be positive"},
		{cfg.HealthCheckTimeout > 0, "healthCheckTimeoutSeconds must be positive"},
		{cfg.HealthInterval > 0, "healthIntervalSeconds must be positive"},
		{cfg.CacheTTL > 0, "cacheTTLSeconds must be positive"},
		{cfg.MaxRetries >= 0, "maxRetries must not be negative"},
		{cfg.ParallelLimit > 0, "parallelLimit must be positive"},
		{cfg.RetryBackoffBase > 0, "retryBackoffBaseMillis must be positive"},
	}
	for _, check := range checks {
		if !check.ok {
			return domain.E(domain.CodeInvalidArgument, op, check.what, nil)
		}
	}
	return nil
}
