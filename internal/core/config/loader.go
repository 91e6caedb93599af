package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB == 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups == 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays == 0 {
			c.Logging.MaxAgeDays = 30
		}
	}
	if c.API.Transport == "" {
		c.API.Transport = "rest"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 60 * time.Second
	}
	if c.API.RateLimit > 0 && c.API.Burst == 0 {
		c.API.Burst = 1
	}
	c.Retry.Policies = c.Retry.Policies.WithDefaults()
	c.Monitor = c.Monitor.WithDefaults()
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "vidgate"
	}
}

// Validate checks value ranges and cross-field constraints.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.API.Transport {
	case "rest":
	case "grpc":
		if c.API.GRPCEndpoint == "" {
			errs = append(errs, errors.New("api.grpc_endpoint is required for the grpc transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("api.transport %q must be rest or grpc", c.API.Transport))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, errors.New("api.rate_limit must not be negative"))
	}

	for name, p := range map[string]struct {
		retries int
		jitter  float64
	}{
		"create": {c.Retry.Policies.Create.MaxRetries, c.Retry.Policies.Create.JitterFactor},
		"read":   {c.Retry.Policies.Read.MaxRetries, c.Retry.Policies.Read.JitterFactor},
		"cancel": {c.Retry.Policies.Cancel.MaxRetries, c.Retry.Policies.Cancel.JitterFactor},
		"list":   {c.Retry.Policies.List.MaxRetries, c.Retry.Policies.List.JitterFactor},
	} {
		if p.retries < 0 {
			errs = append(errs, fmt.Errorf("retry.policies.%s.max_retries must not be negative", name))
		}
		if p.jitter < 0 || p.jitter > 1 {
			errs = append(errs, fmt.Errorf("retry.policies.%s.jitter_factor must be within [0, 1]", name))
		}
	}
	for kind := range c.Retry.KindOverrides {
		if !classify.Kind(kind).Valid() {
			errs = append(errs, fmt.Errorf("retry.kind_overrides: unknown error kind %q", kind))
		}
	}

	if err := c.Monitor.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("monitor.thresholds: %w", err))
	}
	if c.Monitor.Retention > 0 && c.Monitor.Retention < c.Monitor.HealthWindow {
		errs = append(errs, errors.New("monitor.retention must cover the health window"))
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, errors.New("telemetry.sample_ratio must be within [0, 1]"))
	}

	return errors.Join(errs...)
}
