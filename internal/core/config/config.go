package config

import (
	"time"

	"github.com/vietddude/vidgate/internal/core/logging"
	redisclient "github.com/vietddude/vidgate/internal/infra/redis"
	"github.com/vietddude/vidgate/internal/infra/rpc"
	"github.com/vietddude/vidgate/internal/infra/rpc/retry"
	"github.com/vietddude/vidgate/internal/infra/storage/postgres"
	"github.com/vietddude/vidgate/internal/monitor"
	"github.com/vietddude/vidgate/internal/telemetry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   logging.Config     `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	API       APIConfig          `yaml:"api"`
	Retry     RetryConfig        `yaml:"retry"`
	Monitor   monitor.Config     `yaml:"monitor"`
	Telemetry telemetry.Config   `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// APIConfig describes the upstream generation API.
type APIConfig struct {
	Transport    string        `yaml:"transport"` // rest (default) or grpc
	BaseURL      string        `yaml:"base_url"`
	GRPCEndpoint string        `yaml:"grpc_endpoint"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst        int           `yaml:"burst"`
}

// RetryConfig holds per-operation policies and per-kind delay overrides.
type RetryConfig struct {
	Policies rpc.Policies `yaml:"policies"`
	// KindPresets backs off each retryable error kind with its built-in
	// preset instead of the operation's delays.
	KindPresets   bool                    `yaml:"kind_presets"`
	KindOverrides map[string]retry.Policy `yaml:"kind_overrides"`
}
