package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled         bool
	Endpoint        string
	Protocol        string // "grpc" or "http/protobuf"
	Insecure        bool
	ServiceName     string
	ServiceVersion  string
	SampleRate      float64
	MetricsInterval time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns local development defaults. Export is off until
// an operator enables it.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		Insecure:        true,
		ServiceName:     "agentd",
		ServiceVersion:  "dev",
		SampleRate:      1.0,
		MetricsInterval: 15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromAppConfig maps the operator-facing section onto a Config.
func FromAppConfig(tc config.TelemetryConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = tc.Enabled
	if tc.Endpoint != "" {
		cfg.Endpoint = tc.Endpoint
	}
	if tc.Protocol != "" {
		cfg.Protocol = tc.Protocol
	}
	cfg.Insecure = tc.Insecure
	if tc.ServiceName != "" {
		cfg.ServiceName = tc.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.SampleRate = tc.SampleRate
	return cfg
}

// Validate checks configuration for errors. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("protocol must be 'grpc' or 'http/protobuf', got %q", c.Protocol)
	}
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("insecure export to remote endpoint %q is not allowed", c.Endpoint)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics interval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

func isLocalEndpoint(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes http:// or https://. The OTLP HTTP exporters expect
// host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
