package config

import (
	"time"

	"go.yaml.in/yaml/v4"
)

const (
	// Prometheus defaults
	DefaultPrometheusPort        = 9090
	DefaultPrometheusPath        = "/metrics"
	DefaultPrometheusJob         = "querygauge"
	DefaultPrometheusPushRetries = 3

	// OTEL defaults
	DefaultOTELPushInterval = 10 * time.Second
	DefaultOTELTimeout      = 5 * time.Second
	DefaultOTELTransport    = "grpc"
	DefaultOTELHost         = "localhost"
	DefaultOTELPortGRPC     = 4317
	DefaultOTELPortHTTP     = 4318
	DefaultServiceName      = "querygauge"
	DefaultServiceVersion   = "dev"

	// Settings defaults
	DefaultNamespacePrefix = "DataLake"
	DefaultConcurrency     = 1
)

// Config holds the complete application configuration.
type Config struct {
	Export   ExportConfig   `yaml:"export"`
	Engine   EngineConfig   `yaml:"engine"`
	Settings SettingsConfig `yaml:"settings"`
}

// EngineConfig configures the embedded query engine.
type EngineConfig struct {
	// Path of a DuckDB database file; empty for in-memory.
	Path string `yaml:"path,omitempty"`

	// Init statements run on every engine connection, e.g.
	// "CREATE SECRET (TYPE S3, PROVIDER CREDENTIAL_CHAIN)".
	Init []string `yaml:"init,omitempty"`
}

// IntervalConfig defines push interval and export timeout for OTEL.
type IntervalConfig struct {
	Push    time.Duration
	Timeout time.Duration
}

// UnmarshalYAML handles both simple (10s) and detailed (push/timeout) forms.
func (i *IntervalConfig) UnmarshalYAML(value *yaml.Node) error {
	// Try simple duration form first
	var simple time.Duration
	if err := value.Decode(&simple); err == nil {
		i.Push = simple
		return nil
	}

	// Fall back to detailed form
	type intervalConfig struct {
		Push    time.Duration `yaml:"push"`
		Timeout time.Duration `yaml:"timeout"`
	}
	var detailed intervalConfig
	if err := value.Decode(&detailed); err != nil {
		return err
	}
	i.Push = detailed.Push
	i.Timeout = detailed.Timeout
	return nil
}
