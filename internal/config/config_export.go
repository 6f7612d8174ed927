package config

import (
	"fmt"
	"net/url"
)

// ExportConfig defines where data points are delivered.
type ExportConfig struct {
	CloudWatch *CloudWatchExportConfig `yaml:"cloudwatch,omitempty"`
	OTEL       *OTELExportConfig       `yaml:"otel,omitempty"`
	Prometheus *PrometheusExportConfig `yaml:"prometheus,omitempty"`
	Log        *LogExportConfig        `yaml:"log,omitempty"`
}

// Validate applies defaults and validates export configuration.
func (e *ExportConfig) Validate() error {
	// Default to log export if no exporters configured
	if e.CloudWatch == nil && e.OTEL == nil && e.Prometheus == nil && e.Log == nil {
		e.Log = &LogExportConfig{Enabled: true}
		return nil
	}

	// Validate individual exporters
	if e.CloudWatch != nil && e.CloudWatch.Enabled {
		if err := e.CloudWatch.Validate(); err != nil {
			return err
		}
	}

	if e.OTEL != nil && e.OTEL.Enabled {
		if err := e.OTEL.Validate(); err != nil {
			return err
		}
	}

	if e.Prometheus != nil && e.Prometheus.Enabled {
		if err := e.Prometheus.Validate(); err != nil {
			return err
		}
	}

	if !e.CloudWatchEnabled() && !e.OTELEnabled() && !e.PrometheusEnabled() && !e.LogEnabled() {
		return fmt.Errorf("at least one exporter must be enabled")
	}

	return nil
}

func (e *ExportConfig) CloudWatchEnabled() bool { return e.CloudWatch != nil && e.CloudWatch.Enabled }
func (e *ExportConfig) OTELEnabled() bool       { return e.OTEL != nil && e.OTEL.Enabled }
func (e *ExportConfig) PrometheusEnabled() bool { return e.Prometheus != nil && e.Prometheus.Enabled }
func (e *ExportConfig) LogEnabled() bool        { return e.Log != nil && e.Log.Enabled }

// CloudWatchExportConfig defines AWS CloudWatch delivery.
type CloudWatchExportConfig struct {
	Enabled bool `yaml:"enabled"`

	// Region overrides the region from the AWS default config chain.
	Region string `yaml:"region,omitempty"`

	// Endpoint overrides the service endpoint (e.g. localstack).
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Validate validates CloudWatch configuration.
func (c *CloudWatchExportConfig) Validate() error {
	if c.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
			return fmt.Errorf("invalid cloudwatch endpoint: %w", err)
		}
	}
	return nil
}

// OTELExportConfig defines OTLP push settings.
type OTELExportConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Transport string            `yaml:"transport"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	Insecure  bool              `yaml:"insecure"`
	Interval  IntervalConfig    `yaml:"interval"`
	Resource  map[string]string `yaml:"resource,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// Validate applies defaults and validates OTEL configuration.
func (c *OTELExportConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	// Apply transport default
	if c.Transport == "" {
		c.Transport = DefaultOTELTransport
	}

	// Validate transport
	if c.Transport != "grpc" && c.Transport != "http" {
		return fmt.Errorf("invalid transport: %s (must be grpc or http)", c.Transport)
	}

	// Apply host default
	if c.Host == "" {
		c.Host = DefaultOTELHost
	}

	// Apply port default based on transport
	if c.Port == 0 {
		if c.Transport == "grpc" {
			c.Port = DefaultOTELPortGRPC
		} else {
			c.Port = DefaultOTELPortHTTP
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid otel port: %d", c.Port)
	}

	// Apply interval defaults
	if c.Interval.Push == 0 {
		c.Interval.Push = DefaultOTELPushInterval
	}
	if c.Interval.Timeout == 0 {
		c.Interval.Timeout = DefaultOTELTimeout
	}

	// Apply resource defaults
	if c.Resource == nil {
		c.Resource = make(map[string]string)
	}
	if _, exists := c.Resource["service.name"]; !exists {
		c.Resource["service.name"] = DefaultServiceName
	}
	if _, exists := c.Resource["service.version"]; !exists {
		c.Resource["service.version"] = DefaultServiceVersion
	}

	return nil
}

// GetEndpoint returns the full endpoint address.
func (c *OTELExportConfig) GetEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PrometheusExportConfig defines Prometheus delivery. Points are pushed to a
// Pushgateway after each run when PushGateway is set, and served on Port/Path
// by long-running commands.
type PrometheusExportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	Path        string `yaml:"path"`
	PushGateway string `yaml:"push_gateway,omitempty"`
	Job         string `yaml:"job,omitempty"`
	PushRetries uint   `yaml:"push_retries,omitempty"`
}

// Validate applies defaults and validates Prometheus configuration.
func (c *PrometheusExportConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	// Apply defaults
	if c.Port == 0 {
		c.Port = DefaultPrometheusPort
	}
	if c.Path == "" {
		c.Path = DefaultPrometheusPath
	}
	if c.Job == "" {
		c.Job = DefaultPrometheusJob
	}
	if c.PushRetries == 0 {
		c.PushRetries = DefaultPrometheusPushRetries
	}

	// Validate port range
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid prometheus port: %d", c.Port)
	}

	if c.PushGateway != "" {
		if _, err := url.ParseRequestURI(c.PushGateway); err != nil {
			return fmt.Errorf("invalid prometheus push_gateway: %w", err)
		}
	}

	return nil
}

// LogExportConfig writes data points to the structured log.
type LogExportConfig struct {
	Enabled bool `yaml:"enabled"`
}
