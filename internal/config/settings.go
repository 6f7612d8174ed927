package config

import "fmt"

// SettingsConfig holds general application settings.
type SettingsConfig struct {
	// NamespacePrefix is joined with the group name to form the namespace.
	NamespacePrefix *string `yaml:"namespace_prefix,omitempty"`

	// Concurrency is the number of gauges evaluated at once.
	Concurrency int `yaml:"concurrency,omitempty"`

	InternalMetrics InternalMetricsConfig `yaml:"internal_metrics"`
	Monitor         MonitorConfig         `yaml:"monitor"`
}

// InternalMetricsConfig controls querygauge's self-monitoring metrics.
// They are exposed through the Prometheus exporter.
type InternalMetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MonitorConfig controls process resource logging after each run.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Validate applies defaults and validates settings configuration.
func (s *SettingsConfig) Validate() error {
	// Apply defaults
	if s.NamespacePrefix == nil {
		prefix := DefaultNamespacePrefix
		s.NamespacePrefix = &prefix
	}
	if s.Concurrency == 0 {
		s.Concurrency = DefaultConcurrency
	}

	if s.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency: %d", s.Concurrency)
	}
	return nil
}

// Prefix returns the namespace prefix; Validate must have run.
func (s *SettingsConfig) Prefix() string {
	if s.NamespacePrefix == nil {
		return DefaultNamespacePrefix
	}
	return *s.NamespacePrefix
}
