// Package telemetry provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for searchbench.
package telemetry

// Config holds the telemetry configuration for one invocation.
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// Format is "console" for human-readable output or "json".
	Format string `json:"format" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `json:"output" yaml:"output"`
}

// MetricsConfig configures the Prometheus registry.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace" yaml:"namespace"`

	// Listen is an optional address to expose /metrics on while a run
	// is in flight (e.g. ":9400").
	Listen string `json:"listen" yaml:"listen"`
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporter is one of "otlp", "stdout", "none".
	Exporter string `json:"exporter" yaml:"exporter"`

	// Endpoint is the OTLP collector endpoint for the otlp exporter.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate"`
}

// DefaultConfig returns the configuration used when the manifest does not
// override telemetry settings.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "searchbench",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "none",
			SamplingRate: 1.0,
		},
	}
}
