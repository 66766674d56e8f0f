// Package telemetry provides structured logging, metrics, and tracing for
// OrderPilot. The logger wraps zerolog with run- and component-scoped
// children, metrics are exposed through a Prometheus registry, and traces
// go through OpenTelemetry with a stdout or OTLP exporter.
package telemetry

import (
	"time"
)

// Config aggregates all telemetry configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the zerolog-backed logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`

	// Format is "json" or "console".
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`

	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output"`

	// TimeFormat is "rfc3339", "unix", "unixms", or "unixmicro".
	TimeFormat string `yaml:"time_format"`

	// EnableCaller adds caller file:line to each entry.
	EnableCaller bool `yaml:"enable_caller"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`

	// ListenAddress is the metrics HTTP listen address.
	ListenAddress string `yaml:"listen_address"`

	// Path is the metrics HTTP path.
	Path string `yaml:"path"`

	// DefaultHistogramBuckets overrides the default duration buckets.
	DefaultHistogramBuckets []float64 `yaml:"default_histogram_buckets"`
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Exporter is "stdout", "otlp", or "none".
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout otlp none"`

	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS on the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// Headers are added to every OTLP export request.
	Headers map[string]string `yaml:"headers"`

	// SamplingRate is the trace sampling ratio in [0,1].
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`

	// MaxExportBatchSize bounds one export batch.
	MaxExportBatchSize int `yaml:"max_export_batch_size"`

	// ExportTimeout bounds one export call.
	ExportTimeout time.Duration `yaml:"export_timeout"`
}

// DefaultConfig returns the telemetry defaults used when no configuration
// file is present.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			Namespace:     "orderpilot",
			ListenAddress: ":9464",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "stdout",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
		},
	}
}
