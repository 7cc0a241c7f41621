package observe

import (
	"errors"

	"github.com/jonwraymond/docketcache/observe/exporters"
)

var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample rate outside [0, 1]")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")

	// ErrNilObserver is returned by MiddlewareFromObserver for a nil Observer.
	ErrNilObserver = errors.New("observe: observer is nil")

	// ErrEndpointNotConfigured is the exporters error for a missing otlp endpoint.
	ErrEndpointNotConfigured = exporters.ErrEndpointNotConfigured
)

// Sample rate bounds for TracingConfig.SamplePct.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

var (
	// ValidTracingExporters are the names NewTracingExporter accepts.
	ValidTracingExporters = exporters.TracingNames

	// ValidMetricsExporters are the names NewMetricsReader accepts.
	ValidMetricsExporters = exporters.MetricsNames

	// ValidLogLevels are the levels ParseLogLevel understands.
	ValidLogLevels = []string{"debug", "info", "warn", "error", ""}
)

// RedactedFields are log field keys whose values are never written. Cached
// values and audit payloads can hold anything a host stores.
var RedactedFields = []string{"value", "payload", "password", "token", "secret"}
