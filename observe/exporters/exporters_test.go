package exporters

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// TestExporter_InvalidName verifies unknown exporter names are rejected.
func TestExporter_InvalidName(t *testing.T) {
	if _, err := NewTracingExporter(context.Background(), "jaeger", nil); !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("tracing: expected ErrUnknownExporter, got %v", err)
	}
	if _, err := NewMetricsReader(context.Background(), "badvalue", nil); !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("metrics: expected ErrUnknownExporter, got %v", err)
	}
}

// TestExporter_StdoutWritesToWriter verifies the stdout exporters accept a custom writer.
func TestExporter_StdoutWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewTracingExporter(context.Background(), "stdout", &buf)
	if err != nil || exp == nil {
		t.Fatalf("stdout tracing exporter: %v, %v", exp, err)
	}
	reader, err := NewMetricsReader(context.Background(), "stdout", &buf)
	if err != nil || reader == nil {
		t.Fatalf("stdout metrics reader: %v, %v", reader, err)
	}
}

// TestExporter_OtlpMissingEndpoint verifies OTLP without an endpoint fails.
func TestExporter_OtlpMissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	if _, err := NewTracingExporter(context.Background(), "otlp", nil); !errors.Is(err, ErrEndpointNotConfigured) {
		t.Fatalf("tracing: expected ErrEndpointNotConfigured, got %v", err)
	}
	if _, err := NewMetricsReader(context.Background(), "otlp", nil); !errors.Is(err, ErrEndpointNotConfigured) {
		t.Fatalf("metrics: expected ErrEndpointNotConfigured, got %v", err)
	}
}

// TestExporter_OtlpWithEndpoint verifies OTLP with an endpoint builds lazily.
func TestExporter_OtlpWithEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317")

	exp, err := NewTracingExporter(context.Background(), "otlp", nil)
	if err != nil {
		t.Fatalf("failed to create OTLP exporter with endpoint: %v", err)
	}
	if exp == nil {
		t.Fatal("expected non-nil exporter")
	}
	_ = exp.Shutdown(context.Background())
}

// TestExporter_PrometheusReturnsReader verifies the Prometheus reader.
func TestExporter_PrometheusReturnsReader(t *testing.T) {
	reader, err := NewMetricsReader(context.Background(), "prometheus", nil)
	if err != nil {
		t.Fatalf("failed to create Prometheus reader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
}

// TestExporter_None verifies none yields no exporter and no error.
func TestExporter_None(t *testing.T) {
	for _, name := range []string{"none", ""} {
		exp, err := NewTracingExporter(context.Background(), name, nil)
		if err != nil || exp != nil {
			t.Fatalf("tracing %q: got %v, %v", name, exp, err)
		}
		reader, err := NewMetricsReader(context.Background(), name, nil)
		if err != nil || reader != nil {
			t.Fatalf("metrics %q: got %v, %v", name, reader, err)
		}
	}
}

func TestNames_Construct(t *testing.T) {
	ctx := context.Background()
	for _, name := range TracingNames {
		if name == "otlp" {
			continue
		}
		if _, err := NewTracingExporter(ctx, name, io.Discard); err != nil {
			t.Errorf("tracing %q: %v", name, err)
		}
	}
	for _, name := range MetricsNames {
		if name == "otlp" || name == "prometheus" {
			continue
		}
		r, err := NewMetricsReader(ctx, name, io.Discard)
		if err != nil {
			t.Errorf("metrics %q: %v", name, err)
			continue
		}
		if r != nil {
			_ = r.Shutdown(ctx)
		}
	}
}
