package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitOTelDisabledIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown := InitOTel(context.Background(), nil, OtelConfig{})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled init replaced the global provider")
	}
}

func TestInitOTelStdoutExporter(t *testing.T) {
	shutdown := InitOTel(context.Background(), nil, OtelConfig{Enabled: true, ServiceName: "test", SampleRatio: 1})
	_, span := otel.Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().IsSampled() {
		t.Fatalf("span not sampled with ratio 1")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.25: 0.25, 3: 1} {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v)=%v want %v", in, got, want)
		}
	}
}
