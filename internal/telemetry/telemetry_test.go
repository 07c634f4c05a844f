package telemetry

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func TestSetup_DisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a non-nil shutdown func even when disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("expected no-op shutdown to succeed, got: %v", err)
	}
}

func TestTracer_UsableBeforeSetup(t *testing.T) {
	tracer := Tracer()
	if tracer == nil {
		t.Fatal("expected a non-nil tracer before Setup is called")
	}
	_, span := tracer.Start(context.Background(), "test-span")
	defer span.End()
	if span == nil {
		t.Fatal("expected a non-nil span from the default no-op tracer")
	}
}

func TestSetup_EnabledWithGRPCProtocolDoesNotError(t *testing.T) {
	// otlptracegrpc.New does not dial eagerly (grpc defaults to lazy connect),
	// so Setup should succeed immediately even against an unreachable endpoint.
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Endpoint: "127.0.0.1:1",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("unexpected error building grpc exporter: %v", err)
	}
	defer shutdown(context.Background())
}

func TestSetup_EnabledWithHTTPProtocol(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Protocol: "http",
		Endpoint: "127.0.0.1:1",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("unexpected error building http exporter: %v", err)
	}
	defer shutdown(context.Background())
}
