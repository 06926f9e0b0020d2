package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"certificate-service/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"LOUD":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceHandler_AddsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{GoogleCloudProject: "proj", OtelEnabled: true}
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil), cfg))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "certificate issued")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["trace"] != "0102030405060708090a0b0c0d0e0f10" {
		t.Errorf("unexpected trace: %v", entry["trace"])
	}
	if entry["logging.googleapis.com/trace"] != "projects/proj/traces/0102030405060708090a0b0c0d0e0f10" {
		t.Errorf("unexpected cloud logging trace: %v", entry["logging.googleapis.com/trace"])
	}
}

func TestTraceHandler_Disabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{OtelEnabled: false}
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil), cfg))

	logger.InfoContext(context.Background(), "certificate issued")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if _, ok := entry["trace"]; ok {
		t.Error("expected no trace field when otel is disabled")
	}
}
