package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/jobs", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/featuresets", 200, 0.005)
	metrics.RecordHTTPRequest(ctx, "GET", "/readyz", 503, 0.001)
}

func TestRecordReconcilerMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordPoll(ctx, 0.05, nil)
	metrics.RecordPoll(ctx, 0.01, errors.New("list stores failed"))
	metrics.RecordJobStarted(ctx)
	metrics.RecordJobAborted(ctx)
}

func TestRecordPropagationMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordSpecPublish(ctx, 0.02, true)
	metrics.RecordSpecPublish(ctx, 0.0, false)
	metrics.RecordAckProcessed(ctx)
	metrics.RecordAckDiscarded(ctx)
	metrics.RecordFeatureSetPromoted(ctx)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/jobs", "/v1/jobs"},
		{"/v1/featuresets", "/v1/featuresets"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
