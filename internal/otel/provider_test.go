package otel

import (
	"context"
	"testing"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	t.Setenv("AGENTFLOW_OTEL_ENDPOINT", "")
	shutdown, err := Setup(context.Background(), "agentflow-test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	t.Setenv("AGENTFLOW_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("AGENTFLOW_OTEL_ENABLED", "false")
	if _, err := Setup(context.Background(), "agentflow-test"); err != nil {
		t.Fatalf("disabled setup: %v", err)
	}
}

func TestSampleRatio(t *testing.T) {
	tests := map[string]float64{"": 1, "0.25": 0.25, "nope": 1, "2": 1, "-1": 1}
	for in, want := range tests {
		t.Setenv("AGENTFLOW_OTEL_SAMPLE", in)
		if got := ratio(); got != want {
			t.Fatalf("ratio(%q)=%v want %v", in, got, want)
		}
	}
}
