package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObservers(t *testing.T) {
	m := NewMetrics("test_obs_" + time.Now().Format("150405000000"))

	m.ObserveTurn("reply")
	m.ObserveTurn("reply")
	m.ObserveProviderError("openai", errors.New("boom"))
	m.ObserveTempFile("register", 3)
	m.ObserveLLMCall(120*time.Millisecond, 42)

	if got := testutil.ToFloat64(m.ChatTurns.WithLabelValues("reply")); got != 2 {
		t.Fatalf("chat_turns_total{reply} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues("openai", "unknown")); got != 1 {
		t.Fatalf("provider_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TempFilesActive); got != 3 {
		t.Fatalf("temp_files_active = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.LLMTokens); got != 42 {
		t.Fatalf("llm_tokens_total = %v, want 42", got)
	}
	if snap := m.Stages.Snapshot(); len(snap.Stages) != 1 || snap.Stages[0].Stage != StageLLM {
		t.Fatalf("stages = %+v, want llm stage", snap.Stages)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveTurn("x")
	nilMetrics.ObserveTempFile("x", 1)
}

func TestSnapshotStagesNilSafe(t *testing.T) {
	var m *Metrics
	snap := m.SnapshotStages()
	if snap.Stages == nil || len(snap.Stages) != 0 {
		t.Fatalf("SnapshotStages() on nil = %+v, want empty stages", snap)
	}
	m.ObserveWSMessage("inbound", "send")
}
