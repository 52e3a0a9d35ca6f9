package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe(StageLLM, 500*time.Millisecond)
	w.Observe(StageLLM, 900*time.Millisecond)
	w.Observe(StageLLM, 700*time.Millisecond)
	w.Count("command_forget_ambiguous")
	w.Count("command_forget_ambiguous")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageLLM || s.Samples != 3 {
		t.Fatalf("stage = %+v, want 3 samples of %s", s, StageLLM)
	}
	if s.LastMS != 700 {
		t.Fatalf("LastMS = %.2f, want 700", s.LastMS)
	}
	if s.AvgMS != 700 || s.P50MS != 700 {
		t.Fatalf("AvgMS, P50MS = %.2f, %.2f, want 700, 700", s.AvgMS, s.P50MS)
	}
	if s.P95MS != 900 || s.P99MS != 900 {
		t.Fatalf("P95MS, P99MS = %.2f, %.2f, want 900, 900", s.P95MS, s.P99MS)
	}
	if s.TargetP95MS != 8000 {
		t.Fatalf("TargetP95MS = %.2f, want 8000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "command_forget_ambiguous" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want command_forget_ambiguous x2", snap.Indicators)
	}
}

func TestStageWindowKeepsNewestSamples(t *testing.T) {
	w := NewStageWindow(2)
	for _, ms := range []int{1, 2, 3, 4, 5} {
		w.Observe(StageSearch, time.Duration(ms)*time.Millisecond)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 4.5 || s.LastMS != 5 {
		t.Fatalf("stats = %+v, want samples 4 and 5 with last 5", s)
	}

	w.Observe(StageSearch, -time.Millisecond)
	if got := w.Snapshot().Stages[0].Samples; got != 2 {
		t.Fatalf("Samples after negative duration = %d, want 2", got)
	}

	var nilWindow *StageWindow
	nilWindow.Observe(StageLLM, time.Millisecond)
	nilWindow.Count("x")
	if got := nilWindow.Snapshot(); len(got.Stages) != 0 {
		t.Fatalf("nil Snapshot() = %+v, want empty", got)
	}
}
