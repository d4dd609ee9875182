package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe("respond", 500*time.Millisecond)
	w.Observe("respond", 700*time.Millisecond)
	w.Observe("respond", 900*time.Millisecond)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "respond" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "respond")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 4000 {
		t.Fatalf("TargetP95MS = %.2f, want 4000", s.TargetP95MS)
	}
}

func TestStageWindowWraps(t *testing.T) {
	w := NewStageWindow(2)
	w.Observe("cycle", 100*time.Millisecond)
	w.Observe("cycle", 200*time.Millisecond)
	w.Observe("cycle", 300*time.Millisecond)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2 after wrap", s.Samples)
	}
	if s.LastMS != 300 {
		t.Fatalf("LastMS = %.2f, want 300", s.LastMS)
	}
}

func TestStageWindowNilSafe(t *testing.T) {
	var w *StageWindow
	w.Observe("respond", time.Second)
	w.Reset()
}
