package optimize

import (
	"testing"
	"time"

	"github.com/yourusername/pixel-press/internal/imaging"
)

func newTestJob(t *testing.T) *Job {
	t.Helper()
	return NewJob("job-1", imaging.Options{JPEGQuality: 85}, t.TempDir(), time.Now())
}

func TestJobTransitionFullChain(t *testing.T) {
	job := newTestJob(t)

	chain := []State{StateExtracting, StateDiscovering, StateProcessing, StateAssembling, StateComplete}
	for _, to := range chain {
		if err := job.Transition(to); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}
	if !job.State().Terminal() {
		t.Fatalf("expected terminal state, got %s", job.State())
	}
}

func TestJobTransitionEmptyJobShortcut(t *testing.T) {
	job := newTestJob(t)

	for _, to := range []State{StateExtracting, StateDiscovering, StateAssembling, StateComplete} {
		if err := job.Transition(to); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}
}

func TestJobTransitionRejectsIllegalJump(t *testing.T) {
	job := newTestJob(t)

	if err := job.Transition(StateProcessing); err == nil {
		t.Fatal("expected pending -> processing to be rejected")
	}
	if job.State() != StatePending {
		t.Fatalf("state changed after rejected transition: %s", job.State())
	}
}

func TestJobTransitionFailedFromAnyNonTerminal(t *testing.T) {
	for _, from := range []State{StateExtracting, StateDiscovering, StateProcessing, StateAssembling} {
		job := newTestJob(t)
		path := map[State][]State{
			StateExtracting:  {StateExtracting},
			StateDiscovering: {StateExtracting, StateDiscovering},
			StateProcessing:  {StateExtracting, StateDiscovering, StateProcessing},
			StateAssembling:  {StateExtracting, StateDiscovering, StateProcessing, StateAssembling},
		}[from]
		for _, to := range path {
			if err := job.Transition(to); err != nil {
				t.Fatalf("setup transition to %s failed: %v", to, err)
			}
		}
		if err := job.Transition(StateFailed); err != nil {
			t.Fatalf("transition %s -> failed rejected: %v", from, err)
		}
	}
}

func TestJobTerminalStatesAreFinal(t *testing.T) {
	job := newTestJob(t)
	for _, to := range []State{StateExtracting, StateFailed} {
		if err := job.Transition(to); err != nil {
			t.Fatalf("setup transition failed: %v", err)
		}
	}

	for _, to := range []State{StatePending, StateExtracting, StateComplete, StateFailed} {
		if err := job.Transition(to); err == nil {
			t.Fatalf("expected failed -> %s to be rejected", to)
		}
	}
}

func TestJobProcessedNeverExceedsTotal(t *testing.T) {
	job := newTestJob(t)
	job.SetTotalFiles(2)

	for i := 0; i < 5; i++ {
		job.IncrementProcessed()
	}
	processed, total := job.Counts()
	if total != 2 || processed != 2 {
		t.Fatalf("unexpected counts: processed=%d total=%d", processed, total)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	registry := NewRegistry()
	job := newTestJob(t)

	registry.Add(job)
	if got := registry.Get(job.ID); got != job {
		t.Fatal("expected registered job to be returned")
	}

	registry.Remove(job.ID)
	if registry.Get(job.ID) != nil {
		t.Fatal("expected job to be removed")
	}
	if registry.Get("unknown") != nil {
		t.Fatal("expected nil for unknown job")
	}
}
