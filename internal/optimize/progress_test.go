package optimize

import (
	"context"
	"testing"
	"time"
)

func TestHubPollReturnsEventsInOrder(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	_ = hub.Publish(ctx, "j1", NewProgressEvent(0, 2))
	_ = hub.Publish(ctx, "j1", NewProgressEvent(1, 2))
	_ = hub.Publish(ctx, "j1", NewCompleteEvent("abc.zip"))

	events, cursor, err := hub.Poll(ctx, "j1", 0, time.Second)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	if cursor != 3 {
		t.Fatalf("unexpected cursor: %d", cursor)
	}

	first, ok := events[0].(ProgressEvent)
	if !ok || first.Current != 0 {
		t.Fatalf("unexpected first event: %#v", events[0])
	}
	last, ok := events[2].(CompleteEvent)
	if !ok || last.ArtifactName != "abc.zip" {
		t.Fatalf("unexpected last event: %#v", events[2])
	}
	if !last.Terminal() {
		t.Fatal("complete event must be terminal")
	}
}

func TestHubPollResumesFromCursor(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	_ = hub.Publish(ctx, "j1", NewProgressEvent(0, 1))
	_ = hub.Publish(ctx, "j1", NewProgressEvent(1, 1))

	events, cursor, err := hub.Poll(ctx, "j1", 1, time.Second)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if len(events) != 1 || cursor != 2 {
		t.Fatalf("unexpected resume result: events=%d cursor=%d", len(events), cursor)
	}
	ev, ok := events[0].(ProgressEvent)
	if !ok || ev.Current != 1 {
		t.Fatalf("unexpected resumed event: %#v", events[0])
	}
}

func TestHubPollKeepaliveOnIdle(t *testing.T) {
	hub := NewHub()

	events, cursor, err := hub.Poll(context.Background(), "idle", 0, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	if _, ok := events[0].(KeepaliveEvent); !ok {
		t.Fatalf("expected keepalive, got %#v", events[0])
	}
	if cursor != 0 {
		t.Fatalf("keepalive must not advance cursor, got %d", cursor)
	}
}

func TestHubPollWakesOnPublish(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = hub.Publish(ctx, "j1", NewProgressEvent(0, 1))
	}()

	start := time.Now()
	events, _, err := hub.Poll(ctx, "j1", 0, 5*time.Second)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Poll did not wake promptly: %v", elapsed)
	}
}

func TestHubPollHonorsContextCancellation(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, _, err := hub.Poll(ctx, "j1", 0, 5*time.Second); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestHubForgetDropsStream(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	_ = hub.Publish(ctx, "j1", NewProgressEvent(0, 1))
	hub.Forget("j1")

	events, cursor, err := hub.Poll(ctx, "j1", 0, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if _, ok := events[0].(KeepaliveEvent); !ok || cursor != 0 {
		t.Fatalf("expected empty stream after Forget, got %#v cursor=%d", events, cursor)
	}
}

func TestComputeSavingPercent(t *testing.T) {
	if got := ComputeSavingPercent(1000, 400); got != 60.0 {
		t.Fatalf("ComputeSavingPercent(1000, 400) = %f, want 60.0", got)
	}
	if got := ComputeSavingPercent(0, 0); got != 0 {
		t.Fatalf("ComputeSavingPercent(0, 0) = %f, want 0", got)
	}
	if got := ComputeSavingPercent(100, 100); got != 0 {
		t.Fatalf("ComputeSavingPercent(100, 100) = %f, want 0", got)
	}
}
