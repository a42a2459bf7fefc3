package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	events := []struct {
		event  string
		reason string
	}{
		{EventDaemonStarted, ""},
		{EventLocked, "hotkey"},
		{EventUnlocked, "passphrase"},
	}
	for _, e := range events {
		if _, err := s.Record(ctx, e.event, e.reason); err != nil {
			t.Fatalf("Record(%s): %v", e.event, err)
		}
	}

	got, err := s.Recent(ctx, 10, time.Time{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d transitions, want 3", len(got))
	}

	// Newest first.
	if got[0].Event != EventUnlocked || got[2].Event != EventDaemonStarted {
		t.Errorf("unexpected order: %s ... %s", got[0].Event, got[2].Event)
	}
	if got[1].Reason != "hotkey" {
		t.Errorf("reason = %q, want hotkey", got[1].Reason)
	}
	for _, tr := range got {
		if tr.Timestamp.IsZero() {
			t.Errorf("zero timestamp on %s", tr.Event)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Record(ctx, EventLocked, "hotkey"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2, time.Time{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d transitions, want 2", len(got))
	}
}

func TestRecentSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, EventLocked, "old"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	if _, err := s.Record(ctx, EventUnlocked, "new"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Recent(ctx, 10, cutoff)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Reason != "new" {
		t.Fatalf("since filter returned %d entries", len(got))
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, EventLocked, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Nothing is older than a day.
	n, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 0 {
		t.Errorf("pruned %d rows, want 0", n)
	}

	// Zero retention disables pruning entirely.
	n, err = s.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 0 {
		t.Errorf("pruned %d rows with retention disabled", n)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
