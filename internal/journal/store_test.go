package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/livebridge/internal/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{ID: "a", Command: "set_tempo", Class: "mutating", Status: StatusSucceeded, Duration: 3 * time.Millisecond, Remote: "127.0.0.1:5000", StartedAt: base},
		{ID: "b", Command: "frobnicate", Status: StatusUnknown, Message: "Unknown command: frobnicate", StartedAt: base.Add(time.Second)},
		{ID: "c", Command: "delete_track", Class: "mutating", Status: StatusTimedOut, Message: "Timeout waiting for operation to complete", Duration: 10 * time.Second, StartedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", e.ID, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("expected newest first [c b], got [%s %s]", got[0].ID, got[1].ID)
	}
	if got[0].Status != StatusTimedOut || got[0].Duration != 10*time.Second || got[0].Class != "mutating" {
		t.Fatalf("unexpected entry c: %#v", got[0])
	}
	if got[1].Message != "Unknown command: frobnicate" || got[1].Class != "" {
		t.Fatalf("unexpected entry b: %#v", got[1])
	}

	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent default: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if !all[2].StartedAt.Equal(base) || all[2].Remote != "127.0.0.1:5000" || all[2].Message != "" {
		t.Fatalf("unexpected entry a: %#v", all[2])
	}
}

func TestRecordFillsIDAndRejectsIncomplete(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, Entry{Status: StatusSucceeded}); err == nil {
		t.Fatal("expected error for empty command")
	}
	if err := s.Record(ctx, Entry{Command: "set_tempo"}); err == nil {
		t.Fatal("expected error for empty status")
	}
	if err := s.Record(ctx, Entry{Command: "set_tempo", Status: StatusSucceeded}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].ID == "" || got[0].StartedAt.IsZero() {
		t.Fatalf("expected generated id and start time, got %#v", got)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Minute} {
		e := Entry{Command: "fire_clip", Status: StatusSucceeded, StartedAt: now.Add(-age)}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	n, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pruned, got %d", n)
	}

	left, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("expected 1 entry left, got %d", len(left))
	}

	if _, err := s.Prune(ctx, 0); err == nil {
		t.Fatal("expected error for zero retention")
	}
}
