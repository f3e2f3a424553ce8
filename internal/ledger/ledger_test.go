package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/anshulkhare7/shadowd/internal/db"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndRecent(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Append("blower", true, true, "delta"); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if err := l.Append("vibrofeeder", true, false, "control"); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Most recent first.
	e := entries[0]
	if e.Kind != "vibrofeeder" || !e.Desired || e.Verified {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !e.Mismatch {
		t.Error("desired != verified should set mismatch")
	}
	if e.EntryID == "" {
		t.Error("entry should carry an id")
	}

	if entries[1].Mismatch {
		t.Error("matching outcome should not set mismatch")
	}
}

func TestRecentLimit(t *testing.T) {
	l := newTestLedger(t)

	for i := 0; i < 5; i++ {
		if err := l.Append("blower", true, true, "delta"); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := l.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Append("blower", true, true, "delta"); err != nil {
		t.Fatal(err)
	}

	// Nothing is older than a day yet.
	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted %d entries, want 0", deleted)
	}

	// A zero retention sweeps everything written in the past.
	deleted, err = l.DeleteOlderThan(-time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d entries, want 1", deleted)
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries after cleanup, want 0", len(entries))
	}
}
