package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLedgerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	ctx := context.Background()

	l, err := NewFileLedger(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ok, err := l.IsProcessed(ctx, "/in/auditlog-2025-12-03_a.log.gz")
	if err != nil || ok {
		t.Fatalf("fresh ledger: ok=%v err=%v", ok, err)
	}

	entry := Entry{
		Path:        "/in/auditlog-2025-12-03_a.log.gz",
		Size:        1024,
		Blocks:      12,
		Records:     12,
		Fallbacks:   2,
		CompletedAt: time.Now().UTC(),
	}
	if err := l.Mark(ctx, entry); err != nil {
		t.Fatalf("mark: %v", err)
	}

	// Reload from disk to prove persistence.
	l2, err := NewFileLedger(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	ok, err = l2.IsProcessed(ctx, entry.Path)
	if err != nil || !ok {
		t.Fatalf("reloaded ledger: ok=%v err=%v", ok, err)
	}

	entries, err := l2.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Blocks != 12 || entries[0].Fallbacks != 2 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFileLedgerRemarkReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	ctx := context.Background()

	l, err := NewFileLedger(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	e := Entry{Path: "/in/a.log", Records: 1, CompletedAt: time.Now()}
	if err := l.Mark(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Records = 5
	if err := l.Mark(ctx, e); err != nil {
		t.Fatal(err)
	}

	entries, _ := l.List(ctx)
	if len(entries) != 1 || entries[0].Records != 5 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFileLedgerCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := os.WriteFile(path, []byte("{half"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileLedger(path); err == nil {
		t.Fatal("expected error for corrupt ledger")
	}
}

func TestFileLedgerNoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	ctx := context.Background()

	l, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Mark(ctx, Entry{Path: "/in/a.log", CompletedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}
