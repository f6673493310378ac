package main

import (
	"os"
	"path/filepath"
	"testing"
)

// Directory ingest through the command layer: progress reporting wired,
// in-memory store, no archive or checkpoint side effects.
func TestRunIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	input := "{\"SERVICE\": \"abis\"}\n{ACTIVITY: Insert,}\n"
	if err := os.WriteFile(filepath.Join(dir, "auditlog-2025-12-03_1.log"), []byte(input), 0644); err != nil {
		t.Fatal(err)
	}

	databasePath = ":memory:"
	noArchive = true
	noCheckpoint = true
	jsonOutput = false
	defer func() {
		databasePath = ""
		noArchive = false
		noCheckpoint = false
	}()

	if err := runIngest(ingestCmd, []string{dir}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// Nothing moved: --no-archive leaves the input in place.
	if _, err := os.Stat(filepath.Join(dir, "auditlog-2025-12-03_1.log")); err != nil {
		t.Errorf("input should remain in place: %v", err)
	}
}

func TestRunIngestMissingInput(t *testing.T) {
	databasePath = ":memory:"
	defer func() { databasePath = "" }()

	if err := runIngest(ingestCmd, []string{"/nonexistent/inbox"}); err == nil {
		t.Fatal("missing input should fail")
	}
}
