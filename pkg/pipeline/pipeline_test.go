package pipeline

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/auditflow/auditflow/pkg/archive"
	"github.com/auditflow/auditflow/pkg/checkpoint"
	"github.com/auditflow/auditflow/pkg/store"
)

const mixedInput = `{"SERVICE": "abis", "ACTIVITY": "Insert"}
{SERVICE: 'abis', ACTIVITY: Identify,}
maintenance window 02:00-02:15
{"a": 1}}
{"BRS_REQUEST": {PIVOT=FACE}}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestFileMixedContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "auditlog-2025-12-03_n1.log", mixedInput)

	mem := store.NewMemoryStore()
	p := New(mem, Config{BatchSize: 2})

	stats, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if stats.Blocks != 5 {
		t.Errorf("Blocks = %d, want 5", stats.Blocks)
	}
	if stats.Direct != 1 {
		t.Errorf("Direct = %d, want 1", stats.Direct)
	}
	if stats.Repaired != 2 {
		t.Errorf("Repaired = %d, want 2", stats.Repaired)
	}
	if stats.Fallbacks != 2 {
		t.Errorf("Fallbacks = %d, want 2", stats.Fallbacks)
	}
	if stats.FallbackReasons["unbalanced_structure"] != 1 ||
		stats.FallbackReasons["unparseable_after_normalization"] != 1 {
		t.Errorf("FallbackReasons = %v", stats.FallbackReasons)
	}
	if stats.Stored != 5 || stats.StoreFailures != 0 {
		t.Errorf("Stored = %d, StoreFailures = %d", stats.Stored, stats.StoreFailures)
	}

	records := mem.Records()
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5", len(records))
	}
	// Source order survives batching.
	if records[0].Service == nil || *records[0].Service != "abis" {
		t.Errorf("record 0 service = %v", records[0].Service)
	}
	if records[1].Activity == nil || *records[1].Activity != "Identify" {
		t.Errorf("record 1 activity = %v", records[1].Activity)
	}
	if !records[2].IsFallback() || !records[3].IsFallback() {
		t.Error("records 2 and 3 should be fallbacks")
	}
	if records[4].BRSRequest == nil {
		t.Error("record 4 should project BRS_REQUEST")
	}
	for i, rec := range records {
		if rec.Payload == nil {
			t.Errorf("record %d has no payload", i)
		}
	}
}

func TestIngestFileGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auditlog-2025-12-03_n2.log.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	gz.Write([]byte(mixedInput))
	gz.Close()
	f.Close()

	mem := store.NewMemoryStore()
	stats, err := New(mem, Config{}).IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Blocks != 5 || stats.Stored != 5 {
		t.Errorf("Blocks=%d Stored=%d", stats.Blocks, stats.Stored)
	}
}

func TestIngestFileLedgerSkips(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "auditlog-2025-12-03_n3.log", `{"a": 1}`+"\n")

	ledger, err := checkpoint.NewFileLedger(filepath.Join(dir, "checkpoint.json"))
	if err != nil {
		t.Fatal(err)
	}
	mem := store.NewMemoryStore()
	p := New(mem, Config{}).WithLedger(ledger)

	ctx := context.Background()
	if _, err := p.IngestFile(ctx, path); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	stats, err := p.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !stats.Skipped {
		t.Error("second ingest should be skipped")
	}
	if len(mem.Records()) != 1 {
		t.Errorf("records = %d, want 1", len(mem.Records()))
	}
}

// claimingLedger fakes a shared ledger backend with exclusive file claims.
type claimingLedger struct {
	held     bool
	released bool
}

func (l *claimingLedger) IsProcessed(ctx context.Context, path string) (bool, error) {
	return false, nil
}
func (l *claimingLedger) Mark(ctx context.Context, e checkpoint.Entry) error  { return nil }
func (l *claimingLedger) List(ctx context.Context) ([]checkpoint.Entry, error) { return nil, nil }
func (l *claimingLedger) Close() error                                        { return nil }

func (l *claimingLedger) AcquireLock(ctx context.Context, path string, ttl time.Duration) (checkpoint.FileLock, error) {
	if l.held {
		return nil, errors.New("file claimed by another worker")
	}
	return claimedLock{ledger: l}, nil
}

type claimedLock struct{ ledger *claimingLedger }

func (k claimedLock) Release(ctx context.Context) error {
	k.ledger.released = true
	return nil
}

func TestIngestFileSharedLedgerClaim(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "auditlog-2025-12-03_n6.log", `{"a": 1}`+"\n")

	mem := store.NewMemoryStore()
	ledger := &claimingLedger{held: true}
	p := New(mem, Config{}).WithLedger(ledger)

	stats, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !stats.Skipped {
		t.Error("file claimed elsewhere should be skipped")
	}
	if len(mem.Records()) != 0 {
		t.Errorf("records = %d, want 0", len(mem.Records()))
	}

	ledger.held = false
	stats, err = p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Skipped || stats.Stored != 1 {
		t.Errorf("Skipped=%v Stored=%d", stats.Skipped, stats.Stored)
	}
	if !ledger.released {
		t.Error("claim should be released after ingest")
	}
}

func TestIngestFileArchives(t *testing.T) {
	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	os.MkdirAll(inDir, 0755)
	path := writeFile(t, inDir, "auditlog-2025-12-03_n4.log", `{"a": 1}`+"\n")

	arch := archive.New(archive.Config{
		Dir:      filepath.Join(dir, "archive"),
		ErrorDir: filepath.Join(dir, "archive", "errors"),
		LogsDir:  filepath.Join(dir, "archive", "logs"),
	})
	mem := store.NewMemoryStore()
	p := New(mem, Config{}).WithArchiver(arch)

	stats, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if stats.ArchivedTo == "" || !strings.Contains(stats.ArchivedTo, filepath.Join("archive", "20251203")) {
		t.Errorf("ArchivedTo = %q", stats.ArchivedTo)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("source should be moved away")
	}
	report := filepath.Join(dir, "archive", "logs", "20251203", "auditlog-2025-12-03_n4.log.report.json")
	if _, err := os.Stat(report); err != nil {
		t.Errorf("report missing: %v", err)
	}
}

func TestIngestFileEmptyGoesToErrors(t *testing.T) {
	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	os.MkdirAll(inDir, 0755)
	path := writeFile(t, inDir, "auditlog-2025-12-03_n5.log", "\n\n   \n")

	arch := archive.New(archive.Config{
		Dir:      filepath.Join(dir, "archive"),
		ErrorDir: filepath.Join(dir, "archive", "errors"),
		LogsDir:  filepath.Join(dir, "archive", "logs"),
	})
	mem := store.NewMemoryStore()
	p := New(mem, Config{}).WithArchiver(arch)

	stats, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Blocks != 0 || stats.Stored != 0 {
		t.Errorf("Blocks=%d Stored=%d, want 0/0", stats.Blocks, stats.Stored)
	}
	if !strings.Contains(stats.ArchivedTo, filepath.Join("errors", "20251203")) {
		t.Errorf("empty file should archive to errors, got %q", stats.ArchivedTo)
	}
}

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "auditlog-2025-12-03_a.log", `{"a": 1}`+"\n")
	writeFile(t, dir, "auditlog-2025-12-03_b.log", mixedInput)
	writeFile(t, dir, "notes.txt", "ignored")

	mem := store.NewMemoryStore()
	batch, err := New(mem, Config{Workers: 2}).IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest dir: %v", err)
	}

	if batch.Files != 2 || batch.Failed != 0 {
		t.Errorf("Files=%d Failed=%d", batch.Files, batch.Failed)
	}
	if batch.Blocks != 6 || batch.Stored != 6 {
		t.Errorf("Blocks=%d Stored=%d", batch.Blocks, batch.Stored)
	}
	if len(batch.PerFile) != 2 || !strings.HasSuffix(batch.PerFile[0].Source, "_a.log") {
		t.Errorf("PerFile = %+v", batch.PerFile)
	}
}

func TestIngestDirCombinesFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "auditlog-2025-12-03_a.log", `{"a": 1}`+"\n")
	writeFile(t, dir, "auditlog-2025-12-03_bad.log.gz", "not gzip at all")

	mem := store.NewMemoryStore()
	batch, err := New(mem, Config{Workers: 2}).IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest dir: %v", err)
	}

	if batch.Failed != 1 || len(batch.Errors) != 1 {
		t.Fatalf("Failed=%d Errors=%v", batch.Failed, batch.Errors)
	}
	if batch.Stored != 1 {
		t.Errorf("Stored = %d, want 1 (good file must still land)", batch.Stored)
	}

	combined := batch.Err()
	if combined == nil {
		t.Fatal("Err() should surface the failed file")
	}
	if !strings.Contains(combined.Error(), "auditlog-2025-12-03_bad.log.gz") {
		t.Errorf("combined error should name the file, got %q", combined.Error())
	}
}

func TestBatchStatsErrNilWhenClean(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "auditlog-2025-12-03_a.log", `{"a": 1}`+"\n")

	mem := store.NewMemoryStore()
	batch, err := New(mem, Config{}).IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest dir: %v", err)
	}
	if batch.Err() != nil {
		t.Errorf("Err() = %v, want nil", batch.Err())
	}
}

func TestListInputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.log", "")
	writeFile(t, dir, "a.log.gz", "")
	writeFile(t, dir, "c.txt", "")
	os.MkdirAll(filepath.Join(dir, "sub.log"), 0755)

	paths, err := ListInputs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if filepath.Base(paths[0]) != "a.log.gz" || filepath.Base(paths[1]) != "b.log" {
		t.Errorf("paths = %v", paths)
	}
}
