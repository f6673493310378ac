package util

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	ierrors "github.com/auditflow/auditflow/pkg/errors"
)

func TestOpenSourcePlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	r, cleanup, err := OpenSource(path)
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	defer cleanup()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("read %q, want %q", data, "hello")
	}
}

func TestOpenSourceGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	gz.Write([]byte("compressed content"))
	gz.Close()
	f.Close()

	r, cleanup, err := OpenSource(path)
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	defer cleanup()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "compressed content" {
		t.Errorf("read %q", data)
	}
}

func TestOpenSourceErrors(t *testing.T) {
	_, _, err := OpenSource(filepath.Join(t.TempDir(), "missing.log"))
	if !ierrors.IsCode(err, ierrors.CodeSourceNotFound) {
		t.Errorf("missing file: code = %s", ierrors.GetCode(err))
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "corrupt.log.gz")
	if err := os.WriteFile(bad, []byte("not gzip at all"), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, err = OpenSource(bad)
	if !ierrors.IsCode(err, ierrors.CodeDecompressFailed) {
		t.Errorf("corrupt gzip: code = %s", ierrors.GetCode(err))
	}
}

func TestSourceDate(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/in/auditlog-2025-12-03_node1.log.gz", "2025-12-03", true},
		{"auditlog-2024-01-31_x.log", "2024-01-31", true},
		{"events-2025-12-03.log", "", false},
		{"auditlog-20251203_x.log", "", false},
	}
	for _, tt := range tests {
		got, ok := SourceDate(tt.path)
		if ok != tt.ok {
			t.Errorf("SourceDate(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			continue
		}
		if ok && got.Format("2006-01-02") != tt.want {
			t.Errorf("SourceDate(%q) = %v, want %s", tt.path, got, tt.want)
		}
	}
}

func TestDateFolder(t *testing.T) {
	d := time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC)
	if got := DateFolder(d); got != "20251203" {
		t.Errorf("DateFolder = %q", got)
	}
}

func TestStripGzip(t *testing.T) {
	if got := StripGzip("a/b/audit.log.GZ"); got != "a/b/audit.log" {
		t.Errorf("StripGzip = %q", got)
	}
	if got := StripGzip("audit.log"); got != "audit.log" {
		t.Errorf("StripGzip = %q", got)
	}
}
