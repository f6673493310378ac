// Package util provides file helpers shared by the ingest pipeline.
package util

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	ierrors "github.com/auditflow/auditflow/pkg/errors"
)

// OpenSource opens an audit log file, transparently decompressing gzip
// input. The returned cleanup closes all underlying readers and must be
// called when done.
func OpenSource(path string) (io.Reader, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ierrors.Wrap(err, ierrors.CodeSourceNotFound, "source file not found").
				WithContext("path", path)
		}
		return nil, nil, ierrors.SourceUnreadable(path, err)
	}

	if IsGzip(path) {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, ierrors.Wrap(err, ierrors.CodeDecompressFailed, "gzip stream corrupt").
				WithContext("path", path)
		}
		cleanup := func() error {
			gz.Close()
			return file.Close()
		}
		return gz, cleanup, nil
	}

	return file, file.Close, nil
}

// IsGzip reports whether the path names gzip-compressed content.
func IsGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// StripGzip removes a trailing .gz extension.
func StripGzip(path string) string {
	if IsGzip(path) {
		return path[:len(path)-3]
	}
	return path
}

var sourceDatePattern = regexp.MustCompile(`auditlog-(\d{4}-\d{2}-\d{2})_`)

// SourceDate extracts the capture date embedded in an audit log filename
// (auditlog-YYYY-MM-DD_*). The second result is false when the name does
// not carry a date.
func SourceDate(path string) (time.Time, bool) {
	m := sourceDatePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DateFolder renders t as the compact folder name used under the archive
// root.
func DateFolder(t time.Time) string {
	return t.Format("20060102")
}
