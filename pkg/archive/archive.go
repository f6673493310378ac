// Package archive moves ingested input files out of the hot directory.
// Successful files land under <dir>/<YYYYMMDD>/, files that produced no
// records under the error directory, and per-file ingest reports under the
// logs directory. Moves go through a temp name and rename so a file is
// either fully archived or still in place.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	ierrors "github.com/auditflow/auditflow/pkg/errors"
	"github.com/auditflow/auditflow/pkg/util"
)

// Backup pushes an archived original to off-host storage.
type Backup interface {
	Upload(ctx context.Context, localPath string, date time.Time) error
}

// Config for the archiver.
type Config struct {
	Dir      string
	ErrorDir string
	LogsDir  string

	// Backup is optional; nil disables off-host copies.
	Backup Backup
}

// Archiver files away processed inputs.
type Archiver struct {
	cfg Config
}

// New returns an Archiver.
func New(cfg Config) *Archiver {
	return &Archiver{cfg: cfg}
}

// Archive moves path into the dated archive tree and returns the final
// location. Files that yielded zero records are routed to the error
// directory instead. The date folder comes from the filename when it
// carries one, otherwise from the current day.
func (a *Archiver) Archive(ctx context.Context, path string, records int) (string, error) {
	date, ok := util.SourceDate(path)
	if !ok {
		date = time.Now().UTC()
	}

	root := a.cfg.Dir
	if records == 0 {
		root = a.cfg.ErrorDir
	}
	destDir := filepath.Join(root, util.DateFolder(date))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", ierrors.Wrap(err, ierrors.CodeArchiveFailed, "create archive folder").
			WithContext("dir", destDir)
	}

	dest := filepath.Join(destDir, filepath.Base(path))
	if err := moveFile(path, dest); err != nil {
		return "", ierrors.Wrap(err, ierrors.CodeArchiveFailed, "move file").
			WithContext("from", path).
			WithContext("to", dest)
	}

	if a.cfg.Backup != nil && util.IsGzip(dest) {
		if err := a.cfg.Backup.Upload(ctx, dest, date); err != nil {
			return dest, ierrors.Wrap(err, ierrors.CodeArchiveFailed, "backup upload").
				WithContext("path", dest)
		}
	}
	return dest, nil
}

// WriteReport stores the per-file ingest report as JSON under the logs
// directory, alongside the archive date folder for its source.
func (a *Archiver) WriteReport(sourcePath string, report interface{}) (string, error) {
	date, ok := util.SourceDate(sourcePath)
	if !ok {
		date = time.Now().UTC()
	}

	dir := filepath.Join(a.cfg.LogsDir, util.DateFolder(date))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", ierrors.Wrap(err, ierrors.CodeArchiveFailed, "create logs folder").
			WithContext("dir", dir)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", ierrors.Wrap(err, ierrors.CodeArchiveFailed, "marshal report")
	}

	name := util.StripGzip(filepath.Base(sourcePath)) + ".report.json"
	path := filepath.Join(dir, name)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", ierrors.Wrap(err, ierrors.CodeArchiveFailed, "write report").
			WithContext("path", tempPath)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return "", ierrors.Wrap(err, ierrors.CodeArchiveFailed, "replace report").
			WithContext("path", path)
	}
	return path, nil
}

// moveFile renames when possible and falls back to copy-then-delete for
// cross-device moves. The copy goes to a temp name first.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tempDest := dest + ".tmp"
	out, err := os.Create(tempDest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tempDest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tempDest)
		return err
	}
	if err := os.Rename(tempDest, dest); err != nil {
		os.Remove(tempDest)
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("archived but source not removed: %w", err)
	}
	return nil
}
