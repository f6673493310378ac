// Package pipeline wires the splitter, repair engine, projector and store
// into the end-to-end ingest flow: one goroutine splits the stream into
// blocks, another resolves and persists them, so memory stays bounded by
// one block plus one batch regardless of file size.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/auditflow/auditflow/internal/model"
	"github.com/auditflow/auditflow/pkg/archive"
	"github.com/auditflow/auditflow/pkg/checkpoint"
	ierrors "github.com/auditflow/auditflow/pkg/errors"
	"github.com/auditflow/auditflow/pkg/project"
	"github.com/auditflow/auditflow/pkg/repair"
	"github.com/auditflow/auditflow/pkg/splitter"
	"github.com/auditflow/auditflow/pkg/store"
	"github.com/auditflow/auditflow/pkg/util"
)

// Config tunes the pipeline.
type Config struct {
	// BatchSize is the number of records per store write.
	BatchSize int

	// MaxLineBytes bounds one physical input line.
	MaxLineBytes int

	// Workers is the number of files ingested concurrently. Within a file
	// processing is sequential so record order follows source order.
	Workers int
}

// fileLockTTL bounds how long one ingester's claim on a file outlives a
// crash; normal completion releases the claim immediately.
const fileLockTTL = 10 * time.Minute

// FileStats accounts for one ingested file.
type FileStats struct {
	Source  string `json:"source"`
	Skipped bool   `json:"skipped,omitempty"`

	Blocks    int `json:"blocks"`
	Direct    int `json:"direct"`    // parsed without normalization
	Repaired  int `json:"repaired"`  // parsed after normalization
	Fallbacks int `json:"fallbacks"` // wrapped raw

	FallbackReasons map[string]int `json:"fallback_reasons,omitempty"`

	Stored        int `json:"stored"`
	StoreFailures int `json:"store_failures"`

	Elapsed    time.Duration `json:"elapsed_ns"`
	ArchivedTo string        `json:"archived_to,omitempty"`
}

// BatchStats aggregates a directory run.
type BatchStats struct {
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	Blocks        int `json:"blocks"`
	Direct        int `json:"direct"`
	Repaired      int `json:"repaired"`
	Fallbacks     int `json:"fallbacks"`
	Stored        int `json:"stored"`
	StoreFailures int `json:"store_failures"`

	FallbackReasons map[string]int `json:"fallback_reasons,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`
	PerFile []FileStats   `json:"per_file,omitempty"`
	Errors  []error       `json:"-"`
}

// Err combines the per-file failures into one error, nil when every file
// ingested cleanly.
func (b *BatchStats) Err() error {
	m := &ierrors.MultiError{}
	for _, e := range b.Errors {
		m.Add(e)
	}
	return m.Combined()
}

func (b *BatchStats) add(fs FileStats) {
	b.Files++
	if fs.Skipped {
		b.Skipped++
		return
	}
	b.Blocks += fs.Blocks
	b.Direct += fs.Direct
	b.Repaired += fs.Repaired
	b.Fallbacks += fs.Fallbacks
	b.Stored += fs.Stored
	b.StoreFailures += fs.StoreFailures
	for reason, n := range fs.FallbackReasons {
		if b.FallbackReasons == nil {
			b.FallbackReasons = make(map[string]int)
		}
		b.FallbackReasons[reason] += n
	}
	b.PerFile = append(b.PerFile, fs)
}

// Pipeline runs the ingest flow against one store.
type Pipeline struct {
	cfg      Config
	store    store.EventStore
	ledger   checkpoint.Ledger
	archiver *archive.Archiver
	split    *splitter.Splitter
	engine   *repair.Engine
	tracer   trace.Tracer

	// OnFileDone, when set, is called after each non-skipped file. Used by
	// the CLI for progress reporting.
	OnFileDone func(FileStats)
}

// New creates a pipeline writing to st.
func New(st store.EventStore, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	sp := splitter.New()
	if cfg.MaxLineBytes > 0 {
		sp.MaxLineBytes = cfg.MaxLineBytes
	}
	return &Pipeline{
		cfg:    cfg,
		store:  st,
		split:  sp,
		engine: repair.NewEngine(),
		tracer: otel.Tracer("auditflow/pipeline"),
	}
}

// WithLedger enables processed-file deduplication.
func (p *Pipeline) WithLedger(l checkpoint.Ledger) *Pipeline {
	p.ledger = l
	return p
}

// WithArchiver enables post-ingest file movement and reports.
func (p *Pipeline) WithArchiver(a *archive.Archiver) *Pipeline {
	p.archiver = a
	return p
}

// IngestFile processes one audit log file end to end. Unreadable input is
// fatal for the file; malformed blocks are not, they become fallback
// records. A file already present in the ledger is skipped.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (FileStats, error) {
	stats := FileStats{
		Source:          path,
		FallbackReasons: make(map[string]int),
	}
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "auditflow.ingest_file",
		trace.WithAttributes(attribute.String("source", path)))
	defer span.End()

	if p.ledger != nil {
		done, err := p.ledger.IsProcessed(ctx, path)
		if err != nil {
			return stats, err
		}
		if done {
			stats.Skipped = true
			return stats, nil
		}

		// Ledgers shared between ingesters additionally claim the file, so
		// two workers watching one directory never ingest it twice. A claim
		// held elsewhere (or an unreachable lock service) leaves the file
		// for a later run.
		if locker, ok := p.ledger.(checkpoint.FileLocker); ok {
			lock, err := locker.AcquireLock(ctx, path, fileLockTTL)
			if err != nil {
				stats.Skipped = true
				return stats, nil
			}
			defer lock.Release(context.Background())
		}
	}

	r, cleanup, err := util.OpenSource(path)
	if err != nil {
		span.RecordError(err)
		return stats, err
	}
	defer cleanup()

	blocks := make(chan model.RawBlock, 64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(blocks)
		return p.split.Split(gctx, r, filepath.Base(path), blocks)
	})

	g.Go(func() error {
		batch := make([]*model.EventRecord, 0, p.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			res, err := p.store.WriteBatch(gctx, batch)
			if err != nil {
				return err
			}
			stats.Stored += res.Stored
			stats.StoreFailures += len(res.Failed)
			batch = batch[:0]
			return nil
		}

		for b := range blocks {
			stats.Blocks++
			v, outcome := p.engine.Resolve(b)
			switch {
			case outcome.Success() && len(outcome.Applied) == 0:
				stats.Direct++
			case outcome.Success():
				stats.Repaired++
			default:
				stats.Fallbacks++
				stats.FallbackReasons[outcome.Reason.String()]++
			}
			batch = append(batch, project.Project(b, v))
			if len(batch) >= p.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return stats, err
	}
	stats.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("blocks", stats.Blocks),
		attribute.Int("repaired", stats.Repaired),
		attribute.Int("fallbacks", stats.Fallbacks),
		attribute.Int("stored", stats.Stored),
	)

	if p.ledger != nil {
		entry := checkpoint.Entry{
			Path:        path,
			Blocks:      stats.Blocks,
			Records:     stats.Stored,
			Fallbacks:   stats.Fallbacks,
			CompletedAt: time.Now().UTC(),
		}
		if info, err := os.Stat(path); err == nil {
			entry.Size = info.Size()
		}
		if err := p.ledger.Mark(ctx, entry); err != nil {
			span.RecordError(err)
			return stats, err
		}
	}

	if p.archiver != nil {
		if _, err := p.archiver.WriteReport(path, stats); err != nil {
			span.RecordError(err) // report loss does not undo the ingest
		}
		dest, err := p.archiver.Archive(ctx, path, stats.Stored)
		if err != nil {
			span.RecordError(err)
			return stats, err
		}
		stats.ArchivedTo = dest
	}

	if p.OnFileDone != nil {
		p.OnFileDone(stats)
	}
	return stats, nil
}

// IngestDir processes every audit log in dir, fanning out across files.
// One file failing does not stop the others; failures are collected in the
// batch stats.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (BatchStats, error) {
	var batch BatchStats
	start := time.Now()

	paths, err := ListInputs(dir)
	if err != nil {
		return batch, err
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fs, err := p.IngestFile(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Files++
				batch.Failed++
				batch.Errors = append(batch.Errors,
					ierrors.Wrapf(err, ierrors.GetCode(err), "ingest %s", filepath.Base(path)))
				return nil // one bad file must not sink the batch
			}
			batch.add(fs)
			return nil
		})
	}

	err = g.Wait()
	batch.Elapsed = time.Since(start)
	sort.Slice(batch.PerFile, func(i, j int) bool {
		return batch.PerFile[i].Source < batch.PerFile[j].Source
	})
	return batch, err
}

// ListInputs returns the audit log files in dir, sorted by name.
func ListInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".log.gz") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
