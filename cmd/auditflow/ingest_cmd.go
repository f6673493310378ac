package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/auditflow/auditflow/pkg/archive"
	"github.com/auditflow/auditflow/pkg/checkpoint"
	"github.com/auditflow/auditflow/pkg/config"
	ierrors "github.com/auditflow/auditflow/pkg/errors"
	"github.com/auditflow/auditflow/pkg/pipeline"
	"github.com/auditflow/auditflow/pkg/store"
	"github.com/auditflow/auditflow/pkg/telemetry"
	"github.com/auditflow/auditflow/pkg/tui"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest an audit log file or a directory of them",
	Long: `Ingest one audit log file, or every .log / .log.gz file in a directory.

Already-processed files (per the checkpoint ledger) are skipped. After a
successful run each original is moved to the archive tree and a per-file
report is written alongside it.

Examples:
  auditflow ingest /data/inbox/auditlog-2024-03-01_1.log
  auditflow ingest /data/inbox
  auditflow ingest --db ./events.db --workers 8 /data/inbox
  auditflow ingest --no-archive --json audit.log.gz`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&databasePath, "db", "d", "", "DuckDB database path (overrides config)")
	ingestCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent files for directory ingest (0 = CPU count)")
	ingestCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per store write")
	ingestCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Leave processed files in place")
	ingestCmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Ignore the processed-file ledger")
	ingestCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print stats as JSON instead of the report")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	path := cfg.Ingest.InputDir
	if len(args) > 0 {
		path = args[0]
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input does not exist: %s", path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := initTracing(ctx, cfg)
	defer shutdownTracing()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	p := pipeline.New(st, pipeline.Config{
		BatchSize:    pickInt(batchSize, cfg.Ingest.BatchSize),
		MaxLineBytes: cfg.Ingest.MaxLineBytes,
		Workers:      pickInt(workers, cfg.Ingest.Workers),
	})

	if !noCheckpoint {
		ledger, err := openLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer ledger.Close()
		p.WithLedger(ledger)
	}

	if !noArchive {
		archiver, err := buildArchiver(ctx, cfg)
		if err != nil {
			return err
		}
		p.WithArchiver(archiver)
	}

	if !jsonOutput {
		tui.PrintHeader(version)
		p.OnFileDone = tui.PrintFileResult
	}

	if info.IsDir() {
		var bar *progressbar.ProgressBar
		if !jsonOutput {
			if paths, err := pipeline.ListInputs(path); err == nil && len(paths) > 0 {
				bar = tui.ShowProgress(int64(len(paths)), "ingesting")
				p.OnFileDone = func(fs pipeline.FileStats) {
					bar.Add(1)
					tui.PrintFileResult(fs)
				}
			}
		}
		batch, err := p.IngestDir(ctx, path)
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return wrapCanceled(ctx, err)
		}
		if jsonOutput {
			return printJSON(batch)
		}
		tui.PrintBatchReport(batch)
		tui.PrintErrors(batch.Errors)
		return batch.Err()
	}

	fs, err := p.IngestFile(ctx, path)
	if err != nil {
		return wrapCanceled(ctx, err)
	}
	if jsonOutput {
		return printJSON(fs)
	}
	if fs.Skipped {
		tui.PrintFileResult(fs)
		return nil
	}
	var batch pipeline.BatchStats
	batch.Files = 1
	batch.Blocks = fs.Blocks
	batch.Direct = fs.Direct
	batch.Repaired = fs.Repaired
	batch.Fallbacks = fs.Fallbacks
	batch.Stored = fs.Stored
	batch.StoreFailures = fs.StoreFailures
	batch.FallbackReasons = fs.FallbackReasons
	batch.Elapsed = fs.Elapsed
	tui.PrintBatchReport(batch)
	return nil
}

// openStore selects the event store backend. An empty or ":memory:" database
// path yields the in-memory store, useful for dry runs.
func openStore(cfg *config.Config) (store.EventStore, error) {
	path := cfg.Storage.Database
	if databasePath != "" {
		path = databasePath
	}
	if path == "" || path == ":memory:" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenDuckDB(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return st, nil
}

// openLedger selects the checkpoint backend from config.
func openLedger(ctx context.Context, cfg *config.Config) (checkpoint.Ledger, error) {
	if cfg.Checkpoint.Backend == "redis" {
		rcfg := checkpoint.DefaultRedisConfig(cfg.Checkpoint.RedisAddr)
		rcfg.Database = cfg.Checkpoint.RedisDB
		rcfg.TTL = cfg.Checkpoint.TTL
		ledger, err := checkpoint.NewRedisLedger(rcfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis ledger: %w", err)
		}
		return ledger, nil
	}
	ledger, err := checkpoint.NewFileLedger(cfg.Checkpoint.Path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint ledger: %w", err)
	}
	return ledger, nil
}

// buildArchiver wires the archive tree and, when configured, the S3 backup.
func buildArchiver(ctx context.Context, cfg *config.Config) (*archive.Archiver, error) {
	acfg := archive.Config{
		Dir:      cfg.Archive.Dir,
		ErrorDir: cfg.Archive.ErrorDir,
		LogsDir:  cfg.Archive.LogsDir,
	}
	if cfg.Archive.S3.Enabled {
		s3cfg := archive.DefaultS3Config(cfg.Archive.S3.Bucket)
		s3cfg.Region = cfg.Archive.S3.Region
		s3cfg.Endpoint = cfg.Archive.S3.Endpoint
		if cfg.Archive.S3.Prefix != "" {
			s3cfg.Prefix = cfg.Archive.S3.Prefix
		}
		s3cfg.AccessKeyID = cfg.Archive.S3.AccessKey
		s3cfg.SecretAccessKey = cfg.Archive.S3.SecretKey
		backup, err := archive.NewS3Backup(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("configure S3 backup: %w", err)
		}
		acfg.Backup = backup
	}
	return archive.New(acfg), nil
}

// initTracing starts OTLP export when enabled; otherwise spans are no-ops.
func initTracing(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Telemetry.Enabled {
		return func() {}
	}
	tcfg := telemetry.DefaultConfig("auditflow")
	tcfg.ServiceVersion = version
	if cfg.Telemetry.Endpoint != "" {
		tcfg.Endpoint = cfg.Telemetry.Endpoint
	}
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		log.Printf("telemetry disabled: %v", err)
		return func() {}
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}
}

func wrapCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ierrors.Wrap(err, ierrors.CodeContextCanceled, "ingest interrupted")
	}
	return err
}

func pickInt(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
