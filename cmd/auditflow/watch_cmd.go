package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/pipeline"
	"github.com/auditflow/auditflow/pkg/tui"
	"github.com/auditflow/auditflow/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and ingest new audit logs as they arrive",
	Long: `Continuously watch an input directory for new .log and .log.gz files.

Files already present are processed first (respecting the checkpoint
ledger), then the watcher picks up new arrivals. Uploads in progress are
left alone until their size stops changing.

Examples:
  auditflow watch /data/inbox
  auditflow watch --debounce 5s /data/inbox`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchDir,
}

func init() {
	watchCmd.Flags().StringVar(&watchDebounce, "debounce", "", "Settle time before a new file is ingested (e.g. 5s)")
	watchCmd.Flags().StringVarP(&databasePath, "db", "d", "", "DuckDB database path (overrides config)")
	watchCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Leave processed files in place")
}

func runWatchDir(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	dir := cfg.Ingest.InputDir
	if len(args) > 0 {
		dir = args[0]
	}

	debounce := cfg.Watch.Debounce
	if watchDebounce != "" {
		d, err := time.ParseDuration(watchDebounce)
		if err != nil {
			return fmt.Errorf("invalid --debounce: %w", err)
		}
		debounce = d
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

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	p := pipeline.New(st, pipeline.Config{
		BatchSize:    cfg.Ingest.BatchSize,
		MaxLineBytes: cfg.Ingest.MaxLineBytes,
	}).WithLedger(ledger)

	if !noArchive {
		archiver, err := buildArchiver(ctx, cfg)
		if err != nil {
			return err
		}
		p.WithArchiver(archiver)
	}
	p.OnFileDone = tui.PrintFileResult

	w, err := watch.New(dir, debounce)
	if err != nil {
		return err
	}
	defer w.Close()

	w.OnFile = func(path string) error {
		_, err := p.IngestFile(ctx, path)
		return err
	}
	w.OnError = func(path string, err error) {
		if path == "" {
			log.Printf("watch error: %v", err)
			return
		}
		log.Printf("ingest %s: %v", path, err)
	}

	tui.PrintHeader(version)
	fmt.Printf("Watching %s (debounce %s)\n", dir, debounce)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	// Catch-up pass over files already in the directory.
	existing, err := w.Scan()
	if err != nil {
		return err
	}
	for _, path := range existing {
		if ctx.Err() != nil {
			break
		}
		if _, err := p.IngestFile(ctx, path); err != nil {
			log.Printf("ingest %s: %v", path, err)
		}
	}

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nStopped")
		return nil
	}
	return err
}
