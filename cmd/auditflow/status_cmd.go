package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingested files and event counts",
	RunE:  runStatus,
}

var initDBCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the events table in the configured database",
	RunE:  runInitDB,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	ctx := context.Background()

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.List(ctx)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CompletedAt.Before(entries[j].CompletedAt)
	})

	if len(entries) == 0 {
		fmt.Println("No files ingested yet.")
	} else {
		fmt.Printf("%-40s %10s %10s %10s  %s\n", "File", "Blocks", "Records", "Fallbacks", "Completed")
		for _, e := range entries {
			fmt.Printf("%-40s %10d %10d %10d  %s\n",
				filepath.Base(e.Path), e.Blocks, e.Records, e.Fallbacks,
				e.CompletedAt.Format("2006-01-02 15:04:05"))
		}
	}

	// Event count needs a real database; skip for in-memory configs.
	if cfg.Storage.Database != "" && cfg.Storage.Database != ":memory:" {
		st, err := store.OpenDuckDB(cfg.Storage.Database)
		if err != nil {
			return nil
		}
		defer st.Close()
		if err := st.Init(ctx); err != nil {
			return nil
		}
		if n, err := st.Count(ctx); err == nil {
			fmt.Printf("\nEvents stored: %d (%s)\n", n, cfg.Storage.Database)
		}
	}
	return nil
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	path := cfg.Storage.Database
	if databasePath != "" {
		path = databasePath
	}
	if path == "" || path == ":memory:" {
		return fmt.Errorf("no database path configured; set storage.database or pass --db")
	}

	st, err := store.OpenDuckDB(path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", path, err)
	}
	defer st.Close()

	if err := st.Init(context.Background()); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	fmt.Printf("Database ready: %s\n", path)
	return nil
}

func init() {
	initDBCmd.Flags().StringVarP(&databasePath, "db", "d", "", "DuckDB database path (overrides config)")
}
