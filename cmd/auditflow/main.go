// AuditFlow - ingest quasi-JSON audit logs into DuckDB.
// Splits block streams, repairs malformed JSON, projects known fields and
// archives processed originals.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	inputPath     string
	databasePath  string
	workers       int
	batchSize     int
	noArchive     bool
	noCheckpoint  bool
	jsonOutput    bool
	watchDebounce string
	verbose       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "auditflow",
	Short: "AuditFlow - Ingest quasi-JSON audit logs into DuckDB",
	Long: `AuditFlow ingests audit log files whose entries are JSON-like blocks
produced by JVM toString dumps, Python repr output and hand-rolled loggers.

Every block is split, repaired into strict JSON where possible and stored.
Blocks that cannot be repaired are preserved verbatim in a fallback record,
so no input line is ever lost.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initDBCmd)
}
