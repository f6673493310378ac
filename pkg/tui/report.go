// Package tui renders ingest progress and reports on the terminal.
// Simple, streaming output - no interactive screens.
package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/auditflow/auditflow/pkg/pipeline"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning).Bold(true)
)

// PrintHeader prints the tool banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  AUDITFLOW") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Audit log ingestion for quasi-JSON event streams"))
	fmt.Println()
}

// PrintFileResult prints one file's outcome as it completes.
func PrintFileResult(fs pipeline.FileStats) {
	name := filepath.Base(fs.Source)
	if fs.Skipped {
		fmt.Printf("  %s %s %s\n",
			mutedStyle.Render("-"),
			name,
			mutedStyle.Render("(already ingested)"))
		return
	}

	marker := successStyle.Render("✓")
	if fs.Fallbacks > 0 {
		marker = warnStyle.Render("!")
	}
	fmt.Printf("  %s %s %s\n",
		marker,
		titleStyle.Render(name),
		mutedStyle.Render(fmt.Sprintf("%d blocks, %d repaired, %d fallbacks, %s",
			fs.Blocks, fs.Repaired, fs.Fallbacks, formatDuration(fs.Elapsed))))
}

// PrintBatchReport prints the end-of-run summary.
func PrintBatchReport(batch pipeline.BatchStats) {
	fmt.Println()
	if batch.Failed == 0 {
		fmt.Println(successStyle.Render("  ✓ INGEST COMPLETE"))
	} else {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  ! INGEST FINISHED WITH %d FAILED FILE(S)", batch.Failed)))
	}
	fmt.Println()

	fmt.Printf("  %s %s ingested, %s skipped\n",
		mutedStyle.Render("Files:"),
		titleStyle.Render(formatNumber(int64(batch.Files-batch.Skipped-batch.Failed))),
		formatNumber(int64(batch.Skipped)))
	fmt.Printf("  %s %s total (%s direct, %s repaired, %s fallback)\n",
		mutedStyle.Render("Blocks:"),
		titleStyle.Render(formatNumber(int64(batch.Blocks))),
		formatNumber(int64(batch.Direct)),
		formatNumber(int64(batch.Repaired)),
		formatNumber(int64(batch.Fallbacks)))
	fmt.Printf("  %s %s stored, %s rejected\n",
		mutedStyle.Render("Records:"),
		titleStyle.Render(formatNumber(int64(batch.Stored))),
		formatNumber(int64(batch.StoreFailures)))

	if len(batch.FallbackReasons) > 0 {
		reasons := make([]string, 0, len(batch.FallbackReasons))
		for r := range batch.FallbackReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		fmt.Printf("  %s\n", mutedStyle.Render("Fallback reasons:"))
		for _, r := range reasons {
			fmt.Printf("    %s %s\n",
				accentStyle.Render(fmt.Sprintf("%5d", batch.FallbackReasons[r])),
				mutedStyle.Render(r))
		}
	}

	if batch.Elapsed > 0 && batch.Blocks > 0 {
		throughput := float64(batch.Blocks) / batch.Elapsed.Seconds()
		fmt.Printf("  %s %s %s\n",
			mutedStyle.Render("Time:"),
			titleStyle.Render(formatDuration(batch.Elapsed)),
			mutedStyle.Render(fmt.Sprintf("(%s blocks/sec)", formatNumber(int64(throughput)))))
	}
	fmt.Println()
}

// PrintErrors lists per-file failures at the end of a batch.
func PrintErrors(errs []error) {
	if len(errs) == 0 {
		return
	}
	fmt.Println(accentStyle.Render("  FAILED FILES"))
	for _, err := range errs {
		fmt.Printf("    %s %v\n", accentStyle.Render("✗"), err)
	}
	fmt.Println()
}

// ShowProgress creates a progress bar over the file count of a batch run.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
