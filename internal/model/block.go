// Package model defines core data structures for auditflow.
package model

import "fmt"

// RawBlock is one event's raw text span within a log file, as delimited by
// the splitter. Immutable once produced; consumed exactly once by the repair
// engine.
type RawBlock struct {
	// Source identifies the originating file.
	Source string

	// StartLine and EndLine are 1-based, inclusive. Line ranges of the
	// blocks emitted for one file partition the consumed input.
	StartLine int
	EndLine   int

	// Text is the raw span, exactly as read.
	Text string
}

// Location renders the block's source position for diagnostics,
// e.g. "auditlog-2025-11-10_07.0.log:12-18".
func (b RawBlock) Location() string {
	if b.StartLine == b.EndLine {
		return fmt.Sprintf("%s:%d", b.Source, b.StartLine)
	}
	return fmt.Sprintf("%s:%d-%d", b.Source, b.StartLine, b.EndLine)
}
