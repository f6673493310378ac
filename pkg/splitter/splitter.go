// Package splitter segments a raw audit-log stream into discrete event
// blocks. A block is a brace-delimited span that may cover several physical
// lines; text between blocks is emitted as its own block so that the line
// ranges of one file partition the consumed input with no gaps and no
// overlaps.
package splitter

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/auditflow/auditflow/internal/model"
	ierrors "github.com/auditflow/auditflow/pkg/errors"
)

// Splitter produces RawBlocks from a text stream. It is stateless across
// files and safe for concurrent use; each call to Split carries its own
// scan state.
type Splitter struct {
	// MaxLineBytes bounds a single physical line. Lines beyond this fail
	// the whole file, matching the per-file fatality of unreadable sources.
	MaxLineBytes int
}

// New returns a Splitter with default limits.
func New() *Splitter {
	return &Splitter{MaxLineBytes: 4 * 1024 * 1024}
}

// Split reads from r and sends blocks to out in source order. It respects
// context cancellation. The caller is responsible for closing out.
// An unreadable stream fails the whole operation; blocks that are empty
// after trimming are skipped without emission.
func (s *Splitter) Split(ctx context.Context, r io.Reader, source string, out chan<- model.RawBlock) error {
	return s.split(r, source, func(b model.RawBlock) error {
		select {
		case <-ctx.Done():
			return ierrors.Wrap(ctx.Err(), ierrors.CodeContextCanceled, "split canceled").
				WithContext("source", source)
		case out <- b:
			return nil
		}
	})
}

// SplitAll reads the whole stream and returns its blocks in order.
func (s *Splitter) SplitAll(r io.Reader, source string) ([]model.RawBlock, error) {
	var blocks []model.RawBlock
	err := s.split(r, source, func(b model.RawBlock) error {
		blocks = append(blocks, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *Splitter) split(r io.Reader, source string, emit func(model.RawBlock) error) error {
	scanner := bufio.NewScanner(r)
	max := s.MaxLineBytes
	if max <= 0 {
		max = 4 * 1024 * 1024
	}
	scanner.Buffer(make([]byte, 0, 64*1024), max)

	var (
		pending      []string
		pendingStart int
		depth        int
		inString     bool
		escaped      bool
		sawOpen      bool
		lineNum      int
	)

	hasContent := func() bool {
		for _, l := range pending {
			if strings.TrimSpace(l) != "" {
				return true
			}
		}
		return false
	}

	flush := func(endLine int) error {
		if len(pending) == 0 || !hasContent() {
			pending = nil
			return nil
		}
		block := model.RawBlock{
			Source:    source,
			StartLine: pendingStart,
			EndLine:   endLine,
			Text:      strings.Join(pending, "\n"),
		}
		pending = nil
		return emit(block)
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// A new opener at top level closes any accumulated non-block text.
		if depth == 0 && !inString && !sawOpen && hasContent() {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "{") {
				if err := flush(lineNum - 1); err != nil {
					return err
				}
			}
		}

		if len(pending) == 0 {
			pendingStart = lineNum
		}
		pending = append(pending, line)

		for _, ch := range line {
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				if inString {
					escaped = true
				}
			case '"':
				inString = !inString
			case '{':
				if !inString {
					depth++
					sawOpen = true
				}
			case '}':
				if !inString && depth > 0 {
					depth--
				}
			}
		}
		// A raw newline inside a string does not terminate it; the repair
		// engine escapes it later.
		escaped = false

		if depth == 0 && sawOpen && !inString {
			if err := flush(lineNum); err != nil {
				return err
			}
			sawOpen = false
		}
	}

	if err := scanner.Err(); err != nil {
		return ierrors.SourceUnreadable(source, err)
	}

	// EOF-terminated block with no trailing boundary marker is still emitted.
	return flush(lineNum)
}
