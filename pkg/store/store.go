// Package store persists projected audit events.
package store

import (
	"context"

	"github.com/auditflow/auditflow/internal/model"
)

// WriteFailure describes one record the store rejected. Rejections are
// accounted for, not fatal: the rest of the batch still lands.
type WriteFailure struct {
	Source string
	Line   int
	Err    error
}

// WriteResult summarizes one batch write.
type WriteResult struct {
	Stored int
	Failed []WriteFailure
}

// EventStore is the persistence boundary of the pipeline.
type EventStore interface {
	// Init creates the backing schema if needed.
	Init(ctx context.Context) error

	// WriteBatch stores records, reporting per-record failures. The error
	// return is reserved for store-level faults that lose the whole batch.
	WriteBatch(ctx context.Context, records []*model.EventRecord) (WriteResult, error)

	// Close releases store resources.
	Close() error
}
