package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/google/uuid"

	"github.com/auditflow/auditflow/internal/model"
	ierrors "github.com/auditflow/auditflow/pkg/errors"
)

// DuckDBStore persists events to a DuckDB database. An empty path opens an
// in-memory database, which is what the tests use.
type DuckDBStore struct {
	db *sql.DB

	mu     sync.Mutex
	stmt   *sql.Stmt
	total  int64
	closed bool
}

// OpenDuckDB opens or creates the database at path.
func OpenDuckDB(path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &DuckDBStore{db: db}, nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	id              VARCHAR PRIMARY KEY,
	source_file     VARCHAR NOT NULL,
	start_line      INTEGER NOT NULL,
	end_line        INTEGER NOT NULL,
	business_id     VARCHAR,
	origin          VARCHAR,
	origin_id       VARCHAR,
	log_category    VARCHAR,
	service         VARCHAR,
	activity        VARCHAR,
	activity_result VARCHAR,
	owner           VARCHAR,
	host            VARCHAR,
	event_timestamp TIMESTAMP,
	duration        BIGINT,
	operation       VARCHAR,
	reference_id    VARCHAR,
	request_id      VARCHAR,
	request_time    TIMESTAMP,
	response_time   TIMESTAMP,
	brs_url         VARCHAR,
	request_message JSON,
	brs_request     JSON,
	brs_response    JSON,
	queue_response  JSON,
	parse_error     VARCHAR,
	payload         JSON NOT NULL,
	created_at      TIMESTAMP DEFAULT current_timestamp
)`

const insertEvent = `
INSERT INTO events (
	id, source_file, start_line, end_line,
	business_id, origin, origin_id, log_category, service,
	activity, activity_result, owner, host,
	event_timestamp, duration, operation, reference_id, request_id,
	request_time, response_time, brs_url,
	request_message, brs_request, brs_response, queue_response,
	parse_error, payload
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Init creates the events table and prepares the insert.
func (s *DuckDBStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createEventsTable); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	stmt, err := s.db.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	s.mu.Lock()
	s.stmt = stmt
	s.mu.Unlock()
	return nil
}

// WriteBatch inserts records inside one transaction. When the transaction
// fails it falls back to per-record inserts so that a single bad record
// only loses itself.
func (s *DuckDBStore) WriteBatch(ctx context.Context, records []*model.EventRecord) (WriteResult, error) {
	if len(records) == 0 {
		return WriteResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stmt == nil {
		return WriteResult{}, ierrors.New(ierrors.CodeStoreWrite, "store not initialized")
	}

	if err := s.writeTx(ctx, records); err == nil {
		s.total += int64(len(records))
		return WriteResult{Stored: len(records)}, nil
	}

	var res WriteResult
	for _, rec := range records {
		if _, err := s.stmt.ExecContext(ctx, insertArgs(rec)...); err != nil {
			res.Failed = append(res.Failed, WriteFailure{
				Source: rec.SourceFile,
				Line:   rec.StartLine,
				Err:    ierrors.StoreWrite(err, rec.SourceFile, rec.StartLine),
			})
			continue
		}
		res.Stored++
	}
	s.total += int64(res.Stored)
	return res, nil
}

func (s *DuckDBStore) writeTx(ctx context.Context, records []*model.EventRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt := tx.Stmt(s.stmt)
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, insertArgs(rec)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insertArgs(rec *model.EventRecord) []interface{} {
	return []interface{}{
		uuid.NewString(),
		rec.SourceFile,
		rec.StartLine,
		rec.EndLine,
		strArg(rec.BusinessID),
		strArg(rec.Origin),
		strArg(rec.OriginID),
		strArg(rec.LogCategory),
		strArg(rec.Service),
		strArg(rec.Activity),
		strArg(rec.ActivityResult),
		strArg(rec.Owner),
		strArg(rec.Host),
		timeArg(rec.EventTimestamp),
		intArg(rec.Duration),
		strArg(rec.Operation),
		strArg(rec.ReferenceID),
		strArg(rec.RequestID),
		timeArg(rec.RequestTime),
		timeArg(rec.ResponseTime),
		strArg(rec.BRSURL),
		jsonArg(rec.RequestMessage),
		jsonArg(rec.BRSRequest),
		jsonArg(rec.BRSResponse),
		jsonArg(rec.QueueResponse),
		strArg(rec.ParseError),
		rec.Payload.EncodeJSON(),
	}
}

func strArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func intArg(n *int64) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func jsonArg(v *model.Value) interface{} {
	if v == nil {
		return nil
	}
	return v.EncodeJSON()
}

// Count returns the number of stored events.
func (s *DuckDBStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// Close flushes nothing (writes are transactional) and releases the
// connection.
func (s *DuckDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.stmt != nil {
		s.stmt.Close()
	}
	return s.db.Close()
}
