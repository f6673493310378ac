package model

import "time"

// EventRecord is the flat record handed to the persistence layer: a fixed
// set of scalar fields projected out of a structured value, the known nested
// objects, and the complete payload.
//
// Scalar and nested fields are pointers; nil means the key was absent from
// the structured value (or its value could not be coerced). That is a
// distinct state from "present but null" — the payload always keeps the
// original sub-value either way.
type EventRecord struct {
	// Source location, carried for diagnostics and ordering.
	SourceFile string
	StartLine  int
	EndLine    int

	BusinessID     *string
	Origin         *string
	OriginID       *string
	LogCategory    *string
	Service        *string
	Activity       *string
	ActivityResult *string
	Owner          *string
	Host           *string

	EventTimestamp *time.Time
	Duration       *int64
	Operation      *string
	ReferenceID    *string
	RequestID      *string
	RequestTime    *time.Time
	ResponseTime   *time.Time

	BRSURL *string

	// Known nested objects from the upstream producer contract.
	RequestMessage *Value
	BRSRequest     *Value
	BRSResponse    *Value
	QueueResponse  *Value

	// ParseError is set only on fallback records.
	ParseError *string

	// Payload is the complete structured value. Never nil.
	Payload *Value
}

// IsFallback reports whether this record wraps an unrepairable block.
func (r *EventRecord) IsFallback() bool { return r.ParseError != nil }
