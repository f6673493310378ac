// Package project flattens structured audit values into EventRecords for
// persistence. Projection is lossless: known keys are lifted into typed
// columns when they coerce cleanly, and the complete value always travels
// along as the payload.
package project

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/auditflow/internal/model"
)

// Known top-level keys of the upstream audit producer.
const (
	KeyBusinessID     = "BUSINESS_ID"
	KeyOrigin         = "ORIGIN"
	KeyOriginID       = "ORIGIN_ID"
	KeyLogCategory    = "LOG_CATEGORY"
	KeyService        = "SERVICE"
	KeyActivity       = "ACTIVITY"
	KeyActivityResult = "ACTIVITY_RESULT"
	KeyOwner          = "OWNER"
	KeyHost           = "HOST"
	KeyTimestamp      = "TIMESTAMP"
	KeyDuration       = "DURATION"
	KeyOperation      = "OPERATION"
	KeyReferenceID    = "REFERENCE_ID"
	KeyRequestID      = "REQUEST_ID"
	KeyRequestTime    = "REQUEST_TIME"
	KeyResponseTime   = "RESPONSE_TIME"
	KeyBRSURL         = "BRS_URL"
	KeyRequestMessage = "REQUEST_MESSAGE"
	KeyBRSRequest     = "BRS_REQUEST"
	KeyBRSResponse    = "BRS_RESPONSE"
	KeyQueueResponse  = "RESPONSE_PUBLISHED_TO_MOSIP_QUEUE"
	KeyParseError     = "_parse_error"
)

// Project builds the flat record for one resolved block. A nil field on the
// result means the key was absent, null, or would not coerce; the payload
// keeps the original sub-value regardless. Fallback wrappers project to a
// record whose only populated fields are the parse error and the payload.
func Project(block model.RawBlock, v *model.Value) *model.EventRecord {
	rec := &model.EventRecord{
		SourceFile: block.Source,
		StartLine:  block.StartLine,
		EndLine:    block.EndLine,
		Payload:    v,
	}
	if v == nil || v.Kind() != model.KindObject {
		return rec
	}

	if pe, ok := v.Get(KeyParseError); ok {
		if s, ok := pe.AsString(); ok {
			rec.ParseError = &s
			return rec
		}
	}

	rec.BusinessID = projectUUID(v, KeyBusinessID)
	rec.Origin = projectString(v, KeyOrigin)
	rec.OriginID = projectString(v, KeyOriginID)
	rec.LogCategory = projectString(v, KeyLogCategory)
	rec.Service = projectString(v, KeyService)
	rec.Activity = projectString(v, KeyActivity)
	rec.ActivityResult = projectString(v, KeyActivityResult)
	rec.Owner = projectString(v, KeyOwner)
	rec.Host = projectString(v, KeyHost)
	rec.EventTimestamp = projectTime(v, KeyTimestamp)
	rec.Duration = projectInt(v, KeyDuration)
	rec.Operation = projectString(v, KeyOperation)
	rec.ReferenceID = projectString(v, KeyReferenceID)
	rec.RequestID = projectString(v, KeyRequestID)
	rec.RequestTime = projectTime(v, KeyRequestTime)
	rec.ResponseTime = projectTime(v, KeyResponseTime)
	rec.BRSURL = projectString(v, KeyBRSURL)
	rec.RequestMessage = projectNested(v, KeyRequestMessage)
	rec.BRSRequest = projectNested(v, KeyBRSRequest)
	rec.BRSResponse = projectNested(v, KeyBRSResponse)
	rec.QueueResponse = projectNested(v, KeyQueueResponse)
	return rec
}

func projectString(v *model.Value, key string) *string {
	f, ok := v.Get(key)
	if !ok || f.IsNull() {
		return nil
	}
	switch f.Kind() {
	case model.KindString:
		s, _ := f.AsString()
		return &s
	case model.KindNumber:
		s, _ := f.NumberText()
		return &s
	case model.KindBool:
		b, _ := f.AsBool()
		s := strconv.FormatBool(b)
		return &s
	}
	return nil
}

// projectUUID validates and normalizes a business identifier. Values that
// are not UUIDs stay in the payload only.
func projectUUID(v *model.Value, key string) *string {
	s := projectString(v, key)
	if s == nil {
		return nil
	}
	u, err := uuid.Parse(strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	norm := u.String()
	return &norm
}

func projectInt(v *model.Value, key string) *int64 {
	f, ok := v.Get(key)
	if !ok || f.IsNull() {
		return nil
	}
	switch f.Kind() {
	case model.KindNumber:
		if n, ok := f.AsInt64(); ok {
			return &n
		}
		if fl, ok := f.AsFloat64(); ok {
			n := int64(fl)
			// Only whole numbers coerce; a fractional duration stays in the
			// payload untouched.
			if float64(n) == fl {
				return &n
			}
		}
	case model.KindString:
		s, _ := f.AsString()
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func projectTime(v *model.Value, key string) *time.Time {
	f, ok := v.Get(key)
	if !ok || f.IsNull() {
		return nil
	}
	s, ok := f.AsString()
	if !ok {
		return nil
	}
	t, ok := ParseTimestamp(s)
	if !ok {
		return nil
	}
	return &t
}

func projectNested(v *model.Value, key string) *model.Value {
	f, ok := v.Get(key)
	if !ok || f.IsNull() {
		return nil
	}
	return f
}

// Audit producers emit several timestamp shapes: zoned RFC 3339, naive
// with nanosecond fractions, and space-separated variants.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses one of the known timestamp layouts. Naive
// timestamps are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
