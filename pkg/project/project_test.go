package project

import (
	"testing"
	"time"

	"github.com/auditflow/auditflow/internal/model"
)

func mustParse(t *testing.T, text string) *model.Value {
	t.Helper()
	v, err := model.ParseJSON(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return v
}

func testBlock() model.RawBlock {
	return model.RawBlock{Source: "audit-2025-12-03.log", StartLine: 10, EndLine: 14}
}

func TestProjectKnownFields(t *testing.T) {
	v := mustParse(t, `{
		"BUSINESS_ID": "2fd4e1c6-7a2d-4f3b-9c1e-5b6a7c8d9e0f",
		"ORIGIN": "ABIS",
		"SERVICE": "abis-middleware",
		"ACTIVITY": "Insert",
		"ACTIVITY_RESULT": "SUCCESS",
		"HOST": "node-3",
		"TIMESTAMP": "2025-12-03T15:00:00.992407636",
		"DURATION": 420,
		"REQUEST_ID": "req-77",
		"BRS_URL": "https://brs:8443/v1/insert",
		"BRS_REQUEST": {"id": "x", "galleries": [1, 2]},
		"extra": "kept in payload only"
	}`)
	rec := Project(testBlock(), v)

	if rec.BusinessID == nil || *rec.BusinessID != "2fd4e1c6-7a2d-4f3b-9c1e-5b6a7c8d9e0f" {
		t.Errorf("BusinessID = %v", rec.BusinessID)
	}
	if rec.Service == nil || *rec.Service != "abis-middleware" {
		t.Errorf("Service = %v", rec.Service)
	}
	if rec.Duration == nil || *rec.Duration != 420 {
		t.Errorf("Duration = %v", rec.Duration)
	}
	want := time.Date(2025, 12, 3, 15, 0, 0, 992407636, time.UTC)
	if rec.EventTimestamp == nil || !rec.EventTimestamp.Equal(want) {
		t.Errorf("EventTimestamp = %v, want %v", rec.EventTimestamp, want)
	}
	if rec.BRSRequest == nil || rec.BRSRequest.Kind() != model.KindObject {
		t.Errorf("BRSRequest = %v", rec.BRSRequest)
	}
	if rec.Origin == nil || *rec.Origin != "ABIS" {
		t.Errorf("Origin = %v", rec.Origin)
	}
	if rec.ParseError != nil {
		t.Errorf("ParseError = %q on a repaired record", *rec.ParseError)
	}
	if rec.Payload != v {
		t.Error("payload should be the full value")
	}
	if rec.SourceFile != "audit-2025-12-03.log" || rec.StartLine != 10 || rec.EndLine != 14 {
		t.Errorf("source location not carried: %s:%d-%d", rec.SourceFile, rec.StartLine, rec.EndLine)
	}
}

func TestProjectAbsentVersusNull(t *testing.T) {
	v := mustParse(t, `{"SERVICE": null, "ACTIVITY": "Identify"}`)
	rec := Project(testBlock(), v)

	if rec.Service != nil {
		t.Errorf("null SERVICE should project to nil, got %q", *rec.Service)
	}
	if rec.Owner != nil {
		t.Errorf("absent OWNER should project to nil, got %q", *rec.Owner)
	}
	if rec.Activity == nil || *rec.Activity != "Identify" {
		t.Errorf("Activity = %v", rec.Activity)
	}

	// The payload still distinguishes the two.
	if _, ok := v.Get("SERVICE"); !ok {
		t.Error("SERVICE should remain present in payload")
	}
	if _, ok := v.Get("OWNER"); ok {
		t.Error("OWNER should remain absent in payload")
	}
}

func TestProjectCoercions(t *testing.T) {
	v := mustParse(t, `{
		"ORIGIN_ID": 12345,
		"BUSINESS_ID": "not-a-uuid",
		"DURATION": "987",
		"TIMESTAMP": "garbage",
		"REQUEST_TIME": "2025-12-03 08:30:00",
		"BRS_RESPONSE": null
	}`)
	rec := Project(testBlock(), v)

	if rec.OriginID == nil || *rec.OriginID != "12345" {
		t.Errorf("numeric ORIGIN_ID should coerce to text, got %v", rec.OriginID)
	}
	if rec.BusinessID != nil {
		t.Errorf("invalid uuid should stay payload-only, got %q", *rec.BusinessID)
	}
	if rec.Duration == nil || *rec.Duration != 987 {
		t.Errorf("Duration = %v", rec.Duration)
	}
	if rec.EventTimestamp != nil {
		t.Errorf("unparseable TIMESTAMP should project to nil, got %v", rec.EventTimestamp)
	}
	want := time.Date(2025, 12, 3, 8, 30, 0, 0, time.UTC)
	if rec.RequestTime == nil || !rec.RequestTime.Equal(want) {
		t.Errorf("RequestTime = %v, want %v", rec.RequestTime, want)
	}
	if rec.BRSResponse != nil {
		t.Errorf("null BRS_RESPONSE should project to nil")
	}
}

func TestProjectDurationWholeNumbersOnly(t *testing.T) {
	tests := []struct {
		name string
		json string
		want *int64
	}{
		{"integer", `{"DURATION": 420}`, int64p(420)},
		{"whole float", `{"DURATION": 420.0}`, int64p(420)},
		{"fractional", `{"DURATION": 12.7}`, nil},
		{"fractional string", `{"DURATION": "12.7"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustParse(t, tt.json)
			rec := Project(testBlock(), v)
			switch {
			case tt.want == nil && rec.Duration != nil:
				t.Errorf("Duration = %d, want nil", *rec.Duration)
			case tt.want != nil && (rec.Duration == nil || *rec.Duration != *tt.want):
				t.Errorf("Duration = %v, want %d", rec.Duration, *tt.want)
			}
			// The exact value always survives in the payload.
			if _, ok := v.Get(KeyDuration); !ok {
				t.Error("DURATION missing from payload")
			}
		})
	}
}

func int64p(n int64) *int64 { return &n }

func TestProjectFallbackRecord(t *testing.T) {
	v := model.NewObject()
	v.Set("_raw", model.String("{broken"))
	v.Set("_parse_error", model.String("unbalanced_structure at audit.log:10-14 (stage punctuation)"))

	rec := Project(testBlock(), v)
	if !rec.IsFallback() {
		t.Fatal("wrapper should project to a fallback record")
	}
	if rec.ParseError == nil || *rec.ParseError == "" {
		t.Fatal("ParseError not populated")
	}
	if rec.Service != nil || rec.BusinessID != nil || rec.EventTimestamp != nil {
		t.Error("fallback record should not populate projected fields")
	}
	if rec.Payload != v {
		t.Error("fallback payload should be the wrapper itself")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"rfc3339 zoned", "2025-12-03T15:00:00+05:30", time.Date(2025, 12, 3, 9, 30, 0, 0, time.UTC), true},
		{"naive nanos", "2025-12-03T15:00:00.992407636", time.Date(2025, 12, 3, 15, 0, 0, 992407636, time.UTC), true},
		{"naive seconds", "2025-12-03T15:00:00", time.Date(2025, 12, 3, 15, 0, 0, 0, time.UTC), true},
		{"space separated", "2025-12-03 15:00:00.5", time.Date(2025, 12, 3, 15, 0, 0, 500000000, time.UTC), true},
		{"padded", "  2025-12-03T15:00:00  ", time.Date(2025, 12, 3, 15, 0, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
