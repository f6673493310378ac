package tui

import (
	"testing"
	"time"
)

func TestShowProgressTracksBatchFiles(t *testing.T) {
	bar := ShowProgress(3, "ingesting")
	if bar.GetMax() != 3 {
		t.Fatalf("max = %d, want 3", bar.GetMax())
	}
	if err := bar.Add(1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := bar.State().CurrentNum; got != 1 {
		t.Errorf("current = %d, want 1", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{999, "999"},
		{1500, "1.5K"},
		{2500000, "2.5M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
