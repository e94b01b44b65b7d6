package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{256 * 1024 * 1024, "256 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"64KiB", 64 * 1024},
		{"256MiB", 256 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		// SI units
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{" 2MB ", 2 * 1000 * 1000},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	_, err := ParseBytes("invalid")
	if err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestReporterRangeTracking(t *testing.T) {
	reporter := NewReporter(Options{
		TotalSize:      1024,
		TotalRanges:    4,
		Concurrency:    2,
		UpdateInterval: 100 * time.Millisecond,
	})

	// Tracking works without starting the display loop
	reporter.RangeStarted()
	if reporter.inFlight.Load() != 1 {
		t.Errorf("expected 1 in flight, got %d", reporter.inFlight.Load())
	}

	reporter.RangeDelivered(256)
	if reporter.inFlight.Load() != 0 {
		t.Errorf("expected 0 in flight after delivery, got %d", reporter.inFlight.Load())
	}

	reporter.RangeStarted()
	reporter.RangeFailed()

	n, delivered, failed, inFlight := reporter.Snapshot()
	if n != 256 {
		t.Errorf("expected 256 bytes, got %d", n)
	}
	if delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", delivered)
	}
	if failed != 1 {
		t.Errorf("expected 1 failed, got %d", failed)
	}
	if inFlight != 0 {
		t.Errorf("expected 0 in flight, got %d", inFlight)
	}

	// Stop without Start must not block
	reporter.Stop()
	reporter.Stop()
}

func TestReporterStartStop(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{
		TotalSize:      512 * 1024,
		TotalRanges:    2,
		Concurrency:    2,
		Output:         &out,
		UpdateInterval: 10 * time.Millisecond,
		SourceURL:      "https://example.com/file.pdf",
		RangeSize:      256 * 1024,
	})

	reporter.Start()

	reporter.RangeStarted()
	reporter.RangeDelivered(256 * 1024)
	reporter.RangeStarted()
	reporter.RangeDelivered(256 * 1024)

	time.Sleep(50 * time.Millisecond) // Let updates run

	reporter.Stop()

	text := out.String()
	if !strings.Contains(text, "[pdfrange] Fetching: https://example.com/file.pdf") {
		t.Errorf("missing header line in output: %q", text)
	}
	if !strings.Contains(text, "Ranges: 2 delivered | 0 failed") {
		t.Errorf("missing final status in output: %q", text)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
