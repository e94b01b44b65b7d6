package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total size in bytes to fetch.
	TotalSize int64

	// TotalRanges is the number of ranges that will be requested.
	TotalRanges int

	// Concurrency is the maximum number of ranges in flight (for display).
	Concurrency int

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// SourceURL is the URL being fetched (for display).
	SourceURL string

	// RangeSize is the size of each requested range (for display).
	RangeSize int64
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu              sync.Mutex
	deliveredBytes  atomic.Int64
	deliveredRanges atomic.Int32
	failedRanges    atomic.Int32
	inFlight        atomic.Int32
	startTime       time.Time
	lastUpdate      time.Time
	lastBytes       int64
	stopCh          chan struct{}
	doneCh          chan struct{}
	started         bool
	stopped         bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[pdfrange] Fetching: %s\n", r.opts.SourceURL)
	fmt.Fprintf(r.opts.Output, "[pdfrange] Total size: %s | Ranges: %d x %s | Concurrency: %d\n",
		FormatBytes(r.opts.TotalSize),
		r.opts.TotalRanges,
		FormatBytes(r.opts.RangeSize),
		r.opts.Concurrency,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// RangeStarted marks a range request as in flight.
func (r *Reporter) RangeStarted() {
	r.inFlight.Add(1)
}

// RangeDelivered marks a range as delivered with n bytes.
func (r *Reporter) RangeDelivered(n int64) {
	r.deliveredBytes.Add(n)
	r.deliveredRanges.Add(1)
	r.inFlight.Add(-1)
}

// RangeFailed marks a range as failed (removes it from in flight).
func (r *Reporter) RangeFailed() {
	r.failedRanges.Add(1)
	r.inFlight.Add(-1)
}

// Snapshot returns delivered bytes, delivered ranges, failed ranges and ranges
// in flight.
func (r *Reporter) Snapshot() (bytes int64, delivered, failed, inFlight int) {
	return r.deliveredBytes.Load(),
		int(r.deliveredRanges.Load()),
		int(r.failedRanges.Load()),
		int(r.inFlight.Load())
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	delivered, deliveredRanges, failed, inFlight := r.Snapshot()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(delivered-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = delivered

	var percent float64
	eta := "unknown"
	if r.opts.TotalSize > 0 {
		percent = float64(delivered) / float64(r.opts.TotalSize) * 100
		if speed > 0 {
			remaining := float64(r.opts.TotalSize - delivered)
			eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
		} else {
			eta = "calculating..."
		}
	}

	pending := r.opts.TotalRanges - deliveredRanges - failed - inFlight
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "\r[pdfrange] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		FormatBytes(delivered),
		FormatBytes(r.opts.TotalSize),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[pdfrange] Ranges: %d delivered | %d in-flight | %d failed | %d pending    \033[A",
		deliveredRanges,
		inFlight,
		failed,
		pending,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	delivered, deliveredRanges, failed, _ := r.Snapshot()
	duration := time.Since(r.startTime)
	avgSpeed := float64(delivered) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[pdfrange] Fetched %s / %s | Ranges: %d delivered | %d failed    \n",
		FormatBytes(delivered),
		FormatBytes(r.opts.TotalSize),
		deliveredRanges,
		failed,
	)
	fmt.Fprintf(r.opts.Output, "[pdfrange] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats bytes using IEC units (KiB, MiB, ...).
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable byte string. "KiB"/"MiB" are powers of
// 1024, "KB"/"MB" powers of 1000.
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid byte string %q: %w", s, err)
	}
	return int64(n), nil
}
