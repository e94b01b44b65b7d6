package downloader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"gocloud.dev/blob"
	"golang.org/x/sync/semaphore"

	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/logging"
	"github.com/ligustah/pdfrange/internal/progress"
	"github.com/ligustah/pdfrange/internal/transport"
	"github.com/ligustah/pdfrange/pkg/sharded"
)

// Options configures the downloader.
type Options struct {
	// ChunkSize is the size of each requested range.
	ChunkSize int64

	// Concurrency caps the number of ranges in flight.
	Concurrency int

	// StateInterval is how often the bucket sink persists resume state
	// (every N ranges).
	StateInterval int

	// Force discards previously stored ranges instead of resuming.
	Force bool

	// NoChecksum disables SHA256 checksums for ranges stored in a bucket.
	NoChecksum bool

	// Client is the HTTP client. Default: a client with DefaultOptions.
	Client *pdfhttp.Client

	// Logger receives the transport's request lines.
	Logger *slog.Logger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

func (o *Options) setDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 64 * 1024
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.StateInterval <= 0 {
		o.StateInterval = 10
	}
	if o.Client == nil {
		o.Client = pdfhttp.NewClient(pdfhttp.DefaultOptions())
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
}

// ErrRangeNotSupported is returned when the server doesn't support range requests.
var ErrRangeNotSupported = errors.New("downloader: server does not support range requests")

// ErrUnknownLength is returned when the server does not report a file size.
var ErrUnknownLength = errors.New("downloader: server did not report a content length")

// ErrUnexpectedLength is recorded for a delivery whose size differs from the
// requested range, typically a server answering 200 with the whole file.
var ErrUnexpectedLength = errors.New("downloader: delivered range has unexpected length")

// IncompleteError is returned when some ranges were never delivered.
// The transport does not report failures to its caller, so they are
// inferred from the ranges missing after all requests settled.
//
// Use errors.As to extract this error and inspect Missing.
type IncompleteError struct {
	Missing []transport.Range
	// Causes holds the failure reported for a missing range, when one was.
	Causes map[transport.Range]error
	// Err is the context error if the run was cancelled.
	Err error
}

func (e *IncompleteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "downloader: %d ranges not delivered", len(e.Missing))
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (first %s", e.Missing[0])
		if cause := e.Causes[e.Missing[0]]; cause != nil {
			fmt.Fprintf(&b, ": %v", cause)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *IncompleteError) Unwrap() error {
	return e.Err
}

// Sink receives delivered ranges. WriteRange may be called concurrently.
type Sink interface {
	WriteRange(ctx context.Context, begin int64, data []byte) error
}

// resumable is implemented by sinks that can tell which ranges they
// already hold from an earlier run.
type resumable interface {
	Held() []transport.Range
}

// Plan splits [0, length) into ranges of at most chunkSize bytes.
func Plan(length, chunkSize int64) []transport.Range {
	return planSpan(nil, 0, length, chunkSize)
}

// PlanMissing splits the parts of [0, length) not covered by held into
// ranges of at most chunkSize bytes. Held ranges may have any size, so a
// resumed run can use a different chunk size than the run that stored them.
func PlanMissing(length, chunkSize int64, held []transport.Range) []transport.Range {
	held = slices.Clone(held)
	slices.SortFunc(held, func(a, b transport.Range) int {
		return cmp.Compare(a.Begin, b.Begin)
	})

	var ranges []transport.Range
	var next int64
	for _, h := range held {
		if h.Begin > next {
			ranges = planSpan(ranges, next, min(h.Begin, length), chunkSize)
		}
		next = max(next, h.End)
	}
	return planSpan(ranges, next, length, chunkSize)
}

func planSpan(ranges []transport.Range, begin, end, chunkSize int64) []transport.Range {
	if chunkSize <= 0 {
		return ranges
	}
	for ; begin < end; begin += chunkSize {
		ranges = append(ranges, transport.Range{Begin: begin, End: min(begin+chunkSize, end)})
	}
	return ranges
}

// FileInfo contains metadata about the remote file.
type FileInfo struct {
	Size          int64
	ETag          string
	AcceptsRanges bool
}

// GetFileInfo fetches metadata about a remote file.
func GetFileInfo(ctx context.Context, client *pdfhttp.Client, url string) (*FileInfo, error) {
	if client == nil {
		client = pdfhttp.NewClient(pdfhttp.DefaultOptions())
	}
	info, err := client.Head(ctx, url)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Size:          info.Size,
		ETag:          info.ETag,
		AcceptsRanges: info.AcceptsRanges,
	}, nil
}

// Download requests every range of [0, length) from url through a
// transport.Transport and writes deliveries to sink. It returns an
// *IncompleteError if any range is missing once all requests settle.
func Download(ctx context.Context, url string, length int64, sink Sink, opts Options) error {
	opts.setDefaults()

	ranges := Plan(length, opts.ChunkSize)
	if r, ok := sink.(resumable); ok {
		ranges = PlanMissing(length, opts.ChunkSize, r.Held())
	}
	if len(ranges) == 0 {
		return nil
	}

	byBegin := make(map[int64]transport.Range, len(ranges))
	for _, r := range ranges {
		byBegin[r.Begin] = r
	}

	var (
		mu        sync.Mutex
		delivered = make(map[int64]bool, len(ranges))
		causes    = make(map[transport.Range]error)
	)
	fail := func(r transport.Range, err error) {
		mu.Lock()
		causes[r] = err
		mu.Unlock()
	}

	sem := semaphore.NewWeighted(int64(opts.Concurrency))

	tr := transport.New(length, url,
		transport.WithClient(opts.Client),
		transport.WithLogger(opts.Logger),
		transport.WithProgress(opts.Progress),
		transport.WithDataRange(func(begin int64, data []byte) {
			defer sem.Release(1)

			r := byBegin[begin]
			if int64(len(data)) != r.Len() {
				fail(r, fmt.Errorf("%w: got %d bytes for %s", ErrUnexpectedLength, len(data), r))
				return
			}
			if err := sink.WriteRange(ctx, begin, data); err != nil {
				fail(r, fmt.Errorf("write %s: %w", r, err))
				return
			}

			mu.Lock()
			delivered[begin] = true
			mu.Unlock()
		}),
		transport.WithErrorHandler(func(r transport.Range, err error) {
			defer sem.Release(1)
			fail(r, err)
		}),
	)

	var ctxErr error
	for _, r := range ranges {
		if err := sem.Acquire(ctx, 1); err != nil {
			ctxErr = err
			break
		}
		tr.RequestDataRange(ctx, r.Begin, r.End)
	}
	tr.Wait()

	if ctxErr == nil {
		ctxErr = ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()

	var missing []transport.Range
	for _, r := range ranges {
		if !delivered[r.Begin] {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &IncompleteError{Missing: missing, Causes: causes, Err: ctxErr}
}

// ToFile downloads url into a local file at path.
func ToFile(ctx context.Context, url, path string, opts Options) error {
	opts.setDefaults()

	info, err := GetFileInfo(ctx, opts.Client, url)
	if err != nil {
		return fmt.Errorf("get file info: %w", err)
	}
	if info.Size < 0 {
		return ErrUnknownLength
	}
	if !info.AcceptsRanges {
		return ErrRangeNotSupported
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := f.Truncate(info.Size); err != nil {
		f.Close()
		return fmt.Errorf("truncate %s: %w", path, err)
	}

	if opts.Progress != nil {
		opts.Progress.Start()
		defer opts.Progress.Stop()
	}

	dlErr := Download(ctx, url, info.Size, NewFileSink(f), opts)
	if err := f.Close(); err != nil && dlErr == nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return dlErr
}

// ToBucket mirrors url into bucket as a sharded file at dest. A previous
// incomplete run for the same dest is resumed unless the source ETag changed
// or opts.Force is set.
func ToBucket(ctx context.Context, url string, bucket *blob.Bucket, dest string, opts Options) error {
	opts.setDefaults()

	info, err := GetFileInfo(ctx, opts.Client, url)
	if err != nil {
		return fmt.Errorf("get file info: %w", err)
	}
	if info.Size < 0 {
		return ErrUnknownLength
	}
	if !info.AcceptsRanges {
		return ErrRangeNotSupported
	}

	f, err := sharded.Write(ctx, bucket, dest,
		sharded.WithSize(info.Size),
		sharded.WithMetadata(map[string]string{
			"source_url":  url,
			"source_etag": info.ETag,
		}),
		sharded.WithStateInterval(opts.StateInterval),
		sharded.WithChecksum(!opts.NoChecksum),
	)
	if err != nil {
		return fmt.Errorf("create sharded file: %w", err)
	}

	if storedETag := f.Metadata()["source_etag"]; storedETag != "" && storedETag != info.ETag && !opts.Force {
		return fmt.Errorf("%w (etag mismatch: stored=%s, current=%s)", sharded.ErrSourceChanged, storedETag, info.ETag)
	}
	if opts.Force || f.Metadata()["source_etag"] != info.ETag {
		if err := f.Reset(ctx); err != nil {
			return fmt.Errorf("reset state: %w", err)
		}
	}

	if opts.Progress != nil {
		opts.Progress.Start()
		defer opts.Progress.Stop()
	}

	dlErr := Download(ctx, url, info.Size, NewShardSink(f), opts)
	if dlErr != nil {
		// Keep what arrived so the next run can resume.
		if err := f.SaveState(context.WithoutCancel(ctx)); err != nil {
			opts.Logger.Warn("Saving resume state failed", "dest", dest, "error", err)
		}
		return dlErr
	}

	if err := f.Complete(ctx); err != nil {
		return fmt.Errorf("complete sharded file: %w", err)
	}
	return nil
}
