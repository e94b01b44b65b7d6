package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/logging"
	"github.com/ligustah/pdfrange/internal/progress"
)

// Range is a byte range with an inclusive Begin and exclusive End.
type Range struct {
	Begin int64
	End   int64
}

// Len returns the number of bytes in r.
func (r Range) Len() int64 {
	return r.End - r.Begin
}

// Header returns the Range header value for r: bytes=<begin>-<end-1>.
func (r Range) Header() string {
	return pdfhttp.RangeHeader(r.Begin, r.End-1)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Begin, r.End)
}

// DataRangeFunc receives the bytes fetched for a range starting at begin.
type DataRangeFunc func(begin int64, data []byte)

// ErrorFunc receives the range and cause of a failed request.
type ErrorFunc func(r Range, err error)

// Option configures a Transport.
type Option func(*Transport)

// WithClient sets the HTTP client. Default: a client with DefaultOptions.
func WithClient(c *pdfhttp.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

// WithLogger sets the logger for request and failure lines.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithDataRange sets the delivery hook called once per successful request.
func WithDataRange(fn DataRangeFunc) Option {
	return func(t *Transport) {
		t.onDataRange = fn
	}
}

// WithErrorHandler sets a hook called once per failed request, after the
// failure has been logged.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(t *Transport) {
		t.onError = fn
	}
}

// WithProgress reports every request to r.
func WithProgress(r *progress.Reporter) Option {
	return func(t *Transport) {
		t.progress = r
	}
}

// Transport answers byte range requests for one remote file.
// It keeps no data; every request goes to the network.
type Transport struct {
	length int64
	url    string

	client      *pdfhttp.Client
	logger      *slog.Logger
	onDataRange DataRangeFunc
	onError     ErrorFunc
	progress    *progress.Reporter

	wg sync.WaitGroup
}

// New creates a Transport for the file at url with the given total length.
func New(length int64, url string, opts ...Option) *Transport {
	t := &Transport{
		length: length,
		url:    url,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = pdfhttp.NewClient(pdfhttp.DefaultOptions())
	}
	if t.logger == nil {
		t.logger = logging.Discard()
	}
	return t
}

// Length returns the declared total length of the file.
func (t *Transport) Length() int64 {
	return t.length
}

// URL returns the source URL.
func (t *Transport) URL() string {
	return t.url
}

// RequestDataRange fetches [begin, end) in the background and returns
// immediately. On success the delivery hook is called exactly once with the
// response bytes. Failures are logged and passed to the error hook; the
// delivery hook is not called for them and nothing is returned to the caller.
//
// Bounds are not checked against Length; the server decides what to return.
func (t *Transport) RequestDataRange(ctx context.Context, begin, end int64) {
	r := Range{Begin: begin, End: end}
	t.logger.Info("Range request", "range", r.Header())

	if t.progress != nil {
		t.progress.RangeStarted()
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		data, err := t.fetch(ctx, r)
		if err != nil {
			t.logger.Error("Range request failed", "range", r.Header(), "error", err)
			if t.progress != nil {
				t.progress.RangeFailed()
			}
			if t.onError != nil {
				t.onError(r, err)
			}
			return
		}

		if t.progress != nil {
			t.progress.RangeDelivered(int64(len(data)))
		}
		if t.onDataRange != nil {
			t.onDataRange(begin, data)
		}
	}()
}

// Fetch is the blocking form of RequestDataRange: it returns the bytes for
// [begin, end) or the error instead of calling the hooks.
func (t *Transport) Fetch(ctx context.Context, begin, end int64) ([]byte, error) {
	r := Range{Begin: begin, End: end}
	t.logger.Info("Range request", "range", r.Header())
	return t.fetch(ctx, r)
}

// Wait blocks until every request started by RequestDataRange has settled.
func (t *Transport) Wait() {
	t.wg.Wait()
}

func (t *Transport) fetch(ctx context.Context, r Range) ([]byte, error) {
	resp, err := t.client.GetRange(ctx, t.url, r.Begin, r.End-1)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", r.Header(), err)
	}
	return data, nil
}
