package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/progress"
)

type delivery struct {
	Begin int64
	Data  []byte
}

// recorder collects hook calls from the transport goroutines.
type recorder struct {
	mu         sync.Mutex
	deliveries []delivery
	failures   []Range
	errs       []error
}

func (r *recorder) onData(begin int64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{Begin: begin, Data: data})
}

func (r *recorder) onError(rng Range, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, rng)
	r.errs = append(r.errs, err)
}

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRangeHeader(t *testing.T) {
	tests := []struct {
		r    Range
		want string
	}{
		{Range{0, 100}, "bytes=0-99"},
		{Range{100, 200}, "bytes=100-199"},
		{Range{5, 6}, "bytes=5-5"},
		{Range{0, 1024}, "bytes=0-1023"},
	}
	for _, tt := range tests {
		if got := tt.r.Header(); got != tt.want {
			t.Errorf("%v.Header() = %q, want %q", tt.r, got, tt.want)
		}
	}
	if got := (Range{100, 200}).Len(); got != 100 {
		t.Errorf("Len() = %d, want 100", got)
	}
	if got := (Range{1, 3}).String(); got != "[1, 3)" {
		t.Errorf("String() = %q", got)
	}
}

func TestNew(t *testing.T) {
	tr := New(1000, "http://example.com/test.pdf")
	if tr.Length() != 1000 {
		t.Errorf("expected length 1000, got %d", tr.Length())
	}
	if tr.URL() != "http://example.com/test.pdf" {
		t.Errorf("unexpected URL %q", tr.URL())
	}
}

func TestRequestDataRangeSendsOneRequestPerCall(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		mu.Lock()
		headers = append(headers, r.Header.Get("Range"))
		mu.Unlock()
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	tests := []struct {
		begin, end int64
		want       string
	}{
		{0, 100, "bytes=0-99"},
		{100, 200, "bytes=100-199"},
		{999, 1000, "bytes=999-999"},
		{4096, 65536, "bytes=4096-65535"},
	}

	for _, tt := range tests {
		mu.Lock()
		headers = nil
		mu.Unlock()

		tr := New(1000, server.URL)
		tr.RequestDataRange(context.Background(), tt.begin, tt.end)
		tr.Wait()

		mu.Lock()
		got := append([]string(nil), headers...)
		mu.Unlock()
		if diff := cmp.Diff([]string{tt.want}, got); diff != "" {
			t.Errorf("RequestDataRange(%d, %d) headers mismatch (-want +got):\n%s", tt.begin, tt.end, diff)
		}
	}
}

func TestRequestDataRangeDeliversPartialContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 100-104/1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{1, 2, 3, 4, 5})
	}))
	defer server.Close()

	rec := &recorder{}
	tr := New(1000, server.URL, WithDataRange(rec.onData), WithErrorHandler(rec.onError))

	tr.RequestDataRange(context.Background(), 100, 200)
	tr.Wait()

	want := []delivery{{Begin: 100, Data: []byte{1, 2, 3, 4, 5}}}
	if diff := cmp.Diff(want, rec.deliveries); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
	if len(rec.failures) != 0 {
		t.Errorf("expected no failures, got %v", rec.failures)
	}
}

func TestRequestDataRangePreservesByteValues(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload)
	}))
	defer server.Close()

	rec := &recorder{}
	tr := New(256, server.URL, WithDataRange(rec.onData))
	tr.RequestDataRange(context.Background(), 0, 256)
	tr.Wait()

	if len(rec.deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(rec.deliveries))
	}
	if !bytes.Equal(rec.deliveries[0].Data, payload) {
		t.Error("delivered bytes differ from response body")
	}
}

func TestRequestDataRangeAcceptsFullBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Range header ignored
		w.Write([]byte{10, 20, 30, 40, 50})
	}))
	defer server.Close()

	rec := &recorder{}
	tr := New(5, server.URL, WithDataRange(rec.onData))
	tr.RequestDataRange(context.Background(), 0, 5)
	tr.Wait()

	want := []delivery{{Begin: 0, Data: []byte{10, 20, 30, 40, 50}}}
	if diff := cmp.Diff(want, rec.deliveries); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestDataRangeNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	logger, logs := newTestLogger()
	rec := &recorder{}
	tr := New(1000, server.URL,
		WithLogger(logger),
		WithDataRange(rec.onData),
		WithErrorHandler(rec.onError),
	)

	tr.RequestDataRange(context.Background(), 0, 100)
	tr.Wait()

	if len(rec.deliveries) != 0 {
		t.Errorf("expected no deliveries, got %v", rec.deliveries)
	}
	if diff := cmp.Diff([]Range{{0, 100}}, rec.failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(rec.errs[0], pdfhttp.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", rec.errs[0])
	}
	if !strings.Contains(logs.String(), "level=ERROR") || !strings.Contains(logs.String(), `msg="Range request failed"`) {
		t.Errorf("expected an error log line, got %q", logs.String())
	}
}

func TestRequestDataRangeServerErrorNotRetried(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &recorder{}
	tr := New(1000, server.URL, WithDataRange(rec.onData), WithErrorHandler(rec.onError))
	tr.RequestDataRange(context.Background(), 0, 10)
	tr.Wait()

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("expected exactly 1 request, got %d", got)
	}
	if len(rec.deliveries) != 0 || len(rec.failures) != 1 {
		t.Errorf("expected 0 deliveries and 1 failure, got %d and %d", len(rec.deliveries), len(rec.failures))
	}
}

func TestRequestDataRangeNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // connection refused from here on

	logger, logs := newTestLogger()
	rec := &recorder{}
	tr := New(1000, url, WithLogger(logger), WithDataRange(rec.onData), WithErrorHandler(rec.onError))

	tr.RequestDataRange(context.Background(), 0, 100)
	tr.Wait()

	if len(rec.deliveries) != 0 {
		t.Errorf("expected no deliveries, got %v", rec.deliveries)
	}
	if len(rec.failures) != 1 {
		t.Errorf("expected 1 failure, got %d", len(rec.failures))
	}
	if !strings.Contains(logs.String(), "Range request failed") {
		t.Errorf("expected failure to be logged, got %q", logs.String())
	}
}

func TestRequestDataRangeWithoutHooks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tr := New(1000, server.URL)
	tr.RequestDataRange(context.Background(), 0, 100)
	tr.Wait() // must not panic with nil hooks
}

func TestRequestDataRangeLogsBeforeRequest(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	logger, logs := newTestLogger()
	tr := New(1000, server.URL, WithLogger(logger))

	tr.RequestDataRange(context.Background(), 0, 100)

	// The request line is written before RequestDataRange returns.
	if !strings.Contains(logs.String(), `msg="Range request" range="bytes=0-99"`) {
		t.Errorf("expected request log line, got %q", logs.String())
	}

	close(release)
	tr.Wait()
}

func TestRequestDataRangeReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	rec := &recorder{}
	tr := New(1000, server.URL, WithDataRange(rec.onData))

	done := make(chan struct{})
	go func() {
		tr.RequestDataRange(context.Background(), 0, 100)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestDataRange blocked on the network")
	}

	close(release)
	tr.Wait()
	if len(rec.deliveries) != 1 {
		t.Errorf("expected 1 delivery, got %d", len(rec.deliveries))
	}
}

func TestDeliveriesFollowCompletionOrder(t *testing.T) {
	releaseFirst := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == "bytes=0-9" {
			<-releaseFirst
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(r.Header.Get("Range")))
	}))
	defer server.Close()

	secondDone := make(chan struct{})
	var (
		mu    sync.Mutex
		order []int64
	)
	tr := New(100, server.URL, WithDataRange(func(begin int64, data []byte) {
		mu.Lock()
		order = append(order, begin)
		mu.Unlock()
		if begin == 10 {
			close(secondDone)
		}
	}))

	tr.RequestDataRange(context.Background(), 0, 10)
	tr.RequestDataRange(context.Background(), 10, 20)

	select {
	case <-secondDone:
	case <-time.After(5 * time.Second):
		t.Fatal("second range was never delivered")
	}
	close(releaseFirst)
	tr.Wait()

	if diff := cmp.Diff([]int64{10, 0}, order); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=100-199" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{1, 2, 3, 4, 5})
	}))
	defer server.Close()

	tr := New(1000, server.URL)

	data, err := tr.Fetch(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4, 5}, data); diff != "" {
		t.Errorf("Fetch mismatch (-want +got):\n%s", diff)
	}

	_, err = tr.Fetch(context.Background(), 0, 10)
	if !errors.Is(err, pdfhttp.ErrRangeNotSatisfiable) {
		t.Errorf("expected ErrRangeNotSatisfiable, got %v", err)
	}
}

func TestProgressReporting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == "bytes=10-19" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 10))
	}))
	defer server.Close()

	reporter := progress.NewReporter(progress.Options{TotalSize: 30, TotalRanges: 3})
	tr := New(30, server.URL, WithProgress(reporter))

	tr.RequestDataRange(context.Background(), 0, 10)
	tr.RequestDataRange(context.Background(), 10, 20)
	tr.RequestDataRange(context.Background(), 20, 30)
	tr.Wait()

	n, delivered, failed, inFlight := reporter.Snapshot()
	if n != 20 || delivered != 2 || failed != 1 || inFlight != 0 {
		t.Errorf("Snapshot() = (%d, %d, %d, %d), want (20, 2, 1, 0)", n, delivered, failed, inFlight)
	}
}
