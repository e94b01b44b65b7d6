package viewer

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/ksuid"
)

func TestDefaultCatalog(t *testing.T) {
	c := NewCatalog(nil)

	var labels []string
	for _, d := range c.Documents() {
		labels = append(labels, d.Label())
	}
	want := []string{
		"Example 1 (7 pages)",
		"Example 2 (230 pages)",
		"Example 3 (21 pages)",
		"Example 4 (21 pages)",
	}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	def := c.Default()
	if !strings.Contains(def.URL, "example-1.pdf") || def.Pages != 7 {
		t.Errorf("Default() = %+v", def)
	}
}

func TestCatalogGet(t *testing.T) {
	c := NewCatalog([]Document{{Name: "A", URL: "http://x/a.pdf", Pages: 1}})

	doc, err := c.Get(0)
	if err != nil || doc.Name != "A" {
		t.Fatalf("Get(0) = %+v, %v", doc, err)
	}
	for _, i := range []int{-1, 1} {
		if _, err := c.Get(i); !errors.Is(err, ErrUnknownDocument) {
			t.Errorf("Get(%d) error = %v, want ErrUnknownDocument", i, err)
		}
	}
}

func TestCatalogCopies(t *testing.T) {
	c := NewCatalog(nil)
	docs := c.Documents()
	docs[0].Name = "changed"
	if c.Default().Name != "Example 1" {
		t.Error("Documents() must return a copy")
	}
}

func TestScaleForViewport(t *testing.T) {
	tests := []struct {
		width float64
		scale float64
	}{
		{width: 1024, scale: 1.5},        // capped at 1.5x
		{width: 2000, scale: 1.5},        // max width never exceeds 1.5x either
		{width: 500, scale: 460.0 / 612}, // narrow viewport fits the page
		{width: 652, scale: 1},
	}

	for _, tt := range tests {
		got := ScaleForViewport(tt.width)
		if math.Abs(got-tt.scale) > 1e-9 {
			t.Errorf("ScaleForViewport(%v) = %v, want %v", tt.width, got, tt.scale)
		}
	}
}

func TestLayoutForViewport(t *testing.T) {
	l := LayoutForViewport(1024)
	want := Layout{Scale: 1.5, PageWidth: 918, PageHeight: 1188}
	if diff := cmp.Diff(want, l); diff != "" {
		t.Errorf("LayoutForViewport mismatch (-want +got):\n%s", diff)
	}

	narrow := LayoutForViewport(500)
	if narrow.Scale >= l.Scale {
		t.Errorf("narrow scale %v should be below %v", narrow.Scale, l.Scale)
	}
}

func newPDFServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "doc.pdf", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRegistryLifecycle(t *testing.T) {
	data := []byte("%PDF-1.5\n1 0 obj\n<< /Linearized 1 >>\nendobj\n" + strings.Repeat("x", 4000))
	server := newPDFServer(t, data)

	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	s, err := reg.Open(ctx, Document{Name: "Doc", URL: server.URL, Pages: 1}, 1024)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := ksuid.Parse(s.Token); err != nil {
		t.Errorf("token %q is not a ksuid: %v", s.Token, err)
	}
	if s.Length != int64(len(data)) {
		t.Errorf("Length = %d, want %d", s.Length, len(data))
	}
	if !s.Linearized {
		t.Error("expected Linearized = true")
	}
	if s.Layout.Scale != 1.5 {
		t.Errorf("Scale = %v, want 1.5", s.Layout.Scale)
	}
	if s.Transport.Length() != s.Length || s.Transport.URL() != server.URL {
		t.Error("transport not configured from session")
	}

	got, err := reg.Get(s.Token)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}

	chunk, err := got.Transport.Fetch(ctx, 0, 8)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(chunk) != "%PDF-1.5" {
		t.Errorf("Fetch = %q", chunk)
	}

	if err := reg.Close(s.Token); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := reg.Get(s.Token); !errors.Is(err, ErrNoSession) {
		t.Errorf("Get after Close = %v, want ErrNoSession", err)
	}
	if err := reg.Close(s.Token); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Close = %v, want ErrNoSession", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

func TestRegistryOpenNotLinearized(t *testing.T) {
	server := newPDFServer(t, []byte("%PDF-1.7\nplain"))
	reg := NewRegistry(nil, nil)

	s, err := reg.Open(context.Background(), Document{URL: server.URL}, 800)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Linearized {
		t.Error("expected Linearized = false")
	}
}

func TestRegistryOpenMissing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	reg := NewRegistry(nil, nil)
	if _, err := reg.Open(context.Background(), Document{URL: server.URL}, 800); err == nil {
		t.Fatal("expected error for missing document")
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

func TestRegistryUnknownToken(t *testing.T) {
	reg := NewRegistry(nil, nil)
	if _, err := reg.Get(ksuid.New().String()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Get = %v, want ErrNoSession", err)
	}
}

func TestRegistryIdleExpiry(t *testing.T) {
	server := newPDFServer(t, []byte("%PDF-1.7\nplain"))
	reg := NewRegistry(nil, nil, WithIdleTimeout(time.Minute))

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	s, err := reg.Open(ctx, Document{URL: server.URL}, 800)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Each Get resets the idle clock.
	for range 3 {
		now = now.Add(45 * time.Second)
		if _, err := reg.Get(s.Token); err != nil {
			t.Fatalf("Get within idle timeout: %v", err)
		}
	}

	now = now.Add(2 * time.Minute)
	if _, err := reg.Get(s.Token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Get after idle timeout = %v, want ErrNoSession", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}

	// Abandoned sessions are dropped when new ones open.
	for range 3 {
		if _, err := reg.Open(ctx, Document{URL: server.URL}, 800); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}
	now = now.Add(2 * time.Minute)
	if _, err := reg.Open(ctx, Document{URL: server.URL}, 800); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistryNoIdleTimeout(t *testing.T) {
	server := newPDFServer(t, []byte("%PDF-1.7\nplain"))
	reg := NewRegistry(nil, nil, WithIdleTimeout(0))

	now := time.Now()
	reg.now = func() time.Time { return now }

	s, err := reg.Open(context.Background(), Document{URL: server.URL}, 800)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now = now.Add(24 * time.Hour)
	if _, err := reg.Get(s.Token); err != nil {
		t.Errorf("Get = %v, want open session", err)
	}
}
