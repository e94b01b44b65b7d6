package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/linearized"
	"github.com/ligustah/pdfrange/internal/logging"
	"github.com/ligustah/pdfrange/internal/transport"
)

var (
	// ErrNoSession is returned for a token that was never opened or is closed.
	ErrNoSession = errors.New("viewer: no such session")

	// ErrUnknownLength is returned when the source does not report its size.
	ErrUnknownLength = errors.New("viewer: source did not report a content length")
)

// Session is one open document: the transport that feeds the renderer and
// the render settings it was opened with.
type Session struct {
	Token      string
	Document   Document
	Length     int64
	Linearized bool
	Layout     Layout
	OpenedAt   time.Time

	Transport *transport.Transport

	lastUsed time.Time
}

// DefaultIdleTimeout is how long a session may go unused before the
// registry drops it.
const DefaultIdleTimeout = 30 * time.Minute

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleTimeout sets how long an unused session stays open. Zero or
// negative keeps sessions until Close.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.idleTimeout = d
	}
}

// Registry holds the open sessions. A session lives until Close or until it
// has been idle for longer than the idle timeout.
type Registry struct {
	client      *pdfhttp.Client
	logger      *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry that opens documents with client.
func NewRegistry(client *pdfhttp.Client, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if client == nil {
		client = pdfhttp.NewClient(pdfhttp.DefaultOptions())
	}
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Registry{
		client:      client,
		logger:      logger,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open looks up the length of doc.URL, probes it for linearization and
// registers a new session with a transport for it.
func (r *Registry) Open(ctx context.Context, doc Document, viewportWidth float64) (*Session, error) {
	info, err := r.client.Head(ctx, doc.URL)
	if err != nil {
		return nil, fmt.Errorf("viewer: open %s: %w", doc.URL, err)
	}
	if info.Size < 0 {
		return nil, ErrUnknownLength
	}

	token := ksuid.New().String()
	logger := r.logger.With("session", token)

	s := &Session{
		Token:      token,
		Document:   doc,
		Length:     info.Size,
		Linearized: linearized.Probe(ctx, r.client, doc.URL, logger),
		Layout:     LayoutForViewport(viewportWidth),
		OpenedAt:   r.now(),
		Transport: transport.New(info.Size, doc.URL,
			transport.WithClient(r.client),
			transport.WithLogger(logger),
		),
	}

	s.lastUsed = s.OpenedAt

	r.mu.Lock()
	r.expireLocked()
	r.sessions[token] = s
	r.mu.Unlock()

	logger.Info("Session opened", "url", doc.URL, "length", s.Length, "linearized", s.Linearized)
	return s, nil
}

// Get returns the open session for token and marks it as used.
func (r *Registry) Get(token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, ErrNoSession
	}
	now := r.now()
	if r.idle(s, now) {
		r.dropLocked(s)
		return nil, ErrNoSession
	}
	s.lastUsed = now
	return s, nil
}

// Close removes the session for token and waits for its background
// requests to settle.
func (r *Registry) Close(token string) error {
	r.mu.Lock()
	s, ok := r.sessions[token]
	delete(r.sessions, token)
	r.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	s.Transport.Wait()
	r.logger.Info("Session closed", "session", token)
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireLocked()
	return len(r.sessions)
}

func (r *Registry) idle(s *Session, now time.Time) bool {
	return r.idleTimeout > 0 && now.Sub(s.lastUsed) > r.idleTimeout
}

// expireLocked drops every idle session. Requests still in flight for a
// dropped session settle on their own.
func (r *Registry) expireLocked() {
	now := r.now()
	for _, s := range r.sessions {
		if r.idle(s, now) {
			r.dropLocked(s)
		}
	}
}

func (r *Registry) dropLocked(s *Session) {
	delete(r.sessions, s.Token)
	r.logger.Info("Session expired", "session", s.Token, "idle", r.now().Sub(s.lastUsed))
}
