// internal/engine/session.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/content"
	"github.com/xkilldash9x/browsergate/internal/workflow"
)

// DefaultSessionID is used when a call does not name a session.
const DefaultSessionID = "default"

const maxSessionIDLength = 64

var (
	// ErrSessionNotFound is returned for unknown or closed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionLimit is returned when a new session would exceed the maximum.
	ErrSessionLimit = errors.New("session limit reached")
	// ErrEngineClosed is returned after Shutdown.
	ErrEngineClosed = errors.New("engine is shut down")
	// errNoPage means the session believes it has a browser but holds no page.
	errNoPage = errors.New("session has no open page; call browser_init")
)

// Session is one caller's browser context: a page, its workflow validator and
// its chunk sets. Calls on a session are serialized by sem.
type Session struct {
	ID        string
	CreatedAt time.Time

	logger    *zap.Logger
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	validator *workflow.Validator
	chunks    *content.ChunkStore

	// mu guards the fields below for status readers; the call path holds sem.
	mu       sync.Mutex
	page     schemas.Page
	url      string
	title    string
	lastCall time.Time
	calls    int
	closed   bool
}

// SessionStatus is the externally visible state of a session.
type SessionStatus struct {
	ID        string            `json:"session_id"`
	CreatedAt time.Time         `json:"created_at"`
	LastCall  *time.Time        `json:"last_call,omitempty"`
	Calls     int               `json:"calls"`
	PageOpen  bool              `json:"page_open"`
	URL       string            `json:"url,omitempty"`
	Title     string            `json:"title,omitempty"`
	ChunkSets int               `json:"chunk_sets"`
	Workflow  workflow.Snapshot `json:"workflow"`
}

// validSessionID accepts 1 to 64 characters from [A-Za-z0-9._-].
func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// acquire waits for the session's call slot, honoring the rate limit.
func (s *Session) acquire(ctx context.Context) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return s.sem.Acquire(ctx, 1)
}

func (s *Session) release() { s.sem.Release(1) }

// enter takes the call slot of a live session. A caller that resolved the
// session before it was closed gets ErrSessionNotFound once the slot frees.
func (s *Session) enter(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.release()
		return fmt.Errorf("%w: %s was closed", ErrSessionNotFound, s.ID)
	}
	return nil
}

// currentPage returns the open page or errNoPage.
func (s *Session) currentPage() (schemas.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, errNoPage
	}
	return s.page, nil
}

func (s *Session) setPage(p schemas.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = p
	if p == nil {
		s.url, s.title = "", ""
	}
}

func (s *Session) setLocation(info schemas.PageInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url, s.title = info.URL, info.Title
}

func (s *Session) location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCall = at
	s.calls++
}

// takePage detaches the page from the session so it can be closed outside mu.
func (s *Session) takePage() schemas.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.page
	s.page = nil
	s.url, s.title = "", ""
	return p
}

// Status returns a snapshot without waiting for an in-flight call.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	st := SessionStatus{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Calls:     s.calls,
		PageOpen:  s.page != nil,
		URL:       s.url,
		Title:     s.title,
	}
	if !s.lastCall.IsZero() {
		at := s.lastCall
		st.LastCall = &at
	}
	s.mu.Unlock()

	st.ChunkSets = s.chunks.Len()
	st.Workflow = s.validator.Snapshot()
	return st
}

// close releases the page and chunk sets and marks the session closed.
// The caller holds sem.
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.chunks.Clear()
	p := s.takePage()
	if p == nil {
		return nil
	}
	if err := p.Close(ctx); err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	return nil
}
