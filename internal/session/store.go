// Package session keeps in-progress editing sessions in memory with a sliding TTL.
package session

import (
	"context"
	"sync"
	"time"

	ierr "backoffice/internal/errors"
	"backoffice/internal/lineeditor"

	"github.com/google/uuid"
	goCache "github.com/patrickmn/go-cache"
)

// Session owns one editor. Lock it for the duration of any editor access.
type Session struct {
	sync.Mutex

	ID         string
	UserID     string
	DocumentID *int64
	Editor     *lineeditor.Editor
	// Recorder collects notifications for the current request; Notifier is
	// what the editor was built with and includes Recorder.
	Recorder  *lineeditor.Recorder
	Notifier  lineeditor.Notifier
	CreatedAt time.Time

	submitting bool
	closed     bool
}

type userKey struct{}

// WithUserID records the user acting on sessions for the rest of the request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func UserIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}

// OwnedBy reports whether userID opened the session.
func (s *Session) OwnedBy(userID string) bool {
	return s.UserID == userID
}

// Close marks the session as finished. Requests that looked it up before it
// was closed must treat it as gone. Callers hold the session lock.
func (s *Session) Close() {
	s.closed = true
}

func (s *Session) Closed() bool {
	return s.closed
}

// BeginSubmit marks the session busy. It reports false when a submission is already running.
// Callers hold the session lock.
func (s *Session) BeginSubmit() bool {
	if s.submitting {
		return false
	}
	s.submitting = true
	return true
}

func (s *Session) EndSubmit() {
	s.submitting = false
}

func (s *Session) Submitting() bool {
	return s.submitting
}

type Store interface {
	Create(s *Session) *Session
	Get(id string) (*Session, error)
	Touch(s *Session) error
	Delete(id string)
	Count() int
}

type store struct {
	cache *goCache.Cache
	ttl   time.Duration
}

func NewStore(ttl, cleanupInterval time.Duration) Store {
	return &store{
		cache: goCache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Create assigns an id when s has none and stores it.
func (st *store) Create(s *Session) *Session {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	st.cache.Set(s.ID, s, goCache.DefaultExpiration)
	return s
}

func (st *store) Get(id string) (*Session, error) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, NotFound(id)
	}
	return v.(*Session), nil
}

// Touch extends the session's lifetime. It never brings back a deleted session.
func (st *store) Touch(s *Session) error {
	if err := st.cache.Replace(s.ID, s, goCache.DefaultExpiration); err != nil {
		return NotFound(s.ID)
	}
	return nil
}

func (st *store) Delete(id string) {
	st.cache.Delete(id)
}

func (st *store) Count() int {
	return st.cache.ItemCount()
}

func NotFound(id string) error {
	return ierr.NewErrorf("session %s not found", id).
		WithHint("The editing session has expired, please reopen the document").
		Mark(ierr.ErrNotFound)
}
