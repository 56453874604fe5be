// Package session provides the per-request session bag, the cookie-backed Manager
// middleware that loads and commits it, and an in-memory store for development.
package session

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
)

// Session is the mutable key-value bag for one request. It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	id      string
	retired []string
	values  map[string]any
	dirty   bool
	stored  bool
}

// New returns an empty session with a fresh identifier. It is not persisted until a value is put.
func New() *Session {
	return &Session{id: newID(), values: map[string]any{}}
}

// Load wraps a record read from a store.
func Load(rec domainauth.Session) *Session {
	values := rec.Values
	if values == nil {
		values = map[string]any{}
	}
	return &Session{id: rec.ID, values: values, stored: true}
}

func newID() string { return uuid.NewString() }

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

func (s *Session) Forget(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			s.dirty = true
		}
	}
}

// Regenerate moves the values to a new identifier. The old identifier is deleted from
// the store on commit.
func (s *Session) Regenerate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored {
		s.retired = append(s.retired, s.id)
	}
	s.id = newID()
	s.stored = false
	s.dirty = true
}

// Invalidate drops every value and regenerates the identifier.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.values = map[string]any{}
	s.mu.Unlock()
	s.Regenerate()
}

// Record snapshots the session for a store.
func (s *Session) Record() domainauth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domainauth.Session{ID: s.id, Values: maps.Clone(s.values)}
}

// state is what Manager needs to decide how to commit.
type state struct {
	id      string
	retired []string
	empty   bool
	dirty   bool
	stored  bool
}

func (s *Session) snapshot() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state{
		id:      s.id,
		retired: append([]string(nil), s.retired...),
		empty:   len(s.values) == 0,
		dirty:   s.dirty,
		stored:  s.stored,
	}
}

func (s *Session) markCommitted(stored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = nil
	s.dirty = false
	s.stored = stored
}

type sessionKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the request session, if the Manager middleware ran.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
