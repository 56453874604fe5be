package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
)

// Directory opens connections to the directory server. Every attempt gets its own
// connection; nothing is pooled.
type Directory interface {
	// Connect dials the server. Failures are transport-level and callers report them
	// as the directory being unavailable.
	Connect(ctx context.Context) (DirectoryConn, error)
}

// DirectoryConn is one open directory connection. Close must run on every path.
type DirectoryConn interface {
	// Bind authenticates the connection. (false, nil) means the directory rejected the
	// credentials; a non-nil error means the bind could not be carried out.
	Bind(ctx context.Context, identity, secret string) (bool, error)

	// Search runs a subtree search and returns entries as raw attribute bags.
	Search(ctx context.Context, req SearchRequest) ([]domainauth.RawEntry, error)

	Close() error
}

// SearchRequest groups the inputs of DirectoryConn.Search.
type SearchRequest struct {
	BaseDN     string
	Filter     string
	Attributes []string
	SizeLimit  int
}

// SessionContext is the per-request mutable session bag.
type SessionContext interface {
	Get(key string) (any, bool)
	Put(key string, value any)
	Forget(keys ...string)
	// Regenerate issues a new session identifier while keeping the values.
	Regenerate()
}

// ErrSessionNotFound is returned by SessionStore.Get for unknown or expired ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists session records.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}
