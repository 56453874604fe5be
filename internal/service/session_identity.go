package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/observability/metrics"
	"github.com/lci/lci-lookup/internal/observability/statsd"
	"github.com/lci/lci-lookup/internal/ports"
)

// Session keys owned by SessionIdentityStore.
const (
	SessionKeyUser     = "auth.user"
	SessionKeyUsername = "auth.username"
	SessionKeyDomain   = "auth.domain"
	SessionKeyGUID     = "auth.guid"
)

var identityKeys = []string{SessionKeyUser, SessionKeyUsername, SessionKeyDomain, SessionKeyGUID}

// Restore results, used as metric tags.
const (
	restoreRestored  = "restored"
	restoreAbsent    = "absent"
	restoreMalformed = "malformed"
)

// SessionIdentityStoreOptions groups dependencies for SessionIdentityStore.
type SessionIdentityStoreOptions struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// SessionIdentityStore writes the authenticated identity into the session and reads it back
// on later requests. It never talks to the directory.
type SessionIdentityStore struct {
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewSessionIdentityStore constructs a SessionIdentityStore.
func NewSessionIdentityStore(opts SessionIdentityStoreOptions) *SessionIdentityStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionIdentityStore{logger: logger, metrics: opts.Metrics}
}

// Persist regenerates the session identifier and stores id under the identity keys.
// The credential contributes only the resolved username and domain.
func (s *SessionIdentityStore) Persist(
	ctx context.Context,
	sc ports.SessionContext,
	id domainauth.Identity,
	cred domainauth.Credential,
) error {
	if sc == nil {
		return errors.New("persist identity: nil session")
	}
	if !id.Valid() {
		return domainauth.NewError(domainauth.KindUnexpected, "persist identity",
			errors.New("identity has no stable identifier"))
	}

	sc.Regenerate()
	sc.Put(SessionKeyUser, domainauth.EncodeIdentity(id))
	sc.Put(SessionKeyUsername, cred.AccountName)
	sc.Put(SessionKeyDomain, cred.Domain)
	sc.Put(SessionKeyGUID, id.StableID())

	s.logger.DebugContext(ctx, "session identity persisted", "stable_id", id.StableID())
	return nil
}

// Restore reads the identity back. A missing or malformed payload yields ok=false; a
// malformed one is logged and counted but never returned as an error. Restore does not
// modify the session.
func (s *SessionIdentityStore) Restore(ctx context.Context, sc ports.SessionContext) (domainauth.Identity, bool) {
	if sc == nil {
		return domainauth.Identity{}, false
	}
	raw, ok := sc.Get(SessionKeyUser)
	if !ok || raw == nil {
		metrics.EmitSessionRestore(s.metrics, restoreAbsent)
		return domainauth.Identity{}, false
	}

	payload, isMap := raw.(map[string]any)
	if !isMap {
		s.malformed(ctx, domainauth.NewError(domainauth.KindSessionRestore, "restore identity",
			fmt.Errorf("payload has type %T", raw)))
		return domainauth.Identity{}, false
	}

	id, err := domainauth.DecodeIdentity(payload)
	if err != nil {
		s.malformed(ctx, err)
		return domainauth.Identity{}, false
	}

	metrics.EmitSessionRestore(s.metrics, restoreRestored)
	return id, true
}

func (s *SessionIdentityStore) malformed(ctx context.Context, err error) {
	s.logger.WarnContext(ctx, "session identity payload malformed", "error", err)
	metrics.EmitSessionRestore(s.metrics, restoreMalformed)
}

// Invalidate removes the identity keys and regenerates the session identifier.
func (s *SessionIdentityStore) Invalidate(ctx context.Context, sc ports.SessionContext) {
	if sc == nil {
		return
	}
	sc.Forget(identityKeys...)
	sc.Regenerate()
	s.logger.DebugContext(ctx, "session identity invalidated")
}
