package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/lci/lci-lookup/config"
	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/observability/metrics"
	"github.com/lci/lci-lookup/internal/observability/statsd"
	"github.com/lci/lci-lookup/internal/ports"
)

// LoginSource says where the login principal came from.
type LoginSource string

const (
	// LoginSourceForm is a username/password form post.
	LoginSourceForm LoginSource = "form"
	// LoginSourceHeader is a principal asserted by a trusted authenticating proxy.
	LoginSourceHeader LoginSource = "header"
)

// LoginInput is the raw login request.
type LoginInput struct {
	Username string
	Password string
	Source   LoginSource
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Directory  ports.Directory
	Config     config.DirectoryConfig
	Identities *SessionIdentityStore
	Logger     *slog.Logger
	// Audit receives the per-attempt directory trail; defaults to Logger tagged channel=directory_auth.
	Audit   *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// AuthService orchestrates a directory login: bind, search, map, authorize, persist.
type AuthService struct {
	dir        ports.Directory
	cfg        config.DirectoryConfig
	identities *SessionIdentityStore
	logger     *slog.Logger
	audit      *slog.Logger
	metrics    statsd.Sink
	now        func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := opts.Audit
	if audit == nil {
		audit = logger.With("channel", "directory_auth")
	}
	identities := opts.Identities
	if identities == nil {
		identities = NewSessionIdentityStore(SessionIdentityStoreOptions{Logger: logger, Metrics: opts.Metrics})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		dir:        opts.Directory,
		cfg:        opts.Config,
		identities: identities,
		logger:     logger,
		audit:      audit,
		metrics:    opts.Metrics,
		now:        now,
	}
}

// Identities exposes the session identity store used on successful logins.
func (s *AuthService) Identities() *SessionIdentityStore { return s.identities }

// RequiredGroup is the group every authenticated identity must belong to.
func (s *AuthService) RequiredGroup() string {
	if s == nil {
		return ""
	}
	return s.cfg.RequiredGroup
}

// Authenticate runs one login attempt. On success the identity has been written to sc.
// Every failure is a *domainauth.Error; use domainauth.OutcomeOf to get the result class.
// The session is not touched unless the attempt succeeds.
func (s *AuthService) Authenticate(
	ctx context.Context,
	in LoginInput,
	sc ports.SessionContext,
) (id domainauth.Identity, err error) {
	start := s.now()
	cred := domainauth.ParseUsername(in.Username)
	cred.Password = in.Password
	cred.Domain = cred.ResolvedDomain(s.cfg.Domain)
	if in.Source == "" {
		in.Source = LoginSourceForm
	}
	audit := s.audit.With("credential", cred, "source", string(in.Source), "bind_mode", string(s.cfg.BindMode))

	defer func() {
		if r := recover(); r != nil {
			audit.ErrorContext(ctx, "authentication panicked", "panic", r, "stack", string(debug.Stack()))
			id = domainauth.Identity{}
			err = domainauth.NewError(domainauth.KindUnexpected, "authenticate", fmt.Errorf("panic: %v", r))
		}
		s.finish(ctx, audit, in.Source, start, id, err)
	}()

	audit.InfoContext(ctx, "authentication attempt started")

	if err := s.precheck(in, cred); err != nil {
		return domainauth.Identity{}, err
	}

	id, err = s.resolve(ctx, audit, cred, in.Source == LoginSourceForm)
	if err != nil {
		return domainauth.Identity{}, err
	}

	if !domainauth.IsAuthorized(id, s.cfg.RequiredGroup) {
		audit.WarnContext(ctx, "authorization denied",
			"required_group", s.cfg.RequiredGroup,
			"group_count", len(id.Groups),
			"stable_id", id.StableID())
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindNotAuthorized, "authorize",
			fmt.Errorf("%s is not a member of %s", id.AccountName, s.cfg.RequiredGroup))
	}
	audit.InfoContext(ctx, "authorization granted", "required_group", s.cfg.RequiredGroup)

	if sc != nil {
		if perr := s.identities.Persist(ctx, sc, id, cred); perr != nil {
			return domainauth.Identity{}, domainauth.NewError(domainauth.KindUnexpected, "persist session", perr)
		}
	}
	return id, nil
}

func (s *AuthService) precheck(in LoginInput, cred domainauth.Credential) error {
	if cred.AccountName == "" {
		return domainauth.NewError(domainauth.KindInvalidCredentials, "parse username", errors.New("empty username"))
	}
	switch in.Source {
	case LoginSourceForm:
		if in.Password == "" {
			return domainauth.NewError(domainauth.KindInvalidCredentials, "parse credentials", errors.New("empty password"))
		}
	case LoginSourceHeader:
		if s.cfg.BindMode != config.BindModeService {
			return domainauth.NewError(domainauth.KindUnexpected, "header login",
				errors.New("principal header logins require service bind mode"))
		}
	default:
		return domainauth.NewError(domainauth.KindUnexpected, "authenticate", fmt.Errorf("unknown login source %q", in.Source))
	}
	return nil
}

// resolve looks the account up and returns its mapped identity. The connection is closed
// before resolve returns. verifyPassword makes service mode confirm the user's password
// with a bind as the entry DN.
func (s *AuthService) resolve(
	ctx context.Context,
	audit *slog.Logger,
	cred domainauth.Credential,
	verifyPassword bool,
) (domainauth.Identity, error) {
	conn, err := s.dir.Connect(ctx)
	if err != nil {
		audit.ErrorContext(ctx, "directory connect failed", "addr", s.cfg.Address(), "error", err)
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindConnection, "connect", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			audit.WarnContext(ctx, "directory connection close failed", "error", cerr)
		}
	}()

	var entry domainauth.RawEntry
	switch s.cfg.BindMode {
	case config.BindModeDirect:
		if err := s.bind(ctx, audit, conn, bindStep{op: "user bind", identity: cred.BindIdentity(s.cfg.Domain), secret: cred.Password}); err != nil {
			return domainauth.Identity{}, err
		}
		if entry, err = s.search(ctx, audit, conn, cred); err != nil {
			return domainauth.Identity{}, err
		}
	default:
		if err := s.bind(ctx, audit, conn, bindStep{op: "service bind", identity: s.cfg.ServiceBindDN, secret: s.cfg.ServiceSecret}); err != nil {
			return domainauth.Identity{}, err
		}
		if entry, err = s.search(ctx, audit, conn, cred); err != nil {
			return domainauth.Identity{}, err
		}
		if verifyPassword {
			if err := s.bind(ctx, audit, conn, bindStep{op: "user bind", identity: entry.DN, secret: cred.Password}); err != nil {
				return domainauth.Identity{}, err
			}
		}
	}

	id := domainauth.MapEntry(entry)
	if !id.Valid() {
		audit.ErrorContext(ctx, "directory entry has no stable identifier", "dn", entry.DN)
		return domainauth.Identity{}, domainauth.NewError(domainauth.KindNotFound, "map entry",
			errors.New("entry lacks objectGUID and samAccountName"))
	}
	return id, nil
}

type bindStep struct {
	op       string
	identity string
	secret   string
}

func (s *AuthService) bind(ctx context.Context, audit *slog.Logger, conn ports.DirectoryConn, step bindStep) error {
	ok, err := conn.Bind(ctx, step.identity, step.secret)
	if err != nil {
		audit.ErrorContext(ctx, "directory bind failed", "step", step.op, "bind_identity", step.identity, "error", err)
		return domainauth.NewError(domainauth.KindConnection, step.op, err)
	}
	if !ok {
		level := slog.LevelWarn
		if step.op == "service bind" {
			level = slog.LevelError
		}
		audit.Log(ctx, level, "directory bind rejected", "step", step.op, "bind_identity", step.identity)
		return domainauth.NewError(domainauth.KindInvalidCredentials, step.op, errors.New("bind rejected"))
	}
	audit.DebugContext(ctx, "directory bind accepted", "step", step.op, "bind_identity", step.identity)
	return nil
}

// AccountFilter builds the exact-match account search filter.
func AccountFilter(accountName string) string {
	return "(samAccountName=" + ldap.EscapeFilter(accountName) + ")"
}

func (s *AuthService) search(
	ctx context.Context,
	audit *slog.Logger,
	conn ports.DirectoryConn,
	cred domainauth.Credential,
) (domainauth.RawEntry, error) {
	filter := AccountFilter(cred.AccountName)
	entries, err := conn.Search(ctx, ports.SearchRequest{
		BaseDN:     s.cfg.BaseDN,
		Filter:     filter,
		Attributes: domainauth.IdentityAttributes(),
		SizeLimit:  2,
	})
	if err != nil {
		audit.ErrorContext(ctx, "directory search failed", "base_dn", s.cfg.BaseDN, "filter", filter, "error", err)
		kind := domainauth.KindSearch
		if isTransportError(err) {
			kind = domainauth.KindConnection
		}
		return domainauth.RawEntry{}, domainauth.NewError(kind, "search", err)
	}
	audit.InfoContext(ctx, "directory search completed", "filter", filter, "entries", len(entries))

	switch len(entries) {
	case 0:
		return domainauth.RawEntry{}, domainauth.NewError(domainauth.KindNotFound, "search",
			fmt.Errorf("no entry for %s under %s", cred.AccountName, s.cfg.BaseDN))
	case 1:
	default:
		audit.WarnContext(ctx, "directory search matched several entries; using the first", "filter", filter)
	}
	return entries[0], nil
}

// isTransportError reports whether err means the directory stopped answering (timeout,
// dropped connection, aborted request) rather than returning a result code.
func isTransportError(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.ErrorNetwork) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func (s *AuthService) finish(
	ctx context.Context,
	audit *slog.Logger,
	source LoginSource,
	start time.Time,
	id domainauth.Identity,
	err error,
) {
	elapsed := s.now().Sub(start)
	outcome := domainauth.OutcomeOf(err)
	if err != nil {
		attrs := []any{"outcome", string(outcome), "kind", string(domainauth.KindOf(err)), "duration", elapsed}
		var ae *domainauth.Error
		if errors.As(err, &ae) {
			attrs = append(attrs, "op", ae.Op, "detail", ae.Detail)
		}
		audit.WarnContext(ctx, "authentication failed", attrs...)
	} else {
		audit.InfoContext(ctx, "authentication succeeded", "outcome", string(outcome), "stable_id", id.StableID(), "duration", elapsed)
	}

	metrics.EmitLogin(s.metrics, metrics.LoginMetric{
		Mode:     string(s.cfg.BindMode),
		Source:   string(source),
		Duration: elapsed,
		Err:      err,
	})
}

// LookupResult is a directory lookup without a session, for diagnostics.
type LookupResult struct {
	Identity   domainauth.Identity
	Authorized bool
}

// Lookup resolves username with the service account and reports whether it would be
// authorized. It needs service bind mode since no user password is available.
func (s *AuthService) Lookup(ctx context.Context, username string) (LookupResult, error) {
	if s.cfg.BindMode != config.BindModeService {
		return LookupResult{}, errors.New("lookup requires LDAP_BIND_MODE=service")
	}
	cred := domainauth.ParseUsername(username)
	if cred.AccountName == "" {
		return LookupResult{}, errors.New("username is required")
	}
	audit := s.audit.With("credential", cred, "source", "lookup")
	id, err := s.resolve(ctx, audit, cred, false)
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{
		Identity:   id,
		Authorized: domainauth.IsAuthorized(id, s.cfg.RequiredGroup),
	}, nil
}

// Ping connects and, in service mode, binds with the service account.
func (s *AuthService) Ping(ctx context.Context) error {
	conn, err := s.dir.Connect(ctx)
	if err != nil {
		return domainauth.NewError(domainauth.KindConnection, "connect", err)
	}
	defer conn.Close()

	if s.cfg.BindMode != config.BindModeService {
		return nil
	}
	return s.bind(ctx, s.audit.With("source", "ping"), conn, bindStep{
		op:       "service bind",
		identity: s.cfg.ServiceBindDN,
		secret:   s.cfg.ServiceSecret,
	})
}
