package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/ports"
	"github.com/lci/lci-lookup/internal/service"
	"github.com/lci/lci-lookup/internal/session"
)

// IdentityStore reads and clears the identity kept in a session.
type IdentityStore interface {
	Restore(ctx context.Context, sc ports.SessionContext) (domainauth.Identity, bool)
	Invalidate(ctx context.Context, sc ports.SessionContext)
}

// Authenticator runs a directory login and persists the identity into the session.
type Authenticator interface {
	Authenticate(ctx context.Context, in service.LoginInput, sc ports.SessionContext) (domainauth.Identity, error)
	RequiredGroup() string
}

// RestoreIdentity returns a middleware that reads the session identity once per request and
// attaches it as an AuthContext. Guest routes are skipped. It must run inside
// session.Manager.Middleware.
func RestoreIdentity(store IdentityStore, requiredGroup string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isGuestPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if _, done := GetAuthContext(r.Context()); done {
				next.ServeHTTP(w, r)
				return
			}

			var ac AuthContext
			if sess, ok := session.FromContext(r.Context()); ok {
				if id, found := store.Restore(r.Context(), sess); found {
					ac = AuthContext{Identity: id, Authorized: domainauth.IsAuthorized(id, requiredGroup)}
				}
			}
			next.ServeHTTP(w, r.WithContext(SetAuthContext(r.Context(), ac)))
		})
	}
}

// RequireGroup returns a middleware that only admits authenticated members of the required
// group. An unauthenticated request has any leftover identity cleared from its session, then
// browsers are sent to the login page and API callers get 401. Non-members get 403.
func RequireGroup(store IdentityStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, _ := GetAuthContext(r.Context())
			if !ac.Authenticated() {
				reason := ""
				if sess, ok := session.FromContext(r.Context()); ok && holdsIdentity(sess) {
					store.Invalidate(r.Context(), sess)
					reason = "expired"
				}
				unauthenticated(w, r, reason)
				return
			}
			if !ac.Authorized {
				forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// holdsIdentity reports whether sess still carries an identity payload that failed to restore.
func holdsIdentity(sess *session.Session) bool {
	_, ok := sess.Get(service.SessionKeyUser)
	return ok
}

func unauthenticated(w http.ResponseWriter, r *http.Request, reason string) {
	if (IsBrowserRequest(r) && !wantsJSON(r)) || IsHTMX(r) {
		redirectToLogin(w, r, reason)
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New("authentication required"),
	})
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	msg := domainauth.UserMessage(domainauth.KindNotAuthorized)
	if IsBrowserRequest(r) && !wantsJSON(r) {
		http.Error(w, msg, http.StatusForbidden)
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusForbidden,
		ErrCode: string(domainauth.OutcomeNotAuthorized),
		Err:     errors.New(msg),
	})
}

// HeaderLoginOptions configures HeaderLogin.
type HeaderLoginOptions struct {
	// Header carries the principal asserted by an authenticating reverse proxy.
	Header  string
	Trusted []*net.IPNet
	Auth    Authenticator
	// Store clears the session identity when the header names someone else.
	Store  IdentityStore
	Logger *slog.Logger
}

// HeaderLogin returns a middleware that signs in the principal named by a trusted proxy header.
// The principal is resolved and group-checked against the directory like a form login; only
// the password check is left to the proxy. Headers from untrusted peers are ignored. It must
// run after RestoreIdentity, and is a no-op when no header is configured.
func HeaderLogin(opts HeaderLoginOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "header_login")

	return func(next http.Handler) http.Handler {
		if opts.Header == "" || opts.Auth == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := strings.TrimSpace(r.Header.Get(opts.Header))
			if principal == "" || isGuestPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if !peerTrusted(r.RemoteAddr, opts.Trusted) {
				logger.WarnContext(r.Context(), "ignoring principal header from untrusted peer",
					"remote_addr", r.RemoteAddr, "header", opts.Header)
				next.ServeHTTP(w, r)
				return
			}

			ac, _ := GetAuthContext(r.Context())
			if ac.Authenticated() && samePrincipal(ac.Identity, principal) {
				next.ServeHTTP(w, r)
				return
			}

			sess, ok := session.FromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if ac.Authenticated() {
				logger.InfoContext(r.Context(), "principal header changed, dropping session identity",
					"previous", ac.Identity.AccountName)
				if opts.Store != nil {
					opts.Store.Invalidate(r.Context(), sess)
				}
				ac = AuthContext{}
			}

			id, err := opts.Auth.Authenticate(r.Context(), service.LoginInput{
				Username: principal,
				Source:   service.LoginSourceHeader,
			}, sess)
			if err != nil {
				switch domainauth.KindOf(err) {
				case domainauth.KindNotAuthorized:
					forbidden(w, r)
					return
				case domainauth.KindConnection:
					writeLoginFailure(w, http.StatusServiceUnavailable, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(SetAuthContext(r.Context(), ac)))
				return
			}

			ctx := SetAuthContext(r.Context(), AuthContext{Identity: id, Authorized: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// samePrincipal reports whether id is the account named by a raw principal.
func samePrincipal(id domainauth.Identity, principal string) bool {
	cred := domainauth.ParseUsername(principal)
	if cred.IsUPN() && id.UserPrincipalName != "" {
		return strings.EqualFold(id.UserPrincipalName, cred.RawUsername)
	}
	return strings.EqualFold(id.AccountName, cred.AccountName)
}

func peerTrusted(remoteAddr string, trusted []*net.IPNet) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// writeLoginFailure writes a JSON login error with the user-facing message only.
func writeLoginFailure(w http.ResponseWriter, status int, err error) {
	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(domainauth.OutcomeOf(err)),
		Err:     errors.New(domainauth.UserMessage(domainauth.KindOf(err))),
	})
}
