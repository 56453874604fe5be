package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lci/lci-lookup/internal/ports"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Store        ports.SessionStore
	CookieName   string
	CookieDomain string
	TTL          time.Duration
	Logger       *slog.Logger
}

// Manager loads the session named by the request cookie, exposes it through the
// request context and commits changes before the response header is written.
type Manager struct {
	store        ports.SessionStore
	cookieName   string
	cookieDomain string
	ttl          time.Duration
	logger       *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.CookieName
	if name == "" {
		name = "lci_session"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{
		store:        opts.Store,
		cookieName:   name,
		cookieDomain: opts.CookieDomain,
		ttl:          ttl,
		logger:       logger.With("component", "session_manager"),
	}
}

// Middleware wraps next with session load and commit.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		cw := &commitWriter{ResponseWriter: w, commit: func() { m.commit(r, w, sess) }}
		next.ServeHTTP(cw, r.WithContext(NewContext(r.Context(), sess)))
		cw.flushCommit()
	})
}

func (m *Manager) load(r *http.Request) *Session {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return New()
	}
	rec, err := m.store.Get(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, ports.ErrSessionNotFound) {
			m.logger.WarnContext(r.Context(), "session load failed", "error", err)
		}
		return New()
	}
	return Load(rec)
}

func (m *Manager) commit(r *http.Request, w http.ResponseWriter, sess *Session) {
	ctx := context.WithoutCancel(r.Context())
	st := sess.snapshot()

	for _, id := range st.retired {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.WarnContext(ctx, "retired session delete failed", "error", err)
		}
	}

	switch {
	case st.empty && (st.stored || len(st.retired) > 0):
		if st.stored {
			if err := m.store.Delete(ctx, st.id); err != nil {
				m.logger.WarnContext(ctx, "session delete failed", "error", err)
			}
		}
		m.clearCookie(w, r)
		sess.markCommitted(false)
	case st.empty:
		// nothing was ever stored for this visitor
	case st.dirty || !st.stored:
		if err := m.store.Save(ctx, sess.Record(), m.ttl); err != nil {
			m.logger.ErrorContext(ctx, "session save failed", "error", err)
			return
		}
		m.setCookie(w, r, st.id)
		sess.markCommitted(true)
	}
}

// Destroy deletes the session from the store immediately and clears the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, sess *Session) {
	sess.Invalidate()
	m.commit(r, w, sess)
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   isSecure(r),
		MaxAge:   int(m.ttl.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   isSecure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// commitWriter runs commit once, just before the header is sent.
type commitWriter struct {
	http.ResponseWriter
	commit func()
	once   sync.Once
}

func (w *commitWriter) flushCommit() { w.once.Do(w.commit) }

func (w *commitWriter) WriteHeader(code int) {
	w.flushCommit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.flushCommit()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Flush() {
	w.flushCommit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *commitWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
