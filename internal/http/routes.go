package httpx

import (
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"

	lcilookup "github.com/lci/lci-lookup"
	"github.com/lci/lci-lookup/internal/session"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth       Authenticator
	Identities IdentityStore
	Records    RecordsService
	// Sessions loads and commits the per-request session. Defaults to an in-memory store.
	Sessions *session.Manager

	// PrincipalHeader enables header logins from TrustedProxies.
	PrincipalHeader string
	TrustedProxies  []*net.IPNet

	HealthChecks []HealthCheck

	CompressionEnabled bool
	CompressionLevel   int

	// TemplateFS overrides the template source; by default templates are embedded,
	// or read from disk when IsDev is set.
	TemplateFS fs.FS
	IsDev      bool         // Development mode flag for hot reloading, etc.
	Logger     *slog.Logger // Logger for template and HTTP errors (optional)
}

// NewRouter creates the HTTP handler: routes plus the middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := services.Sessions
	if sessions == nil {
		logger.Warn("no session manager configured, sessions are kept in memory")
		sessions = session.NewManager(session.ManagerOptions{Store: session.NewMemoryStore(), Logger: logger})
	}

	tr := setupRenderer(services, logger)
	authHandlers := &AuthHandlers{
		Auth:       services.Auth,
		Identities: services.Identities,
		Sessions:   sessions,
		T:          tr,
		Logger:     logger,
	}
	recordHandlers := &RecordHandlers{Svc: services.Records, T: tr, Logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathHealth, healthHandler)
	mux.HandleFunc("HEAD "+PathHealth, healthHandler)
	mux.Handle("GET "+PathReady, readyHandler(services.HealthChecks))
	mux.Handle("GET "+PathStatic, staticHandler(services.IsDev, logger))

	registerAuthRoutes(mux, authHandlers, services.Identities)
	registerRecordRoutes(mux, recordHandlers, services.Identities)

	mws := []func(http.Handler) http.Handler{
		Recover(logger),
		Logging(logger),
	}
	if services.CompressionEnabled {
		mws = append(mws, Compression(CompressionConfig{Level: services.CompressionLevel, MinSize: 512, Logger: logger}))
	}
	mws = append(mws,
		BrowserDetection(),
		sessions.Middleware,
		CSRFProtection(CSRFConfig{Logger: logger}),
		RestoreIdentity(services.Identities, services.Auth.RequiredGroup()),
		HeaderLogin(HeaderLoginOptions{
			Header:  services.PrincipalHeader,
			Trusted: services.TrustedProxies,
			Auth:    services.Auth,
			Store:   services.Identities,
			Logger:  logger,
		}),
	)
	return Chain(mux, mws...)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, identities IdentityStore) {
	protect := RequireGroup(identities)
	mux.HandleFunc("GET "+PathLogin, h.LoginPage)
	mux.HandleFunc("POST "+PathLogin, h.Login)
	mux.HandleFunc("GET "+PathSignedOut, h.SignedOut)
	mux.Handle("POST "+PathLogout, protect(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/status", protect(http.HandlerFunc(h.Status)))
}

func registerRecordRoutes(mux *http.ServeMux, h *RecordHandlers, identities IdentityStore) {
	protect := RequireGroup(identities)
	mux.Handle("GET /{$}", protect(http.HandlerFunc(h.Home)))
	mux.Handle("GET /dashboard", protect(http.HandlerFunc(h.Dashboard)))
	mux.Handle("POST /submit-record", protect(http.HandlerFunc(h.SubmitRecord)))
	mux.Handle("POST /search", protect(http.HandlerFunc(h.Search)))
}

// setupRenderer picks the template source: an explicit override, the disk in dev mode for hot
// reloading, otherwise the embedded copy. A parse failure leaves pages as plain text.
func setupRenderer(services RouterServices, logger *slog.Logger) *TemplateRenderer {
	templateFS := services.TemplateFS
	if templateFS == nil {
		if services.IsDev {
			templateFS = os.DirFS(TemplatePathFromRoot)
		} else {
			sub, err := fs.Sub(lcilookup.TemplateFS, TemplatePathFromRoot)
			if err != nil {
				logger.Error("failed to create sub-filesystem for templates", slog.Any("error", err))
				return nil
			}
			templateFS = sub
		}
	}

	tr, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: templateFS,
		DevMode:    services.IsDev && services.TemplateFS == nil,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create template renderer", slog.Any("error", err))
		return nil
	}
	return tr
}

// staticHandler serves /static/* from disk in dev mode and from the embedded FS otherwise.
func staticHandler(isDev bool, logger *slog.Logger) http.Handler {
	if isDev {
		return staticWithCacheHeaders(http.StripPrefix(PathStatic, http.FileServer(http.Dir("frontend/static"))), false)
	}
	staticSub, err := fs.Sub(lcilookup.StaticFS, "frontend/static")
	if err != nil {
		logger.Error("failed to create sub-filesystem for static assets", slog.Any("error", err))
		return staticWithCacheHeaders(http.StripPrefix(PathStatic, http.FileServer(http.Dir("frontend/static"))), false)
	}
	return staticWithCacheHeaders(http.StripPrefix(PathStatic, http.FileServerFS(staticSub)), true)
}

// staticWithCacheHeaders wraps a static file handler to add cache headers.
func staticWithCacheHeaders(handler http.Handler, cacheable bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cacheable {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		} else {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		}
		handler.ServeHTTP(w, r)
	})
}
