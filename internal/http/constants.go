package httpx

import "strings"

// Page identifiers used in templates and navigation.
const (
	PageHome      = "home"
	PageLogin     = "login"
	PageSignedOut = "signed-out"
	PageError     = "error"
)

// Route paths referenced by middleware and handlers.
const (
	PathHome      = "/"
	PathLogin     = "/login"
	PathLogout    = "/logout"
	PathSignedOut = "/auth/signed-out"
	PathHealth    = "/healthz"
	PathReady     = "/readyz"
	PathStatic    = "/static/"
)

// Template paths used for loading templates in tests and production.
const (
	TemplatePathFromRoot = "frontend/templates"       // From project root
	TemplatePathFromTest = "../../frontend/templates" // From internal/http test files
)

// guestPaths never restore or require an identity, so the login page cannot redirect to itself.
//
//nolint:gochecknoglobals // static read-only lookup
var guestPaths = map[string]bool{
	PathLogin:     true,
	PathSignedOut: true,
	PathHealth:    true,
	PathReady:     true,
}

// isGuestPath reports whether path is served without authentication.
func isGuestPath(path string) bool {
	return guestPaths[path] || strings.HasPrefix(path, PathStatic)
}

// isSessionlessPath reports whether path is a health check or static asset; these never touch the session.
func isSessionlessPath(path string) bool {
	return path == PathHealth || path == PathReady || strings.HasPrefix(path, PathStatic)
}
