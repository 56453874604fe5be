package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lci/lci-lookup/internal/session"
)

const (
	// DefaultCSRFHeaderName is the default name for the CSRF header (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"
	// DefaultCSRFFormField is the default form field carrying the token.
	DefaultCSRFFormField = "_token"
	// DefaultCSRFTokenLength is the default length of the CSRF token in bytes.
	DefaultCSRFTokenLength = 32

	csrfSessionKey = "csrf.token"
)

// CSRFConfig holds configuration for CSRF protection middleware.
type CSRFConfig struct {
	// HeaderName is the name of the CSRF header to check (default: "X-Csrf-Token")
	HeaderName string
	// FormFieldName is the name of the form field to check (default: "_token")
	FormFieldName string
	// TokenLength is the length of the CSRF token in bytes (default: 32)
	TokenLength int
	Logger      *slog.Logger
}

func (c *CSRFConfig) setDefaults() {
	if c.HeaderName == "" {
		c.HeaderName = DefaultCSRFHeaderName
	}
	if c.FormFieldName == "" {
		c.FormFieldName = DefaultCSRFFormField
	}
	if c.TokenLength == 0 {
		c.TokenLength = DefaultCSRFTokenLength
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// CSRFProtection returns a middleware that keeps a per-session synchronizer token and checks it
// on state-changing requests (POST, PUT, DELETE, PATCH). The token can be submitted via:
// - X-Csrf-Token header (for fetch/htmx requests)
// - _token form field (for standard form submissions)
//
// It must run inside session.Manager.Middleware. Health checks and static assets are skipped
// so they never create sessions.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	cfg.setDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSessionlessPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			sess, ok := session.FromContext(r.Context())
			if !ok {
				cfg.Logger.ErrorContext(r.Context(), "csrf middleware running without a session")
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}

			token := sessionCSRFToken(sess)
			if requiresCSRFValidation(r.Method) {
				if !validateCSRFToken(r, token, cfg) {
					cfg.Logger.WarnContext(r.Context(), "csrf token validation failed",
						"method", r.Method, "path", r.URL.Path)
					http.Error(w, "CSRF token validation failed", http.StatusForbidden)
					return
				}
			}

			if token == "" {
				var err error
				if token, err = RotateCSRFToken(sess, cfg.TokenLength); err != nil {
					http.Error(w, "unable to generate CSRF token", http.StatusInternalServerError)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(setCSRFTokenInContext(r.Context(), token)))
		})
	}
}

// RotateCSRFToken stores a fresh token in sess and returns it.
func RotateCSRFToken(sess *session.Session, length int) (string, error) {
	if length <= 0 {
		length = DefaultCSRFTokenLength
	}
	token, err := generateCSRFToken(length)
	if err != nil {
		return "", err
	}
	sess.Put(csrfSessionKey, token)
	return token, nil
}

func sessionCSRFToken(sess *session.Session) string {
	v, ok := sess.Get(csrfSessionKey)
	if !ok {
		return ""
	}
	token, _ := v.(string)
	return token
}

// requiresCSRFValidation returns true if the HTTP method requires CSRF validation.
// Safe methods (GET, HEAD, OPTIONS, TRACE) are exempt.
func requiresCSRFValidation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// generateCSRFToken generates a cryptographically secure random CSRF token.
// Returns an error if random generation fails - we fail closed rather than
// falling back to a predictable token.
func generateCSRFToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// validateCSRFToken compares the submitted token against the session's in constant time.
// The header is checked first, then the form field for form-encoded bodies.
func validateCSRFToken(r *http.Request, sessionToken string, cfg CSRFConfig) bool {
	if sessionToken == "" {
		return false
	}

	if headerToken := r.Header.Get(cfg.HeaderName); headerToken != "" {
		return subtle.ConstantTimeCompare([]byte(headerToken), []byte(sessionToken)) == 1
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return false
		}
		if formToken := r.PostFormValue(cfg.FormFieldName); formToken != "" {
			return subtle.ConstantTimeCompare([]byte(formToken), []byte(sessionToken)) == 1
		}
	}

	return false
}

// csrfTokenKey is an unexported context key type for CSRF token storage.
type csrfTokenKey struct{}

// setCSRFTokenInContext stores the CSRF token in the request context.
func setCSRFTokenInContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfTokenKey{}, token)
}

// GetCSRFToken retrieves the CSRF token from the request context.
// Templates embed it in forms and in the csrf-token meta tag.
func GetCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
