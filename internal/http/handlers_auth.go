package httpx

import (
	"log/slog"
	"net/http"
	"net/url"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/service"
	"github.com/lci/lci-lookup/internal/session"
)

// AuthHandlers provides HTTP handlers for sign-in and sign-out.
type AuthHandlers struct {
	Auth       Authenticator
	Identities IdentityStore
	Sessions   *session.Manager
	T          *TemplateRenderer
	Logger     *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// loginView is the login page content.
type loginView struct {
	Username string
}

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// LoginPage renders the sign-in form.
// GET /login?redirect_uri=<optional>&reason=<optional>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	// Already signed in: the login route skips restoration, so check here.
	if sess, ok := session.FromContext(r.Context()); ok {
		if id, found := h.Identities.Restore(r.Context(), sess); found &&
			domainauth.IsAuthorized(id, h.Auth.RequiredGroup()) {
			http.Redirect(w, r, redirectURI, http.StatusSeeOther)
			return
		}
	}

	data := NewPageData(r, PageMeta{Title: "Sign in", CurrentPage: PageLogin})
	data.RedirectURI = redirectURI
	if r.URL.Query().Get("reason") == "expired" {
		data.Error = domainauth.UserMessage(domainauth.KindSessionRestore)
	}
	data.Content = loginView{}
	renderPage(w, h.T, http.StatusOK, data)
}

// Login runs a directory login for the posted username and password.
// POST /login (form or JSON).
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if isJSONRequest(r) {
		if !DecodeJSON(w, r, &in) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
			return
		}
		in = loginRequest{
			Username:    r.PostFormValue("username"),
			Password:    r.PostFormValue("password"),
			RedirectURI: r.PostFormValue("redirect_uri"),
		}
	}
	redirectURI := safeRedirectPath(in.RedirectURI)

	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.logger().ErrorContext(r.Context(), "login without a session")
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	id, err := h.Auth.Authenticate(r.Context(), service.LoginInput{
		Username: in.Username,
		Password: in.Password,
		Source:   service.LoginSourceForm,
	}, sess)
	if err != nil {
		status := loginFailureStatus(err)
		if wantsJSON(r) {
			writeLoginFailure(w, status, err)
			return
		}
		data := NewPageData(r, PageMeta{Title: "Sign in", CurrentPage: PageLogin})
		data.Error = domainauth.UserMessage(domainauth.KindOf(err))
		data.RedirectURI = redirectURI
		data.Content = loginView{Username: in.Username}
		renderPage(w, h.T, status, data)
		return
	}

	// The pre-login token belongs to the anonymous session.
	if _, err := RotateCSRFToken(sess, 0); err != nil {
		h.logger().WarnContext(r.Context(), "csrf token rotation failed", "error", err)
	}

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":      "success",
			"redirect_to": redirectURI,
			"user":        userJSON(id),
		})
		return
	}
	http.Redirect(w, r, redirectURI, http.StatusSeeOther)
}

// loginFailureStatus maps a login error onto an HTTP status.
func loginFailureStatus(err error) int {
	switch domainauth.OutcomeOf(err) {
	case domainauth.OutcomeInvalidCredentials:
		return http.StatusUnauthorized
	case domainauth.OutcomeNotAuthorized:
		return http.StatusForbidden
	case domainauth.OutcomeDirectoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Logout clears the identity, destroys the session and sends the user to the signed-out page.
// POST /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		h.Identities.Invalidate(r.Context(), sess)
		if h.Sessions != nil {
			h.Sessions.Destroy(w, r, sess)
		}
	}

	redirectURI := r.FormValue("redirect_uri")
	if redirectURI == "" {
		redirectURI = r.URL.Query().Get("redirect_uri")
	}
	redirectURI = safeRedirectPath(redirectURI)

	u := url.URL{Path: PathSignedOut}
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	u.RawQuery = q.Encode()
	signedOutURL := u.String()

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": signedOutURL,
		})
		return
	}
	http.Redirect(w, r, signedOutURL, http.StatusSeeOther)
}

// SignedOut renders the page shown after logout or when an htmx request lost its session.
// GET /auth/signed-out.
func (h *AuthHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	data := NewPageData(r, PageMeta{Title: "Signed out", CurrentPage: PageSignedOut})
	data.RedirectURI = safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	if r.URL.Query().Get("reason") == "expired" {
		data.Error = domainauth.UserMessage(domainauth.KindSessionRestore)
	}
	renderPage(w, h.T, http.StatusOK, data)
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ac, _ := GetAuthContext(r.Context())
	if !ac.Authenticated() {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated":  true,
		"authorized":     ac.Authorized,
		"required_group": h.Auth.RequiredGroup(),
		"user":           userJSON(ac.Identity),
	})
}

func userJSON(id domainauth.Identity) map[string]any {
	return map[string]any{
		"id":           id.StableID(),
		"name":         id.Name(),
		"account_name": id.AccountName,
		"email":        id.Email,
		"upn":          id.UserPrincipalName,
		"groups":       id.Groups,
	}
}

// renderPage renders data, falling back to plain text when no renderer is configured.
func renderPage(w http.ResponseWriter, t *TemplateRenderer, status int, data PageData) {
	if t == nil {
		msg := data.Error
		if msg == "" {
			msg = data.Title
		}
		http.Error(w, msg, status)
		return
	}
	// Render logs and answers on failure.
	_ = t.Render(w, status, data)
}
