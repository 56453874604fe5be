package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lci/lci-lookup/internal/domain/model"
	apperrors "github.com/lci/lci-lookup/internal/errors"
	"github.com/lci/lci-lookup/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out), body)
	return out
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	tests := []struct {
		name         string
		header       http.Header
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "browser is sent to login",
			header:       http.Header{"Accept": {"text/html"}},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login?redirect_uri=%2F",
		},
		{
			name:       "api client gets 401",
			header:     http.Header{"Accept": {"application/json"}},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "htmx gets HX-Redirect",
			header:     http.Header{"Hx-Request": {"true"}},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, routerOptions{})
			resp, body := f.get(t, "/", tt.header)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, resp.Header.Get("Location"))
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "authentication_required", decodeBody(t, body)["error"])
			}
			if tt.header.Get("Hx-Request") != "" {
				assert.True(t, strings.HasPrefix(resp.Header.Get("Hx-Redirect"), PathSignedOut+"?"))
			}
		})
	}
}

func TestRouter_LoginFlow(t *testing.T) {
	f := newRouterFixture(t, routerOptions{})

	anonToken := f.csrfToken(t)
	anonCookie := f.sessionCookie(t)
	require.NotNil(t, anonCookie, "login page should start a session")

	resp, _ := f.postForm(t, PathLogin, url.Values{
		DefaultCSRFFormField: {anonToken},
		"username":           {"bob"},
		"password":           {testBobPass},
		"redirect_uri":       {"/?from=login"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?from=login", resp.Header.Get("Location"))

	// Session fixation: login must issue a new session id.
	loggedIn := f.sessionCookie(t)
	require.NotNil(t, loggedIn)
	assert.NotEqual(t, anonCookie.Value, loggedIn.Value)

	resp, body := f.get(t, "/", http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Bob Smith")
	token := pageToken(t, body)
	assert.NotEqual(t, anonToken, token, "csrf token should rotate on login")

	resp, body = f.get(t, "/auth/status", http.Header{"Accept": {"application/json"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody(t, body)
	assert.Equal(t, true, status["authenticated"])
	assert.Equal(t, true, status["authorized"])
	assert.Equal(t, testGroup, status["required_group"])
	user, ok := status["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bob", user["account_name"])

	// Already signed in: the login page bounces home.
	resp, _ = f.get(t, PathLogin, http.Header{"Accept": {"text/html"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// The directory is consulted once, at login.
	connects := f.dir.Connects()
	resp, _ = f.get(t, "/", http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, connects, f.dir.Connects())

	resp, _ = f.postForm(t, PathLogout, url.Values{DefaultCSRFFormField: {token}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, PathSignedOut+"?redirect_uri=%2F", resp.Header.Get("Location"))
	assert.Equal(t, 0, f.store.Len())

	resp, _ = f.get(t, "/", http.Header{"Accept": {"text/html"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRouter_LoginJSON(t *testing.T) {
	f := newRouterFixture(t, routerOptions{})
	token := f.csrfToken(t)

	resp, body := f.postJSON(t, PathLogin, token, `{"username":"LC\\bob","password":"hunter2","redirect_uri":"//evil.example"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	out := decodeBody(t, body)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "/", out["redirect_to"])
}

func TestRouter_LoginFailures(t *testing.T) {
	tests := []struct {
		name       string
		username   string
		password   string
		setup      func(f *routerFixture)
		wantStatus int
		wantError  string
	}{
		{
			name:       "wrong password",
			username:   "bob",
			password:   "nope",
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_credentials",
		},
		{
			name:       "unknown account reads as invalid credentials",
			username:   "mallory",
			password:   "whatever",
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_credentials",
		},
		{
			name:       "empty password",
			username:   "bob",
			password:   "",
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_credentials",
		},
		{
			name:       "not in required group",
			username:   "carol",
			password:   testCarolPw,
			wantStatus: http.StatusForbidden,
			wantError:  "not_authorized",
		},
		{
			name:     "directory down",
			username: "bob",
			password: testBobPass,
			setup: func(f *routerFixture) {
				f.dir.ConnectErr = errors.New("dial tcp: connection refused")
			},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "directory_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, routerOptions{})
			if tt.setup != nil {
				tt.setup(f)
			}
			token := f.csrfToken(t)
			payload, err := json.Marshal(map[string]string{"username": tt.username, "password": tt.password})
			require.NoError(t, err)

			resp, body := f.postJSON(t, PathLogin, token, string(payload))
			assert.Equal(t, tt.wantStatus, resp.StatusCode, body)
			out := decodeBody(t, body)
			assert.Equal(t, tt.wantError, out["error"])
			assert.NotContains(t, out["message"], "connection refused")
		})
	}
}

func TestRouter_LoginFailure_RendersForm(t *testing.T) {
	f := newRouterFixture(t, routerOptions{})
	token := f.csrfToken(t)

	resp, body := f.postForm(t, PathLogin, url.Values{
		DefaultCSRFFormField: {token},
		"username":           {"bob"},
		"password":           {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password.")
	assert.Contains(t, body, `value="bob"`)
}

func TestRouter_CSRFRequired(t *testing.T) {
	f := newRouterFixture(t, routerOptions{})
	f.csrfToken(t)

	resp, _ := f.postForm(t, PathLogin, url.Values{"username": {"bob"}, "password": {testBobPass}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.postJSON(t, PathLogin, "not-the-token", `{"username":"bob","password":"hunter2"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, f.dir.Connects())
}

func TestRouter_MalformedSessionIdentity(t *testing.T) {
	f := newRouterFixture(t, routerOptions{})
	require.Equal(t, http.StatusSeeOther, f.login(t, "bob", testBobPass).StatusCode)

	cookie := f.sessionCookie(t)
	require.NotNil(t, cookie)
	rec, err := f.store.Get(t.Context(), cookie.Value)
	require.NoError(t, err)
	rec.Values[service.SessionKeyUser] = "not an identity"
	require.NoError(t, f.store.Save(t.Context(), rec, time.Hour))

	resp, _ := f.get(t, "/", http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, PathLogin, loc.Path)
	assert.Equal(t, "expired", loc.Query().Get("reason"))

	_, err = f.store.Get(t.Context(), cookie.Value)
	assert.Error(t, err, "the session id must be regenerated")
	if c := f.sessionCookie(t); c != nil {
		after, err := f.store.Get(t.Context(), c.Value)
		require.NoError(t, err)
		_, still := after.Values[service.SessionKeyUser]
		assert.False(t, still, "stale identity must be cleared")
	}

	resp, body := f.get(t, loc.String(), http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "session")
}

func TestRouter_HeaderLogin(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		principal  string
		wantStatus int
	}{
		{name: "trusted proxy signs bob in", trusted: []string{"127.0.0.0/8"}, principal: "bob", wantStatus: http.StatusOK},
		{name: "untrusted peer is ignored", trusted: []string{"10.0.0.0/8"}, principal: "bob", wantStatus: http.StatusUnauthorized},
		{name: "non-member is forbidden", trusted: []string{"127.0.0.0/8"}, principal: "carol", wantStatus: http.StatusForbidden},
		{name: "unknown principal stays anonymous", trusted: []string{"127.0.0.0/8"}, principal: "mallory", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, routerOptions{principalHeader: "X-Remote-User", trusted: tt.trusted})
			resp, body := f.get(t, "/auth/status", http.Header{
				"Accept":        {"application/json"},
				"X-Remote-User": {tt.principal},
			})
			assert.Equal(t, tt.wantStatus, resp.StatusCode, body)
		})
	}
}

func TestRouter_HeaderLogin_ReusesSession(t *testing.T) {
	f := newRouterFixture(t, routerOptions{principalHeader: "X-Remote-User", trusted: []string{"127.0.0.0/8"}})
	hdr := http.Header{"Accept": {"application/json"}, "X-Remote-User": {"bob"}}

	resp, _ := f.get(t, "/auth/status", hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	connects := f.dir.Connects()

	resp, _ = f.get(t, "/auth/status", hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, connects, f.dir.Connects(), "same principal should not re-query the directory")
}

func TestRouter_HeaderLogin_PrincipalChangeDropsIdentity(t *testing.T) {
	f := newRouterFixture(t, routerOptions{principalHeader: "X-Remote-User", trusted: []string{"127.0.0.0/8"}})

	resp, _ := f.get(t, "/auth/status", http.Header{"Accept": {"application/json"}, "X-Remote-User": {"bob"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.get(t, "/auth/status", http.Header{"Accept": {"application/json"}, "X-Remote-User": {"carol"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode, body)

	resp, body = f.get(t, "/auth/status", http.Header{"Accept": {"application/json"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "bob's identity should not survive: %s", body)
}

func TestRouter_Records(t *testing.T) {
	f := newRouterFixture(t, routerOptions{})
	require.Equal(t, http.StatusSeeOther, f.login(t, "bob", testBobPass).StatusCode)
	_, page := f.get(t, "/", http.Header{"Accept": {"text/html"}})
	token := pageToken(t, page)

	t.Run("submit json", func(t *testing.T) {
		resp, body := f.postJSON(t, "/submit-record", token, `{"NID":"1234","LIC":"L-1","name":"Acme"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
		out := decodeBody(t, body)
		assert.Equal(t, "Record saved successfully", out["message"])
		rec, ok := out["record"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "long", rec["list"])
	})

	t.Run("submit form redirects home", func(t *testing.T) {
		resp, _ := f.postForm(t, "/submit-record", url.Values{
			DefaultCSRFFormField: {token},
			"NID":                {"AB-9"},
			"LIC":                {"L-2"},
			"name":               {"Beta"},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/?added=list", resp.Header.Get("Location"))
	})

	t.Run("validation error", func(t *testing.T) {
		f.records.set(func(fr *fakeRecords) {
			fr.createErr = &apperrors.AppError{
				Code:    apperrors.ErrCodeValidation,
				Message: "invalid record",
				Field:   "NID",
				Cause:   &model.FieldError{Field: "NID", Message: "is required"},
			}
		})
		defer f.records.set(func(fr *fakeRecords) { fr.createErr = nil })

		resp, body := f.postJSON(t, "/submit-record", token, `{"NID":"","LIC":"x","name":"y"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		out := decodeBody(t, body)
		assert.Equal(t, "NID", out["field"])
	})

	t.Run("search json never null", func(t *testing.T) {
		resp, body := f.postJSON(t, "/search", token, `{"searchTerm":"nothing"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.JSONEq(t, `{"results":[]}`, body)
	})

	t.Run("search json returns matches", func(t *testing.T) {
		f.records.set(func(fr *fakeRecords) {
			fr.results = []*model.Record{{ID: 7, List: model.ShortList, NID: "AB-9", LIC: "L-2", Name: "Beta"}}
		})
		resp, body := f.postJSON(t, "/search", token, `{"searchTerm":"beta"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		var out struct {
			Results []model.Record `json:"results"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &out))
		require.Len(t, out.Results, 1)
		assert.Equal(t, "Beta", out.Results[0].Name)
		f.records.set(func(fr *fakeRecords) { assert.Contains(t, fr.searches, "beta") })
	})

	t.Run("dashboard moved", func(t *testing.T) {
		resp, _ := f.get(t, "/dashboard", http.Header{"Accept": {"text/html"}})
		assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	})

	t.Run("home shows counts", func(t *testing.T) {
		resp, body := f.get(t, "/", http.Header{"Accept": {"text/html"}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, ">3<")
		assert.Contains(t, body, ">2<")
	})
}

func TestRouter_HealthChecksDoNotCreateSessions(t *testing.T) {
	f := newRouterFixture(t, routerOptions{})
	for _, p := range []string{PathHealth, PathReady, "/static/css/app.css"} {
		resp, _ := f.get(t, p, nil)
		assert.Less(t, resp.StatusCode, 500, p)
	}
	assert.Nil(t, f.sessionCookie(t))
	assert.Equal(t, 0, f.store.Len())
}

// Keep the compile-time check close to the router tests.
var _ RecordsService = (*service.RecordService)(nil)
