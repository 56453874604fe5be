package httpx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lci/lci-lookup/config"
	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/domain/model"
	mockauth "github.com/lci/lci-lookup/internal/mocks/auth"
	"github.com/lci/lci-lookup/internal/service"
	"github.com/lci/lci-lookup/internal/session"
	"github.com/stretchr/testify/require"
)

const (
	testGroup   = "g-app-webapp-cpdrlist"
	testGroupDN = "CN=g-app-webapp-cpdrlist,OU=Groups,DC=corp,DC=local"
	testSvcDN   = "CN=svc-lci,OU=Service,DC=corp,DC=local"
	testSvcPass = "svc-secret"
	testBobDN   = "CN=Bob Smith,OU=Users,DC=corp,DC=local"
	testBobPass = "hunter2"
	testCarolDN = "CN=Carol,OU=Users,DC=corp,DC=local"
	testCarolPw = "carol-pw"
)

func bobEntry() domainauth.RawEntry {
	return domainauth.RawEntry{
		DN: testBobDN,
		Attributes: map[string]any{
			"displayname":    []string{"Bob Smith"},
			"samaccountname": []string{"bob"},
			"mail":           []string{"bob@corp.local"},
			"memberof":       []string{testGroupDN},
			"objectguid":     [][]byte{{0xde, 0xad, 0xbe, 0xef}},
		},
	}
}

func carolEntry() domainauth.RawEntry {
	return domainauth.RawEntry{
		DN: testCarolDN,
		Attributes: map[string]any{
			"samaccountname": []string{"carol"},
			"memberof":       []string{"CN=Staff,OU=Groups,DC=corp,DC=local"},
		},
	}
}

func testDirectoryConfig() config.DirectoryConfig {
	return config.DirectoryConfig{
		Host:          "dc01.corp.local",
		Port:          389,
		BaseDN:        "DC=corp,DC=local",
		Domain:        "LC",
		RequiredGroup: testGroup,
		BindMode:      config.BindModeService,
		ServiceBindDN: testSvcDN,
		ServiceSecret: testSvcPass,
		Timeout:       time.Second,
	}
}

// fakeRecords is a hand-written RecordsService double.
type fakeRecords struct {
	mu        sync.Mutex
	created   []model.CreateRecordRequest
	searches  []string
	results   []*model.Record
	counts    service.ListCounts
	createErr error
	searchErr error
	countErr  error
}

// set mutates the double under its lock.
func (f *fakeRecords) set(fn func(*fakeRecords)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRecords) Create(_ context.Context, req model.CreateRecordRequest) (*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &model.Record{ID: int64(len(f.created)), List: model.ListForNID(req.NID), NID: req.NID, LIC: req.LIC, Name: req.Name}, nil
}

func (f *fakeRecords) Search(_ context.Context, req model.SearchRecordsRequest) ([]*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, req.Term)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeRecords) Counts(context.Context) (service.ListCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts, f.countErr
}

type routerOptions struct {
	principalHeader string
	trusted         []string
	records         RecordsService
	checks          []HealthCheck
}

type routerFixture struct {
	server  *httptest.Server
	client  *http.Client
	dir     *mockauth.FakeDirectory
	store   *session.MemoryStore
	records *fakeRecords
}

func newRouterFixture(t *testing.T, opts routerOptions) *routerFixture {
	t.Helper()
	if _, err := os.Stat(TemplatePathFromTest); err != nil {
		t.Skipf("templates not available: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := mockauth.NewFakeDirectory(map[string]string{
		testSvcDN:   testSvcPass,
		testBobDN:   testBobPass,
		testCarolDN: testCarolPw,
	}, bobEntry(), carolEntry())

	identities := service.NewSessionIdentityStore(service.SessionIdentityStoreOptions{Logger: logger})
	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Directory:  dir,
		Config:     testDirectoryConfig(),
		Identities: identities,
		Logger:     logger,
	})
	store := session.NewMemoryStore()
	records := &fakeRecords{counts: service.ListCounts{Short: 3, Long: 2}}
	var svc RecordsService = records
	if opts.records != nil {
		svc = opts.records
	}

	var trusted []*net.IPNet
	for _, cidr := range opts.trusted {
		_, n, err := net.ParseCIDR(cidr)
		require.NoError(t, err)
		trusted = append(trusted, n)
	}

	handler := NewRouter(RouterServices{
		Auth:            authSvc,
		Identities:      identities,
		Records:         svc,
		Sessions:        session.NewManager(session.ManagerOptions{Store: store, TTL: time.Hour, Logger: logger}),
		PrincipalHeader: opts.principalHeader,
		TrustedProxies:  trusted,
		HealthChecks:    opts.checks,
		TemplateFS:      os.DirFS(TemplatePathFromTest),
		Logger:          logger,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &routerFixture{server: srv, client: client, dir: dir, store: store, records: records}
}

var csrfMetaRe = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)">`)

// do sends a request and returns the status, headers and body.
func (f *routerFixture) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (f *routerFixture) get(t *testing.T, path string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	for k, vs := range header {
		req.Header[k] = vs
	}
	return f.do(t, req)
}

func (f *routerFixture) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	return f.do(t, req)
}

func (f *routerFixture) postJSON(t *testing.T, path, token, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(DefaultCSRFHeaderName, token)
	return f.do(t, req)
}

// csrfToken loads the login page and returns the session's CSRF token.
func (f *routerFixture) csrfToken(t *testing.T) string {
	t.Helper()
	resp, body := f.get(t, PathLogin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := csrfMetaRe.FindStringSubmatch(body)
	require.Len(t, m, 2, "csrf meta tag missing")
	return m[1]
}

// pageToken reads the CSRF token from any rendered page.
func pageToken(t *testing.T, body string) string {
	t.Helper()
	m := csrfMetaRe.FindStringSubmatch(body)
	require.Len(t, m, 2, "csrf meta tag missing")
	return m[1]
}

// login signs bob in through the form and returns the new page token.
func (f *routerFixture) login(t *testing.T, username, password string) *http.Response {
	t.Helper()
	token := f.csrfToken(t)
	resp, _ := f.postForm(t, PathLogin, url.Values{
		DefaultCSRFFormField: {token},
		"username":           {username},
		"password":           {password},
	})
	return resp
}

func (f *routerFixture) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	for _, c := range f.client.Jar.Cookies(u) {
		if c.Name == "lci_session" {
			return c
		}
	}
	return nil
}
