package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_PutGetForget(t *testing.T) {
	s := New()
	require.NotEmpty(t, s.ID())

	_, ok := s.Get("auth.username")
	assert.False(t, ok)

	s.Put("auth.username", "bob")
	v, ok := s.Get("auth.username")
	require.True(t, ok)
	assert.Equal(t, "bob", v)

	s.Forget("auth.username", "missing")
	_, ok = s.Get("auth.username")
	assert.False(t, ok)
}

func TestSession_RegenerateKeepsValues(t *testing.T) {
	s := Load(domainauth.Session{ID: "old", Values: map[string]any{"k": "v"}})
	s.Regenerate()

	assert.NotEqual(t, "old", s.ID())
	v, _ := s.Get("k")
	assert.Equal(t, "v", v)

	st := s.snapshot()
	assert.Equal(t, []string{"old"}, st.retired)
	assert.False(t, st.stored)
}

func TestSession_Invalidate(t *testing.T) {
	s := Load(domainauth.Session{ID: "old", Values: map[string]any{"k": "v"}})
	s.Invalidate()

	assert.NotEqual(t, "old", s.ID())
	assert.True(t, s.snapshot().empty)
}

func TestSession_Context(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := New()
	got, ok := FromContext(NewContext(context.Background(), s))
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	sess := domainauth.Session{ID: "s1", Values: map[string]any{"groups": []string{"a", "b"}, "v": 1}}
	require.NoError(t, store.Save(ctx, sess, time.Hour))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	// JSON round trip, same as Redis
	assert.Equal(t, []any{"a", "b"}, got.Values["groups"])
	assert.Equal(t, float64(1), got.Values["v"])

	now = now.Add(time.Hour)
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())

	assert.Error(t, store.Save(ctx, domainauth.Session{}, time.Hour))
	assert.Error(t, store.Save(ctx, sess, 0))
}

func newTestManager(store ports.SessionStore) *Manager {
	return NewManager(ManagerOptions{Store: store, CookieName: "sid", TTL: time.Hour})
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	return nil
}

func TestManager_AnonymousRequestStoresNothing(t *testing.T) {
	store := NewMemoryStore()
	h := newTestManager(store).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 0, store.Len())
	assert.Nil(t, sessionCookie(t, rec))
}

func TestManager_PutPersistsAndReloads(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)

	write := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Put("auth.username", "bob")
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	write.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	c := sessionCookie(t, rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, 3600, c.MaxAge)
	assert.Equal(t, 1, store.Len())

	var seen any
	read := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		seen, _ = s.Get("auth.username")
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	read.ServeHTTP(rec, req)

	assert.Equal(t, "bob", seen)
	// unchanged session: no new cookie
	assert.Nil(t, sessionCookie(t, rec))
}

func TestManager_RegenerateRetiresOldID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "fixated", Values: map[string]any{"x": "y"}}, time.Hour))

	h := newTestManager(store).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Regenerate()
		s.Put("auth.username", "bob")
	}))
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "fixated"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, err := store.Get(ctx, "fixated")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	c := sessionCookie(t, rec)
	require.NotNil(t, c)
	assert.NotEqual(t, "fixated", c.Value)
	got, err := store.Get(ctx, c.Value)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Values["auth.username"])
}

func TestManager_InvalidateClearsCookie(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "s1", Values: map[string]any{"x": "y"}}, time.Hour))

	m := newTestManager(store)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		m.Destroy(w, r, s)
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "s1"})
	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, req)

	assert.Equal(t, 0, store.Len())
	c := sessionCookie(t, rec)
	require.NotNil(t, c)
	assert.Equal(t, "", c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestManager_UnknownCookieStartsFresh(t *testing.T) {
	store := NewMemoryStore()
	var id string
	h := newTestManager(store).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		id = s.ID()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "gone"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotEqual(t, "gone", id)
}
