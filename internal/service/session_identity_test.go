package service

import (
	"context"
	"testing"
	"time"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIdentityStore_RoundTrip(t *testing.T) {
	store := NewSessionIdentityStore(SessionIdentityStoreOptions{})
	ctx := context.Background()

	tests := []struct {
		name string
		id   domainauth.Identity
	}{
		{name: "fully populated", id: domainauth.MapEntry(bobEntry())},
		{name: "account name only", id: domainauth.Identity{AccountName: "carol"}},
		{name: "guid only", id: domainauth.Identity{ObjectID: "00ff"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := session.New()
			require.NoError(t, store.Persist(ctx, sess, tt.id, domainauth.ParseUsername(`LC\x`)))

			got, ok := store.Restore(ctx, sess)
			require.True(t, ok)
			assert.Equal(t, tt.id, got)
		})
	}
}

func TestSessionIdentityStore_RoundTripThroughStore(t *testing.T) {
	store := NewSessionIdentityStore(SessionIdentityStoreOptions{})
	backend := session.NewMemoryStore()
	ctx := context.Background()

	id := domainauth.MapEntry(bobEntry())
	sess := session.New()
	require.NoError(t, store.Persist(ctx, sess, id, domainauth.ParseUsername("bob")))
	require.NoError(t, backend.Save(ctx, sess.Record(), time.Hour))

	rec, err := backend.Get(ctx, sess.ID())
	require.NoError(t, err)

	got, ok := store.Restore(ctx, session.Load(rec))
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestSessionIdentityStore_PersistRegenerates(t *testing.T) {
	store := NewSessionIdentityStore(SessionIdentityStoreOptions{})
	sess := session.New()
	before := sess.ID()

	require.NoError(t, store.Persist(context.Background(), sess, domainauth.Identity{AccountName: "bob"}, domainauth.ParseUsername("bob")))
	assert.NotEqual(t, before, sess.ID())
}

func TestSessionIdentityStore_PersistRejectsInvalidIdentity(t *testing.T) {
	store := NewSessionIdentityStore(SessionIdentityStoreOptions{})
	sess := session.New()
	before := sess.ID()

	err := store.Persist(context.Background(), sess, domainauth.Identity{DisplayName: "nobody"}, domainauth.Credential{})
	require.Error(t, err)
	assertSessionUntouched(t, sess, before)

	assert.Error(t, store.Persist(context.Background(), nil, domainauth.Identity{AccountName: "bob"}, domainauth.Credential{}))
}

func TestSessionIdentityStore_RestoreAbsentOrMalformed(t *testing.T) {
	sink := &recordingSink{}
	store := NewSessionIdentityStore(SessionIdentityStoreOptions{Metrics: sink})
	ctx := context.Background()

	_, ok := store.Restore(ctx, session.New())
	assert.False(t, ok)
	m, found := sink.find("auth.session.restore")
	require.True(t, found)
	assert.Equal(t, "absent", m.tags["result"])

	payloads := []any{
		"not a map",
		map[string]any{"v": 2, "samaccountname": "bob"},
		map[string]any{"v": 1, "samaccountname": 42},
		map[string]any{"v": 1},
	}
	for _, p := range payloads {
		sess := session.New()
		sess.Put(SessionKeyUser, p)
		before := sess.ID()

		_, ok := store.Restore(ctx, sess)
		assert.False(t, ok, "payload %#v", p)
		// restore never mutates
		assert.Equal(t, before, sess.ID())
		_, still := sess.Get(SessionKeyUser)
		assert.True(t, still)
	}

	_, ok = store.Restore(ctx, nil)
	assert.False(t, ok)
}

func TestSessionIdentityStore_Invalidate(t *testing.T) {
	store := NewSessionIdentityStore(SessionIdentityStoreOptions{})
	ctx := context.Background()
	sess := session.New()
	require.NoError(t, store.Persist(ctx, sess, domainauth.Identity{AccountName: "bob"}, domainauth.ParseUsername(`LC\bob`)))
	sess.Put("flash", "keep me")
	before := sess.ID()

	store.Invalidate(ctx, sess)

	assert.NotEqual(t, before, sess.ID())
	for _, k := range identityKeys {
		_, ok := sess.Get(k)
		assert.False(t, ok, k)
	}
	v, _ := sess.Get("flash")
	assert.Equal(t, "keep me", v)

	_, ok := store.Restore(ctx, sess)
	assert.False(t, ok)
}
