package auth

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
	}{
		{
			name: "fully populated",
			id: Identity{
				CommonName:        "Bob Builder",
				DisplayName:       "Bob B.",
				AccountName:       "bob",
				Email:             "bob@corp.local",
				UserPrincipalName: "bob@corp.local",
				GivenName:         "Bob",
				Surname:           "Builder",
				ObjectID:          "deadbeef",
				Groups:            []string{"CN=g-app-webapp-cpdrlist,OU=Groups,DC=corp,DC=local"},
			},
		},
		{name: "only account name", id: Identity{AccountName: "bob"}},
		{name: "only object id", id: Identity{ObjectID: "00ff"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct, err := DecodeIdentity(EncodeIdentity(tt.id))
			require.NoError(t, err)
			assert.Equal(t, tt.id, direct)

			// Session backends persist the payload as JSON.
			raw, err := json.Marshal(EncodeIdentity(tt.id))
			require.NoError(t, err)
			var payload map[string]any
			require.NoError(t, json.Unmarshal(raw, &payload))

			viaJSON, err := DecodeIdentity(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.id, viaJSON)
		})
	}
}

func TestEncodeIdentity_CopiesGroups(t *testing.T) {
	id := Identity{AccountName: "bob", Groups: []string{"CN=a"}}
	payload := EncodeIdentity(id)
	id.Groups[0] = "CN=mutated"

	assert.Equal(t, []string{"CN=a"}, payload["memberof"])
}

func TestDecodeIdentity_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{name: "nil", payload: nil},
		{name: "missing version", payload: map[string]any{"samaccountname": "bob"}},
		{name: "future version", payload: map[string]any{"v": 2, "samaccountname": "bob"}},
		{name: "wrong field type", payload: map[string]any{"v": 1, "samaccountname": 42}},
		{name: "wrong groups type", payload: map[string]any{"v": 1, "samaccountname": "bob", "memberof": "CN=a"}},
		{name: "non-string group", payload: map[string]any{"v": 1, "samaccountname": "bob", "memberof": []any{"CN=a", 1}}},
		{name: "no identifier", payload: map[string]any{"v": 1, "mail": "bob@corp.local"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIdentity(tt.payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSessionRestore))
			assert.Equal(t, KindSessionRestore, KindOf(err))
		})
	}
}
