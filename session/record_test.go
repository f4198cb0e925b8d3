package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddIdentities(t *testing.T) {
	p := Profile{Identities: []Identity{{ID: "a", ProviderType: "anon-user"}}}

	added := p.AddIdentities(
		Identity{ID: "a", ProviderType: "anon-user"},
		Identity{ID: "b", ProviderType: "local-userpass"},
		Identity{ID: "b", ProviderType: "local-userpass"},
	)
	assert.Equal(t, 1, added)
	assert.Equal(t, []Identity{
		{ID: "a", ProviderType: "anon-user"},
		{ID: "b", ProviderType: "local-userpass"},
	}, p.Identities)
}

func TestRecordLoggedIn(t *testing.T) {
	r := Record{UserID: "u1", AccessToken: "a", RefreshToken: "r"}
	assert.True(t, r.LoggedIn())

	r.ClearTokens()
	assert.False(t, r.LoggedIn())
	assert.Equal(t, "u1", r.UserID)

	assert.False(t, Record{AccessToken: "a"}.LoggedIn())
}
