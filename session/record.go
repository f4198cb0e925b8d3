package session

import (
	"maps"
	"slices"
	"time"
)

// UserType classifies the account a record belongs to.
type UserType string

const (
	UserTypeNormal    UserType = "normal"
	UserTypeAnonymous UserType = "anonymous"
	UserTypeServer    UserType = "server"
)

// Identity is one provider identity linked to a user.
type Identity struct {
	ID           string `cbor:"id" json:"id"`
	ProviderType string `cbor:"provider_type" json:"provider_type"`
}

// Profile is the locally cached user profile.
type Profile struct {
	UserType   UserType          `cbor:"user_type" json:"type"`
	Identities []Identity        `cbor:"identities" json:"identities"`
	Data       map[string]string `cbor:"data,omitempty" json:"data,omitempty"`
}

// AddIdentities appends identities not already present, preserving order,
// and returns how many were added.
func (p *Profile) AddIdentities(ids ...Identity) int {
	added := 0
	for _, id := range ids {
		if slices.Contains(p.Identities, id) {
			continue
		}
		p.Identities = append(p.Identities, id)
		added++
	}
	return added
}

func (p Profile) clone() Profile {
	return Profile{
		UserType:   p.UserType,
		Identities: slices.Clone(p.Identities),
		Data:       maps.Clone(p.Data),
	}
}

// Record is one user's persisted credential bundle. UserID never changes
// once stored.
type Record struct {
	UserID               string    `cbor:"user_id"`
	DeviceID             string    `cbor:"device_id"`
	AccessToken          string    `cbor:"access_token"`
	RefreshToken         string    `cbor:"refresh_token"`
	LoggedInProviderType string    `cbor:"logged_in_provider_type"`
	LoggedInProviderName string    `cbor:"logged_in_provider_name"`
	Profile              Profile   `cbor:"user_profile"`
	LastAuthActivity     time.Time `cbor:"last_auth_activity"`
}

// LoggedIn reports whether the record holds a usable token pair.
func (r Record) LoggedIn() bool {
	return r.AccessToken != "" && r.RefreshToken != ""
}

// Anonymous reports whether the record belongs to an anonymous user.
func (r Record) Anonymous() bool {
	return r.Profile.UserType == UserTypeAnonymous
}

// ClearTokens drops both tokens, leaving the record logged out.
func (r *Record) ClearTokens() {
	r.AccessToken = ""
	r.RefreshToken = ""
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	r.Profile = r.Profile.clone()
	return r
}
