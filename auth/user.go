package auth

import (
	"maps"
	"slices"
	"time"

	"github.com/productinfo/stitch-js-sdk/session"
)

// User is a point-in-time snapshot of a locally known user. It does not
// change when the underlying record does; call Auth methods for fresh data.
type User struct {
	ID                   string
	DeviceID             string
	LoggedInProviderType string
	LoggedInProviderName string
	UserType             session.UserType
	Identities           []session.Identity
	Data                 map[string]string
	LoggedIn             bool
	Active               bool
	LastAuthActivity     time.Time
}

// Anonymous reports whether the user is an anonymous user.
func (u User) Anonymous() bool {
	return u.UserType == session.UserTypeAnonymous
}

func newUser(rec session.Record, activeID string) User {
	return User{
		ID:                   rec.UserID,
		DeviceID:             rec.DeviceID,
		LoggedInProviderType: rec.LoggedInProviderType,
		LoggedInProviderName: rec.LoggedInProviderName,
		UserType:             rec.Profile.UserType,
		Identities:           slices.Clone(rec.Profile.Identities),
		Data:                 maps.Clone(rec.Profile.Data),
		LoggedIn:             rec.LoggedIn(),
		Active:               rec.UserID == activeID,
		LastAuthActivity:     rec.LastAuthActivity,
	}
}
