package auth

import "github.com/productinfo/stitch-js-sdk/internal/util"

// Provider types understood by the backend.
const (
	ProviderTypeAnonymous    = "anon-user"
	ProviderTypeUserPassword = "local-userpass"
	ProviderTypeCustom       = "custom-token"
)

// Credential is what a user presents to log in or link. Material is sent to
// the provider's login route as-is.
type Credential interface {
	ProviderType() string
	ProviderName() string
	Material() map[string]any
}

// SessionReuser is implemented by credentials that should resume an existing
// logged-in session from the same provider instead of creating a new user.
type SessionReuser interface {
	ReusesExistingSession() bool
}

// AnonymousCredential logs in as a new anonymous user, or resumes the
// anonymous user already logged in on this installation.
type AnonymousCredential struct {
	Name string
}

func (c AnonymousCredential) ProviderType() string { return ProviderTypeAnonymous }

func (c AnonymousCredential) ProviderName() string {
	if c.Name == "" {
		return ProviderTypeAnonymous
	}
	return c.Name
}

func (c AnonymousCredential) Material() map[string]any { return map[string]any{} }

func (c AnonymousCredential) ReusesExistingSession() bool { return true }

// UserPasswordCredential logs in with a username (usually an email) and
// password.
type UserPasswordCredential struct {
	Name     string
	Username string
	Password string
}

func (c UserPasswordCredential) ProviderType() string { return ProviderTypeUserPassword }

func (c UserPasswordCredential) ProviderName() string {
	if c.Name == "" {
		return ProviderTypeUserPassword
	}
	return c.Name
}

func (c UserPasswordCredential) Material() map[string]any {
	return map[string]any{
		"username": util.NormalizeUsername(c.Username),
		"password": c.Password,
	}
}

// CustomCredential logs in with a JWT issued by an external authority.
type CustomCredential struct {
	Name  string
	Token string
}

func (c CustomCredential) ProviderType() string { return ProviderTypeCustom }

func (c CustomCredential) ProviderName() string {
	if c.Name == "" {
		return ProviderTypeCustom
	}
	return c.Name
}

func (c CustomCredential) Material() map[string]any {
	return map[string]any{"token": c.Token}
}
