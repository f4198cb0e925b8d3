package devserver

import (
	"encoding/json"

	"github.com/productinfo/stitch-js-sdk/session"
)

// DeviceInfo is the device block clients send with a login.
type DeviceInfo struct {
	DeviceID        string `json:"deviceId,omitempty"`
	AppID           string `json:"appId,omitempty"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	SDKVersion      string `json:"sdkVersion,omitempty"`
}

// LoginRequest is the body of a provider login or link. Only the fields the
// provider understands are read.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	Options  struct {
		Device DeviceInfo `json:"device"`
	} `json:"options"`
}

// LoginResponse is returned by login and link.
type LoginResponse struct {
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type profileResponse struct {
	UserID     string             `json:"user_id"`
	Type       session.UserType   `json:"type"`
	Identities []session.Identity `json:"identities"`
	Data       map[string]string  `json:"data,omitempty"`
}

// RefreshResponse is returned by a session refresh.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// RegisterRequest creates a user/password account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FunctionCallRequest names a function and its positional arguments.
type FunctionCallRequest struct {
	Name      string            `json:"name"`
	Arguments []json.RawMessage `json:"arguments"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}
