package client

import (
	"errors"
	"fmt"

	"github.com/productinfo/stitch-js-sdk/auth"
)

// Error codes returned by the backend in the error_code field.
const (
	CodeInvalidSession       = "InvalidSession"
	CodeAuthProviderNotFound = "AuthProviderNotFound"
	CodeInvalidPassword      = "InvalidPassword"
	CodeUserNotFound         = "UserNotFound"
	CodeAccountNameInUse     = "AccountNameInUse"
	CodeIdentityInUse        = "IdentityAlreadyExists"
	CodeFunctionNotFound     = "FunctionNotFound"
	CodeFunctionExecution    = "FunctionExecutionError"
	CodeInvalidParameter     = "InvalidParameter"
	CodeTooManyRequests      = "TooManyRequests"
	CodeUnknown              = "Unknown"
)

// ErrMalformedResponse is returned when a response body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// ServiceError is a non-2xx response from the backend.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error %d (%s)", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("backend error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is reports rejected access or refresh tokens as auth.ErrInvalidSession.
func (e *ServiceError) Is(target error) bool {
	return target == auth.ErrInvalidSession && e.Code == CodeInvalidSession
}

// TransportError wraps failures to reach the backend at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// HasCode reports whether err is a ServiceError carrying code.
func HasCode(err error, code string) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == code
}
