package auth

import (
	"errors"

	"github.com/productinfo/stitch-js-sdk/session"
)

var (
	// ErrUnknownUser indicates the user id is not known locally.
	ErrUnknownUser = session.ErrUnknownUser
	// ErrDuplicateUser indicates an attempt to add a user that is already known.
	ErrDuplicateUser = session.ErrDuplicateUser
	// ErrUserNotActive indicates an operation that requires the target user to be active.
	ErrUserNotActive = errors.New("user is not the active user")
	// ErrUserNotLoggedIn indicates the target user has no valid tokens.
	ErrUserNotLoggedIn = errors.New("user is not logged in")
	// ErrNotLoggedIn indicates there is no active user.
	ErrNotLoggedIn = errors.New("no user is logged in")
	// ErrLinkedUserMismatch indicates the backend bound a link to a different user.
	ErrLinkedUserMismatch = errors.New("linked identity belongs to a different user")
	// ErrInvalidSession is matched by network errors that mean the access
	// token was rejected and a refresh may help.
	ErrInvalidSession = errors.New("invalid session")
	// ErrClosed indicates the Auth has been closed.
	ErrClosed = errors.New("auth closed")
)
