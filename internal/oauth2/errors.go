package oauth2

import "errors"

var (
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrStateMismatch  = errors.New("state mismatch")
	ErrStateExpired   = errors.New("state expired or unknown")
)
