package graph

import (
	"errors"
	"fmt"
)

// Kind classifies Graph API failures for the sync engine's retry and
// isolation decisions.
type Kind int

const (
	// KindUnavailable covers 5xx responses and transport failures.
	KindUnavailable Kind = iota
	// KindUnauthorized covers 401 and 403 responses.
	KindUnauthorized
	// KindNotFound covers 404 responses.
	KindNotFound
	// KindRateLimited covers 429 responses.
	KindRateLimited
	// KindInvalid covers malformed requests rejected before dispatch.
	KindInvalid
)

// Error is a classified Graph API failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("graph api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("graph api error: %s", e.Message)
}

func kindOf(err error) (Kind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return 0, false
}

// IsUnauthorized reports whether err is a credential failure.
func IsUnauthorized(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnauthorized
}

// IsNotFound reports whether err is a missing-item failure.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsRateLimited reports whether err is a throttling response.
func IsRateLimited(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRateLimited
}

// IsInvalid reports whether err was rejected before dispatch.
func IsInvalid(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvalid
}
