package auth

import (
	"errors"
	"fmt"
)

// Key errors
var (
	ErrKeyFetch   = errors.New("signing keys unavailable")
	ErrUnknownKey = errors.New("no signing key for key id")
)

// Reason is a machine-readable cause of an authentication failure.
type Reason string

const (
	ReasonMissing    Reason = "missing"
	ReasonMalformed  Reason = "malformed"
	ReasonKeyFetch   Reason = "key_fetch"
	ReasonUnknownKey Reason = "unknown_key"
	ReasonSignature  Reason = "signature"
	ReasonIssuer     Reason = "issuer"
	ReasonAudience   Reason = "audience"
	ReasonExpired    Reason = "expired"
	ReasonInvalid    Reason = "invalid"
)

// AuthError is the single failure type returned by Verify.
type AuthError struct {
	Reason Reason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth failed: %s", e.Reason)
	}
	return fmt.Sprintf("auth failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason, or "" for nil and foreign errors.
func ReasonOf(err error) Reason {
	var aerr *AuthError
	if errors.As(err, &aerr) {
		return aerr.Reason
	}
	return ""
}
