// Package faults is the error taxonomy shared by the vault client core.
//
// Cryptographic and parsing failures are handled where they occur and degrade
// to a skipped item or a no-op. Authentication and network failures travel to
// the immediate caller, which decides whether to re-prompt or report.
package faults

import (
	"errors"
	"fmt"
)

var (
	ErrAuthDenied               = errors.New("authentication denied")
	ErrAuthCancelled            = errors.New("authentication cancelled")
	ErrAuthExpired              = errors.New("authorization window expired")
	ErrCryptoVerificationFailed = errors.New("crypto verification failed")
	ErrMalformedPayload         = errors.New("malformed payload")
	ErrNetworkFailure           = errors.New("network failure")
	ErrIdentityIncomplete       = errors.New("device identity is incomplete")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindAuthDenied
	KindAuthCancelled
	KindAuthExpired
	KindCryptoVerificationFailed
	KindMalformedPayload
	KindNetworkFailure
	KindIdentityIncomplete
)

func (k Kind) String() string {
	switch k {
	case KindAuthDenied:
		return "auth_denied"
	case KindAuthCancelled:
		return "auth_cancelled"
	case KindAuthExpired:
		return "auth_expired"
	case KindCryptoVerificationFailed:
		return "crypto_verification_failed"
	case KindMalformedPayload:
		return "malformed_payload"
	case KindNetworkFailure:
		return "network_failure"
	case KindIdentityIncomplete:
		return "identity_incomplete"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrAuthCancelled, KindAuthCancelled},
	{ErrAuthExpired, KindAuthExpired},
	{ErrAuthDenied, KindAuthDenied},
	{ErrCryptoVerificationFailed, KindCryptoVerificationFailed},
	{ErrMalformedPayload, KindMalformedPayload},
	{ErrNetworkFailure, KindNetworkFailure},
	{ErrIdentityIncomplete, KindIdentityIncomplete},
}

// KindOf classifies err. Errors outside the taxonomy are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Retryable reports whether the user may retry the same trigger.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindAuthDenied, KindAuthCancelled, KindNetworkFailure:
		return true
	default:
		return false
	}
}

// NetworkError is a failed hub exchange: a transport error or a non-2xx status.
type NetworkError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("%s: transport error: %v", e.Operation, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Operation, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.StatusCode)
	}
}

func (e *NetworkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetworkFailure}
	}
	return []error{ErrNetworkFailure, e.Err}
}

// Malformed wraps a parse failure as ErrMalformedPayload.
func Malformed(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, reason)
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, reason, err)
}
