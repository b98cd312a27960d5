package resilience

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExhausted matches every [*ExhaustedError].
var ErrExhausted = errors.New("resilience: all provider credentials exhausted")

// TransientError is a single provider attempt that failed: a 429 or 5xx
// status, a network error or a timeout. Status is 0 when the failure
// carried no HTTP status.
type TransientError struct {
	ProviderID string
	Credential int
	Status     int

	// Rejected is set for statuses that retrying will not fix, such as a
	// revoked key. The credential is failed either way.
	Rejected bool

	Err error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s#%d: status %d: %v", e.ProviderID, e.Credential, e.Status, e.Err)
	}
	return fmt.Sprintf("%s#%d: %v", e.ProviderID, e.Credential, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx reply without usable completion text.
// The router treats it exactly like a [TransientError].
type MalformedResponseError struct {
	ProviderID string
	Credential int
	Err        error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s#%d: malformed response: %v", e.ProviderID, e.Credential, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ExhaustedError is returned by [Router.Request] when no credential in the
// chain is usable. Attempts lists the failures of this request in order;
// it is empty when every credential had already failed earlier.
type ExhaustedError struct {
	Attempts []error
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrExhausted.Error() + " (no live credentials)"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("%s: %s", ErrExhausted.Error(), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrExhausted) hold.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Unwrap exposes the individual attempt errors.
func (e *ExhaustedError) Unwrap() []error { return e.Attempts }
