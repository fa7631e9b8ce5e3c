package engine

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations invoked on a closed collection.
var ErrClosed = errors.New("collection is closed")

// TransientFetchError wraps a snapshot fetch failure that is worth retrying.
// The collection keeps its previous items and surfaces this via LastError.
type TransientFetchError struct {
	Err error
}

func (e *TransientFetchError) Error() string { return fmt.Sprintf("transient fetch error: %v", e.Err) }
func (e *TransientFetchError) Unwrap() error { return e.Err }

// AuthExpiredError means the user session is no longer valid. The collection
// closes itself and waits for re-authentication instead of retrying.
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string { return fmt.Sprintf("auth expired: %v", e.Err) }
func (e *AuthExpiredError) Unwrap() error { return e.Err }

// SubscriptionEstablishError means the change feed could not be opened. The
// collection stays usable through manual Refetch but loses push freshness.
type SubscriptionEstablishError struct {
	Err error
}

func (e *SubscriptionEstablishError) Error() string {
	return fmt.Sprintf("subscription not established: %v", e.Err)
}
func (e *SubscriptionEstablishError) Unwrap() error { return e.Err }

// ValidationError rejects a mutation before the remote store is called.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation failed: %v", e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

func IsAuthExpired(err error) bool {
	var ae *AuthExpiredError
	return errors.As(err, &ae)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// classifyFetchError keeps typed errors as-is and wraps everything else as
// transient, so callers can rely on errors.As against the taxonomy above.
func classifyFetchError(err error) error {
	var ae *AuthExpiredError
	var te *TransientFetchError
	if errors.As(err, &ae) || errors.As(err, &te) {
		return err
	}
	return &TransientFetchError{Err: err}
}
