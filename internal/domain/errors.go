package domain

import (
	"errors"
	"fmt"
	"time"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrRemoteUnavailable)
}

// RemoteError represents a failure talking to a collaborator (exchange,
// transaction source). Retriable unless marked fatal.
type RemoteError struct {
	Op        string // Operation that failed (e.g., "positions", "transactions_list")
	Err       error  // Underlying error
	Retriable bool
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) IsRetriable() bool {
	return e.Retriable
}

func (e *RemoteError) Unwrap() error {
	if e.Retriable {
		return ErrRemoteUnavailable
	}
	return e.Err
}

// NewRemoteError creates a retriable remote error
func NewRemoteError(op string, err error) *RemoteError {
	return &RemoteError{Op: op, Err: err, Retriable: true}
}

// NewFatalRemoteError creates a non-retriable remote error
func NewFatalRemoteError(op string, err error) *RemoteError {
	return &RemoteError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// StalePriceError is returned by the price cache when the cached tick is
// older than the configured staleness threshold.
type StalePriceError struct {
	At time.Time // timestamp of the stale tick
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("stale price: last tick at %s", e.At.Format(time.RFC3339))
}

// InvariantViolationError signals ledger or pairing state that must never
// occur (an unbalanced posting, a leg bound to two live trades). The
// in-progress pass must abort rather than risk corrupting the ledger.
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Detail
}

func (e *InvariantViolationError) IsRetriable() bool {
	return false
}

var (
	// ErrNotFound is returned when a loop or query found nothing.
	// Expected termination, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on a storage serialization conflict.
	// The same logical operation can be retried.
	ErrConflict = errors.New("serialization conflict")

	// ErrValidation is returned for malformed ticks or amounts. The input
	// is dropped; non-fatal.
	ErrValidation = errors.New("validation failed")

	// ErrAuthentication is returned when a collaborator rejects our
	// credentials. Fatal; requires operator action.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRemoteUnavailable is returned when a collaborator is temporarily
	// unreachable. Retriable with bounded backoff.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrNoPriceAvailable is returned by the price cache before any tick
	// has been accepted.
	ErrNoPriceAvailable = errors.New("no price available")
)
