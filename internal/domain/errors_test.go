package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conflict", ErrConflict, true},
		{"wrapped conflict", fmt.Errorf("save trade: %w", ErrConflict), true},
		{"remote unavailable", ErrRemoteUnavailable, true},
		{"retriable remote", NewRemoteError("get position", errors.New("timeout")), true},
		{"fatal remote", NewFatalRemoteError("get position", errors.New("bad key")), false},
		{"not found", ErrNotFound, false},
		{"validation", ErrValidation, false},
		{"authentication", ErrAuthentication, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetriable(tc.err); got != tc.want {
				t.Errorf("IsRetriable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRemoteErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewRemoteError("list transactions", cause)

	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Error("retriable remote error should match ErrRemoteUnavailable")
	}

	fatal := NewFatalRemoteError("place order", cause)
	if errors.Is(fatal, ErrRemoteUnavailable) {
		t.Error("fatal remote error should not match ErrRemoteUnavailable")
	}
}

func TestStalePriceError(t *testing.T) {
	err := error(&StalePriceError{})
	var stale *StalePriceError
	if !errors.As(err, &stale) {
		t.Fatal("errors.As should match StalePriceError")
	}
	if IsRetriable(err) {
		t.Error("stale price is a skip-cycle condition, not a retry")
	}
}
