package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cjeanneret/camguard/internal/hw/camera"
	"github.com/cjeanneret/camguard/internal/preflight"
)

// Kind classifies a failed capture.
type Kind int

const (
	Unclassified Kind = iota
	StartupFailure
	PermissionDenied
	InvalidConfig
	Incompatible
	Timeout
	Canceled
)

var kindNames = [...]string{
	Unclassified:     "Unclassified",
	StartupFailure:   "StartupFailure",
	PermissionDenied: "PermissionDenied",
	InvalidConfig:    "InvalidConfig",
	Incompatible:     "Incompatible",
	Timeout:          "Timeout",
	Canceled:         "Canceled",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText renders the kind by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown capture error kind %q", b)
}

// startFailurePattern is matched against messages from cameras that report
// start failures as plain text instead of wrapping camera.ErrStartFailed.
const startFailurePattern = "Camera failed to start"

// Error is returned for every failed capture.
// Message is the original error's message.
type Error struct {
	Message string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func newError(err error) *Error {
	return &Error{Message: err.Error(), Kind: Classify(err), Err: err}
}

// Classify maps err to a Kind. Sentinels win over message text.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Unclassified
	case errors.Is(err, camera.ErrStartFailed):
		return StartupFailure
	case errors.Is(err, preflight.ErrPermission):
		return PermissionDenied
	case errors.Is(err, preflight.ErrInvalidConfig):
		return InvalidConfig
	case errors.Is(err, preflight.ErrIncompatible):
		return Incompatible
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, context.Canceled):
		return Canceled
	case strings.Contains(err.Error(), startFailurePattern):
		return StartupFailure
	}
	return Unclassified
}

// KindOf returns the kind carried by a wrapped *Error, or classifies err.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Classify(err)
}
