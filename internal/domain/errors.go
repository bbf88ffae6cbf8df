package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionClosed      = errors.New("session closed")
	ErrSessionPaused      = errors.New("session paused")
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrStateNotFound      = errors.New("state not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrUnmergeableType    = errors.New("unmergeable type")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
	ErrThresholdConfig    = errors.New("invalid alert threshold")
	ErrTenantAccessDenied = errors.New("tenant access denied")
	ErrConflictNotFound   = errors.New("conflict not found")
	ErrConflictResolved   = errors.New("conflict already resolved")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// VersionConflictError is returned by a compare-and-swap put whose expected version
// does not match the stored one. Current is the zero entry when nothing is stored.
type VersionConflictError struct {
	Address    StateAddress
	Expected   int64
	Current    StateEntry
	Attempted  StateEntry
	ConflictID ConflictID
}

func (e *VersionConflictError) Error() string {
	msg := fmt.Sprintf("version conflict on %s: expected %d, current %d", e.Address, e.Expected, e.Current.Version)
	if e.ConflictID != "" {
		msg += " (conflict " + string(e.ConflictID) + ")"
	}
	return msg
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

type UnmergeableError struct {
	Key        string
	Types      []string
	ConflictID ConflictID
}

func (e *UnmergeableError) Error() string {
	return fmt.Sprintf("cannot merge %s: values of type %s are not structured", e.Key, strings.Join(e.Types, ", "))
}

func (e *UnmergeableError) Is(target error) bool {
	return target == ErrUnmergeableType
}

type ThresholdConfigError struct {
	Field  string
	Reason string
}

func (e *ThresholdConfigError) Error() string {
	return fmt.Sprintf("invalid alert threshold: %s %s", e.Field, e.Reason)
}

func (e *ThresholdConfigError) Is(target error) bool {
	return target == ErrThresholdConfig
}

// OpError tags an error with the operation, session and key it originated from.
type OpError struct {
	Op        string
	SessionID SessionID
	Key       string
	Err       error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.SessionID != "" {
		b.WriteString(" session=")
		b.WriteString(string(e.SessionID))
	}
	if e.Key != "" {
		b.WriteString(" key=")
		b.WriteString(e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller should re-read and retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
