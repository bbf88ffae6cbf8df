package domain

import (
	"fmt"
	"strings"
	"time"
)

type SessionID string

type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "created"
	SessionStatusActive     SessionStatus = "active"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusCancelled  SessionStatus = "cancelled"
	SessionStatusTerminated SessionStatus = "terminated"
	SessionStatusExpired    SessionStatus = "expired"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusCreated, SessionStatusActive, SessionStatusPaused,
		SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled,
		SessionStatusTerminated, SessionStatusExpired:
		return true
	default:
		return false
	}
}

func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled,
		SessionStatusTerminated, SessionStatusExpired:
		return true
	default:
		return false
	}
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusCreated: {SessionStatusActive, SessionStatusCancelled, SessionStatusFailed},
	SessionStatusActive:  {SessionStatusPaused, SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled},
	SessionStatusPaused:  {SessionStatusActive, SessionStatusFailed, SessionStatusCancelled},
}

// CanTransition covers the lifecycle graph. Expiry and explicit termination are
// orthogonal to it and are applied by MarkExpired and Terminate.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateRef is a session's reference to a state entry it wrote or adopted.
type StateRef struct {
	Address    StateAddress
	Version    int64
	ObservedAt time.Time
}

type Session struct {
	ID          SessionID
	OwnerUserID string
	Tenant      string
	Dimensions  []DimensionID
	Scope       Scope
	Priority    int
	Metadata    map[string]any
	Refs        map[string]StateRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	Status      SessionStatus
}

func (s Session) Validate() error {
	if strings.TrimSpace(string(s.ID)) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}
	if !s.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidArgument, s.Scope)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown session status %q", ErrInvalidArgument, s.Status)
	}
	if !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(s.CreatedAt) {
		return fmt.Errorf("%w: session expires before it is created", ErrInvalidArgument)
	}
	return nil
}

func (s Session) IsExpiredAt(now time.Time) bool {
	if s.Status == SessionStatusExpired {
		return true
	}
	if s.ExpiresAt.IsZero() || s.Status.Terminal() {
		return false
	}
	return now.After(s.ExpiresAt)
}

func (s Session) HasDimension(dimension DimensionID) bool {
	for _, d := range s.Dimensions {
		if d == dimension {
			return true
		}
	}
	return false
}

// PrimaryDimension is the dimension used when a write does not name one.
func (s Session) PrimaryDimension() DimensionID {
	if len(s.Dimensions) == 0 {
		return ""
	}
	return s.Dimensions[0]
}

func (s *Session) MarkExpired(now time.Time) {
	s.Status = SessionStatusExpired
	s.UpdatedAt = now
}

func (s *Session) Transition(to SessionStatus, now time.Time) error {
	if s.Status == to {
		return nil
	}
	if !s.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

func (s *Session) Terminate(now time.Time) {
	s.Status = SessionStatusTerminated
	s.UpdatedAt = now
}

func (s *Session) Observe(entry StateEntry, observedAt time.Time) {
	if s.Refs == nil {
		s.Refs = map[string]StateRef{}
	}
	s.Refs[entry.Address.String()] = StateRef{
		Address:    entry.Address,
		Version:    entry.Version,
		ObservedAt: observedAt,
	}
	s.UpdatedAt = observedAt
}

func (s *Session) Forget(address StateAddress, now time.Time) {
	delete(s.Refs, address.String())
	s.UpdatedAt = now
}

// NormalizeDimensions trims and deduplicates dimensions, keeping first-seen order.
func NormalizeDimensions(dimensions []DimensionID) []DimensionID {
	out := make([]DimensionID, 0, len(dimensions))
	seen := make(map[DimensionID]struct{}, len(dimensions))
	for _, d := range dimensions {
		trimmed := DimensionID(strings.TrimSpace(string(d)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
