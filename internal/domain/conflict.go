package domain

import (
	"fmt"
	"strings"
	"time"
)

type ConflictStrategy string

const (
	StrategyMerge    ConflictStrategy = "merge"
	StrategyOverride ConflictStrategy = "override"
	StrategyPreserve ConflictStrategy = "preserve"
	StrategyConflict ConflictStrategy = "conflict"
)

func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyMerge, StrategyOverride, StrategyPreserve, StrategyConflict:
		return true
	default:
		return false
	}
}

func ParseConflictStrategy(raw string) (ConflictStrategy, error) {
	strategy := ConflictStrategy(strings.ToLower(strings.TrimSpace(raw)))
	if !strategy.Valid() {
		return "", fmt.Errorf("%w: unknown conflict strategy %q", ErrInvalidArgument, raw)
	}
	return strategy, nil
}

type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

type ConflictID string

// Conflict groups the competing entries for one logical key. Addresses lists every
// location the resolved value is written back to.
type Conflict struct {
	ID            ConflictID
	Key           string
	Addresses     []StateAddress
	Competing     []StateEntry
	Strategy      ConflictStrategy
	SessionID     SessionID
	Status        ConflictStatus
	Reason        string
	ResolvedValue any
	ResolvedEntry *StateEntry
	CreatedAt     time.Time
	ResolvedAt    time.Time
}

func (c Conflict) Pending() bool {
	return c.Status == ConflictPending
}

func (c Conflict) HasAddress(address StateAddress) bool {
	for _, a := range c.Addresses {
		if a == address {
			return true
		}
	}
	return false
}
