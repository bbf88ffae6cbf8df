package domain

import (
	"fmt"
	"strings"
	"time"
)

type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
	ScopeShared Scope = "shared"
	ScopeTemp   Scope = "temp"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal, ScopeShared, ScopeTemp:
		return true
	default:
		return false
	}
}

func ParseScope(raw string) (Scope, error) {
	scope := Scope(strings.ToLower(strings.TrimSpace(raw)))
	if !scope.Valid() {
		return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidArgument, raw)
	}
	return scope, nil
}

// VersionAbsent as an expected version requires that no live entry exists at the address.
const VersionAbsent int64 = -1

type StateAddress struct {
	Scope     Scope
	Dimension DimensionID
	Key       string
}

func (a StateAddress) String() string {
	return string(a.Scope) + "/" + string(a.Dimension) + "/" + a.Key
}

func (a StateAddress) Validate() error {
	if !a.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidArgument, a.Scope)
	}
	if strings.TrimSpace(a.Key) == "" {
		return fmt.Errorf("%w: state key is required", ErrInvalidArgument)
	}
	return nil
}

type StateEntry struct {
	Address   StateAddress
	Value     any
	Version   int64
	Priority  int
	Owner     SessionID
	Metadata  map[string]any
	UpdatedAt time.Time
}

// Accepted reports whether the entry was stored; attempted writes carry version 0.
func (e StateEntry) Accepted() bool {
	return e.Version > 0
}

type StateStats struct {
	Total       int
	ByScope     map[Scope]int
	ByDimension map[DimensionID]int
	OldestWrite time.Time
	NewestWrite time.Time
}
