package application

import (
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
)

// CreateSessionCommand opens a session. Zero TTL and zero ExpiresAt mean the
// configured session TTL; an empty Scope means shared.
type CreateSessionCommand struct {
	OwnerUserID string
	Tenant      string
	Dimensions  []domain.DimensionID
	Scope       domain.Scope
	Priority    int
	TTL         time.Duration
	ExpiresAt   time.Time
	Metadata    map[string]any
}

// UpdateSessionStateCommand writes one key through the session. Scope and
// Dimension default to the session's scope and primary dimension, and a zero
// Priority inherits the session's priority.
type UpdateSessionStateCommand struct {
	SessionID       domain.SessionID
	Key             string
	Value           any
	Scope           domain.Scope
	Dimension       domain.DimensionID
	Priority        int
	Metadata        map[string]any
	ExpectedVersion int64
}

type TerminateSessionCommand struct {
	SessionID domain.SessionID
}

// TransitionSessionCommand moves a session along its lifecycle (pause, resume,
// complete, fail, cancel).
type TransitionSessionCommand struct {
	SessionID domain.SessionID
	To        domain.SessionStatus
}

type ExtendSessionCommand struct {
	SessionID domain.SessionID
	TTL       time.Duration
}

type DeleteStateCommand struct {
	SessionID domain.SessionID
	Key       string
	Scope     domain.Scope
	Dimension domain.DimensionID
}

// ShareStateCommand writes one value into every named dimension and into the
// accessible address of every named session.
type ShareStateCommand struct {
	SessionID  domain.SessionID
	Key        string
	Value      any
	Dimensions []domain.DimensionID
	Sessions   []domain.SessionID
	Scope      domain.Scope
	Priority   int
	Metadata   map[string]any
}

// ResolveConflictCommand resolves a recorded conflict by id, or the latest
// pending conflict on a key. Without a session, Scope and Dimension locate the key.
type ResolveConflictCommand struct {
	ConflictID domain.ConflictID
	SessionID  domain.SessionID
	Key        string
	Scope      domain.Scope
	Dimension  domain.DimensionID
	Strategy   domain.ConflictStrategy
}

type SynchronizeStatesCommand struct {
	SourceSessionID  domain.SessionID
	TargetSessionIDs []domain.SessionID
	Keys             []string
	Strategy         domain.SyncStrategy
	Scope            domain.Scope
	Dimension        domain.DimensionID
	ConflictStrategy domain.ConflictStrategy
}

type CreateCrossDimensionalSessionCommand struct {
	OwnerUserID          string
	Tenant               string
	Dimensions           []domain.DimensionID
	Metadata             map[string]any
	CoordinationStrategy string
	Scope                domain.Scope
	Priority             int
	TTL                  time.Duration
}

type CoordinateDimensionsCommand struct {
	SessionID        domain.SessionID
	Type             domain.CoordinationType
	TargetDimensions []domain.DimensionID
	Payload          map[string]any
}

// ExecuteWorkflowCommand runs steps across dimensions. Without a SessionID the
// workflow runs inside a new session owned by OwnerUserID.
type ExecuteWorkflowCommand struct {
	SessionID   domain.SessionID
	OwnerUserID string
	Tenant      string
	Dimensions  []domain.DimensionID
	Steps       []domain.WorkflowStep
	Strategy    domain.ExecutionStrategy
}

type CollectMetricsCommand struct {
	SessionID  domain.SessionID
	Type       domain.MetricType
	Name       string
	Value      float64
	Dimensions []domain.DimensionID
	Metadata   map[string]any
}

type SetAlertThresholdCommand struct {
	MetricName     string
	ThresholdValue float64
	Comparator     domain.Comparator
	Message        string
}

type RegisterDimensionCommand struct {
	ID          domain.DimensionID
	DisplayName string
}

type SweepCommand struct{}

func (CreateSessionCommand) Op() Op                 { return OpCreateSession }
func (UpdateSessionStateCommand) Op() Op            { return OpUpdateSessionState }
func (TerminateSessionCommand) Op() Op              { return OpTerminateSession }
func (TransitionSessionCommand) Op() Op             { return OpTransitionSession }
func (ExtendSessionCommand) Op() Op                 { return OpExtendSession }
func (DeleteStateCommand) Op() Op                   { return OpDeleteState }
func (ShareStateCommand) Op() Op                    { return OpShareState }
func (ResolveConflictCommand) Op() Op               { return OpResolveStateConflict }
func (SynchronizeStatesCommand) Op() Op             { return OpSynchronizeStates }
func (CreateCrossDimensionalSessionCommand) Op() Op { return OpCreateCrossDimensionalSession }
func (CoordinateDimensionsCommand) Op() Op          { return OpCoordinateDimensions }
func (ExecuteWorkflowCommand) Op() Op               { return OpExecuteCrossDimensionalWorkflow }
func (CollectMetricsCommand) Op() Op                { return OpCollectMetrics }
func (SetAlertThresholdCommand) Op() Op             { return OpSetAlertThreshold }
func (RegisterDimensionCommand) Op() Op             { return OpRegisterDimension }
func (SweepCommand) Op() Op                         { return OpSweep }

func (c UpdateSessionStateCommand) target() (domain.SessionID, string) { return c.SessionID, c.Key }
func (c TerminateSessionCommand) target() (domain.SessionID, string)   { return c.SessionID, "" }
func (c TransitionSessionCommand) target() (domain.SessionID, string)  { return c.SessionID, "" }
func (c ExtendSessionCommand) target() (domain.SessionID, string)      { return c.SessionID, "" }
func (c DeleteStateCommand) target() (domain.SessionID, string)        { return c.SessionID, c.Key }
func (c ShareStateCommand) target() (domain.SessionID, string)         { return c.SessionID, c.Key }
func (c ResolveConflictCommand) target() (domain.SessionID, string)    { return c.SessionID, c.Key }
func (c SynchronizeStatesCommand) target() (domain.SessionID, string) {
	return c.SourceSessionID, joinKeys(c.Keys)
}
func (c CoordinateDimensionsCommand) target() (domain.SessionID, string) { return c.SessionID, "" }
func (c ExecuteWorkflowCommand) target() (domain.SessionID, string)      { return c.SessionID, "" }
func (c CollectMetricsCommand) target() (domain.SessionID, string)       { return c.SessionID, c.Name }
func (c SetAlertThresholdCommand) target() (domain.SessionID, string)    { return "", c.MetricName }

type StateDeletion struct {
	SessionID domain.SessionID
	Key       string
	Deleted   bool
}
