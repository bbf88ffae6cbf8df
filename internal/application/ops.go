package application

import (
	"fmt"
	"strings"

	"github.com/symphainy/trafficcop/internal/domain"
)

// Op identifies an engine operation. The set is closed: every Request returns
// one of these and Engine.Execute handles each of them.
type Op int

const (
	OpUnknown Op = iota

	OpCreateSession
	OpValidateSession
	OpUpdateSessionState
	OpGetSessionState
	OpTerminateSession
	OpGetSessionHealth

	OpShareState
	OpResolveStateConflict
	OpSynchronizeStates
	OpGetSharedStates
	OpGetStateConflicts

	OpCreateCrossDimensionalSession
	OpCoordinateDimensions
	OpExecuteCrossDimensionalWorkflow
	OpGetDimensionStatus
	OpGetOrchestrationMetrics

	OpCollectMetrics
	OpGetSessionHealthDetailed
	OpSetAlertThreshold
	OpGetHealthAlerts
	OpGetPerformanceMetrics

	OpGetServiceHealth
	OpGetServiceMetrics

	// Administrative operations used by the CLI and the sweeper.
	OpTransitionSession
	OpExtendSession
	OpListSessions
	OpDeleteState
	OpGetStateStats
	OpListDimensions
	OpRegisterDimension
	OpSweep
	OpGetTenantSummary
	OpListSessionEvents

	opCount
)

var opNames = [opCount]string{
	OpUnknown:                         "unknown",
	OpCreateSession:                   "create_session",
	OpValidateSession:                 "validate_session",
	OpUpdateSessionState:              "update_session_state",
	OpGetSessionState:                 "get_session_state",
	OpTerminateSession:                "terminate_session",
	OpGetSessionHealth:                "get_session_health",
	OpShareState:                      "share_state",
	OpResolveStateConflict:            "resolve_state_conflict",
	OpSynchronizeStates:               "synchronize_states",
	OpGetSharedStates:                 "get_shared_states",
	OpGetStateConflicts:               "get_state_conflicts",
	OpCreateCrossDimensionalSession:   "create_cross_dimensional_session",
	OpCoordinateDimensions:            "coordinate_dimensions",
	OpExecuteCrossDimensionalWorkflow: "execute_cross_dimensional_workflow",
	OpGetDimensionStatus:              "get_dimension_status",
	OpGetOrchestrationMetrics:         "get_orchestration_metrics",
	OpCollectMetrics:                  "collect_metrics",
	OpGetSessionHealthDetailed:        "get_session_health_detailed",
	OpSetAlertThreshold:               "set_alert_threshold",
	OpGetHealthAlerts:                 "get_health_alerts",
	OpGetPerformanceMetrics:           "get_performance_metrics",
	OpGetServiceHealth:                "get_service_health",
	OpGetServiceMetrics:               "get_service_metrics",
	OpTransitionSession:               "transition_session",
	OpExtendSession:                   "extend_session",
	OpListSessions:                    "list_sessions",
	OpDeleteState:                     "delete_state",
	OpGetStateStats:                   "get_state_stats",
	OpListDimensions:                  "list_dimensions",
	OpRegisterDimension:               "register_dimension",
	OpSweep:                           "sweep",
	OpGetTenantSummary:                "get_tenant_summary",
	OpListSessionEvents:               "list_session_events",
}

func (o Op) String() string {
	if o < 0 || o >= opCount {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

func ParseOp(raw string) (Op, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for op := OpUnknown + 1; op < opCount; op++ {
		if opNames[op] == name {
			return op, nil
		}
	}
	return OpUnknown, fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidArgument, raw)
}

// Ops lists every known operation in declaration order.
func Ops() []Op {
	ops := make([]Op, 0, opCount-1)
	for op := OpUnknown + 1; op < opCount; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Request is implemented by every command and query the engine accepts.
type Request interface {
	Op() Op
}

// target is implemented by requests bound to a session or key so failures can be
// reported with them.
type target interface {
	target() (domain.SessionID, string)
}
