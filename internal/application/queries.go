package application

import (
	"strings"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
)

type ValidateSessionQuery struct {
	SessionID domain.SessionID
}

// GetSessionStateQuery reads one key, or every entry the session references
// when Key is empty.
type GetSessionStateQuery struct {
	SessionID domain.SessionID
	Key       string
	Scope     domain.Scope
	Dimension domain.DimensionID
}

type GetSessionHealthQuery struct {
	SessionID domain.SessionID
}

type ListSessionsQuery struct {
	OwnerUserID string
	Tenant      string
	Status      domain.SessionStatus
}

// GetTenantSummaryQuery summarizes one tenant's sessions. An empty Tenant means
// the caller's own.
type GetTenantSummaryQuery struct {
	Tenant string
}

// ListSessionEventsQuery returns the latest orchestration events of a session,
// oldest first. Limit 0 means DefaultEventLimit.
type ListSessionEventsQuery struct {
	SessionID domain.SessionID
	Limit     int
}

// GetSharedStatesQuery lists entries visible across sessions. An empty Scope
// lists every scope except local.
type GetSharedStatesQuery struct {
	Scope     domain.Scope
	Dimension domain.DimensionID
}

// GetStateConflictsQuery defaults to pending conflicts.
type GetStateConflictsQuery struct {
	Status domain.ConflictStatus
	All    bool
}

type GetStateStatsQuery struct{}

type GetDimensionStatusQuery struct {
	SessionID domain.SessionID
	Dimension domain.DimensionID
}

type GetOrchestrationMetricsQuery struct {
	SessionID domain.SessionID
}

type ListDimensionsQuery struct{}

type GetSessionHealthDetailedQuery struct {
	SessionID domain.SessionID
}

type GetHealthAlertsQuery struct {
	SessionID domain.SessionID
}

type GetPerformanceMetricsQuery struct {
	SessionID  domain.SessionID
	MetricName string
}

type GetServiceHealthQuery struct{}

type GetServiceMetricsQuery struct{}

func (ValidateSessionQuery) Op() Op          { return OpValidateSession }
func (GetSessionStateQuery) Op() Op          { return OpGetSessionState }
func (GetSessionHealthQuery) Op() Op         { return OpGetSessionHealth }
func (ListSessionsQuery) Op() Op             { return OpListSessions }
func (GetSharedStatesQuery) Op() Op          { return OpGetSharedStates }
func (GetStateConflictsQuery) Op() Op        { return OpGetStateConflicts }
func (GetStateStatsQuery) Op() Op            { return OpGetStateStats }
func (GetDimensionStatusQuery) Op() Op       { return OpGetDimensionStatus }
func (GetOrchestrationMetricsQuery) Op() Op  { return OpGetOrchestrationMetrics }
func (ListDimensionsQuery) Op() Op           { return OpListDimensions }
func (GetSessionHealthDetailedQuery) Op() Op { return OpGetSessionHealthDetailed }
func (GetHealthAlertsQuery) Op() Op          { return OpGetHealthAlerts }
func (GetPerformanceMetricsQuery) Op() Op    { return OpGetPerformanceMetrics }
func (GetServiceHealthQuery) Op() Op         { return OpGetServiceHealth }
func (GetServiceMetricsQuery) Op() Op        { return OpGetServiceMetrics }
func (GetTenantSummaryQuery) Op() Op         { return OpGetTenantSummary }
func (ListSessionEventsQuery) Op() Op        { return OpListSessionEvents }

func (q ValidateSessionQuery) target() (domain.SessionID, string)          { return q.SessionID, "" }
func (q GetSessionStateQuery) target() (domain.SessionID, string)          { return q.SessionID, q.Key }
func (q GetSessionHealthQuery) target() (domain.SessionID, string)         { return q.SessionID, "" }
func (q GetDimensionStatusQuery) target() (domain.SessionID, string)       { return q.SessionID, "" }
func (q GetOrchestrationMetricsQuery) target() (domain.SessionID, string)  { return q.SessionID, "" }
func (q GetSessionHealthDetailedQuery) target() (domain.SessionID, string) { return q.SessionID, "" }
func (q GetHealthAlertsQuery) target() (domain.SessionID, string)          { return q.SessionID, "" }
func (q ListSessionEventsQuery) target() (domain.SessionID, string)        { return q.SessionID, "" }
func (q GetPerformanceMetricsQuery) target() (domain.SessionID, string) {
	return q.SessionID, q.MetricName
}

type SessionValidation struct {
	SessionID domain.SessionID
	Valid     bool
	Reason    string
	Status    domain.SessionStatus
	ExpiresAt time.Time
}

type SessionHealth struct {
	SessionID    domain.SessionID
	Status       domain.SessionStatus
	StateCount   int
	Age          time.Duration
	LastActivity time.Time
	ExpiresAt    time.Time
}

type TenantSummary struct {
	Tenant          string
	Total           int
	Live            int
	ByStatus        map[domain.SessionStatus]int
	ByDimension     map[domain.DimensionID]int
	AverageDuration time.Duration
}

type SessionHealthDetailed struct {
	SessionHealth
	Metrics    []domain.MetricSummary
	Alerts     []domain.Alert
	Dimensions []domain.DimensionStatus
}

type ServiceStatus string

const (
	ServiceHealthy  ServiceStatus = "healthy"
	ServiceDegraded ServiceStatus = "degraded"
)

type ServiceHealth struct {
	Status           ServiceStatus
	Reasons          []string
	SessionsByStatus map[domain.SessionStatus]int
	PendingConflicts int
	ErrorRate        float64
	State            domain.StateStats
	Uptime           time.Duration
	CheckedAt        time.Time
}

type OpMetric struct {
	Op             string
	Calls          int64
	Failures       int64
	TotalLatency   time.Duration
	AverageLatency time.Duration
	MaxLatency     time.Duration
}

type ServiceMetrics struct {
	Uptime    time.Duration
	Calls     int64
	Failures  int64
	ErrorRate float64
	Ops       []OpMetric
}

type OrchestrationMetrics struct {
	SessionID       domain.SessionID
	TotalEvents     int
	Failures        int
	ByType          map[string]int
	ByDimension     map[domain.DimensionID]int
	AverageDuration time.Duration
	LastEventAt     time.Time
}

func joinKeys(keys []string) string {
	return strings.Join(keys, ",")
}
