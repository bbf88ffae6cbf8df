package status

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

func TestRenderHealthyReport(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(Report{
		Health: application.ServiceHealth{
			Status: application.ServiceHealthy,
			SessionsByStatus: map[domain.SessionStatus]int{
				domain.SessionStatusActive:  3,
				domain.SessionStatusExpired: 1,
			},
			State: domain.StateStats{
				Total:   5,
				ByScope: map[domain.Scope]int{domain.ScopeShared: 4, domain.ScopeTemp: 1},
			},
			Uptime:    90 * time.Minute,
			CheckedAt: now.Add(-30 * time.Second),
		},
		Metrics: application.ServiceMetrics{
			Calls: 12,
			Ops: []application.OpMetric{
				{Op: "create_session", Calls: 4, AverageLatency: 2 * time.Millisecond, MaxLatency: 5 * time.Millisecond},
				{Op: "update_session_state", Calls: 8, AverageLatency: time.Millisecond, MaxLatency: 3 * time.Millisecond},
			},
		},
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "status: healthy")
	assert.Contains(t, output, "uptime: 1h30m0s")
	assert.Contains(t, output, "checked: 30s ago")
	assert.Contains(t, output, "sessions: 4")
	assert.Contains(t, output, "active")
	assert.Contains(t, output, "state entries: 5")
	assert.Contains(t, output, "shared 4  global 0  local 0  temp 1")
	assert.Contains(t, output, "pending conflicts: 0")
	assert.Contains(t, output, "calls: 12  failures: 0")
	assert.Contains(t, output, "create_session")
	assert.NotContains(t, output, "failed]")
	assert.Less(t, strings.Index(output, "update_session_state"), strings.Index(output, "create_session"))
}

func TestRenderDegradedReportListsReasons(t *testing.T) {
	output, err := Render(Report{
		Health: application.ServiceHealth{
			Status:           application.ServiceDegraded,
			Reasons:          []string{"error rate 0.50 above 0.10"},
			PendingConflicts: 2,
			ErrorRate:        0.5,
		},
		Metrics: application.ServiceMetrics{
			Calls:    2,
			Failures: 1,
			Ops:      []application.OpMetric{{Op: "share_state", Calls: 2, Failures: 1}},
		},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "status: degraded")
	assert.Contains(t, output, "! error rate 0.50 above 0.10")
	assert.Contains(t, output, "pending conflicts: 2")
	assert.Contains(t, output, "[##########----------]")
	assert.Contains(t, output, "50.0%")
	assert.Contains(t, output, "[1 failed]")
	assert.Contains(t, output, "checked: never")
}

func TestRenderEmptyReport(t *testing.T) {
	output, err := Render(Report{}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "status: unknown")
	assert.Contains(t, output, "No sessions tracked.")
	assert.Contains(t, output, "No operations recorded.")
}

func TestRenderCapsOperationTable(t *testing.T) {
	output, err := Render(Report{
		Metrics: application.ServiceMetrics{
			Calls: 6,
			Ops: []application.OpMetric{
				{Op: "list_sessions", Calls: 1},
				{Op: "sweep", Calls: 3},
				{Op: "get_state_stats", Calls: 2},
			},
		},
	}, RenderOptions{MaxOps: 2})

	require.NoError(t, err)
	assert.Contains(t, output, "sweep")
	assert.Contains(t, output, "get_state_stats")
	assert.NotContains(t, output, "list_sessions")
}
