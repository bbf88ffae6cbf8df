package status

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

type Report struct {
	Health  application.ServiceHealth
	Metrics application.ServiceMetrics
}

type RenderOptions struct {
	Now time.Time
	// MaxOps caps the per-operation table; zero shows every operation.
	MaxOps int
}

func renderView(report Report, opts RenderOptions, s styles) string {
	health := report.Health
	lines := []string{
		s.title.Render("Traffic Cop"),
		lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render("status: "), statusLabel(health.Status, s)),
		s.header.Render(fmt.Sprintf("uptime: %s  checked: %s", formatDuration(health.Uptime), formatChecked(health.CheckedAt, opts.Now))),
	}

	for _, reason := range health.Reasons {
		lines = append(lines, s.warning.Render("! "+reason))
	}

	lines = append(lines,
		s.section.Render(sessionLines(health.SessionsByStatus, s)),
		s.section.Render(stateLines(health, s)),
		s.section.Render(opLines(report.Metrics, opts, s)),
	)

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statusLabel(status application.ServiceStatus, s styles) string {
	if status == application.ServiceDegraded {
		return s.degraded.Render(string(status))
	}
	if status == "" {
		return s.empty.Render("unknown")
	}
	return s.healthy.Render(string(status))
}

func sessionLines(byStatus map[domain.SessionStatus]int, s styles) string {
	total := 0
	for _, n := range byStatus {
		total += n
	}
	parts := []string{s.key.Render(fmt.Sprintf("sessions: %d", total))}
	if total == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, append(parts, s.empty.Render("No sessions tracked."))...)
	}

	statuses := make([]domain.SessionStatus, 0, len(byStatus))
	for status, n := range byStatus {
		if n > 0 {
			statuses = append(statuses, status)
		}
	}
	slices.Sort(statuses)
	for _, status := range statuses {
		parts = append(parts, s.detail.Render(fmt.Sprintf("  %-11s %d", status, byStatus[status])))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func stateLines(health application.ServiceHealth, s styles) string {
	parts := []string{
		s.key.Render(fmt.Sprintf("state entries: %d", health.State.Total)),
		s.detail.Render(fmt.Sprintf("  shared %d  global %d  local %d  temp %d",
			health.State.ByScope[domain.ScopeShared],
			health.State.ByScope[domain.ScopeGlobal],
			health.State.ByScope[domain.ScopeLocal],
			health.State.ByScope[domain.ScopeTemp])),
	}

	conflicts := s.detail.Render(fmt.Sprintf("  pending conflicts: %d", health.PendingConflicts))
	if health.PendingConflicts > 0 {
		conflicts = s.warning.Render(fmt.Sprintf("  pending conflicts: %d", health.PendingConflicts))
	}
	parts = append(parts, conflicts, lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.detail.Render("  error rate: "),
		renderProgressBar(health.ErrorRate*100, 20, s),
		s.detail.Render(fmt.Sprintf(" %.1f%%", clampPercent(health.ErrorRate*100))),
	))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func opLines(metrics application.ServiceMetrics, opts RenderOptions, s styles) string {
	parts := []string{s.key.Render(fmt.Sprintf("calls: %d  failures: %d", metrics.Calls, metrics.Failures))}
	if len(metrics.Ops) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, append(parts, s.empty.Render("No operations recorded."))...)
	}

	ops := slices.Clone(metrics.Ops)
	slices.SortStableFunc(ops, func(a, b application.OpMetric) int {
		return int(b.Calls - a.Calls)
	})
	if opts.MaxOps > 0 && len(ops) > opts.MaxOps {
		ops = ops[:opts.MaxOps]
	}

	for _, op := range ops {
		line := lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.opName.Render(op.Op),
			s.detail.Render(fmt.Sprintf("%6d calls  avg %s  max %s", op.Calls, formatLatency(op.AverageLatency), formatLatency(op.MaxLatency))),
		)
		if op.Failures > 0 {
			line += " " + s.warning.Render(fmt.Sprintf("[%d failed]", op.Failures))
		}
		parts = append(parts, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100))
	filled = min(max(filled, 0), width)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("#", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Truncate(time.Second).String()
}

func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return d.Truncate(time.Microsecond).String()
	}
	return d.Truncate(100 * time.Microsecond).String()
}

func formatChecked(checkedAt, now time.Time) string {
	if checkedAt.IsZero() {
		return "never"
	}
	if now.IsZero() || now.Before(checkedAt) {
		return checkedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s ago", formatDuration(now.Sub(checkedAt)))
}
