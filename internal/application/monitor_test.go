package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/domain"
)

func TestCollectMetricsRaisesAlertAboveThreshold(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()
	session := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})

	_, err := f.engine.Execute(ctx, f.caller, SetAlertThresholdCommand{
		MetricName:     "latency",
		ThresholdValue: 500,
		Comparator:     domain.ComparatorGreaterThan,
		Message:        "slow responses",
	})
	require.NoError(t, err)

	res, err := ExecuteAs[CollectResult](ctx, f.engine, f.caller, CollectMetricsCommand{
		SessionID: session.ID,
		Type:      domain.MetricPerformance,
		Name:      "latency",
		Value:     550,
	})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, 550.0, res.Alerts[0].TriggeredValue)
	assert.Equal(t, "slow responses", res.Alerts[0].Rule.Message)
	assert.Equal(t, res.Metric.ID, res.Alerts[0].MetricID)

	quiet, err := ExecuteAs[CollectResult](ctx, f.engine, f.caller, CollectMetricsCommand{
		SessionID: session.ID,
		Type:      domain.MetricPerformance,
		Name:      "latency",
		Value:     120,
	})
	require.NoError(t, err)
	assert.Empty(t, quiet.Alerts)

	alerts, err := ExecuteAs[[]domain.Alert](ctx, f.engine, f.caller, GetHealthAlertsQuery{SessionID: session.ID})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestSetAlertThresholdRejectsBadRules(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	_, err := f.engine.Execute(ctx, f.caller, SetAlertThresholdCommand{MetricName: "latency", ThresholdValue: 1, Comparator: "roughly"})
	require.ErrorIs(t, err, domain.ErrThresholdConfig)

	var thresholdErr *domain.ThresholdConfigError
	require.ErrorAs(t, err, &thresholdErr)
	assert.Equal(t, "threshold_type", thresholdErr.Field)

	_, err = f.engine.Execute(ctx, f.caller, SetAlertThresholdCommand{ThresholdValue: 1, Comparator: domain.ComparatorLessThan})
	require.ErrorIs(t, err, domain.ErrThresholdConfig)

	rules, err := f.engine.Monitor().Rules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCollectMetricsValidatesInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	_, err := f.engine.Execute(ctx, f.caller, CollectMetricsCommand{Type: "vibes", Name: "x", Value: 1})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.engine.Execute(ctx, f.caller, CollectMetricsCommand{SessionID: "missing", Type: domain.MetricActivity, Name: "x", Value: 1})
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPerformanceMetricsSummarizesByName(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()
	session := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})

	for _, sample := range []struct {
		name  string
		value float64
	}{
		{"latency", 100},
		{"latency", 300},
		{"errors", 2},
		{"latency", 200},
	} {
		f.clock.Advance(time.Second)
		_, err := f.engine.Execute(ctx, f.caller, CollectMetricsCommand{
			SessionID: session.ID,
			Type:      domain.MetricPerformance,
			Name:      sample.name,
			Value:     sample.value,
		})
		require.NoError(t, err)
	}

	summaries, err := ExecuteAs[[]domain.MetricSummary](ctx, f.engine, f.caller, GetPerformanceMetricsQuery{SessionID: session.ID})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "errors", summaries[0].Name)

	latency := summaries[1]
	assert.Equal(t, 3, latency.Count)
	assert.Equal(t, 100.0, latency.Min)
	assert.Equal(t, 300.0, latency.Max)
	assert.InDelta(t, 200.0, latency.Mean, 1e-9)
	assert.Equal(t, 200.0, latency.Last)

	only, err := ExecuteAs[[]domain.MetricSummary](ctx, f.engine, f.caller, GetPerformanceMetricsQuery{SessionID: session.ID, MetricName: "errors"})
	require.NoError(t, err)
	require.Len(t, only, 1)

	detailed, err := ExecuteAs[SessionHealthDetailed](ctx, f.engine, f.caller, GetSessionHealthDetailedQuery{SessionID: session.ID})
	require.NoError(t, err)
	assert.Len(t, detailed.Metrics, 2)
	require.Len(t, detailed.Dimensions, 1)
	assert.Equal(t, domain.DimensionID("ops"), detailed.Dimensions[0].Dimension)
}

func TestEngineActivityFeedsAlertRules(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	for _, name := range []string{MetricOpFailures, MetricConflictsRecorded, MetricSyncUnconverged} {
		_, err := f.engine.Execute(ctx, f.caller, SetAlertThresholdCommand{
			MetricName:     name,
			ThresholdValue: 0,
			Comparator:     domain.ComparatorGreaterThan,
			Message:        name + " seen",
		})
		require.NoError(t, err)
	}

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s3 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})
	f.put(t, s1.ID, "doc", "draft")
	f.put(t, s2.ID, "doc", "review")
	f.put(t, s3.ID, "doc", "other")

	_, err := f.engine.Execute(ctx, f.caller, UpdateSessionStateCommand{SessionID: s1.ID, Key: "doc", Value: "final", ExpectedVersion: 1})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s3.ID},
		Keys:             []string{"doc"},
		ConflictStrategy: domain.StrategyConflict,
	})
	require.NoError(t, err)
	require.False(t, res.Converged())

	alerts, err := ExecuteAs[[]domain.Alert](ctx, f.engine, f.caller, GetHealthAlertsQuery{})
	require.NoError(t, err)
	byMetric := map[string]int{}
	for _, alert := range alerts {
		byMetric[alert.Rule.MetricName]++
		assert.Empty(t, alert.SessionID)
	}
	assert.Equal(t, map[string]int{
		MetricOpFailures:        1,
		MetricConflictsRecorded: 2,
		MetricSyncUnconverged:   1,
	}, byMetric)

	latency, err := ExecuteAs[[]domain.MetricSummary](ctx, f.engine, f.caller, GetPerformanceMetricsQuery{MetricName: OpLatencyMetric(OpUpdateSessionState)})
	require.NoError(t, err)
	require.Len(t, latency, 1)
	assert.Equal(t, 4, latency[0].Count)
	assert.Equal(t, domain.MetricPerformance, latency[0].Type)

	own, err := ExecuteAs[[]domain.MetricSummary](ctx, f.engine, f.caller, GetPerformanceMetricsQuery{SessionID: s1.ID})
	require.NoError(t, err)
	assert.Empty(t, own)
}
