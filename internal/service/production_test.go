package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/domain"
)

func newProductionHarness(repo *fakeRepo) (*ProductionTracker, *fakeBroadcaster, time.Time) {
	store := cache.NewMemory()
	b := &fakeBroadcaster{}
	tr := NewProductionTracker(repo, store, b, cache.NewDeduplicator(store), newFakeProvider(), time.Second)
	at := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return at }
	return tr, b, at
}

func TestPlannedHours(t *testing.T) {
	cases := []struct {
		method string
		qty    int
		want   float64
	}{
		{"screen_print", 1000, 24},  // log10(10) = 1 -> base
		{"screen_print", 10000, 48}, // log10(100) = 2
		{"screen_print", 50, 24},    // small runs floor at the base
		{"cut_and_sew", 1000, 72},
		{"unknown_method", 1000, 24},
	}
	for _, tc := range cases {
		got := plannedHours(domain.Order{Method: tc.method, Quantity: tc.qty})
		assert.Equal(t, tc.want, got, "%s x%d", tc.method, tc.qty)
	}
}

func TestExpectedProgress(t *testing.T) {
	assert.Equal(t, 0.0, expectedProgress(5, 0))
	assert.Equal(t, 47.5, expectedProgress(12, 24))
	assert.Equal(t, 95.0, expectedProgress(24, 24), "the last 5%% is earned by finishing")
	assert.Equal(t, 95.0, expectedProgress(48, 24))
}

func steps(orderID string, total, completed int, inProgress *domain.RoutingStep) []domain.RoutingStep {
	out := make([]domain.RoutingStep, 0, total)
	for i := 0; i < total; i++ {
		s := domain.RoutingStep{
			ID: orderID + "-s" + string(rune('a'+i)), OrderID: orderID,
			Sequence: i + 1, Name: "step", WorkCenter: "sewing", Status: domain.StepPending,
		}
		if i < completed {
			s.Status = domain.StepCompleted
		}
		out = append(out, s)
	}
	if inProgress != nil && completed < total {
		inProgress.OrderID = orderID
		inProgress.Sequence = completed + 1
		out[completed] = *inProgress
	}
	return out
}

func TestOverrunOrderIsDelayed(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	tr, b, now := newProductionHarness(repo)

	// dtg base is 16h; 20h elapsed means the order has overrun its plan.
	order := domain.Order{ID: "o1", PONumber: "PO-1001", Method: "dtg", Quantity: 100,
		StartedAt: now.Add(-20 * time.Hour)}
	repo.orders = []domain.Order{order}
	started := now.Add(-14 * time.Hour)
	repo.orderSteps["o1"] = steps("o1", 10, 7, &domain.RoutingStep{
		Name: "hemming", WorkCenter: "sewing", Status: domain.StepInProgress, StartedAt: &started,
	})
	repo.wcCycles["sewing"] = 6

	tr.tick(ctx)

	m, err := tr.Metrics(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 70.0, m.Progress)
	assert.True(t, m.IsDelayed)
	assert.Contains(t, m.DelayReason, "hemming", "a stuck step names the bottleneck")
	assert.Contains(t, m.Bottlenecks, "hemming", "14h in progress against a 6h average")
	assert.Equal(t, 16.0, m.PlannedHours)
	assert.Equal(t, 20.0, m.ActualHours)
	assert.Equal(t, 80.0, m.Efficiency)

	alerts := b.alertsOfType(domain.AlertDelay)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityHigh, alerts[0].Severity, "past 25%% progress stays below critical")
	assert.Equal(t, "o1", alerts[0].OrderID)
	assert.Contains(t, alerts[0].Message, "PO-1001")

	// Same state, next tick: broadcast and alert both stay quiet.
	tr.tick(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertDelay), 1)
	assert.Len(t, b.productionUpdates, 1)
}

func TestEarlyStalledOrderIsCritical(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	tr, b, now := newProductionHarness(repo)

	repo.orders = []domain.Order{{ID: "o1", PONumber: "PO-1002", Method: "dtg", Quantity: 100,
		StartedAt: now.Add(-30 * time.Hour)}}
	repo.orderSteps["o1"] = steps("o1", 10, 1, nil)

	tr.tick(ctx)

	alerts := b.alertsOfType(domain.AlertDelay)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)

	m, _ := tr.Metrics(ctx, "o1")
	require.NotNil(t, m)
	assert.Equal(t, "behind schedule", m.DelayReason)
}

func TestOnScheduleOrderNotDelayed(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	tr, b, now := newProductionHarness(repo)

	repo.orders = []domain.Order{{ID: "o1", PONumber: "PO-1003", Method: "cut_and_sew", Quantity: 500,
		StartedAt: now.Add(-10 * time.Hour)}}
	repo.orderSteps["o1"] = steps("o1", 10, 5, nil)

	tr.tick(ctx)

	m, err := tr.Metrics(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.False(t, m.IsDelayed, "50%% done at 10h of 72h planned")
	assert.Empty(t, b.alertsOfType(domain.AlertDelay))
}

func TestWorkCenterBottleneckScan(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	tr, b, _ := newProductionHarness(repo)
	repo.queued = map[string]int{"cutting": 3, "sewing": 7, "printing": 12}

	tr.scanWorkCenters(ctx)

	alerts := b.alertsOfType(domain.AlertBottleneck)
	require.Len(t, alerts, 2, "only queues over 5 alert")
	bySeverity := map[string]int{}
	for _, a := range alerts {
		bySeverity[a.Severity]++
	}
	assert.Equal(t, 1, bySeverity[domain.SeverityHigh])
	assert.Equal(t, 1, bySeverity[domain.SeverityCritical], "queue over 10 escalates")

	// Repeat inside the 30m window is suppressed.
	tr.scanWorkCenters(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertBottleneck), 2)
}

func TestProductionSummary(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	tr, _, now := newProductionHarness(repo)

	repo.orders = []domain.Order{
		{ID: "o1", Method: "cut_and_sew", Quantity: 500, StartedAt: now.Add(-10 * time.Hour)},
		{ID: "o2", Method: "dtg", Quantity: 100, StartedAt: now.Add(-30 * time.Hour)},
	}
	repo.orderSteps["o1"] = steps("o1", 10, 5, nil)
	repo.orderSteps["o2"] = steps("o2", 10, 1, nil) // stalled -> delayed
	repo.ordersSince = 4

	tr.tick(ctx)

	sum, err := tr.Summary(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.ActiveOrders)
	assert.Equal(t, 50.0, sum.OnTimePercent)
	assert.Equal(t, 4, sum.CompletedToday)
	assert.Equal(t, 96.0, sum.QualityPassRate)
	assert.Equal(t, 14.0, sum.AvgLeadTimeDays)
}
