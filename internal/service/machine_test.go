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

func newMachineHarness(repo *fakeRepo, provider MetricsProvider) (*MachineMonitor, *fakeBroadcaster, *cache.Memory) {
	store := cache.NewMemory()
	b := &fakeBroadcaster{}
	m := NewMachineMonitor(repo, store, b, cache.NewDeduplicator(store), provider, time.Minute)
	at := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }
	return m, b, store
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name    string
		machine domain.Machine
		active  int
		want    string
	}{
		{"error flag wins over everything", domain.Machine{ErrorFlag: true, MaintenanceFlag: true, ManualStatus: domain.MachineRunning}, 3, domain.MachineError},
		{"maintenance flag beats manual", domain.Machine{MaintenanceFlag: true, ManualStatus: domain.MachineRunning}, 3, domain.MachineMaintenance},
		{"manual override beats activity", domain.Machine{ManualStatus: domain.MachineIdle}, 3, domain.MachineIdle},
		{"active steps mean running", domain.Machine{}, 1, domain.MachineRunning},
		{"nothing means idle", domain.Machine{}, 0, domain.MachineIdle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, deriveStatus(tc.machine, tc.active))
		})
	}
}

func TestAvailabilityPct(t *testing.T) {
	assert.Equal(t, 100.0, availabilityPct(16, 0))
	assert.Equal(t, 50.0, availabilityPct(16, 8))
	assert.Equal(t, 0.0, availabilityPct(16, 20), "downtime beyond planned clamps to zero")
	assert.Equal(t, 100.0, availabilityPct(0, 5))
}

func TestMachineTickDerivesOEE(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.machines = []domain.Machine{{ID: "m1", Name: "Juki 9000", WorkCenter: "sewing"}}
	repo.activeSteps["m1"] = 2
	repo.stepsDone["m1"] = 15 // half the sewing rate of 30/h

	m, b, _ := newMachineHarness(repo, newFakeProvider())
	m.tick(ctx)

	st, err := m.Status(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, domain.MachineRunning, st.Status)
	assert.Equal(t, 100.0, st.Utilization, "single running sample in the window")
	assert.Equal(t, 50.0, st.Performance)
	assert.Equal(t, 100.0, st.Availability)
	assert.Equal(t, 50.0, st.OEE, "100 x 50 x 100 / 10^4")

	require.Len(t, b.machineUpdates, 1, "cold cache always broadcasts")

	sum, err := m.Summary(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.Running)
	assert.Equal(t, 50.0, sum.AvgOEE)
}

func TestMachineBroadcastSuppression(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.machines = []domain.Machine{{ID: "m1", Name: "Juki 9000", WorkCenter: "sewing"}}
	repo.activeSteps["m1"] = 1
	repo.stepsDone["m1"] = 30

	m, b, _ := newMachineHarness(repo, newFakeProvider())
	m.tick(ctx)
	m.tick(ctx)

	assert.Len(t, b.machineUpdates, 1, "unchanged status within deltas stays quiet")
}

func TestMachineErrorTransitionAlertsOnce(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.machines = []domain.Machine{{ID: "m1", Name: "Juki 9000", WorkCenter: "sewing"}}
	repo.activeSteps["m1"] = 1
	repo.stepsDone["m1"] = 30

	m, b, _ := newMachineHarness(repo, newFakeProvider())
	m.tick(ctx)
	require.Empty(t, b.alertsOfType(domain.AlertMachine), "first observation is not a transition")

	repo.machines[0].ErrorFlag = true
	m.tick(ctx)

	alerts := b.alertsOfType(domain.AlertMachine)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "Machine Status Change", alerts[0].Title)
	assert.Equal(t, "m1", alerts[0].MachineID)

	// Status change also forces a broadcast.
	assert.Len(t, b.machineUpdates, 2)
}

func TestPredictiveMaintenanceDedup(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.machines = []domain.Machine{{ID: "m1", Name: "Brother BAS", WorkCenter: "embroidery"}}
	repo.activeSteps["m1"] = 1
	repo.stepsDone["m1"] = 5 // 33% of the embroidery rate -> degraded

	m, b, _ := newMachineHarness(repo, newFakeProvider())
	m.tick(ctx)
	m.tick(ctx)

	var predictive []domain.AlertUpdate
	for _, a := range b.alertsOfType(domain.AlertMachine) {
		if a.Title == "Predictive Maintenance" {
			predictive = append(predictive, a)
		}
	}
	assert.Len(t, predictive, 1, "second tick inside the dedup window is suppressed")
}

func TestCycleTimeAnomaly(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.machines = []domain.Machine{{ID: "m1", Name: "Juki 9000", WorkCenter: "sewing"}}
	repo.activeSteps["m1"] = 1
	repo.stepsDone["m1"] = 30 // full sewing rate keeps the other checks quiet
	repo.cycles["m1"] = []float64{7, 7}

	m, b, store := newMachineHarness(repo, newFakeProvider())
	// Historical expectation is 4h cycles; 7h averages are past the 1.5x bound.
	require.NoError(t, cache.SetJSON(ctx, store, cache.MachineCycleKey("m1"), 4.0, time.Hour))

	m.tick(ctx)
	alerts := b.alertsOfType(domain.AlertMachine)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Cycle Time Anomaly", alerts[0].Title)
	assert.Equal(t, "m1", alerts[0].MachineID)

	perf, err := m.Performance(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, perf)
	assert.Equal(t, 7.0, perf.AvgCycleTime)

	m.tick(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertMachine), 1, "repeat inside the hour suppressed")
}

func TestScheduledMaintenanceDueAlert(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	due := time.Date(2026, 4, 17, 10, 0, 0, 0, time.UTC)   // two days out
	later := time.Date(2026, 4, 25, 10, 0, 0, 0, time.UTC) // well past the window
	repo.machines = []domain.Machine{
		{ID: "m1", Name: "Juki 9000", WorkCenter: "sewing", NextMaintenance: &due},
		{ID: "m2", Name: "Tajima TMB", WorkCenter: "embroidery", NextMaintenance: &later},
	}
	repo.activeSteps["m1"] = 1
	repo.stepsDone["m1"] = 30
	repo.activeSteps["m2"] = 1
	repo.stepsDone["m2"] = 15 // full embroidery rate

	m, b, _ := newMachineHarness(repo, newFakeProvider())
	m.tick(ctx)

	alerts := b.alertsOfType(domain.AlertMachine)
	require.Len(t, alerts, 1, "only the machine due within three days alerts")
	assert.Equal(t, domain.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "Scheduled Maintenance Due", alerts[0].Title)
	assert.Equal(t, "m1", alerts[0].MachineID)

	m.tick(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertMachine), 1, "repeat inside 24h window suppressed")
}

func TestSetMachineStatusValidatesAndRecomputes(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.machines = []domain.Machine{{ID: "m1", Name: "Juki 9000", WorkCenter: "sewing"}}

	m, _, _ := newMachineHarness(repo, newFakeProvider())

	require.Error(t, m.SetMachineStatus(ctx, "m1", "exploded"))

	require.NoError(t, m.SetMachineStatus(ctx, "m1", domain.MachineMaintenance))
	assert.Equal(t, domain.MachineMaintenance, repo.manual["m1"])

	st, err := m.Status(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, st, "forced run recomputes immediately")
	assert.Equal(t, domain.MachineMaintenance, st.Status)
}

func TestStatusNilWhenCold(t *testing.T) {
	repo := newFakeRepo()
	m, _, _ := newMachineHarness(repo, newFakeProvider())

	st, err := m.Status(context.Background(), "m-unknown")
	require.NoError(t, err)
	assert.Nil(t, st)
}
