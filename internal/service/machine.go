package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/domain"
	"github.com/stitchworks/factory-pulse/internal/metrics"
)

// Broadcast suppression bounds: a machine update only goes out when status
// changed or one of these deltas is exceeded.
const (
	utilizationDelta = 10.0
	oeeDelta         = 5.0
)

// Planned shift hours per day used for availability.
const plannedShiftHours = 16.0

// theoreticalThroughput is pieces per hour a work center is rated for.
var theoreticalThroughput = map[string]float64{
	"cutting":    40,
	"printing":   25,
	"embroidery": 15,
	"sewing":     30,
	"finishing":  35,
	"packing":    60,
}

const defaultThroughput = 20.0

type machineRepo interface {
	ListMachines(ctx context.Context) ([]domain.Machine, error)
	ActiveStepCounts(ctx context.Context) (map[string]int, error)
	StepsCompletedSince(ctx context.Context, machineID string, t time.Time) (int, error)
	CycleHoursSince(ctx context.Context, machineID string, t time.Time) ([]float64, error)
	SetMachineManualStatus(ctx context.Context, machineID, status string) error
	SetMachineOperator(ctx context.Context, machineID, operatorID string) error
	SetNextMaintenance(ctx context.Context, machineID string, when time.Time) error
}

// MachineMonitor polls machine activity and derives status, utilization,
// performance, availability, and OEE per machine.
type MachineMonitor struct {
	repo     machineRepo
	store    cache.Store
	hub      Broadcaster
	dedup    *cache.Deduplicator
	provider MetricsProvider
	runner   *runner
	now      func() time.Time
}

func NewMachineMonitor(repo machineRepo, store cache.Store, b Broadcaster, dedup *cache.Deduplicator, provider MetricsProvider, interval time.Duration) *MachineMonitor {
	m := &MachineMonitor{
		repo:     repo,
		store:    store,
		hub:      b,
		dedup:    dedup,
		provider: provider,
		now:      time.Now,
	}
	m.runner = newRunner("machine", interval, m.tick)
	return m
}

func (m *MachineMonitor) Start() { m.runner.Start() }
func (m *MachineMonitor) Stop()  { m.runner.Stop() }

type statusSample struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

func (m *MachineMonitor) tick(ctx context.Context) {
	machines, err := m.repo.ListMachines(ctx)
	if err != nil {
		log.Error().Err(err).Msg("machine poll failed")
		return
	}
	activeSteps, err := m.repo.ActiveStepCounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("active step count failed")
		activeSteps = map[string]int{}
	}

	for _, machine := range machines {
		if err := m.processMachine(ctx, machine, activeSteps[machine.ID]); err != nil {
			metrics.EntityFailures.WithLabelValues("machine").Inc()
			log.Error().Err(err).Str("machine", machine.ID).Msg("machine update skipped")
		}
	}
	m.updateSummary(ctx, machines)
}

// deriveStatus resolves the polled signals into one status. Error and
// maintenance flags and manual overrides take precedence over the
// activity-derived default.
func deriveStatus(machine domain.Machine, activeSteps int) string {
	switch {
	case machine.ErrorFlag:
		return domain.MachineError
	case machine.MaintenanceFlag:
		return domain.MachineMaintenance
	case machine.ManualStatus != "":
		return machine.ManualStatus
	case activeSteps > 0:
		return domain.MachineRunning
	default:
		return domain.MachineIdle
	}
}

func (m *MachineMonitor) processMachine(ctx context.Context, machine domain.Machine, activeSteps int) error {
	now := m.now()
	status := deriveStatus(machine, activeSteps)

	if err := cache.PushJSON(ctx, m.store, cache.MachineSamplesKey(machine.ID), statusSample{Status: status, At: now}, 120); err != nil {
		return fmt.Errorf("sample push: %w", err)
	}

	utilization, err := m.utilization(ctx, machine.ID, now)
	if err != nil {
		return fmt.Errorf("utilization: %w", err)
	}
	performance, hourlyThroughput, err := m.performance(ctx, machine, now)
	if err != nil {
		return fmt.Errorf("performance: %w", err)
	}
	downtime := m.provider.DowntimeHours(machine.ID)
	availability := availabilityPct(plannedShiftHours, downtime)

	st := domain.MachineStatus{
		MachineID:    machine.ID,
		Name:         machine.Name,
		WorkCenter:   machine.WorkCenter,
		Status:       status,
		Utilization:  round1(utilization),
		Performance:  round1(performance),
		Availability: round1(availability),
		OEE:          round1(utilization * performance * availability / 10000),
		CurrentOrder: machine.CurrentOrderID,
		OperatorID:   machine.OperatorID,
		LastUpdate:   now,
	}

	var prev domain.MachineStatus
	hadPrev, _ := cache.GetJSON(ctx, m.store, cache.MachineStatusKey(machine.ID), &prev)

	// Overwritten wholesale each tick; replaced, never deleted.
	if err := cache.SetJSON(ctx, m.store, cache.MachineStatusKey(machine.ID), st, 0); err != nil {
		return fmt.Errorf("status cache: %w", err)
	}

	if !hadPrev || prev.Status != st.Status ||
		math.Abs(st.Utilization-prev.Utilization) >= utilizationDelta ||
		math.Abs(st.OEE-prev.OEE) >= oeeDelta {
		m.hub.BroadcastMachineUpdate(ctx, st)
	}

	if hadPrev && prev.Status != st.Status {
		m.statusChangeAlert(ctx, machine, prev.Status, st.Status)
	}

	m.maintenanceChecks(ctx, machine, st)
	avgCycle := m.anomalyChecks(ctx, machine, st)

	perf := domain.MachinePerformanceMetrics{
		MachineID:        machine.ID,
		HourlyThroughput: hourlyThroughput,
		DailyThroughput:  m.dailyThroughput(ctx, machine.ID, now),
		AvgCycleTime:     round1(avgCycle),
		DowntimeHours:    round1(downtime),
		UptimePercent:    round1(availability),
		QualityRate:      round1(m.provider.QualityRate(machine.ID)),
		SpeedLoss:        round1(100 - performance),
		AvailabilityLoss: round1(100 - availability),
		LastUpdate:       now,
	}
	if err := cache.SetJSON(ctx, m.store, cache.MachineMetricsKey(machine.ID), perf, 5*time.Minute); err != nil {
		return fmt.Errorf("metrics cache: %w", err)
	}
	return nil
}

// utilization is the share of trailing-hour status samples spent running.
func (m *MachineMonitor) utilization(ctx context.Context, machineID string, now time.Time) (float64, error) {
	samples, err := cache.RangeJSON[statusSample](ctx, m.store, cache.MachineSamplesKey(machineID), 0, -1)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-time.Hour)
	total, running := 0, 0
	for _, s := range samples {
		if s.At.Before(cutoff) {
			continue
		}
		total++
		if s.Status == domain.MachineRunning {
			running++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(running) / float64(total) * 100, nil
}

// performance compares actual trailing-hour throughput against the work
// center's theoretical maximum, capped at 100%.
func (m *MachineMonitor) performance(ctx context.Context, machine domain.Machine, now time.Time) (pct float64, hourly float64, err error) {
	done, err := m.repo.StepsCompletedSince(ctx, machine.ID, now.Add(-time.Hour))
	if err != nil {
		return 0, 0, err
	}
	max := theoreticalThroughput[machine.WorkCenter]
	if max == 0 {
		max = defaultThroughput
	}
	return math.Min(float64(done)/max*100, 100), float64(done), nil
}

func (m *MachineMonitor) dailyThroughput(ctx context.Context, machineID string, now time.Time) float64 {
	done, err := m.repo.StepsCompletedSince(ctx, machineID, now.Add(-24*time.Hour))
	if err != nil {
		log.Error().Err(err).Str("machine", machineID).Msg("daily throughput query failed")
		return 0
	}
	return float64(done)
}

func availabilityPct(planned, downtime float64) float64 {
	if planned <= 0 {
		return 100
	}
	pct := (planned - downtime) / planned * 100
	return math.Min(math.Max(pct, 0), 100)
}

func (m *MachineMonitor) statusChangeAlert(ctx context.Context, machine domain.Machine, from, to string) {
	var severity string
	var msg string
	switch {
	case to == domain.MachineError:
		severity = domain.SeverityCritical
		msg = fmt.Sprintf("%s entered error state (was %s)", machine.Name, from)
	case to == domain.MachineMaintenance:
		severity = domain.SeverityMedium
		msg = fmt.Sprintf("%s entered maintenance (was %s)", machine.Name, from)
	case to == domain.MachineIdle && from == domain.MachineRunning:
		severity = domain.SeverityLow
		msg = fmt.Sprintf("%s went idle", machine.Name)
	case to == domain.MachineRunning && (from == domain.MachineError || from == domain.MachineMaintenance):
		severity = domain.SeverityLow
		msg = fmt.Sprintf("%s recovered from %s and is running", machine.Name, from)
	default:
		severity = domain.SeverityLow
		msg = fmt.Sprintf("%s changed status %s -> %s", machine.Name, from, to)
	}
	a := newAlert(domain.AlertMachine, severity, "Machine Status Change", msg)
	a.MachineID = machine.ID
	emit(ctx, m.hub, a)
}

func (m *MachineMonitor) maintenanceChecks(ctx context.Context, machine domain.Machine, st domain.MachineStatus) {
	if st.Performance < 70 || st.Availability < 80 {
		if m.dedup.ShouldEmit(ctx, "maintenance_predictive", machine.ID, 24*time.Hour) {
			a := newAlert(domain.AlertMachine, domain.SeverityMedium,
				"Predictive Maintenance",
				fmt.Sprintf("%s is degrading: performance %.1f%%, availability %.1f%%", machine.Name, st.Performance, st.Availability))
			a.MachineID = machine.ID
			emit(ctx, m.hub, a)
		} else {
			metrics.AlertsSuppressed.WithLabelValues(domain.AlertMachine).Inc()
		}
	}

	if machine.NextMaintenance != nil {
		until := machine.NextMaintenance.Sub(m.now())
		if until > 0 && until <= 72*time.Hour {
			if m.dedup.ShouldEmit(ctx, "maintenance_scheduled", machine.ID, 24*time.Hour) {
				a := newAlert(domain.AlertMachine, domain.SeverityMedium,
					"Scheduled Maintenance Due",
					fmt.Sprintf("%s is due for maintenance on %s", machine.Name, machine.NextMaintenance.Format("2006-01-02")))
				a.MachineID = machine.ID
				emit(ctx, m.hub, a)
			} else {
				metrics.AlertsSuppressed.WithLabelValues(domain.AlertMachine).Inc()
			}
		}
	}
}

// anomalyChecks flags sudden performance drops and cycle-time inflation.
// Returns the trailing-24h average cycle time for the metrics view.
func (m *MachineMonitor) anomalyChecks(ctx context.Context, machine domain.Machine, st domain.MachineStatus) float64 {
	now := m.now()

	if st.Status == domain.MachineRunning && st.Performance < 50 {
		if m.dedup.ShouldEmit(ctx, "anomaly_performance", machine.ID, time.Hour) {
			a := newAlert(domain.AlertMachine, domain.SeverityHigh,
				"Machine Performance Anomaly",
				fmt.Sprintf("%s performance dropped to %.1f%% while running", machine.Name, st.Performance))
			a.MachineID = machine.ID
			emit(ctx, m.hub, a)
		} else {
			metrics.AlertsSuppressed.WithLabelValues(domain.AlertMachine).Inc()
		}
	}

	recent, err := m.repo.CycleHoursSince(ctx, machine.ID, now.Add(-24*time.Hour))
	if err != nil {
		log.Error().Err(err).Str("machine", machine.ID).Msg("cycle time query failed")
		return 0
	}
	avgCycle := mean(recent)

	expected := m.expectedCycleHours(ctx, machine.ID, now)
	if expected > 0 && avgCycle > 1.5*expected {
		if m.dedup.ShouldEmit(ctx, "anomaly_cycle_time", machine.ID, time.Hour) {
			a := newAlert(domain.AlertMachine, domain.SeverityHigh,
				"Cycle Time Anomaly",
				fmt.Sprintf("%s average cycle time %.1fh exceeds 1.5x the expected %.1fh", machine.Name, avgCycle, expected))
			a.MachineID = machine.ID
			emit(ctx, m.hub, a)
		} else {
			metrics.AlertsSuppressed.WithLabelValues(domain.AlertMachine).Inc()
		}
	}
	return avgCycle
}

// expectedCycleHours is the 30-day average cycle time, recomputed at most
// hourly via the cache.
func (m *MachineMonitor) expectedCycleHours(ctx context.Context, machineID string, now time.Time) float64 {
	var cached float64
	if ok, _ := cache.GetJSON(ctx, m.store, cache.MachineCycleKey(machineID), &cached); ok {
		return cached
	}
	hist, err := m.repo.CycleHoursSince(ctx, machineID, now.Add(-30*24*time.Hour))
	if err != nil {
		log.Error().Err(err).Str("machine", machineID).Msg("historical cycle time query failed")
		return 0
	}
	expected := mean(hist)
	if err := cache.SetJSON(ctx, m.store, cache.MachineCycleKey(machineID), expected, time.Hour); err != nil {
		log.Error().Err(err).Str("machine", machineID).Msg("cycle time cache write failed")
	}
	return expected
}

func (m *MachineMonitor) updateSummary(ctx context.Context, machines []domain.Machine) {
	sum := domain.MachineSummary{LastUpdate: m.now()}
	var utilTotal, oeeTotal float64
	for _, machine := range machines {
		var st domain.MachineStatus
		ok, _ := cache.GetJSON(ctx, m.store, cache.MachineStatusKey(machine.ID), &st)
		if !ok {
			continue
		}
		sum.Total++
		utilTotal += st.Utilization
		oeeTotal += st.OEE
		switch st.Status {
		case domain.MachineRunning:
			sum.Running++
		case domain.MachineIdle:
			sum.Idle++
		case domain.MachineMaintenance:
			sum.Maintenance++
		case domain.MachineError:
			sum.Error++
		}
	}
	if sum.Total > 0 {
		sum.AvgUtilization = round1(utilTotal / float64(sum.Total))
		sum.AvgOEE = round1(oeeTotal / float64(sum.Total))
	}
	if err := cache.SetJSON(ctx, m.store, cache.KeyMachineSummary, sum, 5*time.Minute); err != nil {
		log.Error().Err(err).Msg("machine summary cache write failed")
	}
}

// --- inbound operations ---

// SetMachineStatus applies a manual override and recomputes immediately.
func (m *MachineMonitor) SetMachineStatus(ctx context.Context, machineID, status string) error {
	switch status {
	case domain.MachineRunning, domain.MachineIdle, domain.MachineMaintenance, domain.MachineError, "":
	default:
		return fmt.Errorf("unknown machine status %q", status)
	}
	if err := m.repo.SetMachineManualStatus(ctx, machineID, status); err != nil {
		return err
	}
	m.runner.Run(ctx)
	return nil
}

func (m *MachineMonitor) SetMachineOperator(ctx context.Context, machineID, operatorID string) error {
	return m.repo.SetMachineOperator(ctx, machineID, operatorID)
}

func (m *MachineMonitor) ScheduleMaintenance(ctx context.Context, machineID string, when time.Time) error {
	return m.repo.SetNextMaintenance(ctx, machineID, when)
}

// --- read API ---

// Status serves the cached view; nil when nothing is cached yet.
func (m *MachineMonitor) Status(ctx context.Context, machineID string) (*domain.MachineStatus, error) {
	var st domain.MachineStatus
	ok, err := cache.GetJSON(ctx, m.store, cache.MachineStatusKey(machineID), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (m *MachineMonitor) AllStatuses(ctx context.Context) ([]domain.MachineStatus, error) {
	machines, err := m.repo.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MachineStatus, 0, len(machines))
	for _, machine := range machines {
		var st domain.MachineStatus
		if ok, _ := cache.GetJSON(ctx, m.store, cache.MachineStatusKey(machine.ID), &st); ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *MachineMonitor) Performance(ctx context.Context, machineID string) (*domain.MachinePerformanceMetrics, error) {
	var perf domain.MachinePerformanceMetrics
	ok, err := cache.GetJSON(ctx, m.store, cache.MachineMetricsKey(machineID), &perf)
	if err != nil || !ok {
		return nil, err
	}
	return &perf, nil
}

func (m *MachineMonitor) Summary(ctx context.Context) (*domain.MachineSummary, error) {
	var sum domain.MachineSummary
	ok, err := cache.GetJSON(ctx, m.store, cache.KeyMachineSummary, &sum)
	if err != nil || !ok {
		return nil, err
	}
	return &sum, nil
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var t float64
	for _, v := range vals {
		t += v
	}
	return t / float64(len(vals))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
