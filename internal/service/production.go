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

// Base production hours per manufacturing method before quantity scaling.
var methodBaseHours = map[string]float64{
	"screen_print": 24,
	"dtg":          16,
	"embroidery":   36,
	"sublimation":  20,
	"cut_and_sew":  72,
	"heat_press":   12,
}

const defaultBaseHours = 24.0

// Fallback cycle time for work centers with no completed-step history.
const defaultCycleHours = 8.0

// A step in progress longer than this marks the whole order as
// bottlenecked for the delay reason.
const stuckStepHours = 12.0

// Work-center queue depths that trigger the system-wide bottleneck scan.
const (
	queueAlertDepth    = 5
	queueCriticalDepth = 10
)

type productionRepo interface {
	ActiveOrders(ctx context.Context) ([]domain.Order, error)
	OrderSteps(ctx context.Context, orderID string) ([]domain.RoutingStep, error)
	WorkCenterCycleHours(ctx context.Context) (map[string]float64, error)
	QueuedStepsByWorkCenter(ctx context.Context) (map[string]int, error)
	OrdersCompletedSince(ctx context.Context, t time.Time) (int, error)
}

// ProductionTracker polls active orders and derives per-order progress,
// efficiency, ETA, bottlenecks, and delay state.
type ProductionTracker struct {
	repo     productionRepo
	store    cache.Store
	hub      Broadcaster
	dedup    *cache.Deduplicator
	provider MetricsProvider
	runner   *runner
	now      func() time.Time

	lastScan time.Time
}

func NewProductionTracker(repo productionRepo, store cache.Store, b Broadcaster, dedup *cache.Deduplicator, provider MetricsProvider, interval time.Duration) *ProductionTracker {
	t := &ProductionTracker{
		repo:     repo,
		store:    store,
		hub:      b,
		dedup:    dedup,
		provider: provider,
		now:      time.Now,
	}
	t.runner = newRunner("production", interval, t.tick)
	return t
}

func (t *ProductionTracker) Start() { t.runner.Start() }
func (t *ProductionTracker) Stop()  { t.runner.Stop() }

// ForceProductionUpdate runs one tick on demand.
func (t *ProductionTracker) ForceProductionUpdate(ctx context.Context) {
	t.runner.Run(ctx)
}

func (t *ProductionTracker) tick(ctx context.Context) {
	orders, err := t.repo.ActiveOrders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("order poll failed")
		return
	}
	cycles := t.workCenterCycles(ctx)

	tracked := make([]domain.ProductionMetrics, 0, len(orders))
	for _, order := range orders {
		m, err := t.processOrder(ctx, order, cycles)
		if err != nil {
			metrics.EntityFailures.WithLabelValues("production").Inc()
			log.Error().Err(err).Str("order", order.ID).Msg("order update skipped")
			continue
		}
		tracked = append(tracked, m)
	}

	t.updateSummary(ctx, tracked)

	// Work-center scan runs on a coarser cadence than order tracking.
	if t.now().Sub(t.lastScan) >= time.Minute {
		t.lastScan = t.now()
		t.scanWorkCenters(ctx)
	}
}

// workCenterCycles loads per-work-center historical average cycle hours,
// recomputed at most hourly via the cache.
func (t *ProductionTracker) workCenterCycles(ctx context.Context) map[string]float64 {
	var cached map[string]float64
	if ok, _ := cache.GetJSON(ctx, t.store, cache.KeyWorkCenterCycles, &cached); ok {
		return cached
	}
	cycles, err := t.repo.WorkCenterCycleHours(ctx)
	if err != nil {
		log.Error().Err(err).Msg("work center cycle query failed")
		return map[string]float64{}
	}
	if err := cache.SetJSON(ctx, t.store, cache.KeyWorkCenterCycles, cycles, time.Hour); err != nil {
		log.Error().Err(err).Msg("work center cycle cache write failed")
	}
	return cycles
}

// plannedHours estimates order duration: a per-method base scaled by a
// log10(quantity/100) complexity factor, floored at 1x.
func plannedHours(order domain.Order) float64 {
	base := methodBaseHours[order.Method]
	if base == 0 {
		base = defaultBaseHours
	}
	factor := 1.0
	if order.Quantity > 0 {
		factor = math.Max(math.Log10(float64(order.Quantity)/100), 1)
	}
	return base * factor
}

// expectedProgress ramps linearly from 0 to 95% across the planned
// duration; the final 5% is only earned by actually finishing.
func expectedProgress(elapsed, planned float64) float64 {
	if planned <= 0 {
		return 0
	}
	return math.Min(elapsed/planned, 1) * 95
}

func (t *ProductionTracker) processOrder(ctx context.Context, order domain.Order, cycles map[string]float64) (domain.ProductionMetrics, error) {
	now := t.now()
	steps, err := t.repo.OrderSteps(ctx, order.ID)
	if err != nil {
		return domain.ProductionMetrics{}, fmt.Errorf("steps: %w", err)
	}

	m := domain.ProductionMetrics{
		OrderID:    order.ID,
		TotalSteps: len(steps),
		LastUpdate: now,
	}

	var bottlenecks []string
	var stuckStep string
	var remaining float64
	for _, step := range steps {
		switch step.Status {
		case domain.StepCompleted:
			m.CompletedSteps++
			continue
		case domain.StepInProgress, domain.StepReady:
			if m.CurrentStep == "" {
				m.CurrentStep = step.Name
			}
		}

		avg := cycles[step.WorkCenter]
		if avg <= 0 {
			avg = defaultCycleHours
		}
		remaining += avg

		if step.Status == domain.StepInProgress && step.StartedAt != nil {
			runningHours := now.Sub(*step.StartedAt).Hours()
			if runningHours > 1.5*avg {
				bottlenecks = append(bottlenecks, step.Name)
			}
			if runningHours > stuckStepHours && stuckStep == "" {
				stuckStep = step.Name
			}
		}
	}

	if m.TotalSteps > 0 {
		m.Progress = round1(float64(m.CompletedSteps) / float64(m.TotalSteps) * 100)
	}
	m.Bottlenecks = bottlenecks
	m.EstimatedCompletion = now.Add(time.Duration(remaining * float64(time.Hour)))

	m.PlannedHours = round1(plannedHours(order))
	m.ActualHours = round1(now.Sub(order.StartedAt).Hours())
	if m.ActualHours <= 0 {
		m.Efficiency = 100
	} else {
		m.Efficiency = round1(math.Min(m.PlannedHours/m.ActualHours*100, 100))
	}

	if m.ActualHours > m.PlannedHours || m.Progress < expectedProgress(m.ActualHours, m.PlannedHours) {
		m.IsDelayed = true
		if stuckStep != "" {
			m.DelayReason = fmt.Sprintf("bottleneck at %s", stuckStep)
		} else {
			m.DelayReason = "behind schedule"
		}
	}

	var prev domain.ProductionMetrics
	hadPrev, _ := cache.GetJSON(ctx, t.store, cache.ProductionKey(order.ID), &prev)

	if err := cache.SetJSON(ctx, t.store, cache.ProductionKey(order.ID), m, 0); err != nil {
		return m, fmt.Errorf("metrics cache: %w", err)
	}

	if !hadPrev || math.Abs(m.Progress-prev.Progress) >= 5 ||
		m.CurrentStep != prev.CurrentStep || m.IsDelayed != prev.IsDelayed {
		t.hub.BroadcastProductionUpdate(ctx, m)
	}

	if m.IsDelayed {
		t.delayAlert(ctx, order, m)
	}
	return m, nil
}

func (t *ProductionTracker) delayAlert(ctx context.Context, order domain.Order, m domain.ProductionMetrics) {
	if !t.dedup.ShouldEmit(ctx, "production_delay", order.ID, time.Hour) {
		metrics.AlertsSuppressed.WithLabelValues(domain.AlertDelay).Inc()
		return
	}
	severity := domain.SeverityHigh
	if m.Progress < 25 {
		severity = domain.SeverityCritical
	}
	a := newAlert(domain.AlertDelay, severity,
		"Order Delayed",
		fmt.Sprintf("Order %s is delayed (%s): %.0f%% complete, %.0fh elapsed of %.0fh planned",
			order.PONumber, m.DelayReason, m.Progress, m.ActualHours, m.PlannedHours))
	a.OrderID = order.ID
	emit(ctx, t.hub, a)
}

// scanWorkCenters raises bottleneck alerts for work centers holding deep
// queues of waiting or running steps.
func (t *ProductionTracker) scanWorkCenters(ctx context.Context) {
	queues, err := t.repo.QueuedStepsByWorkCenter(ctx)
	if err != nil {
		log.Error().Err(err).Msg("work center scan failed")
		return
	}
	for wc, depth := range queues {
		if depth <= queueAlertDepth {
			continue
		}
		if !t.dedup.ShouldEmit(ctx, "workcenter_bottleneck", wc, 30*time.Minute) {
			metrics.AlertsSuppressed.WithLabelValues(domain.AlertBottleneck).Inc()
			continue
		}
		severity := domain.SeverityHigh
		if depth > queueCriticalDepth {
			severity = domain.SeverityCritical
		}
		emit(ctx, t.hub, newAlert(domain.AlertBottleneck, severity,
			"Work Center Bottleneck",
			fmt.Sprintf("%s has %d steps queued", wc, depth)))
	}
}

func (t *ProductionTracker) updateSummary(ctx context.Context, tracked []domain.ProductionMetrics) {
	sum := domain.ProductionSummary{
		ActiveOrders:    len(tracked),
		QualityPassRate: round1(t.provider.QualityPassRate()),
		AvgLeadTimeDays: round1(t.provider.AvgLeadTimeDays()),
		LastUpdate:      t.now(),
	}

	var effTotal float64
	onTime := 0
	for _, m := range tracked {
		effTotal += m.Efficiency
		if !m.IsDelayed {
			onTime++
		}
	}
	if len(tracked) > 0 {
		sum.OnTimePercent = round1(float64(onTime) / float64(len(tracked)) * 100)
		sum.AvgEfficiency = round1(effTotal / float64(len(tracked)))
	}

	midnight := time.Date(t.now().Year(), t.now().Month(), t.now().Day(), 0, 0, 0, 0, t.now().Location())
	if n, err := t.repo.OrdersCompletedSince(ctx, midnight); err == nil {
		sum.CompletedToday = n
	} else {
		log.Error().Err(err).Msg("completed-today query failed")
	}

	var ms domain.MachineSummary
	if ok, _ := cache.GetJSON(ctx, t.store, cache.KeyMachineSummary, &ms); ok {
		sum.CapacityUtilization = ms.AvgUtilization
	}

	if err := cache.SetJSON(ctx, t.store, cache.KeyProductionSummary, sum, 5*time.Minute); err != nil {
		log.Error().Err(err).Msg("production summary cache write failed")
	}
}

// --- read API ---

func (t *ProductionTracker) Metrics(ctx context.Context, orderID string) (*domain.ProductionMetrics, error) {
	var m domain.ProductionMetrics
	ok, err := cache.GetJSON(ctx, t.store, cache.ProductionKey(orderID), &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

func (t *ProductionTracker) AllMetrics(ctx context.Context) ([]domain.ProductionMetrics, error) {
	orders, err := t.repo.ActiveOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProductionMetrics, 0, len(orders))
	for _, order := range orders {
		var m domain.ProductionMetrics
		if ok, _ := cache.GetJSON(ctx, t.store, cache.ProductionKey(order.ID), &m); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *ProductionTracker) Summary(ctx context.Context) (*domain.ProductionSummary, error) {
	var sum domain.ProductionSummary
	ok, err := cache.GetJSON(ctx, t.store, cache.KeyProductionSummary, &sum)
	if err != nil || !ok {
		return nil, err
	}
	return &sum, nil
}
