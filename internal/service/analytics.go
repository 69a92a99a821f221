package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/domain"
	"github.com/stitchworks/factory-pulse/internal/metrics"
)

type analyticsRepo interface {
	ListMachines(ctx context.Context) ([]domain.Machine, error)
	ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error)
	ActiveOrders(ctx context.Context) ([]domain.Order, error)
	OrdersCompletedSince(ctx context.Context, t time.Time) (int, error)
	UnitsCompletedSince(ctx context.Context, t time.Time) (int, error)
	RevenueSince(ctx context.Context, t time.Time) (float64, error)
	UnitsCompletedBuckets(ctx context.Context, bucket time.Duration, n int) ([]float64, error)
	ProductionTotalsBetween(ctx context.Context, from, to time.Time) (int, int, float64, error)
}

// kpiDef fixes the display and threshold parameters of each KPI.
type kpiDef struct {
	id     string
	name   string
	unit   string
	target float64
	warn   float64 // below this (or above, when lowerIsBetter) -> warning
	crit   float64 // below this (or above, when lowerIsBetter) -> critical
	lower  bool    // lower values are better
}

var kpiDefs = []kpiDef{
	{id: domain.KPIThroughput, name: "Throughput", unit: "units/h", target: 150, warn: 100, crit: 50},
	{id: domain.KPIEfficiency, name: "Production Efficiency", unit: "%", target: 85, warn: 70, crit: 55},
	{id: domain.KPIQuality, name: "Quality Pass Rate", unit: "%", target: 97, warn: 94, crit: 90},
	{id: domain.KPIOnTimeDelivery, name: "On-Time Delivery", unit: "%", target: 90, warn: 80, crit: 65},
	{id: domain.KPIUtilization, name: "Machine Utilization", unit: "%", target: 75, warn: 55, crit: 35},
	{id: domain.KPIInventoryTurnover, name: "Inventory Turnover", unit: "x/yr", target: 8, warn: 5, crit: 3},
	{id: domain.KPIRevenue, name: "Revenue Today", unit: "$", target: 50000, warn: 25000, crit: 10000},
	{id: domain.KPICostPerUnit, name: "Cost Per Unit", unit: "$", target: 8, warn: 12, crit: 18, lower: true},
}

// Assumed cost share of revenue until actual costing data is fed in.
const costShare = 0.65

const predictiveInterval = 30 * time.Minute

// AnalyticsEngine recomputes the KPI board, the production/operational
// analytics views, and the slower predictive views, all in-process.
type AnalyticsEngine struct {
	repo     analyticsRepo
	store    cache.Store
	hub      Broadcaster
	provider MetricsProvider
	sink     ReportSink
	runner   *runner
	now      func() time.Time

	lastPredictive time.Time
}

func NewAnalyticsEngine(repo analyticsRepo, store cache.Store, b Broadcaster, provider MetricsProvider, interval time.Duration) *AnalyticsEngine {
	e := &AnalyticsEngine{
		repo:     repo,
		store:    store,
		hub:      b,
		provider: provider,
		now:      time.Now,
	}
	e.runner = newRunner("analytics", interval, e.tick)
	return e
}

// SetReportSink enables report uploads. Without a sink reports are
// returned inline only.
func (e *AnalyticsEngine) SetReportSink(sink ReportSink) { e.sink = sink }

func (e *AnalyticsEngine) Start() { e.runner.Start() }
func (e *AnalyticsEngine) Stop()  { e.runner.Stop() }

// ForceKPIUpdate runs one recomputation on demand.
func (e *AnalyticsEngine) ForceKPIUpdate(ctx context.Context) {
	e.runner.Run(ctx)
}

func (e *AnalyticsEngine) tick(ctx context.Context) {
	now := e.now()

	kpis := e.computeKPIs(ctx, now)
	prod := e.computeProduction(ctx, now)
	oper := e.computeOperational(ctx, now)

	if now.Sub(e.lastPredictive) >= predictiveInterval {
		e.lastPredictive = now
		e.computePredictive(ctx, now)
	}

	e.hub.BroadcastAnalytics(ctx, domain.AnalyticsSnapshot{
		KPIs:        kpis,
		Production:  prod,
		Operational: oper,
		GeneratedAt: now,
	})
}

// --- KPIs ---

func (e *AnalyticsEngine) computeKPIs(ctx context.Context, now time.Time) []domain.RealTimeKPI {
	values := e.kpiValues(ctx, now)

	out := make([]domain.RealTimeKPI, 0, len(kpiDefs))
	for _, def := range kpiDefs {
		v := round2(values[def.id])
		kpi := domain.RealTimeKPI{
			ID:         def.id,
			Name:       def.name,
			Value:      v,
			Unit:       def.unit,
			Trend:      domain.TrendStable,
			Target:     def.target,
			Status:     kpiStatus(def, v),
			LastUpdate: now,
		}

		var prev domain.RealTimeKPI
		if ok, _ := cache.GetJSON(ctx, e.store, cache.KPIKey(def.id), &prev); ok && prev.Value != 0 {
			pct := (v - prev.Value) / prev.Value * 100
			kpi.TrendPercent = round2(pct)
			switch {
			case pct >= 1:
				kpi.Trend = domain.TrendUp
			case pct <= -1:
				kpi.Trend = domain.TrendDown
			}
		}

		if err := cache.SetJSON(ctx, e.store, cache.KPIKey(def.id), kpi, 0); err != nil {
			log.Error().Err(err).Str("kpi", def.id).Msg("kpi cache write failed")
		}
		out = append(out, kpi)
	}

	if err := cache.SetJSON(ctx, e.store, cache.KeyKPIList, out, 2*time.Minute); err != nil {
		log.Error().Err(err).Msg("kpi list cache write failed")
	}
	return out
}

func (e *AnalyticsEngine) kpiValues(ctx context.Context, now time.Time) map[string]float64 {
	values := make(map[string]float64, len(kpiDefs))

	unitsHour, err := e.repo.UnitsCompletedSince(ctx, now.Add(-time.Hour))
	if err != nil {
		metrics.EntityFailures.WithLabelValues("analytics").Inc()
		log.Error().Err(err).Msg("throughput query failed")
	}
	values[domain.KPIThroughput] = float64(unitsHour)

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	revenue, err := e.repo.RevenueSince(ctx, midnight)
	if err != nil {
		log.Error().Err(err).Msg("revenue query failed")
	}
	values[domain.KPIRevenue] = revenue

	if unitsToday, err := e.repo.UnitsCompletedSince(ctx, midnight); err == nil && unitsToday > 0 {
		values[domain.KPICostPerUnit] = revenue / float64(unitsToday) * costShare
	}

	var ps domain.ProductionSummary
	if ok, _ := cache.GetJSON(ctx, e.store, cache.KeyProductionSummary, &ps); ok {
		values[domain.KPIEfficiency] = ps.AvgEfficiency
		values[domain.KPIOnTimeDelivery] = ps.OnTimePercent
	}

	var ms domain.MachineSummary
	if ok, _ := cache.GetJSON(ctx, e.store, cache.KeyMachineSummary, &ms); ok {
		values[domain.KPIUtilization] = ms.AvgUtilization
	}

	values[domain.KPIQuality] = e.provider.QualityPassRate()
	values[domain.KPIInventoryTurnover] = e.inventoryTurnover(ctx, now)
	return values
}

// inventoryTurnover annualizes trailing-30-day consumed value against the
// current inventory valuation.
func (e *AnalyticsEngine) inventoryTurnover(ctx context.Context, now time.Time) float64 {
	var is domain.InventorySummary
	if ok, _ := cache.GetJSON(ctx, e.store, cache.KeyInventorySummary, &is); !ok || is.TotalValue <= 0 {
		return 0
	}
	revenue30d, err := e.repo.RevenueSince(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		log.Error().Err(err).Msg("turnover query failed")
		return 0
	}
	return revenue30d * costShare * 12 / is.TotalValue
}

func kpiStatus(def kpiDef, v float64) string {
	if def.lower {
		switch {
		case v <= def.warn:
			return domain.KPIGood
		case v <= def.crit:
			return domain.KPIWarning
		default:
			return domain.KPICritical
		}
	}
	switch {
	case v >= def.warn:
		return domain.KPIGood
	case v >= def.crit:
		return domain.KPIWarning
	default:
		return domain.KPICritical
	}
}

// --- production analytics ---

func (e *AnalyticsEngine) computeProduction(ctx context.Context, now time.Time) *domain.ProductionAnalytics {
	pa := domain.ProductionAnalytics{GeneratedAt: now}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var err error
	if pa.OrdersThisHour, err = e.repo.OrdersCompletedSince(ctx, now.Add(-time.Hour)); err != nil {
		metrics.EntityFailures.WithLabelValues("analytics").Inc()
		log.Error().Err(err).Msg("production analytics query failed")
		return nil
	}
	pa.OrdersToday, _ = e.repo.OrdersCompletedSince(ctx, midnight)
	pa.UnitsThisHour, _ = e.repo.UnitsCompletedSince(ctx, now.Add(-time.Hour))
	pa.UnitsToday, _ = e.repo.UnitsCompletedSince(ctx, midnight)

	if orders, err := e.repo.ActiveOrders(ctx); err == nil {
		pa.ActiveOrders = len(orders)
		var effTotal float64
		tracked := 0
		for _, order := range orders {
			var m domain.ProductionMetrics
			if ok, _ := cache.GetJSON(ctx, e.store, cache.ProductionKey(order.ID), &m); !ok {
				continue
			}
			tracked++
			effTotal += m.Efficiency
			if m.IsDelayed {
				pa.DelayedOrders++
			}
		}
		if tracked > 0 {
			pa.AvgEfficiency = round1(effTotal / float64(tracked))
		}
	}

	pa.HourlyTrend = e.trendSeries(ctx, time.Hour, 12, "15:04")
	pa.DailyTrend = e.trendSeries(ctx, 24*time.Hour, 7, "Jan 02")

	if err := cache.SetJSON(ctx, e.store, cache.KeyProductionAnalytics, pa, 2*time.Minute); err != nil {
		log.Error().Err(err).Msg("production analytics cache write failed")
	}
	return &pa
}

func (e *AnalyticsEngine) trendSeries(ctx context.Context, bucket time.Duration, n int, layout string) []domain.TrendPoint {
	values, err := e.repo.UnitsCompletedBuckets(ctx, bucket, n)
	if err != nil {
		log.Error().Err(err).Msg("trend bucket query failed")
		return nil
	}
	now := e.now()
	out := make([]domain.TrendPoint, len(values))
	for i, v := range values {
		at := now.Add(-time.Duration(len(values)-1-i) * bucket)
		out[i] = domain.TrendPoint{Label: at.Format(layout), Value: v}
	}
	return out
}

// --- operational analytics ---

func (e *AnalyticsEngine) computeOperational(ctx context.Context, now time.Time) *domain.OperationalAnalytics {
	oa := domain.OperationalAnalytics{GeneratedAt: now}

	var ms domain.MachineSummary
	if ok, _ := cache.GetJSON(ctx, e.store, cache.KeyMachineSummary, &ms); ok {
		oa.FleetUtilization = ms.AvgUtilization
		oa.FleetOEE = ms.AvgOEE
	}

	machines, err := e.repo.ListMachines(ctx)
	if err != nil {
		metrics.EntityFailures.WithLabelValues("analytics").Inc()
		log.Error().Err(err).Msg("operational analytics query failed")
		return nil
	}
	var downtime float64
	for _, m := range machines {
		downtime += e.provider.DowntimeHours(m.ID)
	}
	oa.TotalDowntimeHours = round1(downtime)

	oa.InventoryTurnover = round2(e.inventoryTurnover(ctx, now))
	// First-pass yield shortfall stands in for waste until scrap movements
	// are recorded separately.
	oa.InventoryWastePercent = round2(100 - e.provider.QualityPassRate())
	oa.WorkforceProductivity = round1(e.provider.WorkforceProductivity())

	if err := cache.SetJSON(ctx, e.store, cache.KeyOperationalAnalytics, oa, 2*time.Minute); err != nil {
		log.Error().Err(err).Msg("operational analytics cache write failed")
	}
	return &oa
}

// --- predictive analytics ---

func (e *AnalyticsEngine) computePredictive(ctx context.Context, now time.Time) {
	pa := domain.PredictiveAnalytics{GeneratedAt: now}

	pa.DemandForecast, pa.CapacityForecast = e.forecasts(ctx, now)
	pa.MaintenancePredictions = e.maintenancePredictions(ctx, now)
	pa.ReorderRecommendations = e.reorderRecommendations(ctx)

	if err := cache.SetJSON(ctx, e.store, cache.KeyPredictiveAnalytics, pa, 30*time.Minute); err != nil {
		log.Error().Err(err).Msg("predictive analytics cache write failed")
	}
}

// forecasts projects the next seven days of demand from trailing-14-day
// output and the seasonal calendar, against rated plant capacity.
func (e *AnalyticsEngine) forecasts(ctx context.Context, now time.Time) ([]domain.DemandForecastPoint, []domain.DemandForecastPoint) {
	units14d, err := e.repo.UnitsCompletedSince(ctx, now.Add(-14*24*time.Hour))
	if err != nil {
		log.Error().Err(err).Msg("demand history query failed")
		return nil, nil
	}
	baseDaily := float64(units14d) / 14

	capacity := 0.0
	if machines, err := e.repo.ListMachines(ctx); err == nil {
		for _, m := range machines {
			rate := theoreticalThroughput[m.WorkCenter]
			if rate == 0 {
				rate = defaultThroughput
			}
			capacity += rate * plannedShiftHours
		}
	}

	demand := make([]domain.DemandForecastPoint, 7)
	rated := make([]domain.DemandForecastPoint, 7)
	for i := range demand {
		day := now.AddDate(0, 0, i+1)
		demand[i] = domain.DemandForecastPoint{
			Date:  day,
			Units: round1(baseDaily * seasonalMultiplier[day.Month()]),
		}
		rated[i] = domain.DemandForecastPoint{Date: day, Units: round1(capacity)}
	}
	return demand, rated
}

// maintenancePredictions flags machines whose derived performance or
// availability has degraded; worse degradation predicts a nearer date.
func (e *AnalyticsEngine) maintenancePredictions(ctx context.Context, now time.Time) []domain.MaintenancePrediction {
	machines, err := e.repo.ListMachines(ctx)
	if err != nil {
		log.Error().Err(err).Msg("maintenance prediction query failed")
		return nil
	}
	var out []domain.MaintenancePrediction
	for _, m := range machines {
		var st domain.MachineStatus
		if ok, _ := cache.GetJSON(ctx, e.store, cache.MachineStatusKey(m.ID), &st); !ok {
			continue
		}
		if st.Performance >= 70 && st.Availability >= 80 {
			continue
		}
		degradation := math.Min(st.Performance/70, st.Availability/80)
		days := math.Max(1, math.Round(14*degradation))
		out = append(out, domain.MaintenancePrediction{
			MachineID:     m.ID,
			Name:          m.Name,
			Performance:   st.Performance,
			Availability:  st.Availability,
			PredictedDate: now.AddDate(0, 0, int(days)),
		})
	}
	return out
}

// reorderRecommendations surfaces items forecast to run out within two
// weeks, nearest first.
func (e *AnalyticsEngine) reorderRecommendations(ctx context.Context) []domain.ReorderRecommendation {
	items, err := e.repo.ListInventoryItems(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reorder recommendation query failed")
		return nil
	}
	var out []domain.ReorderRecommendation
	for _, item := range items {
		var f domain.ConsumptionForecast
		if ok, _ := cache.GetJSON(ctx, e.store, cache.ForecastKey(item.ID), &f); !ok {
			continue
		}
		if f.DaysUntilStockout > 14 {
			continue
		}
		out = append(out, domain.ReorderRecommendation{
			ItemID:            item.ID,
			SKU:               item.SKU,
			RecommendedOrder:  f.RecommendedOrder,
			DaysUntilStockout: f.DaysUntilStockout,
		})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].DaysUntilStockout < out[j-1].DaysUntilStockout; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// --- reports ---

// CustomReport is the on-demand production report payload.
type CustomReport struct {
	From            time.Time                    `json:"from"`
	To              time.Time                    `json:"to"`
	CompletedOrders int                          `json:"completed_orders"`
	CompletedUnits  int                          `json:"completed_units"`
	Revenue         float64                      `json:"revenue"`
	KPIs            []domain.RealTimeKPI         `json:"kpis,omitempty"`
	Operational     *domain.OperationalAnalytics `json:"operational,omitempty"`
	GeneratedAt     time.Time                    `json:"generated_at"`
	URL             string                       `json:"url,omitempty"`
}

// GenerateCustomReport aggregates a completed-production report for the
// given range and, when a sink is configured, uploads it and returns a
// shareable URL on the payload.
func (e *AnalyticsEngine) GenerateCustomReport(ctx context.Context, from, to time.Time) (*CustomReport, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("report range: %s is not after %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	orders, units, revenue, err := e.repo.ProductionTotalsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("report totals: %w", err)
	}

	report := &CustomReport{
		From:            from,
		To:              to,
		CompletedOrders: orders,
		CompletedUnits:  units,
		Revenue:         round2(revenue),
		GeneratedAt:     e.now(),
	}
	_, _ = cache.GetJSON(ctx, e.store, cache.KeyKPIList, &report.KPIs)
	var oa domain.OperationalAnalytics
	if ok, _ := cache.GetJSON(ctx, e.store, cache.KeyOperationalAnalytics, &oa); ok {
		report.Operational = &oa
	}

	if e.sink != nil {
		body, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("reports/production-%s-%s.json",
			from.Format("20060102"), uuid.NewString()[:8])
		url, err := e.sink.UploadReport(ctx, key, body, "application/json")
		if err != nil {
			return nil, fmt.Errorf("report upload: %w", err)
		}
		report.URL = url
	}
	return report, nil
}

// --- read API ---

func (e *AnalyticsEngine) KPIs(ctx context.Context) ([]domain.RealTimeKPI, error) {
	var out []domain.RealTimeKPI
	ok, err := cache.GetJSON(ctx, e.store, cache.KeyKPIList, &out)
	if err != nil || !ok {
		return nil, err
	}
	return out, nil
}

func (e *AnalyticsEngine) Production(ctx context.Context) (*domain.ProductionAnalytics, error) {
	var pa domain.ProductionAnalytics
	ok, err := cache.GetJSON(ctx, e.store, cache.KeyProductionAnalytics, &pa)
	if err != nil || !ok {
		return nil, err
	}
	return &pa, nil
}

func (e *AnalyticsEngine) Operational(ctx context.Context) (*domain.OperationalAnalytics, error) {
	var oa domain.OperationalAnalytics
	ok, err := cache.GetJSON(ctx, e.store, cache.KeyOperationalAnalytics, &oa)
	if err != nil || !ok {
		return nil, err
	}
	return &oa, nil
}

func (e *AnalyticsEngine) Predictive(ctx context.Context) (*domain.PredictiveAnalytics, error) {
	var pa domain.PredictiveAnalytics
	ok, err := cache.GetJSON(ctx, e.store, cache.KeyPredictiveAnalytics, &pa)
	if err != nil || !ok {
		return nil, err
	}
	return &pa, nil
}
