package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/domain"
	"github.com/stitchworks/factory-pulse/internal/metrics"
)

// Capped per-item recent-movement history kept in the cache.
const movementHistoryCap = 100

// seasonalMultiplier adjusts forecast consumption by calendar month. Apparel
// production ramps ahead of the holiday retail season and slows after it.
var seasonalMultiplier = [13]float64{0,
	0.80, // Jan
	0.85, // Feb
	0.95, // Mar
	1.00, // Apr
	1.05, // May
	1.05, // Jun
	1.10, // Jul
	1.25, // Aug
	1.30, // Sep
	1.25, // Oct
	1.10, // Nov
	0.90, // Dec
}

type inventoryRepo interface {
	ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error)
	AdjustItemQuantity(ctx context.Context, id string, delta float64) error
	UpdateItemLocation(ctx context.Context, id, location string) error
}

// InventoryMonitor maintains the stock-movement ledger and derives per-item
// status, reorder alerts, consumption forecasts, and anomaly signals.
type InventoryMonitor struct {
	repo     inventoryRepo
	store    cache.Store
	hub      Broadcaster
	dedup    *cache.Deduplicator
	provider MetricsProvider
	runner   *runner
	now      func() time.Time

	lastForecast time.Time
}

func NewInventoryMonitor(repo inventoryRepo, store cache.Store, b Broadcaster, dedup *cache.Deduplicator, provider MetricsProvider, interval time.Duration) *InventoryMonitor {
	m := &InventoryMonitor{
		repo:     repo,
		store:    store,
		hub:      b,
		dedup:    dedup,
		provider: provider,
		now:      time.Now,
	}
	m.runner = newRunner("inventory", interval, m.tick)
	return m
}

func (m *InventoryMonitor) Start() { m.runner.Start() }
func (m *InventoryMonitor) Stop()  { m.runner.Stop() }

func statusFor(item domain.InventoryItem) domain.InventoryStatus {
	available := math.Max(item.CurrentStock-item.Reserved, 0)
	return domain.InventoryStatus{
		ItemID:       item.ID,
		SKU:          item.SKU,
		Name:         item.Name,
		Category:     item.Category,
		CurrentStock: item.CurrentStock,
		Reserved:     item.Reserved,
		Available:    available,
		MinStock:     item.MinStock,
		ReorderPoint: item.ReorderPoint,
		Unit:         item.Unit,
		Location:     item.Location,
		LastMovement: item.LastMovement,
		CostPerUnit:  item.CostPerUnit,
		TotalValue:   round2(item.CurrentStock * item.CostPerUnit),
	}
}

func (m *InventoryMonitor) tick(ctx context.Context) {
	items, err := m.repo.ListInventoryItems(ctx)
	if err != nil {
		log.Error().Err(err).Msg("inventory poll failed")
		return
	}

	refreshForecasts := m.now().Sub(m.lastForecast) >= time.Hour
	if refreshForecasts {
		m.lastForecast = m.now()
	}

	for _, item := range items {
		if err := m.processItem(ctx, item, refreshForecasts); err != nil {
			metrics.EntityFailures.WithLabelValues("inventory").Inc()
			log.Error().Err(err).Str("item", item.ID).Msg("inventory update skipped")
		}
	}
	m.updateSummary(ctx, items)
}

func (m *InventoryMonitor) processItem(ctx context.Context, item domain.InventoryItem, refreshForecast bool) error {
	st := statusFor(item)

	var prev domain.InventoryStatus
	hadPrev, _ := cache.GetJSON(ctx, m.store, cache.InventoryStatusKey(item.ID), &prev)

	if err := cache.SetJSON(ctx, m.store, cache.InventoryStatusKey(item.ID), st, 0); err != nil {
		return fmt.Errorf("status cache: %w", err)
	}

	crossedReorder := hadPrev &&
		(prev.CurrentStock > prev.ReorderPoint) != (st.CurrentStock > st.ReorderPoint)
	if !hadPrev || prev.CurrentStock != st.CurrentStock || prev.Location != st.Location || crossedReorder {
		m.hub.BroadcastInventoryUpdate(ctx, st)
	}

	m.reorderCheck(ctx, st)
	if hadPrev && prev.CurrentStock > 0 && st.CurrentStock <= 0 {
		a := newAlert(domain.AlertInventory, domain.SeverityCritical,
			"Out of Stock",
			fmt.Sprintf("%s (%s) is out of stock", st.Name, st.SKU))
		a.ItemID = st.ItemID
		emit(ctx, m.hub, a)
	}

	if refreshForecast {
		if _, err := m.refreshForecast(ctx, st); err != nil {
			log.Error().Err(err).Str("item", item.ID).Msg("forecast refresh failed")
		}
	}
	m.anomalyChecks(ctx, st)
	return nil
}

func (m *InventoryMonitor) reorderCheck(ctx context.Context, st domain.InventoryStatus) {
	if st.CurrentStock <= 0 || st.CurrentStock > st.ReorderPoint {
		return
	}
	if !m.dedup.ShouldEmit(ctx, "inventory_reorder", st.ItemID, 12*time.Hour) {
		metrics.AlertsSuppressed.WithLabelValues(domain.AlertInventory).Inc()
		return
	}
	severity := domain.SeverityMedium
	if st.CurrentStock <= st.MinStock {
		severity = domain.SeverityHigh
	}
	qty := m.recommendedOrder(ctx, st)
	a := newAlert(domain.AlertInventory, severity,
		"Reorder Point Reached",
		fmt.Sprintf("%s (%s) at %.0f %s, reorder point %.0f; recommended order %.0f %s",
			st.Name, st.SKU, st.CurrentStock, st.Unit, st.ReorderPoint, qty, st.Unit))
	a.ItemID = st.ItemID
	emit(ctx, m.hub, a)
}

// recommendedOrder covers 30 days of forecast consumption plus half the
// safety stock, never less than twice the safety stock.
func (m *InventoryMonitor) recommendedOrder(ctx context.Context, st domain.InventoryStatus) float64 {
	var fc domain.ConsumptionForecast
	ok, _ := cache.GetJSON(ctx, m.store, cache.ForecastKey(st.ItemID), &fc)
	if !ok {
		fc, _ = m.refreshForecast(ctx, st)
	}
	return math.Max(fc.DailyConsumption*30+0.5*st.MinStock, 2*st.MinStock)
}

// movementsSince returns ledger entries newer than the cutoff, newest first.
func (m *InventoryMonitor) movementsSince(ctx context.Context, itemID string, cutoff time.Time) ([]domain.StockMovement, error) {
	all, err := cache.RangeJSON[domain.StockMovement](ctx, m.store, cache.MovementsKey(itemID), 0, -1)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, mv := range all {
		if mv.Timestamp.After(cutoff) {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *InventoryMonitor) refreshForecast(ctx context.Context, st domain.InventoryStatus) (domain.ConsumptionForecast, error) {
	now := m.now()
	movements, err := m.movementsSince(ctx, st.ItemID, now.Add(-30*24*time.Hour))
	if err != nil {
		return domain.ConsumptionForecast{}, err
	}

	var outTotal float64
	oldest := now
	for _, mv := range movements {
		if mv.Type == domain.MovementOut {
			outTotal += mv.Quantity
		}
		if mv.Timestamp.Before(oldest) {
			oldest = mv.Timestamp
		}
	}
	days := math.Min(math.Max(now.Sub(oldest).Hours()/24, 1), 30)
	daily := outTotal / days

	mult := seasonalMultiplier[now.Month()]
	adjusted := daily * mult

	stockout := float64(domain.StockoutNever)
	if adjusted > 0 {
		stockout = round1(st.Available / adjusted)
	}

	fc := domain.ConsumptionForecast{
		ItemID:             st.ItemID,
		SKU:                st.SKU,
		DailyConsumption:   round2(adjusted),
		WeeklyConsumption:  round2(adjusted * 7),
		MonthlyConsumption: round2(adjusted * 30),
		SeasonalMultiplier: mult,
		DaysUntilStockout:  stockout,
		RecommendedOrder:   round1(math.Max(adjusted*30+0.5*st.MinStock, 2*st.MinStock)),
		GeneratedAt:        now,
	}
	if err := cache.SetJSON(ctx, m.store, cache.ForecastKey(st.ItemID), fc, time.Hour); err != nil {
		return fc, err
	}
	return fc, nil
}

func (m *InventoryMonitor) anomalyChecks(ctx context.Context, st domain.InventoryStatus) {
	now := m.now()

	var fc domain.ConsumptionForecast
	if ok, _ := cache.GetJSON(ctx, m.store, cache.ForecastKey(st.ItemID), &fc); ok && fc.DailyConsumption > 0 {
		recent, err := m.movementsSince(ctx, st.ItemID, now.Add(-24*time.Hour))
		if err == nil {
			var out24 float64
			for _, mv := range recent {
				if mv.Type == domain.MovementOut {
					out24 += mv.Quantity
				}
			}
			if out24 > 2*fc.DailyConsumption {
				if m.dedup.ShouldEmit(ctx, "inventory_consumption_spike", st.ItemID, 6*time.Hour) {
					a := newAlert(domain.AlertInventory, domain.SeverityHigh,
						"Consumption Anomaly",
						fmt.Sprintf("%s (%s) consumed %.0f %s in 24h against a forecast of %.0f",
							st.Name, st.SKU, out24, st.Unit, fc.DailyConsumption))
					a.ItemID = st.ItemID
					emit(ctx, m.hub, a)
				} else {
					metrics.AlertsSuppressed.WithLabelValues(domain.AlertInventory).Inc()
				}
			}
		}
	}

	// Stock discrepancy: the ledger-implied stock diverging from actual
	// signals an un-ledgered change. Baseline is an hourly checkpoint of
	// the item's stock; expected = checkpoint + net ledger since then.
	type checkpoint struct {
		Stock float64   `json:"stock"`
		At    time.Time `json:"at"`
	}
	cpKey := "inventory:checkpoint:" + st.ItemID
	var cp checkpoint
	ok, _ := cache.GetJSON(ctx, m.store, cpKey, &cp)
	if !ok || now.Sub(cp.At) >= time.Hour {
		if err := cache.SetJSON(ctx, m.store, cpKey, checkpoint{Stock: st.CurrentStock, At: now}, 0); err != nil {
			log.Error().Err(err).Str("item", st.ItemID).Msg("stock checkpoint write failed")
		}
		return
	}

	sinceCp, err := m.movementsSince(ctx, st.ItemID, cp.At)
	if err != nil {
		return
	}
	var net float64
	for _, mv := range sinceCp {
		net += mv.SignedQuantity()
	}
	expected := cp.Stock + net
	if expected <= 0 {
		return
	}
	if math.Abs(expected-st.CurrentStock)/expected > 0.10 {
		if m.dedup.ShouldEmit(ctx, "inventory_discrepancy", st.ItemID, 6*time.Hour) {
			a := newAlert(domain.AlertInventory, domain.SeverityHigh,
				"Stock Discrepancy",
				fmt.Sprintf("%s (%s) stock %.0f diverges more than 10%% from the ledger-implied %.0f",
					st.Name, st.SKU, st.CurrentStock, expected))
			a.ItemID = st.ItemID
			emit(ctx, m.hub, a)
		} else {
			metrics.AlertsSuppressed.WithLabelValues(domain.AlertInventory).Inc()
		}
	}
}

func (m *InventoryMonitor) updateSummary(ctx context.Context, items []domain.InventoryItem) {
	now := m.now()
	sum := domain.InventorySummary{TotalItems: len(items), LastUpdate: now}

	consumers := make([]domain.ItemConsumption, 0, len(items))
	risks := make([]domain.StockoutRisk, 0)

	for _, item := range items {
		if item.CurrentStock <= 0 {
			sum.OutOfStock++
		} else if item.CurrentStock <= item.ReorderPoint {
			sum.BelowReorderPoint++
		}
		sum.TotalValue += item.CurrentStock * item.CostPerUnit

		recent, err := m.movementsSince(ctx, item.ID, now.Add(-24*time.Hour))
		if err != nil {
			continue
		}
		sum.Movements24h += len(recent)
		var out24 float64
		for _, mv := range recent {
			if mv.Type == domain.MovementOut {
				out24 += mv.Quantity
			}
		}
		if out24 > 0 {
			consumers = append(consumers, domain.ItemConsumption{ItemID: item.ID, SKU: item.SKU, Volume: out24})
		}

		var fc domain.ConsumptionForecast
		if ok, _ := cache.GetJSON(ctx, m.store, cache.ForecastKey(item.ID), &fc); ok && fc.DaysUntilStockout <= 30 {
			risks = append(risks, domain.StockoutRisk{ItemID: item.ID, SKU: item.SKU, DaysUntilStockout: fc.DaysUntilStockout})
		}
	}

	sort.Slice(consumers, func(i, j int) bool { return consumers[i].Volume > consumers[j].Volume })
	if len(consumers) > 10 {
		consumers = consumers[:10]
	}
	sum.TopConsumers = consumers

	sort.Slice(risks, func(i, j int) bool { return risks[i].DaysUntilStockout < risks[j].DaysUntilStockout })
	if len(risks) > 5 {
		risks = risks[:5]
	}
	sum.StockoutRisks = risks
	sum.TotalValue = round2(sum.TotalValue)

	if err := cache.SetJSON(ctx, m.store, cache.KeyInventorySummary, sum, 5*time.Minute); err != nil {
		log.Error().Err(err).Msg("inventory summary cache write failed")
		return
	}
	m.hub.BroadcastInventorySummary(ctx, sum)
}

// --- inbound operations ---

// RecordStockMovement appends to the ledger, applies the signed delta to
// the backing store, refreshes the cached status, and broadcasts. It is
// safe to call concurrently with the monitor's tick: the store increment is
// atomic and the cache mirror is a plain overwrite. Returns the movement id.
func (m *InventoryMonitor) RecordStockMovement(ctx context.Context, mv domain.StockMovement) (string, error) {
	if mv.Quantity < 0 {
		return "", fmt.Errorf("movement quantity must be >= 0, got %f", mv.Quantity)
	}
	switch mv.Type {
	case domain.MovementIn, domain.MovementOut, domain.MovementTransfer, domain.MovementAdjustment:
	default:
		return "", fmt.Errorf("unknown movement type %q", mv.Type)
	}

	mv.ID = uuid.NewString()
	if mv.Timestamp.IsZero() {
		mv.Timestamp = m.now()
	}

	if err := cache.PushJSON(ctx, m.store, cache.MovementsKey(mv.ItemID), mv, movementHistoryCap); err != nil {
		return "", fmt.Errorf("ledger append: %w", err)
	}

	if delta := mv.SignedQuantity(); delta != 0 {
		if err := m.repo.AdjustItemQuantity(ctx, mv.ItemID, delta); err != nil {
			return "", fmt.Errorf("stock adjust: %w", err)
		}
	}
	if mv.Type == domain.MovementTransfer && mv.ToLocation != "" {
		if err := m.repo.UpdateItemLocation(ctx, mv.ItemID, mv.ToLocation); err != nil {
			return "", fmt.Errorf("location update: %w", err)
		}
	}

	item, err := m.repo.GetInventoryItem(ctx, mv.ItemID)
	if err != nil {
		return "", fmt.Errorf("item reload: %w", err)
	}
	if err := m.processItem(ctx, *item, false); err != nil {
		log.Error().Err(err).Str("item", mv.ItemID).Msg("post-movement refresh failed")
	}
	return mv.ID, nil
}

// ReceiveStock records an inbound delivery.
func (m *InventoryMonitor) ReceiveStock(ctx context.Context, itemID string, qty float64, location, reason, operatorID string) (string, error) {
	return m.RecordStockMovement(ctx, domain.StockMovement{
		ItemID: itemID, Type: domain.MovementIn, Quantity: qty,
		ToLocation: location, Reason: reason, OperatorID: operatorID,
	})
}

// ConsumeStock records production consumption against an order.
func (m *InventoryMonitor) ConsumeStock(ctx context.Context, itemID string, qty float64, orderID, operatorID string) (string, error) {
	return m.RecordStockMovement(ctx, domain.StockMovement{
		ItemID: itemID, Type: domain.MovementOut, Quantity: qty,
		OrderID: orderID, OperatorID: operatorID,
	})
}

// AdjustStock records a signed correction (cycle count, damage, shrinkage).
func (m *InventoryMonitor) AdjustStock(ctx context.Context, itemID string, qty float64, reason, operatorID string) (string, error) {
	direction := 1
	if qty < 0 {
		direction = -1
		qty = -qty
	}
	return m.RecordStockMovement(ctx, domain.StockMovement{
		ItemID: itemID, Type: domain.MovementAdjustment, Quantity: qty,
		Direction: direction, Reason: reason, OperatorID: operatorID,
	})
}

// TransferStock records a quantity-neutral location move.
func (m *InventoryMonitor) TransferStock(ctx context.Context, itemID string, qty float64, from, to, operatorID string) (string, error) {
	return m.RecordStockMovement(ctx, domain.StockMovement{
		ItemID: itemID, Type: domain.MovementTransfer, Quantity: qty,
		FromLocation: from, ToLocation: to, OperatorID: operatorID,
	})
}

// --- read API ---

func (m *InventoryMonitor) Status(ctx context.Context, itemID string) (*domain.InventoryStatus, error) {
	var st domain.InventoryStatus
	ok, err := cache.GetJSON(ctx, m.store, cache.InventoryStatusKey(itemID), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (m *InventoryMonitor) AllStatuses(ctx context.Context) ([]domain.InventoryStatus, error) {
	items, err := m.repo.ListInventoryItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.InventoryStatus, 0, len(items))
	for _, item := range items {
		var st domain.InventoryStatus
		if ok, _ := cache.GetJSON(ctx, m.store, cache.InventoryStatusKey(item.ID), &st); ok {
			out = append(out, st)
		}
	}
	return out, nil
}

// Movements returns the capped recent ledger for an item, newest first.
func (m *InventoryMonitor) Movements(ctx context.Context, itemID string, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 || limit > movementHistoryCap {
		limit = movementHistoryCap
	}
	return cache.RangeJSON[domain.StockMovement](ctx, m.store, cache.MovementsKey(itemID), 0, limit-1)
}

func (m *InventoryMonitor) Forecast(ctx context.Context, itemID string) (*domain.ConsumptionForecast, error) {
	var fc domain.ConsumptionForecast
	ok, err := cache.GetJSON(ctx, m.store, cache.ForecastKey(itemID), &fc)
	if err != nil || !ok {
		return nil, err
	}
	return &fc, nil
}

func (m *InventoryMonitor) Summary(ctx context.Context) (*domain.InventorySummary, error) {
	var sum domain.InventorySummary
	ok, err := cache.GetJSON(ctx, m.store, cache.KeyInventorySummary, &sum)
	if err != nil || !ok {
		return nil, err
	}
	return &sum, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
