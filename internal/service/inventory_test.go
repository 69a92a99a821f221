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

func newInventoryHarness(repo *fakeRepo) (*InventoryMonitor, *fakeBroadcaster, *cache.Memory, *time.Time) {
	store := cache.NewMemory()
	b := &fakeBroadcaster{}
	m := NewInventoryMonitor(repo, store, b, cache.NewDeduplicator(store), newFakeProvider(), time.Minute)
	// April: seasonal multiplier 1.00 keeps forecast math plain.
	clock := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, b, store, &clock
}

func fabricItem(stock float64) *domain.InventoryItem {
	return &domain.InventoryItem{
		ID: "i1", SKU: "FAB-COTTON-WHT", Name: "White cotton jersey",
		Category: "fabric", CurrentStock: stock, Reserved: 10,
		MinStock: 20, ReorderPoint: 60, Unit: "m", Location: "WH-A",
		CostPerUnit: 4.5,
	}
}

func TestStatusForAvailableNeverNegative(t *testing.T) {
	item := fabricItem(5) // reserved 10 exceeds stock
	st := statusFor(*item)
	assert.Equal(t, 0.0, st.Available)
	assert.Equal(t, 22.5, st.TotalValue)
}

func TestRecordStockMovementAppliesSignedDelta(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(100)
	m, b, _, clock := newInventoryHarness(repo)

	id, err := m.ReceiveStock(ctx, "i1", 50, "WH-A", "goods receipt", "op-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 150.0, repo.items["i1"].CurrentStock)

	*clock = clock.Add(time.Minute)
	_, err = m.ConsumeStock(ctx, "i1", 30, "o1", "op-1")
	require.NoError(t, err)
	assert.Equal(t, 120.0, repo.items["i1"].CurrentStock)

	*clock = clock.Add(time.Minute)
	_, err = m.AdjustStock(ctx, "i1", -5, "cycle count", "op-1")
	require.NoError(t, err)
	assert.Equal(t, 115.0, repo.items["i1"].CurrentStock)

	// Transfers move location, not quantity.
	*clock = clock.Add(time.Minute)
	_, err = m.TransferStock(ctx, "i1", 115, "WH-A", "WH-B", "op-1")
	require.NoError(t, err)
	assert.Equal(t, 115.0, repo.items["i1"].CurrentStock)
	assert.Equal(t, "WH-B", repo.items["i1"].Location)

	moves, err := m.Movements(ctx, "i1", 10)
	require.NoError(t, err)
	require.Len(t, moves, 4)
	assert.Equal(t, domain.MovementTransfer, moves[0].Type, "ledger reads newest first")

	// Every movement refreshed the cached status and broadcast it.
	assert.Len(t, b.inventoryUpdates, 4)
}

func TestRecordStockMovementRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(100)
	m, _, _, _ := newInventoryHarness(repo)

	_, err := m.RecordStockMovement(ctx, domain.StockMovement{ItemID: "i1", Type: domain.MovementIn, Quantity: -3})
	assert.Error(t, err)

	_, err = m.RecordStockMovement(ctx, domain.StockMovement{ItemID: "i1", Type: "TELEPORT", Quantity: 3})
	assert.Error(t, err)
}

func TestReorderAlertFiresOnceInWindow(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(50) // below reorder point 60, above min 20
	m, b, _, _ := newInventoryHarness(repo)

	m.tick(ctx)
	alerts := b.alertsOfType(domain.AlertInventory)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "Reorder Point Reached", alerts[0].Title)
	assert.Equal(t, "i1", alerts[0].ItemID)

	m.tick(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertInventory), 1, "repeat inside 12h window suppressed")
}

func TestReorderSeverityHighAtSafetyStock(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(15) // at or below min stock 20
	m, b, _, _ := newInventoryHarness(repo)

	m.tick(ctx)
	alerts := b.alertsOfType(domain.AlertInventory)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityHigh, alerts[0].Severity)
}

func TestOutOfStockAlertOnlyOnTransition(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	item := fabricItem(5)
	item.ReorderPoint = 0 // keep the reorder path quiet
	item.MinStock = 0
	repo.items["i1"] = item
	m, b, _, clock := newInventoryHarness(repo)

	m.tick(ctx)
	require.Empty(t, b.alertsOfType(domain.AlertInventory))

	// The drop to zero happens off-ledger; jump past the checkpoint window
	// so only the transition alert fires.
	repo.items["i1"].CurrentStock = 0
	*clock = clock.Add(2 * time.Hour)
	m.tick(ctx)
	alerts := b.alertsOfType(domain.AlertInventory)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "Out of Stock", alerts[0].Title)

	// Staying at zero is not a new transition.
	m.tick(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertInventory), 1)
}

func TestConsumptionSpikeAnomaly(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(200)
	m, b, store, _ := newInventoryHarness(repo)
	m.lastForecast = m.now() // keep the seeded forecast authoritative this tick
	now := m.now()

	fc := domain.ConsumptionForecast{ItemID: "i1", SKU: "FAB-COTTON-WHT", DailyConsumption: 10}
	require.NoError(t, cache.SetJSON(ctx, store, cache.ForecastKey("i1"), fc, time.Hour))

	// 25 units out in 24h against a 10/day forecast crosses the 2x bound.
	for i, qty := range []float64{15, 10} {
		mv := domain.StockMovement{
			ID: "mv", ItemID: "i1", Type: domain.MovementOut, Quantity: qty,
			Timestamp: now.Add(-time.Duration(i+1) * time.Hour),
		}
		require.NoError(t, cache.PushJSON(ctx, store, cache.MovementsKey("i1"), mv, movementHistoryCap))
	}

	m.tick(ctx)
	alerts := b.alertsOfType(domain.AlertInventory)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Consumption Anomaly", alerts[0].Title)
	assert.Equal(t, "i1", alerts[0].ItemID)

	m.tick(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertInventory), 1, "repeat inside 6h window suppressed")
}

func TestStockDiscrepancyAnomaly(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(100)
	m, b, _, clock := newInventoryHarness(repo)

	m.tick(ctx) // baselines the hourly checkpoint
	require.Empty(t, b.alertsOfType(domain.AlertInventory))

	// Stock drops 30% with no ledger entry to account for it.
	repo.items["i1"].CurrentStock = 70
	*clock = clock.Add(30 * time.Minute)
	m.tick(ctx)

	alerts := b.alertsOfType(domain.AlertInventory)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Stock Discrepancy", alerts[0].Title)
	assert.Equal(t, "i1", alerts[0].ItemID)

	*clock = clock.Add(10 * time.Minute)
	m.tick(ctx)
	assert.Len(t, b.alertsOfType(domain.AlertInventory), 1, "repeat inside 6h window suppressed")
}

func TestConsumptionForecast(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(120)
	m, _, store, _ := newInventoryHarness(repo)
	now := m.now()

	// 60 units consumed over the last two days -> 30/day.
	for i, qty := range []float64{40, 20} {
		mv := domain.StockMovement{
			ID: "mv", ItemID: "i1", Type: domain.MovementOut, Quantity: qty,
			Timestamp: now.Add(-time.Duration(i*24+1) * time.Hour),
		}
		require.NoError(t, cache.PushJSON(ctx, store, cache.MovementsKey("i1"), mv, movementHistoryCap))
	}

	fc, err := m.refreshForecast(ctx, statusFor(*repo.items["i1"]))
	require.NoError(t, err)
	assert.InDelta(t, 30.0, fc.DailyConsumption, 1.0)
	assert.Equal(t, 1.0, fc.SeasonalMultiplier)
	// available = 120 - 10 reserved = 110 -> ~3.7 days left
	assert.InDelta(t, 110.0/fc.DailyConsumption, fc.DaysUntilStockout, 0.1)
	assert.GreaterOrEqual(t, fc.RecommendedOrder, 2*repo.items["i1"].MinStock)
}

func TestForecastWithoutConsumption(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(120)
	m, _, _, _ := newInventoryHarness(repo)

	fc, err := m.refreshForecast(ctx, statusFor(*repo.items["i1"]))
	require.NoError(t, err)
	assert.Equal(t, 0.0, fc.DailyConsumption)
	assert.Equal(t, float64(domain.StockoutNever), fc.DaysUntilStockout)
}

func TestInventorySummary(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.items["i1"] = fabricItem(50) // below reorder
	out := fabricItem(0)
	out.ID = "i2"
	out.SKU = "FAB-POLY-BLK"
	repo.items["i2"] = out
	m, b, _, _ := newInventoryHarness(repo)

	m.tick(ctx)

	sum, err := m.Summary(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.TotalItems)
	assert.Equal(t, 1, sum.BelowReorderPoint)
	assert.Equal(t, 1, sum.OutOfStock)
	assert.Equal(t, 225.0, sum.TotalValue, "50 x 4.5")
	require.NotEmpty(t, b.inventorySummaries, "summary refresh broadcasts")
}
