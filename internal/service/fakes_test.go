package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stitchworks/factory-pulse/internal/domain"
)

// fakeRepo backs all monitor repo interfaces with in-memory fixtures.
type fakeRepo struct {
	mu sync.Mutex

	machines    []domain.Machine
	activeSteps map[string]int
	stepsDone   map[string]int
	cycles      map[string][]float64
	manual      map[string]string
	operators   map[string]string
	maintenance map[string]time.Time

	items map[string]*domain.InventoryItem

	orders     []domain.Order
	orderSteps map[string][]domain.RoutingStep
	wcCycles   map[string]float64
	queued     map[string]int

	ordersSince int
	unitsSince  int
	revenue     float64
	buckets     []float64

	totalOrders  int
	totalUnits   int
	totalRevenue float64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		activeSteps: map[string]int{},
		stepsDone:   map[string]int{},
		cycles:      map[string][]float64{},
		manual:      map[string]string{},
		operators:   map[string]string{},
		maintenance: map[string]time.Time{},
		items:       map[string]*domain.InventoryItem{},
		orderSteps:  map[string][]domain.RoutingStep{},
		wcCycles:    map[string]float64{},
		queued:      map[string]int{},
	}
}

func (f *fakeRepo) ListMachines(context.Context) ([]domain.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Machine(nil), f.machines...), nil
}

func (f *fakeRepo) ActiveStepCounts(context.Context) (map[string]int, error) {
	return f.activeSteps, nil
}

func (f *fakeRepo) StepsCompletedSince(_ context.Context, machineID string, _ time.Time) (int, error) {
	return f.stepsDone[machineID], nil
}

func (f *fakeRepo) CycleHoursSince(_ context.Context, machineID string, _ time.Time) ([]float64, error) {
	return f.cycles[machineID], nil
}

func (f *fakeRepo) SetMachineManualStatus(_ context.Context, machineID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual[machineID] = status
	for i := range f.machines {
		if f.machines[i].ID == machineID {
			f.machines[i].ManualStatus = status
		}
	}
	return nil
}

func (f *fakeRepo) SetMachineOperator(_ context.Context, machineID, operatorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operators[machineID] = operatorID
	return nil
}

func (f *fakeRepo) SetNextMaintenance(_ context.Context, machineID string, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maintenance[machineID] = when
	return nil
}

func (f *fakeRepo) ListInventoryItems(context.Context) ([]domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.InventoryItem, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, *item)
	}
	return out, nil
}

func (f *fakeRepo) GetInventoryItem(_ context.Context, id string) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("no such item %q", id)
	}
	copied := *item
	return &copied, nil
}

func (f *fakeRepo) AdjustItemQuantity(_ context.Context, id string, delta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return fmt.Errorf("no such item %q", id)
	}
	item.CurrentStock += delta
	return nil
}

func (f *fakeRepo) UpdateItemLocation(_ context.Context, id, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return fmt.Errorf("no such item %q", id)
	}
	item.Location = location
	return nil
}

func (f *fakeRepo) ActiveOrders(context.Context) ([]domain.Order, error) {
	return append([]domain.Order(nil), f.orders...), nil
}

func (f *fakeRepo) OrderSteps(_ context.Context, orderID string) ([]domain.RoutingStep, error) {
	return f.orderSteps[orderID], nil
}

func (f *fakeRepo) WorkCenterCycleHours(context.Context) (map[string]float64, error) {
	return f.wcCycles, nil
}

func (f *fakeRepo) QueuedStepsByWorkCenter(context.Context) (map[string]int, error) {
	return f.queued, nil
}

func (f *fakeRepo) OrdersCompletedSince(context.Context, time.Time) (int, error) {
	return f.ordersSince, nil
}

func (f *fakeRepo) UnitsCompletedSince(context.Context, time.Time) (int, error) {
	return f.unitsSince, nil
}

func (f *fakeRepo) RevenueSince(context.Context, time.Time) (float64, error) {
	return f.revenue, nil
}

func (f *fakeRepo) UnitsCompletedBuckets(_ context.Context, _ time.Duration, n int) ([]float64, error) {
	out := make([]float64, n)
	copy(out, f.buckets)
	return out, nil
}

func (f *fakeRepo) ProductionTotalsBetween(context.Context, time.Time, time.Time) (int, int, float64, error) {
	return f.totalOrders, f.totalUnits, f.totalRevenue, nil
}

// fakeBroadcaster records everything sent through the hub interface.
type fakeBroadcaster struct {
	mu                 sync.Mutex
	productionUpdates  []domain.ProductionMetrics
	machineUpdates     []domain.MachineStatus
	inventoryUpdates   []domain.InventoryStatus
	inventorySummaries []domain.InventorySummary
	alerts             []domain.AlertUpdate
	analytics          []domain.AnalyticsSnapshot
}

func (b *fakeBroadcaster) BroadcastProductionUpdate(_ context.Context, m domain.ProductionMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.productionUpdates = append(b.productionUpdates, m)
}

func (b *fakeBroadcaster) BroadcastMachineUpdate(_ context.Context, s domain.MachineStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.machineUpdates = append(b.machineUpdates, s)
}

func (b *fakeBroadcaster) BroadcastInventoryUpdate(_ context.Context, s domain.InventoryStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inventoryUpdates = append(b.inventoryUpdates, s)
}

func (b *fakeBroadcaster) BroadcastInventorySummary(_ context.Context, s domain.InventorySummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inventorySummaries = append(b.inventorySummaries, s)
}

func (b *fakeBroadcaster) BroadcastAlert(_ context.Context, a domain.AlertUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, a)
}

func (b *fakeBroadcaster) BroadcastAnalytics(_ context.Context, snap domain.AnalyticsSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analytics = append(b.analytics, snap)
}

func (b *fakeBroadcaster) alertsOfType(alertType string) []domain.AlertUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.AlertUpdate
	for _, a := range b.alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

// fakeProvider returns fixed measurements.
type fakeProvider struct {
	quality      float64
	downtime     float64
	workforce    float64
	passRate     float64
	leadTimeDays float64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{quality: 97, workforce: 85, passRate: 96, leadTimeDays: 14}
}

func (p *fakeProvider) QualityRate(string) float64    { return p.quality }
func (p *fakeProvider) DowntimeHours(string) float64  { return p.downtime }
func (p *fakeProvider) WorkforceProductivity() float64 { return p.workforce }
func (p *fakeProvider) QualityPassRate() float64       { return p.passRate }
func (p *fakeProvider) AvgLeadTimeDays() float64       { return p.leadTimeDays }
