package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stitchworks/factory-pulse/internal/cache"
	"github.com/stitchworks/factory-pulse/internal/domain"
	"github.com/stitchworks/factory-pulse/internal/metrics"
	"github.com/stitchworks/factory-pulse/internal/repository"
)

// Broadcaster is what monitors need from the hub; *hub.Hub satisfies it.
type Broadcaster interface {
	BroadcastProductionUpdate(ctx context.Context, m domain.ProductionMetrics)
	BroadcastMachineUpdate(ctx context.Context, s domain.MachineStatus)
	BroadcastInventoryUpdate(ctx context.Context, s domain.InventoryStatus)
	BroadcastInventorySummary(ctx context.Context, s domain.InventorySummary)
	BroadcastAlert(ctx context.Context, a domain.AlertUpdate)
	BroadcastAnalytics(ctx context.Context, snap domain.AnalyticsSnapshot)
}

// ReportSink stores generated reports; *cloud.S3Client satisfies it. Nil
// means reports are returned inline only.
type ReportSink interface {
	UploadReport(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Services wires the four monitors around one shared cache, one backing
// store, and one hub. Construct once per process.
type Services struct {
	Repos      *repository.Repos
	Machines   *MachineMonitor
	Inventory  *InventoryMonitor
	Production *ProductionTracker
	Analytics  *AnalyticsEngine
}

type Intervals struct {
	Machine    time.Duration
	Inventory  time.Duration
	Production time.Duration
	Analytics  time.Duration
}

func New(db *sqlx.DB, store cache.Store, b Broadcaster, provider MetricsProvider, iv Intervals) *Services {
	repos := repository.New(db)
	dedup := cache.NewDeduplicator(store)
	s := &Services{
		Repos:      repos,
		Machines:   NewMachineMonitor(repos, store, b, dedup, provider, iv.Machine),
		Inventory:  NewInventoryMonitor(repos, store, b, dedup, provider, iv.Inventory),
		Production: NewProductionTracker(repos, store, b, dedup, provider, iv.Production),
	}
	s.Analytics = NewAnalyticsEngine(repos, store, b, provider, iv.Analytics)
	return s
}

// Start launches all monitor loops.
func (s *Services) Start() {
	s.Machines.Start()
	s.Inventory.Start()
	s.Production.Start()
	s.Analytics.Start()
}

// Stop halts all monitor loops. Cached state is left as last written.
func (s *Services) Stop() {
	s.Machines.Stop()
	s.Inventory.Stop()
	s.Production.Stop()
	s.Analytics.Stop()
}

// newAlert stamps id and timestamp on an alert.
func newAlert(alertType, severity, title, message string) domain.AlertUpdate {
	return domain.AlertUpdate{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// emit sends an alert through the hub and counts it.
func emit(ctx context.Context, b Broadcaster, a domain.AlertUpdate) {
	b.BroadcastAlert(ctx, a)
	metrics.AlertsEmitted.WithLabelValues(a.Type, a.Severity).Inc()
}
