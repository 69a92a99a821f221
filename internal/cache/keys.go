package cache

// Cache key catalog. Every monitor and the hub address shared state through
// these helpers so key layout stays in one place.

const (
	KeyMachineSummary       = "machine:summary"
	KeyInventorySummary     = "inventory:summary"
	KeyProductionSummary    = "production:summary"
	KeyWorkCenterCycles     = "production:workcenter_cycles"
	KeyKPIList              = "analytics:kpis"
	KeyProductionAnalytics  = "analytics:production"
	KeyOperationalAnalytics = "analytics:operational"
	KeyPredictiveAnalytics  = "analytics:predictive"
	KeyRecentAlerts         = "alerts:recent"
)

func MachineStatusKey(id string) string   { return "machine:status:" + id }
func MachineMetricsKey(id string) string  { return "machine:metrics:" + id }
func MachineSamplesKey(id string) string  { return "machine:samples:" + id }
func MachineCycleKey(id string) string    { return "machine:expected_cycle:" + id }
func InventoryStatusKey(id string) string { return "inventory:status:" + id }
func MovementsKey(id string) string       { return "inventory:movements:" + id }
func ForecastKey(id string) string        { return "inventory:forecast:" + id }
func ProductionKey(orderID string) string { return "production:metrics:" + orderID }
func KPIKey(id string) string             { return "analytics:kpi:" + id }
func HubLastKey(kind string) string       { return "hub:last:" + kind }
