package domain

import "time"

// Derived views recomputed every polling tick. None of these are the system
// of record; they are overwritten wholesale in the state cache.

// Machine statuses.
const (
	MachineRunning     = "running"
	MachineIdle        = "idle"
	MachineMaintenance = "maintenance"
	MachineError       = "error"
)

type MachineStatus struct {
	MachineID    string    `json:"machine_id"`
	Name         string    `json:"name"`
	WorkCenter   string    `json:"work_center"`
	Status       string    `json:"status"`
	Utilization  float64   `json:"utilization"`
	Performance  float64   `json:"performance"`
	Availability float64   `json:"availability"`
	OEE          float64   `json:"oee"`
	CurrentOrder string    `json:"current_order,omitempty"`
	OperatorID   string    `json:"operator_id,omitempty"`
	LastUpdate   time.Time `json:"last_update"`
}

type MachinePerformanceMetrics struct {
	MachineID        string    `json:"machine_id"`
	HourlyThroughput float64   `json:"hourly_throughput"`
	DailyThroughput  float64   `json:"daily_throughput"`
	AvgCycleTime     float64   `json:"avg_cycle_time_hours"`
	DowntimeHours    float64   `json:"downtime_hours"`
	UptimePercent    float64   `json:"uptime_percent"`
	QualityRate      float64   `json:"quality_rate"`
	SpeedLoss        float64   `json:"speed_loss"`
	AvailabilityLoss float64   `json:"availability_loss"`
	LastUpdate       time.Time `json:"last_update"`
}

type MachineSummary struct {
	Total           int       `json:"total"`
	Running         int       `json:"running"`
	Idle            int       `json:"idle"`
	Maintenance     int       `json:"maintenance"`
	Error           int       `json:"error"`
	AvgUtilization  float64   `json:"avg_utilization"`
	AvgOEE          float64   `json:"avg_oee"`
	LastUpdate      time.Time `json:"last_update"`
}

type InventoryStatus struct {
	ItemID       string    `json:"item_id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	CurrentStock float64   `json:"current_stock"`
	Reserved     float64   `json:"reserved"`
	Available    float64   `json:"available"`
	MinStock     float64   `json:"min_stock"`
	ReorderPoint float64   `json:"reorder_point"`
	Unit         string    `json:"unit"`
	Location     string    `json:"location"`
	LastMovement time.Time `json:"last_movement"`
	CostPerUnit  float64   `json:"cost_per_unit"`
	TotalValue   float64   `json:"total_value"`
}

// StockoutNever is the days-until-stockout sentinel for items with no
// recorded consumption.
const StockoutNever = 9999

type ConsumptionForecast struct {
	ItemID             string    `json:"item_id"`
	SKU                string    `json:"sku"`
	DailyConsumption   float64   `json:"daily_consumption"`
	WeeklyConsumption  float64   `json:"weekly_consumption"`
	MonthlyConsumption float64   `json:"monthly_consumption"`
	SeasonalMultiplier float64   `json:"seasonal_multiplier"`
	DaysUntilStockout  float64   `json:"days_until_stockout"`
	RecommendedOrder   float64   `json:"recommended_order"`
	GeneratedAt        time.Time `json:"generated_at"`
}

type ItemConsumption struct {
	ItemID string  `json:"item_id"`
	SKU    string  `json:"sku"`
	Volume float64 `json:"volume"`
}

type StockoutRisk struct {
	ItemID            string  `json:"item_id"`
	SKU               string  `json:"sku"`
	DaysUntilStockout float64 `json:"days_until_stockout"`
}

type InventorySummary struct {
	TotalItems        int               `json:"total_items"`
	BelowReorderPoint int               `json:"below_reorder_point"`
	OutOfStock        int               `json:"out_of_stock"`
	TotalValue        float64           `json:"total_value"`
	Movements24h      int               `json:"movements_24h"`
	TopConsumers      []ItemConsumption `json:"top_consumers"`
	StockoutRisks     []StockoutRisk    `json:"stockout_risks"`
	LastUpdate        time.Time         `json:"last_update"`
}

type ProductionMetrics struct {
	OrderID             string    `json:"order_id"`
	TotalSteps          int       `json:"total_steps"`
	CompletedSteps      int       `json:"completed_steps"`
	CurrentStep         string    `json:"current_step,omitempty"`
	Progress            float64   `json:"progress"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	PlannedHours        float64   `json:"planned_hours"`
	ActualHours         float64   `json:"actual_hours"`
	Efficiency          float64   `json:"efficiency"`
	Bottlenecks         []string  `json:"bottlenecks,omitempty"`
	IsDelayed           bool      `json:"is_delayed"`
	DelayReason         string    `json:"delay_reason,omitempty"`
	LastUpdate          time.Time `json:"last_update"`
}

type ProductionSummary struct {
	ActiveOrders        int       `json:"active_orders"`
	OnTimePercent       float64   `json:"on_time_percent"`
	AvgEfficiency       float64   `json:"avg_efficiency"`
	CompletedToday      int       `json:"completed_today"`
	QualityPassRate     float64   `json:"quality_pass_rate"`
	AvgLeadTimeDays     float64   `json:"avg_lead_time_days"`
	CapacityUtilization float64   `json:"capacity_utilization"`
	LastUpdate          time.Time `json:"last_update"`
}
