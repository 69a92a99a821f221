package domain

import "time"

// KPI trend directions and statuses.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"

	KPIGood     = "good"
	KPIWarning  = "warning"
	KPICritical = "critical"
)

// Fixed KPI identifiers; the analytics engine recomputes exactly this set.
const (
	KPIThroughput        = "throughput"
	KPIEfficiency        = "efficiency"
	KPIQuality           = "quality"
	KPIOnTimeDelivery    = "on_time_delivery"
	KPIUtilization       = "utilization"
	KPIInventoryTurnover = "inventory_turnover"
	KPIRevenue           = "revenue"
	KPICostPerUnit       = "cost_per_unit"
)

type RealTimeKPI struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit"`
	Trend        string    `json:"trend"`
	TrendPercent float64   `json:"trend_percent"`
	Target       float64   `json:"target"`
	Status       string    `json:"status"`
	LastUpdate   time.Time `json:"last_update"`
}

type TrendPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type ProductionAnalytics struct {
	OrdersThisHour int          `json:"orders_this_hour"`
	OrdersToday    int          `json:"orders_today"`
	UnitsThisHour  int          `json:"units_this_hour"`
	UnitsToday     int          `json:"units_today"`
	ActiveOrders   int          `json:"active_orders"`
	DelayedOrders  int          `json:"delayed_orders"`
	AvgEfficiency  float64      `json:"avg_efficiency"`
	HourlyTrend    []TrendPoint `json:"hourly_trend"`
	DailyTrend     []TrendPoint `json:"daily_trend"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

type OperationalAnalytics struct {
	FleetUtilization      float64   `json:"fleet_utilization"`
	FleetOEE              float64   `json:"fleet_oee"`
	TotalDowntimeHours    float64   `json:"total_downtime_hours"`
	InventoryTurnover     float64   `json:"inventory_turnover"`
	InventoryWastePercent float64   `json:"inventory_waste_percent"`
	WorkforceProductivity float64   `json:"workforce_productivity"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// DemandForecastPoint is one day of a projected series; the demand and
// capacity forecasts are parallel series over the same dates.
type DemandForecastPoint struct {
	Date  time.Time `json:"date"`
	Units float64   `json:"units"`
}

type MaintenancePrediction struct {
	MachineID     string    `json:"machine_id"`
	Name          string    `json:"name"`
	Performance   float64   `json:"performance"`
	Availability  float64   `json:"availability"`
	PredictedDate time.Time `json:"predicted_date"`
}

type ReorderRecommendation struct {
	ItemID            string  `json:"item_id"`
	SKU               string  `json:"sku"`
	RecommendedOrder  float64 `json:"recommended_order"`
	DaysUntilStockout float64 `json:"days_until_stockout"`
}

type PredictiveAnalytics struct {
	DemandForecast         []DemandForecastPoint   `json:"demand_forecast"`
	CapacityForecast       []DemandForecastPoint   `json:"capacity_forecast"`
	MaintenancePredictions []MaintenancePrediction `json:"maintenance_predictions"`
	ReorderRecommendations []ReorderRecommendation `json:"reorder_recommendations"`
	GeneratedAt            time.Time               `json:"generated_at"`
}

type AnalyticsSnapshot struct {
	KPIs        []RealTimeKPI         `json:"kpis"`
	Production  *ProductionAnalytics  `json:"production,omitempty"`
	Operational *OperationalAnalytics `json:"operational,omitempty"`
	GeneratedAt time.Time             `json:"generated_at"`
}
