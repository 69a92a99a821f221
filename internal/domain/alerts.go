package domain

import "time"

// Alert types.
const (
	AlertBottleneck = "bottleneck"
	AlertQuality    = "quality"
	AlertMachine    = "machine"
	AlertInventory  = "inventory"
	AlertDelay      = "delay"
)

// Alert severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// AlertUpdate is transient: appended to a bounded recent-alerts list and
// never updated once emitted.
type AlertUpdate struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	OrderID   string    `json:"order_id,omitempty"`
	MachineID string    `json:"machine_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
