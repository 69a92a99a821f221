package domain

import "time"

// Stored entities read from the relational backing store. The store is the
// system of record; everything in status.go is a derived view over these.

type Machine struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	WorkCenter      string     `db:"work_center" json:"work_center"`
	ManualStatus    string     `db:"manual_status" json:"manual_status"`
	ErrorFlag       bool       `db:"error_flag" json:"error_flag"`
	MaintenanceFlag bool       `db:"maintenance_flag" json:"maintenance_flag"`
	OperatorID      string     `db:"operator_id" json:"operator_id"`
	CurrentOrderID  string     `db:"current_order_id" json:"current_order_id"`
	NextMaintenance *time.Time `db:"next_maintenance" json:"next_maintenance,omitempty"`
}

type InventoryItem struct {
	ID           string    `db:"id" json:"id"`
	SKU          string    `db:"sku" json:"sku"`
	Name         string    `db:"name" json:"name"`
	Category     string    `db:"category" json:"category"`
	CurrentStock float64   `db:"current_stock" json:"current_stock"`
	Reserved     float64   `db:"reserved" json:"reserved"`
	MinStock     float64   `db:"min_stock" json:"min_stock"`
	ReorderPoint float64   `db:"reorder_point" json:"reorder_point"`
	Unit         string    `db:"unit" json:"unit"`
	Location     string    `db:"location" json:"location"`
	CostPerUnit  float64   `db:"cost_per_unit" json:"cost_per_unit"`
	LastMovement time.Time `db:"last_movement" json:"last_movement"`
}

type Order struct {
	ID          string    `db:"id" json:"id"`
	PONumber    string    `db:"po_number" json:"po_number"`
	ProductType string    `db:"product_type" json:"product_type"`
	Method      string    `db:"method" json:"method"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Status      string    `db:"status" json:"status"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
}

// Routing step statuses as stored.
const (
	StepPending    = "PENDING"
	StepReady      = "READY"
	StepInProgress = "IN_PROGRESS"
	StepCompleted  = "COMPLETED"
)

type RoutingStep struct {
	ID         string     `db:"id" json:"id"`
	OrderID    string     `db:"order_id" json:"order_id"`
	Sequence   int        `db:"sequence" json:"sequence"`
	Name       string     `db:"name" json:"name"`
	WorkCenter string     `db:"work_center" json:"work_center"`
	MachineID  string     `db:"machine_id" json:"machine_id"`
	Status     string     `db:"status" json:"status"`
	StartedAt  *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Stock movement types. ADJUSTMENT carries a signed quantity through the
// Direction field; TRANSFER is location-only and quantity-neutral.
const (
	MovementIn         = "IN"
	MovementOut        = "OUT"
	MovementTransfer   = "TRANSFER"
	MovementAdjustment = "ADJUSTMENT"
)

// StockMovement is an immutable ledger entry. Quantity is always >= 0; the
// sign applied to stock is derived from Type (and Direction for adjustments).
type StockMovement struct {
	ID           string     `db:"id" json:"id"`
	ItemID       string     `db:"item_id" json:"item_id"`
	SKU          string     `db:"sku" json:"sku"`
	Type         string     `db:"type" json:"type"`
	Quantity     float64    `db:"quantity" json:"quantity"`
	Direction    int        `db:"direction" json:"direction"` // adjustments only: +1 or -1
	FromLocation string     `db:"from_location" json:"from_location,omitempty"`
	ToLocation   string     `db:"to_location" json:"to_location,omitempty"`
	Reason       string     `db:"reason" json:"reason,omitempty"`
	OrderID      string     `db:"order_id" json:"order_id,omitempty"`
	OperatorID   string     `db:"operator_id" json:"operator_id,omitempty"`
	BatchNumber  string     `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	Timestamp    time.Time  `db:"timestamp" json:"timestamp"`
}

// SignedQuantity returns the stock delta this movement applies.
func (m StockMovement) SignedQuantity() float64 {
	switch m.Type {
	case MovementIn:
		return m.Quantity
	case MovementOut:
		return -m.Quantity
	case MovementAdjustment:
		if m.Direction < 0 {
			return -m.Quantity
		}
		return m.Quantity
	default: // TRANSFER
		return 0
	}
}
