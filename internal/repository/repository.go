package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stitchworks/factory-pulse/internal/domain"
)

type Repos struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repos { return &Repos{db: db} }

// --- machines ---

func (r *Repos) ListMachines(ctx context.Context) ([]domain.Machine, error) {
	var out []domain.Machine
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, name, work_center, manual_status, error_flag, maintenance_flag,
		       operator_id, current_order_id, next_maintenance
		FROM machines ORDER BY id`)
	return out, err
}

// ActiveStepCounts returns the number of IN_PROGRESS routing steps per machine.
func (r *Repos) ActiveStepCounts(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		MachineID string `db:"machine_id"`
		N         int    `db:"n"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT machine_id, COUNT(*) AS n FROM routing_steps
		WHERE status = $1 AND machine_id <> ''
		GROUP BY machine_id`, domain.StepInProgress)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.MachineID] = row.N
	}
	return out, nil
}

// StepsCompletedSince counts routing steps a machine finished after t.
func (r *Repos) StepsCompletedSince(ctx context.Context, machineID string, t time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM routing_steps
		WHERE machine_id = $1 AND status = $2 AND finished_at >= $3`,
		machineID, domain.StepCompleted, t)
	return n, err
}

// CycleHoursSince returns the durations, in hours, of steps the machine
// completed after t.
func (r *Repos) CycleHoursSince(ctx context.Context, machineID string, t time.Time) ([]float64, error) {
	var out []float64
	err := r.db.SelectContext(ctx, &out, `
		SELECT EXTRACT(EPOCH FROM (finished_at - started_at)) / 3600.0
		FROM routing_steps
		WHERE machine_id = $1 AND status = $2
		  AND started_at IS NOT NULL AND finished_at >= $3`,
		machineID, domain.StepCompleted, t)
	return out, err
}

func (r *Repos) SetMachineManualStatus(ctx context.Context, machineID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE machines SET manual_status = $2 WHERE id = $1`, machineID, status)
	return err
}

func (r *Repos) SetMachineOperator(ctx context.Context, machineID, operatorID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE machines SET operator_id = $2 WHERE id = $1`, machineID, operatorID)
	return err
}

func (r *Repos) SetNextMaintenance(ctx context.Context, machineID string, when time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE machines SET next_maintenance = $2 WHERE id = $1`, machineID, when)
	return err
}

// --- inventory ---

func (r *Repos) ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	var out []domain.InventoryItem
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, sku, name, category, current_stock, reserved, min_stock,
		       reorder_point, unit, location, cost_per_unit, last_movement
		FROM inventory_items ORDER BY id`)
	return out, err
}

func (r *Repos) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := r.db.GetContext(ctx, &item, `
		SELECT id, sku, name, category, current_stock, reserved, min_stock,
		       reorder_point, unit, location, cost_per_unit, last_movement
		FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AdjustItemQuantity applies a signed stock delta atomically. This is the
// write the inventory tick may race against; the increment happens in the
// store, not read-modify-write in process.
func (r *Repos) AdjustItemQuantity(ctx context.Context, id string, delta float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET current_stock = current_stock + $2, last_movement = NOW()
		WHERE id = $1`, id, delta)
	return err
}

func (r *Repos) UpdateItemLocation(ctx context.Context, id, location string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory_items SET location = $2, last_movement = NOW()
		WHERE id = $1`, id, location)
	return err
}

// --- orders / production ---

var activeOrderStatuses = []string{"CONFIRMED", "IN_PRODUCTION", "QC", "FINISHING"}

func (r *Repos) ActiveOrders(ctx context.Context) ([]domain.Order, error) {
	query, args, err := sqlx.In(`
		SELECT id, po_number, product_type, method, quantity, status,
		       unit_price, started_at, due_date
		FROM orders WHERE status IN (?) ORDER BY started_at`, activeOrderStatuses)
	if err != nil {
		return nil, err
	}
	var out []domain.Order
	err = r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...)
	return out, err
}

func (r *Repos) OrderSteps(ctx context.Context, orderID string) ([]domain.RoutingStep, error) {
	var out []domain.RoutingStep
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, order_id, sequence, name, work_center, machine_id, status,
		       started_at, finished_at
		FROM routing_steps WHERE order_id = $1 ORDER BY sequence`, orderID)
	return out, err
}

// WorkCenterCycleHours returns per-work-center average completed-step
// duration in hours over the trailing 30 days.
func (r *Repos) WorkCenterCycleHours(ctx context.Context) (map[string]float64, error) {
	rows := []struct {
		WorkCenter string  `db:"work_center"`
		AvgHours   float64 `db:"avg_hours"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT work_center,
		       AVG(EXTRACT(EPOCH FROM (finished_at - started_at)) / 3600.0) AS avg_hours
		FROM routing_steps
		WHERE status = $1 AND started_at IS NOT NULL
		  AND finished_at >= NOW() - INTERVAL '30 days'
		GROUP BY work_center`, domain.StepCompleted)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.WorkCenter] = row.AvgHours
	}
	return out, nil
}

// QueuedStepsByWorkCenter counts READY and IN_PROGRESS steps per work center.
func (r *Repos) QueuedStepsByWorkCenter(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		WorkCenter string `db:"work_center"`
		N          int    `db:"n"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT work_center, COUNT(*) AS n FROM routing_steps
		WHERE status IN ($1, $2) GROUP BY work_center`,
		domain.StepReady, domain.StepInProgress)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.WorkCenter] = row.N
	}
	return out, nil
}

func (r *Repos) OrdersCompletedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM orders
		WHERE status = 'COMPLETED' AND completed_at >= $1`, t)
	return n, err
}

func (r *Repos) UnitsCompletedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(quantity), 0) FROM orders
		WHERE status = 'COMPLETED' AND completed_at >= $1`, t)
	return n, err
}

func (r *Repos) RevenueSince(ctx context.Context, t time.Time) (float64, error) {
	var v float64
	err := r.db.GetContext(ctx, &v, `
		SELECT COALESCE(SUM(quantity * unit_price), 0) FROM orders
		WHERE status = 'COMPLETED' AND completed_at >= $1`, t)
	return v, err
}

// ProductionTotalsBetween aggregates completed orders, units, and revenue
// over a closed time range; used for on-demand reports.
func (r *Repos) ProductionTotalsBetween(ctx context.Context, from, to time.Time) (int, int, float64, error) {
	row := struct {
		Orders  int     `db:"orders"`
		Units   int     `db:"units"`
		Revenue float64 `db:"revenue"`
	}{}
	err := r.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS orders,
		       COALESCE(SUM(quantity), 0) AS units,
		       COALESCE(SUM(quantity * unit_price), 0) AS revenue
		FROM orders
		WHERE status = 'COMPLETED' AND completed_at >= $1 AND completed_at < $2`,
		from, to)
	return row.Orders, row.Units, row.Revenue, err
}

// UnitsCompletedBuckets groups completed units into equal buckets counting
// back from now, oldest first; used for analytics trend series.
func (r *Repos) UnitsCompletedBuckets(ctx context.Context, bucket time.Duration, n int) ([]float64, error) {
	out := make([]float64, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		hi := now.Add(-time.Duration(n-1-i) * bucket)
		lo := hi.Add(-bucket)
		var v float64
		err := r.db.GetContext(ctx, &v, `
			SELECT COALESCE(SUM(quantity), 0) FROM orders
			WHERE status = 'COMPLETED' AND completed_at >= $1 AND completed_at < $2`,
			lo, hi)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
