package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/entrance-ticketing/internal/model"
	"github.com/iliyamo/entrance-ticketing/internal/reconcile"
)

// OrderRepo stores orders and their items.  It implements reconcile.Orders.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// Create inserts an order with its items and fills in the generated item
// ids.  PaymentData starts as an empty array.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	status := o.Status
	if status == "" {
		status = model.OrderPending
	}
	const q = `INSERT INTO orders (order_id, user_id, status, gross_amount_cents, payment_data)
               VALUES (?, ?, ?, ?, JSON_ARRAY())`
	if _, err = tx.ExecContext(ctx, q, o.OrderID, o.UserID, status, o.GrossAmountCents); err != nil {
		return err
	}
	o.Status = status

	const iq = `INSERT INTO order_items (order_id, kind, resource_id, valid_date, time_slot, quantity, unit_price_cents)
                VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.OrderID
		var date any
		if it.ValidDate != "" {
			date = it.ValidDate
		}
		res, err := tx.ExecContext(ctx, iq, o.OrderID, it.Kind, it.ResourceID, date, slotArg(it.TimeSlot), it.Quantity, it.UnitPriceCents)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		it.ID = uint64(id)
	}
	return nil
}

// Status implements reconcile.Orders.
func (r *OrderRepo) Status(ctx context.Context, orderID string) (model.OrderStatus, error) {
	var s model.OrderStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE order_id = ?`, orderID).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", reconcile.ErrOrderNotFound
	}
	return s, err
}

// Get returns the order with its items and payment trail.
func (r *OrderRepo) Get(ctx context.Context, orderID string) (*model.Order, error) {
	const q = `SELECT order_id, user_id, status, gross_amount_cents, payment_data, created_at, updated_at
               FROM orders WHERE order_id = ?`
	var o model.Order
	var userID sql.NullInt64
	var trail []byte
	err := r.db.QueryRowContext(ctx, q, orderID).Scan(&o.OrderID, &userID, &o.Status, &o.GrossAmountCents, &trail, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reconcile.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		o.UserID = &uid
	}
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &o.PaymentData); err != nil {
			return nil, fmt.Errorf("decode payment_data of %s: %w", orderID, err)
		}
	}
	if o.Items, err = r.Items(ctx, orderID); err != nil {
		return nil, err
	}
	return &o, nil
}

// ApplyStatus implements reconcile.Orders.  The order row is locked for the
// duration; the payload is appended whether or not the status moves.
func (r *OrderRepo) ApplyStatus(ctx context.Context, orderID string, status model.OrderStatus, payload json.RawMessage) (tr reconcile.Transition, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return tr, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var from model.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE order_id = ? FOR UPDATE`, orderID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return tr, reconcile.ErrOrderNotFound
	}
	if err != nil {
		return tr, err
	}

	to := from
	if model.CanTransition(from, status) {
		to = status
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	const q = `UPDATE orders
               SET payment_data = JSON_ARRAY_APPEND(payment_data, '$', CAST(? AS JSON)),
                   status = ?
               WHERE order_id = ?`
	if _, err = tx.ExecContext(ctx, q, string(payload), to, orderID); err != nil {
		return tr, err
	}
	return reconcile.Transition{From: from, To: to, Applied: to != from}, nil
}

// Items implements reconcile.Orders.  Items come back in insertion order.
func (r *OrderRepo) Items(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	q := `SELECT id, order_id, kind, resource_id, IFNULL(` + dateExpr("valid_date") + `, ''), time_slot, quantity, unit_price_cents
          FROM order_items WHERE order_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		var ts string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Kind, &it.ResourceID, &it.ValidDate, &ts, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		it.TimeSlot = slotPtr(ts)
		out = append(out, it)
	}
	return out, rows.Err()
}
