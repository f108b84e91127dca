package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// TicketRepo stores purchased_tickets.  It implements reconcile.Tickets and
// retention.TicketExpirer.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

var ticketColumns = `id, ticket_code, order_id, order_item_id, resource_id, ` + dateExpr("valid_date") + `,
       time_slot, quantity, status, queue_number, queue_overflow, capacity_counted, created_at`

func scanTicket(row interface{ Scan(...any) error }) (model.PurchasedTicket, error) {
	var t model.PurchasedTicket
	var ts string
	var queue sql.NullInt64
	err := row.Scan(&t.ID, &t.Code, &t.OrderID, &t.OrderItemID, &t.TicketID, &t.ValidDate,
		&ts, &t.Quantity, &t.Status, &queue, &t.QueueOverflow, &t.CapacityCounted, &t.CreatedAt)
	t.TimeSlot = slotPtr(ts)
	t.QueueNumber = nullIntPtr(queue)
	return t, err
}

// IssueForItem implements reconcile.Tickets.  The unique key on
// order_item_id makes concurrent issuers converge on one row.
func (r *TicketRepo) IssueForItem(ctx context.Context, item model.OrderItem, code string) (model.PurchasedTicket, bool, error) {
	if item.ValidDate == "" {
		return model.PurchasedTicket{}, false, fmt.Errorf("order item %d has no valid date", item.ID)
	}
	const q = `INSERT INTO purchased_tickets
                 (ticket_code, order_id, order_item_id, resource_id, valid_date, time_slot, quantity, status, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, 'active', UTC_TIMESTAMP(6))
               ON DUPLICATE KEY UPDATE order_item_id = order_item_id`
	res, err := r.db.ExecContext(ctx, q, code, item.OrderID, item.ID, item.ResourceID, item.ValidDate, slotArg(item.TimeSlot), item.Quantity)
	if err != nil {
		return model.PurchasedTicket{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.PurchasedTicket{}, false, err
	}
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM purchased_tickets WHERE order_item_id = ?`, item.ID))
	if err != nil {
		return model.PurchasedTicket{}, false, fmt.Errorf("load ticket for item %d: %w", item.ID, err)
	}
	return t, n == 1, nil
}

// ClaimCapacityCount implements reconcile.Tickets.
func (r *TicketRepo) ClaimCapacityCount(ctx context.Context, ticketID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE purchased_tickets SET capacity_counted = 1 WHERE id = ? AND capacity_counted = 0`, ticketID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReleaseCapacityCount implements reconcile.Tickets.
func (r *TicketRepo) ReleaseCapacityCount(ctx context.Context, ticketID uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE purchased_tickets SET capacity_counted = 0 WHERE id = ?`, ticketID)
	return err
}

// ListByOrder returns an order's tickets in issue order.
func (r *TicketRepo) ListByOrder(ctx context.Context, orderID string) ([]model.PurchasedTicket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM purchased_tickets WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PurchasedTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExpireTicketsBefore implements retention.TicketExpirer.
func (r *TicketRepo) ExpireTicketsBefore(ctx context.Context, dateKey string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE purchased_tickets SET status = 'expired' WHERE status = 'active' AND valid_date < ?`, dateKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
