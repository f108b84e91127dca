package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// ReservationRepo stores purchase-time capacity reservations.  The reserved
// counter on capacity_slots is maintained by the capacity store; this repo
// only tracks which order holds how many seats.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

var reservationColumns = `id, order_id, resource_id, ` + dateExpr("slot_date") + `, time_slot, quantity, status, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (model.Reservation, error) {
	var res model.Reservation
	var ts string
	err := row.Scan(&res.ID, &res.OrderID, &res.ResourceID, &res.Date, &ts, &res.Quantity, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	res.TimeSlot = slotPtr(ts)
	return res, err
}

// Create inserts a pending reservation and fills in its id and timestamps.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (order_id, resource_id, slot_date, time_slot, quantity, status) VALUES (?, ?, ?, ?, ?, 'pending')`
	out, err := r.db.ExecContext(ctx, q, res.OrderID, res.ResourceID, res.Date, slotArg(res.TimeSlot), res.Quantity)
	if err != nil {
		return err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*res = *stored
	return nil
}

// Get returns one reservation or ErrReservationNotFound.
func (r *ReservationRepo) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Cancel moves a pending reservation to cancelled and returns it.  Any other
// status yields ErrConflict.
func (r *ReservationRepo) Cancel(ctx context.Context, id uint64) (_ *model.Reservation, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	res, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if res.Status != model.ReservationPending {
		return nil, ErrConflict
	}
	if _, err = tx.ExecContext(ctx, `UPDATE reservations SET status = 'cancelled' WHERE id = ?`, id); err != nil {
		return nil, err
	}
	res.Status = model.ReservationCancelled
	return &res, nil
}

// ConfirmPending implements reconcile.Reservations.
func (r *ReservationRepo) ConfirmPending(ctx context.Context, orderID string) (_ []model.Reservation, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
        WHERE order_id = ? AND status = 'pending' FOR UPDATE`, orderID)
	if err != nil {
		return nil, err
	}
	var pending []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, res)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]any, len(pending))
	for i, res := range pending {
		ids[i] = res.ID
		pending[i].Status = model.ReservationConfirmed
	}
	q := `UPDATE reservations SET status = 'confirmed' WHERE id IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + `)`
	if _, err = tx.ExecContext(ctx, q, ids...); err != nil {
		return nil, err
	}
	return pending, nil
}
