package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// deleteBatch bounds rows per DELETE so a large backlog does not hold locks
// for long.
const deleteBatch = 1000

// RetentionRepo prunes operational tables.  It implements retention.Store.
type RetentionRepo struct {
	db *sql.DB
}

// NewRetentionRepo returns a RetentionRepo.
func NewRetentionRepo(db *sql.DB) *RetentionRepo { return &RetentionRepo{db: db} }

func (r *RetentionRepo) deleteInBatches(ctx context.Context, q string, args ...any) (int64, error) {
	var total int64
	for {
		res, err := r.db.ExecContext(ctx, q+` LIMIT `+itoa(deleteBatch), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < deleteBatch {
			return total, nil
		}
	}
}

// DeleteWebhookLogsBefore implements retention.Store.
func (r *RetentionRepo) DeleteWebhookLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.deleteInBatches(ctx, `DELETE FROM webhook_logs WHERE created_at < ?`, cutoff.UTC())
}

// DeleteTerminalReservationsBefore implements retention.Store.
func (r *RetentionRepo) DeleteTerminalReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.deleteInBatches(ctx,
		`DELETE FROM reservations WHERE status IN ('confirmed', 'cancelled', 'expired') AND updated_at < ?`, cutoff.UTC())
}

// DeleteExpiredStockHoldsBefore implements retention.Store.
func (r *RetentionRepo) DeleteExpiredStockHoldsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.deleteInBatches(ctx, `DELETE FROM stock_holds WHERE expires_at < ?`, cutoff.UTC())
}

// DeletePendingReservationsBefore implements retention.Store.  Abandoned
// reservations give their seats back: the reserved counter is decremented
// and the slot version bumped in the same transaction as the delete, so
// concurrent CAS writers retry against the new row.
func (r *RetentionRepo) DeletePendingReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		n, err := r.deletePendingBatch(ctx, cutoff.UTC())
		total += n
		if err != nil || n < deleteBatch {
			return total, err
		}
	}
}

func (r *RetentionRepo) deletePendingBatch(ctx context.Context, cutoff time.Time) (n int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT id, resource_id, `+dateExpr("slot_date")+`, time_slot, quantity FROM reservations
        WHERE status = 'pending' AND created_at < ?
        ORDER BY id LIMIT `+itoa(deleteBatch)+` FOR UPDATE`, cutoff)
	if err != nil {
		return 0, err
	}
	type hold struct {
		resourceID uint64
		date       string
		slot       string
		qty        int
	}
	var ids []any
	var holds []hold
	for rows.Next() {
		var id uint64
		var h hold
		if err = rows.Scan(&id, &h.resourceID, &h.date, &h.slot, &h.qty); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		holds = append(holds, h)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, h := range holds {
		if _, err = tx.ExecContext(ctx, `UPDATE capacity_slots
            SET reserved_capacity = GREATEST(reserved_capacity - ?, 0), version = version + 1
            WHERE resource_id = ? AND slot_date = ? AND time_slot = ?`,
			h.qty, h.resourceID, h.date, h.slot); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM reservations WHERE id IN (`+strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")+`)`, ids...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
