package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/entrance-ticketing/internal/capacity"
	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// upsertBatch bounds the rows per INSERT statement.
const upsertBatch = 500

// CapacityRepo stores capacity_slots.  It implements capacity.SlotStore and
// capacity.SlotWriter.
type CapacityRepo struct {
	db *sql.DB
}

// NewCapacityRepo returns a CapacityRepo.
func NewCapacityRepo(db *sql.DB) *CapacityRepo { return &CapacityRepo{db: db} }

var slotColumns = `id, resource_id, ` + dateExpr("slot_date") + `, time_slot, total_capacity,
       reserved_capacity, sold_capacity, version, updated_at`

func scanSlot(row interface{ Scan(...any) error }) (model.CapacitySlot, error) {
	var s model.CapacitySlot
	var ts string
	err := row.Scan(&s.ID, &s.ResourceID, &s.Date, &ts, &s.TotalCapacity,
		&s.ReservedCapacity, &s.SoldCapacity, &s.Version, &s.UpdatedAt)
	s.TimeSlot = slotPtr(ts)
	return s, err
}

// ReadSlot implements capacity.SlotStore.
func (r *CapacityRepo) ReadSlot(ctx context.Context, key model.SlotKey) (model.CapacitySlot, error) {
	q := `SELECT ` + slotColumns + ` FROM capacity_slots
          WHERE resource_id = ? AND slot_date = ? AND time_slot = ?`
	s, err := scanSlot(r.db.QueryRowContext(ctx, q, keyArgs(key)...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CapacitySlot{}, capacity.ErrSlotNotFound
	}
	return s, err
}

// CompareAndSwap implements capacity.SlotStore with a single conditional
// UPDATE guarded by the version column.
func (r *CapacityRepo) CompareAndSwap(ctx context.Context, key model.SlotKey, expectedVersion int64, soldDelta, reservedDelta int) (model.CapacitySlot, error) {
	const q = `UPDATE capacity_slots
               SET sold_capacity = sold_capacity + ?,
                   reserved_capacity = reserved_capacity + ?,
                   version = version + 1
               WHERE resource_id = ? AND slot_date = ? AND time_slot = ? AND version = ?`
	args := append([]any{soldDelta, reservedDelta}, keyArgs(key)...)
	res, err := r.db.ExecContext(ctx, q, append(args, expectedVersion)...)
	if err != nil {
		return model.CapacitySlot{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.CapacitySlot{}, err
	}
	if n == 0 {
		// Either the row is gone or another writer bumped the version.
		if _, err := r.ReadSlot(ctx, key); err != nil {
			return model.CapacitySlot{}, err
		}
		return model.CapacitySlot{}, capacity.ErrVersionConflict
	}
	return r.ReadSlot(ctx, key)
}

// UpsertSlots implements capacity.SlotWriter.  Existing rows only get a new
// total; sold and reserved counts are never touched.  A changed total bumps
// the version so in-flight reservations re-check it.
func (r *CapacityRepo) UpsertSlots(ctx context.Context, slots []model.CapacitySlot) (int64, error) {
	var affected int64
	for start := 0; start < len(slots); start += upsertBatch {
		end := start + upsertBatch
		if end > len(slots) {
			end = len(slots)
		}
		batch := slots[start:end]
		q := `INSERT INTO capacity_slots (resource_id, slot_date, time_slot, total_capacity) VALUES ` +
			placeholders(len(batch), 4) + `
              ON DUPLICATE KEY UPDATE
                version = IF(total_capacity = VALUES(total_capacity), version, version + 1),
                total_capacity = VALUES(total_capacity)`
		args := make([]any, 0, len(batch)*4)
		for _, s := range batch {
			args = append(args, s.ResourceID, s.Date, slotArg(s.TimeSlot), s.TotalCapacity)
		}
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return affected, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return affected, err
		}
		affected += n
	}
	return affected, nil
}

// ListForDate returns every slot of a resource on one date ordered by start
// time, all-day slot first.
func (r *CapacityRepo) ListForDate(ctx context.Context, resourceID uint64, date string) ([]model.CapacitySlot, error) {
	q := `SELECT ` + slotColumns + ` FROM capacity_slots
          WHERE resource_id = ? AND slot_date = ?
          ORDER BY time_slot`
	rows, err := r.db.QueryContext(ctx, q, resourceID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CapacitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
