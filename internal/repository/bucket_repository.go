package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/entrance-ticketing/internal/model"
	"github.com/iliyamo/entrance-ticketing/internal/numbering"
)

// BucketRepo implements numbering.Store on the queue_buckets table.  The
// bucket row is locked FOR UPDATE so concurrent assigners serialise on it.
type BucketRepo struct {
	db *sql.DB
}

// NewBucketRepo returns a BucketRepo.
func NewBucketRepo(db *sql.DB) *BucketRepo { return &BucketRepo{db: db} }

// WithBucket implements numbering.Store.
func (r *BucketRepo) WithBucket(ctx context.Context, key model.SlotKey, fn func(tx numbering.BucketTx) error) (err error) {
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

	if _, err = tx.ExecContext(ctx,
		`INSERT IGNORE INTO queue_buckets (resource_id, slot_date, time_slot, last_number) VALUES (?, ?, ?, 0)`,
		keyArgs(key)...); err != nil {
		return err
	}
	var last int
	if err = tx.QueryRowContext(ctx,
		`SELECT last_number FROM queue_buckets WHERE resource_id = ? AND slot_date = ? AND time_slot = ? FOR UPDATE`,
		keyArgs(key)...).Scan(&last); err != nil {
		return err
	}
	return fn(&bucketTx{tx: tx, key: key, last: last})
}

type bucketTx struct {
	tx   *sql.Tx
	key  model.SlotKey
	last int
}

func (b *bucketTx) LastNumber(ctx context.Context) (int, error) { return b.last, nil }

func (b *bucketTx) TotalCapacity(ctx context.Context) (*int, error) {
	var total int
	err := b.tx.QueryRowContext(ctx,
		`SELECT total_capacity FROM capacity_slots WHERE resource_id = ? AND slot_date = ? AND time_slot = ?`,
		keyArgs(b.key)...).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &total, nil
}

func (b *bucketTx) Unnumbered(ctx context.Context) ([]model.PurchasedTicket, error) {
	rows, err := b.tx.QueryContext(ctx, `SELECT `+ticketColumns+` FROM purchased_tickets
        WHERE resource_id = ? AND valid_date = ? AND time_slot = ? AND queue_number IS NULL
        FOR UPDATE`, keyArgs(b.key)...)
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

func (b *bucketTx) SetNumber(ctx context.Context, a numbering.Assignment) error {
	_, err := b.tx.ExecContext(ctx,
		`UPDATE purchased_tickets SET queue_number = ?, queue_overflow = ? WHERE id = ? AND queue_number IS NULL`,
		a.Number, a.Overflow, a.TicketID)
	return err
}

func (b *bucketTx) SetLastNumber(ctx context.Context, n int) error {
	_, err := b.tx.ExecContext(ctx,
		`UPDATE queue_buckets SET last_number = ? WHERE resource_id = ? AND slot_date = ? AND time_slot = ?`,
		append([]any{n}, keyArgs(b.key)...)...)
	if err == nil {
		b.last = n
	}
	return err
}
