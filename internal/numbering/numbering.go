// Package numbering assigns staff-facing queue numbers to paid tickets within
// a (resource, date, slot) bucket.  Numbers start at 1, are dense in
// assignment order and are never reused, even across separate runs.
package numbering

import (
	"context"
	"fmt"
	"sort"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// Assignment is the number given to one ticket.
type Assignment struct {
	TicketID uint64
	Number   int
	Overflow bool
}

// Assign numbers the tickets that have no queue number yet, continuing after
// last.  Tickets are ordered by creation time with ties broken by id.  A
// number above capacity is flagged as overflow; a nil capacity means the
// bucket has no capacity row and never overflows.  Tickets that already
// carry a number are skipped.
func Assign(last int, capacity *int, tickets []model.PurchasedTicket) []Assignment {
	pending := make([]model.PurchasedTicket, 0, len(tickets))
	for _, t := range tickets {
		if t.QueueNumber == nil {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	out := make([]Assignment, 0, len(pending))
	for i, t := range pending {
		n := last + i + 1
		out = append(out, Assignment{
			TicketID: t.ID,
			Number:   n,
			Overflow: capacity != nil && n > *capacity,
		})
	}
	return out
}

// BucketTx is the view of one locked bucket inside a storage transaction.
// LastNumber must be read under a lock that is held until the transaction
// ends, so two reconciliations cannot hand out the same number.
type BucketTx interface {
	LastNumber(ctx context.Context) (int, error)
	TotalCapacity(ctx context.Context) (*int, error)
	Unnumbered(ctx context.Context) ([]model.PurchasedTicket, error)
	SetNumber(ctx context.Context, a Assignment) error
	SetLastNumber(ctx context.Context, n int) error
}

// Store opens a transaction holding the bucket lock and commits it when fn
// returns nil.
type Store interface {
	WithBucket(ctx context.Context, key model.SlotKey, fn func(tx BucketTx) error) error
}

// Assigner numbers buckets against a Store.
type Assigner struct {
	store Store
}

// NewAssigner returns an Assigner.
func NewAssigner(s Store) *Assigner { return &Assigner{store: s} }

// AssignBucket numbers every unnumbered ticket in the bucket and returns the
// assignments made.  Running it again over the same bucket returns nothing.
func (a *Assigner) AssignBucket(ctx context.Context, key model.SlotKey) ([]Assignment, error) {
	var out []Assignment
	err := a.store.WithBucket(ctx, key, func(tx BucketTx) error {
		last, err := tx.LastNumber(ctx)
		if err != nil {
			return fmt.Errorf("read last number: %w", err)
		}
		tickets, err := tx.Unnumbered(ctx)
		if err != nil {
			return fmt.Errorf("list unnumbered tickets: %w", err)
		}
		if len(tickets) == 0 {
			return nil
		}
		capacity, err := tx.TotalCapacity(ctx)
		if err != nil {
			return fmt.Errorf("read bucket capacity: %w", err)
		}
		assigned := Assign(last, capacity, tickets)
		for _, as := range assigned {
			if err := tx.SetNumber(ctx, as); err != nil {
				return fmt.Errorf("set queue number for ticket %d: %w", as.TicketID, err)
			}
		}
		if len(assigned) > 0 {
			if err := tx.SetLastNumber(ctx, assigned[len(assigned)-1].Number); err != nil {
				return fmt.Errorf("store last number: %w", err)
			}
		}
		out = assigned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
