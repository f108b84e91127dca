// Package capacity implements per-slot capacity accounting with optimistic
// concurrency.  There is no lock shared between processes; every mutation
// is a compare-and-swap on the slot's version, retried a bounded number of
// times.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// MaxAttempts bounds the read-compute-write cycle of every mutation.
const MaxAttempts = 3

var (
	// ErrSlotNotFound is returned when no capacity row exists for a key.
	ErrSlotNotFound = errors.New("capacity slot not found")
	// ErrVersionConflict is returned by SlotStore.CompareAndSwap when another
	// writer changed the slot since it was read.
	ErrVersionConflict = errors.New("capacity slot version conflict")
	// ErrInsufficientCapacity is returned when a reservation would push
	// reserved + sold above total.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrInvalidQuantity is returned for a non-positive delta.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrContended is returned by TryReserve when every attempt lost the race.
	ErrContended = errors.New("capacity slot contended")
)

// SlotStore persists capacity slots.  CompareAndSwap must apply both deltas
// and bump the version in a single conditional write that only succeeds when
// the stored version still equals expectedVersion; otherwise it returns
// ErrVersionConflict and changes nothing.
type SlotStore interface {
	ReadSlot(ctx context.Context, key model.SlotKey) (model.CapacitySlot, error)
	CompareAndSwap(ctx context.Context, key model.SlotKey, expectedVersion int64, soldDelta, reservedDelta int) (model.CapacitySlot, error)
}

// Store exposes the capacity operations used by checkout and reconciliation.
type Store struct {
	slots    SlotStore
	attempts int
}

// NewStore wraps a SlotStore.
func NewStore(slots SlotStore) *Store {
	if slots == nil {
		panic("nil SlotStore passed to capacity.NewStore")
	}
	return &Store{slots: slots, attempts: MaxAttempts}
}

// ReadSlot returns the current slot or ErrSlotNotFound.
func (s *Store) ReadSlot(ctx context.Context, key model.SlotKey) (model.CapacitySlot, error) {
	return s.slots.ReadSlot(ctx, key)
}

// IncrementSold adds delta to the slot's sold counter.  Each attempt reads
// the slot and issues one version-guarded write.  When every attempt loses
// the race the increment is dropped: applied is false and err is nil.  This
// is soft accounting; it may undercount under extreme contention but never
// counts a delta twice.  Oversell past the total is allowed here because
// the customer has already paid.
func (s *Store) IncrementSold(ctx context.Context, key model.SlotKey, delta int) (applied bool, err error) {
	if delta <= 0 {
		return false, ErrInvalidQuantity
	}
	for attempt := 1; attempt <= s.attempts; attempt++ {
		slot, err := s.slots.ReadSlot(ctx, key)
		if err != nil {
			return false, err
		}
		_, err = s.slots.CompareAndSwap(ctx, key, slot.Version, delta, 0)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return false, err
		}
	}
	log.Printf("capacity: dropped sold increment slot=%s delta=%d after %d conflicts", key, delta, s.attempts)
	return false, nil
}

// TryReserve moves qty seats into the reserved counter if they fit.  Unlike
// IncrementSold it enforces reserved + sold <= total and reports exhausted
// retries as ErrContended, since the caller can still tell the customer.
func (s *Store) TryReserve(ctx context.Context, key model.SlotKey, qty int) (model.CapacitySlot, error) {
	if qty <= 0 {
		return model.CapacitySlot{}, ErrInvalidQuantity
	}
	for attempt := 1; attempt <= s.attempts; attempt++ {
		slot, err := s.slots.ReadSlot(ctx, key)
		if err != nil {
			return model.CapacitySlot{}, err
		}
		if slot.ReservedCapacity+slot.SoldCapacity+qty > slot.TotalCapacity {
			return slot, fmt.Errorf("%w: %d requested, %d available", ErrInsufficientCapacity, qty, slot.Available())
		}
		updated, err := s.slots.CompareAndSwap(ctx, key, slot.Version, 0, qty)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return model.CapacitySlot{}, err
		}
	}
	return model.CapacitySlot{}, ErrContended
}

// ReleaseReserved returns up to qty reserved seats to the pool.  The reserved
// counter never goes below zero.  Like IncrementSold it gives up silently
// after the retry bound.
func (s *Store) ReleaseReserved(ctx context.Context, key model.SlotKey, qty int) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	for attempt := 1; attempt <= s.attempts; attempt++ {
		slot, err := s.slots.ReadSlot(ctx, key)
		if err != nil {
			return false, err
		}
		n := qty
		if n > slot.ReservedCapacity {
			n = slot.ReservedCapacity
		}
		if n == 0 {
			return false, nil
		}
		_, err = s.slots.CompareAndSwap(ctx, key, slot.Version, 0, -n)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return false, err
		}
	}
	log.Printf("capacity: dropped reserved release slot=%s qty=%d after %d conflicts", key, qty, s.attempts)
	return false, nil
}
