package model

import (
	"strconv"
	"time"
)

// CapacitySlot holds the finite capacity of one (resource, date, time slot)
// bucket.  A nil TimeSlot denotes an all-day slot.
//
// Fields:
//  ID               – primary key identifier.
//  ResourceID       – ticket product the capacity belongs to.
//  Date             – business-zone date key (YYYY-MM-DD).
//  TimeSlot         – HH:MM:SS start of the session, nil for all day.
//  TotalCapacity    – seats offered for the bucket.
//  ReservedCapacity – seats held by in-flight checkouts.
//  SoldCapacity     – seats paid for.
//  Version          – optimistic concurrency counter, +1 on every write.
//
// reserved + sold <= total is checked when reserving; sold increments that
// follow a confirmed payment are allowed to overbook.
type CapacitySlot struct {
	ID               uint64    // capacity_slots.id
	ResourceID       uint64    // capacity_slots.resource_id
	Date             string    // capacity_slots.slot_date
	TimeSlot         *string   // capacity_slots.time_slot (nullable)
	TotalCapacity    int       // capacity_slots.total_capacity
	ReservedCapacity int       // capacity_slots.reserved_capacity
	SoldCapacity     int       // capacity_slots.sold_capacity
	Version          int64     // capacity_slots.version
	UpdatedAt        time.Time // capacity_slots.updated_at
}

// Available returns the seats that can still be reserved, never negative.
func (s CapacitySlot) Available() int {
	n := s.TotalCapacity - s.ReservedCapacity - s.SoldCapacity
	if n < 0 {
		return 0
	}
	return n
}

// SlotKey identifies a capacity bucket.
type SlotKey struct {
	ResourceID uint64
	Date       string
	TimeSlot   *string
}

// String renders the key as resource|date|slot, with "all-day" for a nil
// slot.  It is used for log lines and as the queue bucket key.
func (k SlotKey) String() string {
	slot := "all-day"
	if k.TimeSlot != nil {
		slot = *k.TimeSlot
	}
	return strconv.FormatUint(k.ResourceID, 10) + "|" + k.Date + "|" + slot
}
