package model

import "time"

// ReservationStatus tracks a purchase-time capacity reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation records seats taken out of a capacity slot's reserved counter
// while the customer pays.  Pending rows older than the retention threshold
// are abandoned checkouts; confirmed, cancelled and expired rows are
// terminal and pruned on a longer schedule.
//
// Fields:
//  ID         – primary key identifier.
//  OrderID    – checkout the reservation belongs to.
//  ResourceID – ticket product reserved.
//  Date       – business-zone date key.
//  TimeSlot   – session start, nil for all day.
//  Quantity   – seats reserved.
//  Status     – pending, confirmed, cancelled or expired.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Reservation struct {
	ID         uint64            // reservations.id
	OrderID    string            // reservations.order_id
	ResourceID uint64            // reservations.resource_id
	Date       string            // reservations.slot_date
	TimeSlot   *string           // reservations.time_slot (nullable)
	Quantity   int               // reservations.quantity
	Status     ReservationStatus // reservations.status
	CreatedAt  time.Time         // reservations.created_at
	UpdatedAt  time.Time         // reservations.updated_at
}

// StockHold is a temporary hold on physical product stock during checkout.
// Holds expire at ExpiresAt and are then eligible for deletion.
type StockHold struct {
	ID        uint64    // stock_holds.id
	OrderID   string    // stock_holds.order_id
	ProductID uint64    // stock_holds.product_id
	Quantity  int       // stock_holds.quantity
	HoldToken string    // stock_holds.hold_token
	ExpiresAt time.Time // stock_holds.expires_at
	CreatedAt time.Time // stock_holds.created_at
}
