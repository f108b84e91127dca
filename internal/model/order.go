package model

import (
	"encoding/json"
	"time"
)

// OrderStatus is the canonical payment status of an order, decoupled from
// the gateway's own vocabulary.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderFailed   OrderStatus = "failed"
	OrderExpired  OrderStatus = "expired"
	OrderRefunded OrderStatus = "refunded"
)

// orderTransitions lists, for every status, the statuses it may move to.
// failed, expired and refunded are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderFailed, OrderExpired},
	OrderPaid:    {OrderRefunded},
}

// CanTransition reports whether an order in status from may be moved to
// status to.  Staying in the same status is not a transition.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the five canonical statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderFailed, OrderExpired, OrderRefunded:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool { return len(orderTransitions[s]) == 0 }

// Order is a checkout.  OrderID doubles as the pickup code shown to the
// customer.  PaymentData is the append-only list of gateway payloads
// received for the order.
type Order struct {
	OrderID          string            // orders.order_id
	UserID           *uint64           // orders.user_id (nullable for guests)
	Status           OrderStatus       // orders.status
	GrossAmountCents int64             // orders.gross_amount_cents
	PaymentData      []json.RawMessage // orders.payment_data (JSON array)
	Items            []OrderItem       // order_items rows in line order
	CreatedAt        time.Time         // orders.created_at
	UpdatedAt        time.Time         // orders.updated_at
}

// ItemKind distinguishes entrance tickets from physical products.
type ItemKind string

const (
	ItemTicket  ItemKind = "ticket"
	ItemProduct ItemKind = "product"
)

// OrderItem is one purchasable line of an order.  Only ticket items carry
// a resource, date and slot and result in a PurchasedTicket.
type OrderItem struct {
	ID             uint64   // order_items.id
	OrderID        string   // order_items.order_id
	Kind           ItemKind // order_items.kind
	ResourceID     uint64   // order_items.resource_id
	ValidDate      string   // order_items.valid_date
	TimeSlot       *string  // order_items.time_slot (nullable)
	Quantity       int      // order_items.quantity
	UnitPriceCents int64    // order_items.unit_price_cents
}

// SlotKey returns the capacity bucket the item draws from.
func (i OrderItem) SlotKey() SlotKey {
	return SlotKey{ResourceID: i.ResourceID, Date: i.ValidDate, TimeSlot: i.TimeSlot}
}
