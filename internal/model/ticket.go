package model

import "time"

// TicketStatus is the entry-validation state of a purchased ticket.
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// PurchasedTicket is issued once per paid ticket line item.  OrderItemID is
// unique in storage, which is what makes issuance idempotent.
//
// QueueNumber is assigned once per (TicketID, ValidDate, TimeSlot) bucket and
// never reassigned; QueueOverflow marks numbers beyond the bucket's total
// capacity.  CapacityCounted records that the sold counter already reflects
// this ticket's quantity.
type PurchasedTicket struct {
	ID              uint64       // purchased_tickets.id
	Code            string       // purchased_tickets.ticket_code
	OrderID         string       // purchased_tickets.order_id
	OrderItemID     uint64       // purchased_tickets.order_item_id (unique)
	TicketID        uint64       // purchased_tickets.resource_id
	ValidDate       string       // purchased_tickets.valid_date
	TimeSlot        *string      // purchased_tickets.time_slot (nullable)
	Quantity        int          // purchased_tickets.quantity
	Status          TicketStatus // purchased_tickets.status
	QueueNumber     *int         // purchased_tickets.queue_number (nullable)
	QueueOverflow   bool         // purchased_tickets.queue_overflow
	CapacityCounted bool         // purchased_tickets.capacity_counted
	CreatedAt       time.Time    // purchased_tickets.created_at
}

// SlotKey returns the bucket the ticket is numbered and counted in.
func (t PurchasedTicket) SlotKey() SlotKey {
	return SlotKey{ResourceID: t.TicketID, Date: t.ValidDate, TimeSlot: t.TimeSlot}
}
