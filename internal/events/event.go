// Package events carries domain events over RabbitMQ: the tickets.issued
// payload, its publisher and the consumer that appends them to
// logs/tickets.log.
package events

// TicketsIssuedQueue is the durable queue tickets.issued events are routed to.
const TicketsIssuedQueue = "tickets.issued"

// TicketsIssuedEvent is published by every reconciliation pass that issued,
// numbered or counted a ticket of the order.  It lists all of the order's
// tickets; a consumer may see the same ticket in more than one event.
type TicketsIssuedEvent struct {
	OrderID  string         `json:"order_id"`
	Tickets  []IssuedTicket `json:"tickets"`
	IssuedAt string         `json:"issued_at"`
}

// IssuedTicket is one ticket inside a TicketsIssuedEvent.
type IssuedTicket struct {
	Code          string  `json:"code"`
	ResourceID    uint64  `json:"resource_id"`
	ValidDate     string  `json:"valid_date"`
	TimeSlot      *string `json:"time_slot"`
	Quantity      int     `json:"quantity"`
	QueueNumber   *int    `json:"queue_number"`
	QueueOverflow bool    `json:"queue_overflow"`
}
