// Package reconcile turns gateway payment notifications into order status
// changes and ticket issuance.  Deliveries may be duplicated, reordered or
// replayed after a partial failure; every step is idempotent so any of them
// resolve to the same end state.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/entrance-ticketing/internal/capacity"
	"github.com/iliyamo/entrance-ticketing/internal/clock"
	"github.com/iliyamo/entrance-ticketing/internal/events"
	"github.com/iliyamo/entrance-ticketing/internal/model"
	"github.com/iliyamo/entrance-ticketing/internal/numbering"
	"github.com/iliyamo/entrance-ticketing/internal/payment"
)

// Transition reports what ApplyStatus did.  To is the order's status after
// the call; it equals From when the transition was rejected.
type Transition struct {
	From    model.OrderStatus
	To      model.OrderStatus
	Applied bool
}

// Orders persists order status.  ApplyStatus must lock the order, append
// payload to its audit trail and move it to status only when
// model.CanTransition allows, all in one transaction.  Unknown orders yield
// ErrOrderNotFound.
type Orders interface {
	Status(ctx context.Context, orderID string) (model.OrderStatus, error)
	ApplyStatus(ctx context.Context, orderID string, status model.OrderStatus, payload json.RawMessage) (Transition, error)
	Items(ctx context.Context, orderID string) ([]model.OrderItem, error)
}

// Tickets persists purchased tickets.  IssueForItem inserts a ticket for the
// item unless one already exists for the same order item id, and returns the
// stored ticket either way; created reports whether this call inserted it.
//
// ClaimCapacityCount atomically flips the ticket's capacity_counted flag
// from false to true and reports whether this caller flipped it.
// ReleaseCapacityCount flips it back after a failed increment.
type Tickets interface {
	IssueForItem(ctx context.Context, item model.OrderItem, code string) (ticket model.PurchasedTicket, created bool, err error)
	ClaimCapacityCount(ctx context.Context, ticketID uint64) (bool, error)
	ReleaseCapacityCount(ctx context.Context, ticketID uint64) error
}

// Numberer assigns queue numbers within a bucket.
type Numberer interface {
	AssignBucket(ctx context.Context, key model.SlotKey) ([]numbering.Assignment, error)
}

// Capacity records sold seats and returns reserved ones.
type Capacity interface {
	IncrementSold(ctx context.Context, key model.SlotKey, delta int) (bool, error)
	ReleaseReserved(ctx context.Context, key model.SlotKey, qty int) (bool, error)
}

// Reservations confirms the purchase-time holds of a paid order.
// ConfirmPending moves the order's pending reservations to confirmed and
// returns only the rows it moved.
type Reservations interface {
	ConfirmPending(ctx context.Context, orderID string) ([]model.Reservation, error)
}

// Verifier authenticates notifications.
type Verifier interface {
	Verify(n payment.Notification) error
}

// AuditLog stores one row per delivery.
type AuditLog interface {
	RecordWebhook(ctx context.Context, entry model.WebhookLog) error
}

// Publisher announces newly issued tickets.
type Publisher interface {
	PublishTicketsIssued(ctx context.Context, ev events.TicketsIssuedEvent) error
}

// Deps bundles the collaborators of a Reconciler.  Reservations, Audit,
// Publisher and Gateway are optional.
type Deps struct {
	Verifier     Verifier
	Orders       Orders
	Tickets      Tickets
	Numbering    Numberer
	Capacity     Capacity
	Clock        *clock.Authority
	Reservations Reservations
	Audit        AuditLog
	Publisher    Publisher
	Gateway      payment.Gateway
	// NewCode overrides ticket code generation in tests.
	NewCode func() string
}

// Reconciler applies notifications.  It is safe for concurrent use; all
// coordination happens in storage.
type Reconciler struct {
	d Deps
}

// New returns a Reconciler.  It panics when a required dependency is nil.
func New(d Deps) *Reconciler {
	if d.Verifier == nil || d.Orders == nil || d.Tickets == nil || d.Numbering == nil || d.Capacity == nil {
		panic("nil dependency passed to reconcile.New")
	}
	if d.Clock == nil {
		d.Clock = clock.New(nil, nil)
	}
	if d.NewCode == nil {
		d.NewCode = NewTicketCode
	}
	return &Reconciler{d: d}
}

// NewTicketCode returns a random, human-typable ticket code.
func NewTicketCode() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// IssuedTicket is the public view of a ticket in a reconciliation result.
type IssuedTicket struct {
	Code            string `json:"code"`
	OrderItemID     uint64 `json:"order_item_id"`
	QueueNumber     *int   `json:"queue_number"`
	QueueOverflow   bool   `json:"queue_overflow"`
	CapacityCounted bool   `json:"capacity_counted"`
	New             bool   `json:"new"`
}

// Result describes the outcome of one notification.
type Result struct {
	OrderID        string            `json:"order_id"`
	MappedStatus   model.OrderStatus `json:"mapped_status"`
	PreviousStatus model.OrderStatus `json:"previous_status,omitempty"`
	Status         model.OrderStatus `json:"status,omitempty"`
	Applied        bool              `json:"applied"`
	Ignored        string            `json:"ignored,omitempty"`
	Tickets        []IssuedTicket    `json:"tickets,omitempty"`
}

// HandleNotification verifies, maps and applies one gateway notification.
// Duplicate and out-of-order deliveries are not errors: they resolve to a
// result with Applied false.  Errors are returned for bad signatures and
// storage failures only; redelivery after a storage failure finishes the
// remaining work without repeating what already succeeded.
func (r *Reconciler) HandleNotification(ctx context.Context, n payment.Notification) (Result, error) {
	if err := r.d.Verifier.Verify(n); err != nil {
		r.audit(ctx, n, false, "rejected: "+err.Error())
		return Result{}, fmt.Errorf("%w: order %s: %v", ErrAuthentication, n.OrderID, err)
	}

	mapped := payment.MapStatus(n.TransactionStatus, n.FraudStatus)
	res := Result{OrderID: n.OrderID, MappedStatus: mapped}

	tr, err := r.d.Orders.ApplyStatus(ctx, n.OrderID, mapped, n.Raw)
	if errors.Is(err, ErrOrderNotFound) {
		res.Ignored = "order not found"
		r.audit(ctx, n, true, "ignored: order not found")
		log.Printf("reconcile: notification for unknown order=%s status=%s", n.OrderID, n.TransactionStatus)
		return res, nil
	}
	if err != nil {
		r.audit(ctx, n, true, "error: "+err.Error())
		return res, fmt.Errorf("apply status to order %s: %w", n.OrderID, err)
	}
	res.PreviousStatus, res.Status, res.Applied = tr.From, tr.To, tr.Applied

	if mapped == model.OrderPaid && tr.To == model.OrderPaid {
		tickets, err := r.issue(ctx, n.OrderID)
		res.Tickets = tickets
		if err != nil {
			r.audit(ctx, n, true, "error: "+err.Error())
			return res, fmt.Errorf("issue tickets for order %s: %w", n.OrderID, err)
		}
	}

	outcome := fmt.Sprintf("%s -> %s", tr.From, mapped)
	if !tr.Applied {
		outcome = fmt.Sprintf("no-op: %s stays %s", mapped, tr.To)
	}
	r.audit(ctx, n, true, outcome)
	log.Printf("reconcile: order=%s transaction_status=%s mapped=%s from=%s to=%s applied=%t tickets=%d",
		n.OrderID, n.TransactionStatus, mapped, tr.From, tr.To, tr.Applied, len(res.Tickets))
	return res, nil
}

// SyncOrder pulls the order's current transaction from the gateway and
// reconciles it exactly like a webhook delivery.
func (r *Reconciler) SyncOrder(ctx context.Context, orderID string) (Result, error) {
	if r.d.Gateway == nil {
		return Result{}, ErrSyncUnavailable
	}
	status, err := r.d.Orders.Status(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	n, err := r.d.Gateway.Status(ctx, orderID)
	if errors.Is(err, payment.ErrTransactionNotFound) {
		return Result{OrderID: orderID, MappedStatus: status, Status: status, Ignored: "transaction not found at gateway"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("query gateway for order %s: %w", orderID, err)
	}
	if n.OrderID != orderID {
		return Result{}, fmt.Errorf("%w: asked %s, got %s", ErrOrderMismatch, orderID, n.OrderID)
	}
	return r.HandleNotification(ctx, n)
}

// issue creates the missing tickets of a paid order, numbers them and
// counts them against capacity.  Each step is keyed on state stored with the
// ticket, so a retry skips what already happened.
func (r *Reconciler) issue(ctx context.Context, orderID string) ([]IssuedTicket, error) {
	items, err := r.d.Orders.Items(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	var (
		tickets []model.PurchasedTicket
		created = map[uint64]bool{}
		buckets []model.SlotKey
		seen    = map[string]bool{}
		changed bool
	)
	for _, item := range items {
		if item.Kind != model.ItemTicket {
			continue
		}
		if item.Quantity <= 0 {
			log.Printf("reconcile: skipping order item %d with quantity %d", item.ID, item.Quantity)
			continue
		}
		t, isNew, err := r.d.Tickets.IssueForItem(ctx, item, r.d.NewCode())
		if err != nil {
			return summarize(tickets, created), fmt.Errorf("issue ticket for item %d: %w", item.ID, err)
		}
		tickets = append(tickets, t)
		created[t.ID] = isNew
		changed = changed || isNew
		if t.QueueNumber == nil {
			if k := t.SlotKey(); !seen[k.String()] {
				seen[k.String()] = true
				buckets = append(buckets, k)
			}
		}
	}

	for _, key := range buckets {
		assigned, err := r.d.Numbering.AssignBucket(ctx, key)
		if err != nil {
			return summarize(tickets, created), fmt.Errorf("assign queue numbers in %s: %w", key, err)
		}
		changed = changed || len(assigned) > 0
		for _, a := range assigned {
			for i := range tickets {
				if tickets[i].ID == a.TicketID {
					n := a.Number
					tickets[i].QueueNumber = &n
					tickets[i].QueueOverflow = a.Overflow
				}
			}
		}
	}

	for i := range tickets {
		t := &tickets[i]
		if t.CapacityCounted {
			continue
		}
		// Claim first so concurrent passes never both count the same ticket.
		claimed, err := r.d.Tickets.ClaimCapacityCount(ctx, t.ID)
		if err != nil {
			return summarize(tickets, created), fmt.Errorf("claim capacity count for ticket %s: %w", t.Code, err)
		}
		if !claimed {
			t.CapacityCounted = true
			continue
		}
		if _, err := r.d.Capacity.IncrementSold(ctx, t.SlotKey(), t.Quantity); err != nil {
			if rerr := r.d.Tickets.ReleaseCapacityCount(ctx, t.ID); rerr != nil {
				log.Printf("reconcile: release capacity claim for ticket %s failed: %v", t.Code, rerr)
			}
			if errors.Is(err, capacity.ErrSlotNotFound) {
				log.Printf("reconcile: no capacity slot %s for ticket %s; sold count not recorded", t.SlotKey(), t.Code)
				continue
			}
			return summarize(tickets, created), fmt.Errorf("count ticket %s against capacity: %w", t.Code, err)
		}
		// A dropped increment keeps its claim: soft accounting undercounts
		// rather than risking a double count.
		t.CapacityCounted = true
		changed = true
	}

	r.confirmReservations(ctx, orderID)
	if changed {
		r.publish(ctx, orderID, tickets)
	}
	return summarize(tickets, created), nil
}

// confirmReservations hands the order's reserved seats back to the pool now
// that its tickets count as sold.  Failures only cost reserved headroom, so
// they are logged rather than returned.
func (r *Reconciler) confirmReservations(ctx context.Context, orderID string) {
	if r.d.Reservations == nil {
		return
	}
	confirmed, err := r.d.Reservations.ConfirmPending(ctx, orderID)
	if err != nil {
		log.Printf("reconcile: confirm reservations for order=%s failed: %v", orderID, err)
		return
	}
	for _, res := range confirmed {
		key := model.SlotKey{ResourceID: res.ResourceID, Date: res.Date, TimeSlot: res.TimeSlot}
		if _, err := r.d.Capacity.ReleaseReserved(ctx, key, res.Quantity); err != nil {
			log.Printf("reconcile: release %d reserved in %s for order=%s failed: %v", res.Quantity, key, orderID, err)
		}
	}
}

// publish announces the order's tickets.  A pass that resumes after a
// failure republishes the whole order, so consumers see each ticket at least
// once.
func (r *Reconciler) publish(ctx context.Context, orderID string, tickets []model.PurchasedTicket) {
	if r.d.Publisher == nil {
		return
	}
	ev := events.TicketsIssuedEvent{OrderID: orderID, IssuedAt: r.d.Clock.Now().Format(time.RFC3339)}
	for _, t := range tickets {
		ev.Tickets = append(ev.Tickets, events.IssuedTicket{
			Code:          t.Code,
			ResourceID:    t.TicketID,
			ValidDate:     t.ValidDate,
			TimeSlot:      t.TimeSlot,
			Quantity:      t.Quantity,
			QueueNumber:   t.QueueNumber,
			QueueOverflow: t.QueueOverflow,
		})
	}
	if len(ev.Tickets) == 0 {
		return
	}
	if err := r.d.Publisher.PublishTicketsIssued(ctx, ev); err != nil {
		log.Printf("reconcile: publish tickets.issued for order=%s failed: %v", orderID, err)
	}
}

func (r *Reconciler) audit(ctx context.Context, n payment.Notification, valid bool, outcome string) {
	if r.d.Audit == nil {
		return
	}
	entry := model.WebhookLog{
		OrderID:           n.OrderID,
		TransactionStatus: n.TransactionStatus,
		SignatureValid:    valid,
		Outcome:           outcome,
		Payload:           n.Raw,
		CreatedAt:         r.d.Clock.Now(),
	}
	if err := r.d.Audit.RecordWebhook(ctx, entry); err != nil {
		log.Printf("reconcile: record webhook log for order=%s failed: %v", n.OrderID, err)
	}
}

func summarize(tickets []model.PurchasedTicket, created map[uint64]bool) []IssuedTicket {
	out := make([]IssuedTicket, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, IssuedTicket{
			Code:            t.Code,
			OrderItemID:     t.OrderItemID,
			QueueNumber:     t.QueueNumber,
			QueueOverflow:   t.QueueOverflow,
			CapacityCounted: t.CapacityCounted,
			New:             created[t.ID],
		})
	}
	return out
}
