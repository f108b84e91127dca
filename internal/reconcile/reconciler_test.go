package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/entrance-ticketing/internal/capacity"
	"github.com/iliyamo/entrance-ticketing/internal/clock"
	"github.com/iliyamo/entrance-ticketing/internal/events"
	"github.com/iliyamo/entrance-ticketing/internal/model"
	"github.com/iliyamo/entrance-ticketing/internal/numbering"
	"github.com/iliyamo/entrance-ticketing/internal/payment"
)

const serverKey = "SB-Mid-server-test"

// world is an in-memory stand-in for every storage port the reconciler
// talks to.  All methods take the same lock so the concurrent tests observe
// serialisable storage.
type world struct {
	mu       sync.Mutex
	status   map[string]model.OrderStatus
	payloads map[string][]json.RawMessage
	items    map[string][]model.OrderItem
	tickets  map[uint64]*model.PurchasedTicket
	byItem   map[uint64]uint64
	nextID   uint64
	last     map[string]int
	total    map[string]int
	sold     map[string]int
	reserved map[string]int
	holds    map[string][]model.Reservation
	events   []events.TicketsIssuedEvent
	logs     []model.WebhookLog
	codes    int

	failIncrement int
	failNumbering int
}

func newWorld() *world {
	return &world{
		status:   map[string]model.OrderStatus{},
		payloads: map[string][]json.RawMessage{},
		items:    map[string][]model.OrderItem{},
		tickets:  map[uint64]*model.PurchasedTicket{},
		byItem:   map[uint64]uint64{},
		last:     map[string]int{},
		total:    map[string]int{},
		sold:     map[string]int{},
		reserved: map[string]int{},
		holds:    map[string][]model.Reservation{},
	}
}

func (w *world) Status(ctx context.Context, orderID string) (model.OrderStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.status[orderID]
	if !ok {
		return "", ErrOrderNotFound
	}
	return s, nil
}

func (w *world) ApplyStatus(ctx context.Context, orderID string, status model.OrderStatus, payload json.RawMessage) (Transition, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	from, ok := w.status[orderID]
	if !ok {
		return Transition{}, ErrOrderNotFound
	}
	w.payloads[orderID] = append(w.payloads[orderID], payload)
	if !model.CanTransition(from, status) {
		return Transition{From: from, To: from}, nil
	}
	w.status[orderID] = status
	return Transition{From: from, To: status, Applied: true}, nil
}

func (w *world) Items(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.OrderItem(nil), w.items[orderID]...), nil
}

func (w *world) IssueForItem(ctx context.Context, item model.OrderItem, code string) (model.PurchasedTicket, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.byItem[item.ID]; ok {
		return *w.tickets[id], false, nil
	}
	w.nextID++
	t := &model.PurchasedTicket{
		ID:          w.nextID,
		Code:        code,
		OrderID:     item.OrderID,
		OrderItemID: item.ID,
		TicketID:    item.ResourceID,
		ValidDate:   item.ValidDate,
		TimeSlot:    item.TimeSlot,
		Quantity:    item.Quantity,
		Status:      model.TicketActive,
		CreatedAt:   time.Date(2026, 7, 10, 0, 0, int(w.nextID), 0, time.UTC),
	}
	w.tickets[t.ID] = t
	w.byItem[item.ID] = t.ID
	return *t, true, nil
}

func (w *world) ClaimCapacityCount(ctx context.Context, ticketID uint64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.tickets[ticketID]
	if t.CapacityCounted {
		return false, nil
	}
	t.CapacityCounted = true
	return true, nil
}

func (w *world) ReleaseCapacityCount(ctx context.Context, ticketID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tickets[ticketID].CapacityCounted = false
	return nil
}

func (w *world) AssignBucket(ctx context.Context, key model.SlotKey) ([]numbering.Assignment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNumbering > 0 {
		w.failNumbering--
		return nil, errors.New("lock wait timeout")
	}
	var pending []model.PurchasedTicket
	for _, t := range w.tickets {
		if t.SlotKey().String() == key.String() {
			pending = append(pending, *t)
		}
	}
	var capPtr *int
	if c, ok := w.total[key.String()]; ok {
		capPtr = &c
	}
	assigned := numbering.Assign(w.last[key.String()], capPtr, pending)
	for _, a := range assigned {
		n := a.Number
		w.tickets[a.TicketID].QueueNumber = &n
		w.tickets[a.TicketID].QueueOverflow = a.Overflow
		w.last[key.String()] = n
	}
	return assigned, nil
}

func (w *world) IncrementSold(ctx context.Context, key model.SlotKey, delta int) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failIncrement > 0 {
		w.failIncrement--
		return false, errors.New("connection reset")
	}
	if _, ok := w.total[key.String()]; !ok {
		return false, capacity.ErrSlotNotFound
	}
	w.sold[key.String()] += delta
	return true, nil
}

func (w *world) ReleaseReserved(ctx context.Context, key model.SlotKey, qty int) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reserved[key.String()] -= qty
	return true, nil
}

func (w *world) ConfirmPending(ctx context.Context, orderID string) ([]model.Reservation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var moved []model.Reservation
	for i := range w.holds[orderID] {
		if h := &w.holds[orderID][i]; h.Status == model.ReservationPending {
			h.Status = model.ReservationConfirmed
			moved = append(moved, *h)
		}
	}
	return moved, nil
}

func (w *world) RecordWebhook(ctx context.Context, entry model.WebhookLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logs = append(w.logs, entry)
	return nil
}

func (w *world) PublishTicketsIssued(ctx context.Context, ev events.TicketsIssuedEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
	return nil
}

type stubGateway struct {
	n   payment.Notification
	err error
}

func (g stubGateway) Status(ctx context.Context, orderID string) (payment.Notification, error) {
	return g.n, g.err
}

var morning = "09:00:00"

func slotKey() model.SlotKey {
	return model.SlotKey{ResourceID: 1, Date: "2026-07-11", TimeSlot: &morning}
}

// seedOrder creates a pending order with two ticket lines in the morning
// slot and one product line.
func (w *world) seedOrder(orderID string, firstItem uint64) {
	w.status[orderID] = model.OrderPending
	w.items[orderID] = []model.OrderItem{
		{ID: firstItem, OrderID: orderID, Kind: model.ItemTicket, ResourceID: 1, ValidDate: "2026-07-11", TimeSlot: &morning, Quantity: 2},
		{ID: firstItem + 1, OrderID: orderID, Kind: model.ItemProduct, ResourceID: 50, Quantity: 1},
		{ID: firstItem + 2, OrderID: orderID, Kind: model.ItemTicket, ResourceID: 1, ValidDate: "2026-07-11", TimeSlot: &morning, Quantity: 1},
	}
}

func newReconciler(w *world, gw payment.Gateway) *Reconciler {
	clk := clock.New(time.FixedZone("WIB", 7*3600), func() time.Time { return time.Date(2026, 7, 10, 5, 0, 0, 0, time.UTC) })
	return New(Deps{
		Verifier:     payment.NewVerifier(serverKey),
		Orders:       w,
		Tickets:      w,
		Numbering:    w,
		Capacity:     w,
		Clock:        clk,
		Reservations: w,
		Audit:        w,
		Publisher:    w,
		Gateway:      gw,
		NewCode: func() string {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.codes++
			return fmt.Sprintf("TKT-%04d", w.codes)
		},
	})
}

func notification(t *testing.T, orderID, status string) payment.Notification {
	t.Helper()
	sig := payment.Sign(orderID, "200", "75000.00", serverKey)
	body := fmt.Sprintf(`{"order_id":%q,"status_code":"200","gross_amount":"75000.00","transaction_status":%q,"signature_key":%q}`, orderID, status, sig)
	n, err := payment.ParseNotification([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return n
}

func TestDuplicateDeliveriesConverge(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-1", 10)
	w.total[slotKey().String()] = 100
	r := newReconciler(w, nil)
	n := notification(t, "ORD-1", "settlement")

	for i := 0; i < 5; i++ {
		res, err := r.HandleNotification(context.Background(), n)
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if res.Applied != (i == 0) {
			t.Fatalf("delivery %d applied=%v", i, res.Applied)
		}
		if res.Status != model.OrderPaid || len(res.Tickets) != 2 {
			t.Fatalf("delivery %d result %+v", i, res)
		}
	}

	if len(w.tickets) != 2 {
		t.Fatalf("issued %d tickets, want 2", len(w.tickets))
	}
	if got := w.sold[slotKey().String()]; got != 3 {
		t.Fatalf("sold=%d, want 3", got)
	}
	if len(w.events) != 1 || len(w.events[0].Tickets) != 2 {
		t.Fatalf("events %+v", w.events)
	}
	if len(w.payloads["ORD-1"]) != 5 || len(w.logs) != 5 {
		t.Fatalf("payloads=%d logs=%d, want 5 each", len(w.payloads["ORD-1"]), len(w.logs))
	}
	numbers := []int{*w.tickets[1].QueueNumber, *w.tickets[2].QueueNumber}
	if numbers[0] != 1 || numbers[1] != 2 {
		t.Fatalf("queue numbers %v", numbers)
	}
}

func TestConcurrentDeliveriesIssueOnce(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-2", 20)
	w.total[slotKey().String()] = 100
	r := newReconciler(w, nil)
	n := notification(t, "ORD-2", "settlement")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.HandleNotification(context.Background(), n); err != nil {
				t.Errorf("deliver: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(w.tickets) != 2 || w.sold[slotKey().String()] != 3 {
		t.Fatalf("tickets=%d sold=%d", len(w.tickets), w.sold[slotKey().String()])
	}
	if w.last[slotKey().String()] != 2 {
		t.Fatalf("last queue number %d, want 2", w.last[slotKey().String()])
	}
}

func TestInvalidSignatureTouchesNothing(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-3", 30)
	r := newReconciler(w, nil)
	n := notification(t, "ORD-3", "settlement")
	n.SignatureKey = "deadbeef"

	_, err := r.HandleNotification(context.Background(), n)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("err=%v, want ErrAuthentication", err)
	}
	if w.status["ORD-3"] != model.OrderPending || len(w.payloads["ORD-3"]) != 0 || len(w.tickets) != 0 {
		t.Fatal("rejected notification mutated state")
	}
	if len(w.logs) != 1 || w.logs[0].SignatureValid {
		t.Fatalf("audit log %+v", w.logs)
	}
}

func TestOutOfOrderDeliveries(t *testing.T) {
	cases := []struct {
		name     string
		sequence []string
		want     model.OrderStatus
		tickets  int
	}{
		{"pending after settlement", []string{"settlement", "pending"}, model.OrderPaid, 2},
		{"settlement after expire", []string{"pending", "expire", "settlement"}, model.OrderExpired, 0},
		{"deny after settlement", []string{"settlement", "deny"}, model.OrderPaid, 2},
		{"refund after settlement", []string{"settlement", "refund"}, model.OrderRefunded, 2},
		{"settlement after refund", []string{"settlement", "refund", "settlement"}, model.OrderRefunded, 2},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			w.seedOrder("ORD-4", 40)
			w.total[slotKey().String()] = 100
			r := newReconciler(w, nil)
			for _, s := range tt.sequence {
				if _, err := r.HandleNotification(context.Background(), notification(t, "ORD-4", s)); err != nil {
					t.Fatalf("%s: %v", s, err)
				}
			}
			if w.status["ORD-4"] != tt.want {
				t.Fatalf("status=%s, want %s", w.status["ORD-4"], tt.want)
			}
			if len(w.tickets) != tt.tickets {
				t.Fatalf("tickets=%d, want %d", len(w.tickets), tt.tickets)
			}
			if tt.tickets > 0 && w.sold[slotKey().String()] != 3 {
				t.Fatalf("sold=%d, want 3", w.sold[slotKey().String()])
			}
		})
	}
}

func TestPartialFailureIsFinishedByRedelivery(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-5", 50)
	w.total[slotKey().String()] = 100
	w.failIncrement = 1
	r := newReconciler(w, nil)
	n := notification(t, "ORD-5", "settlement")

	if _, err := r.HandleNotification(context.Background(), n); err == nil {
		t.Fatal("expected storage error on first delivery")
	}
	if w.status["ORD-5"] != model.OrderPaid || w.sold[slotKey().String()] != 0 {
		t.Fatalf("after failure status=%s sold=%d", w.status["ORD-5"], w.sold[slotKey().String()])
	}

	res, err := r.HandleNotification(context.Background(), n)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if res.Applied {
		t.Fatal("redelivery re-applied the transition")
	}
	if len(w.tickets) != 2 || w.sold[slotKey().String()] != 3 {
		t.Fatalf("tickets=%d sold=%d", len(w.tickets), w.sold[slotKey().String()])
	}
	if len(w.events) == 0 || len(w.events[len(w.events)-1].Tickets) != 2 {
		t.Fatalf("events %+v", w.events)
	}

	if _, err := r.HandleNotification(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if w.sold[slotKey().String()] != 3 || len(w.events) != 1 {
		t.Fatalf("steady state changed: sold=%d events=%d", w.sold[slotKey().String()], len(w.events))
	}
}

func TestNumberingFailureIsRetried(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-6", 60)
	w.total[slotKey().String()] = 1
	w.failNumbering = 1
	r := newReconciler(w, nil)
	n := notification(t, "ORD-6", "settlement")

	if _, err := r.HandleNotification(context.Background(), n); err == nil {
		t.Fatal("expected numbering error")
	}
	res, err := r.HandleNotification(context.Background(), n)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(res.Tickets, func(i, j int) bool { return *res.Tickets[i].QueueNumber < *res.Tickets[j].QueueNumber })
	if *res.Tickets[0].QueueNumber != 1 || res.Tickets[0].QueueOverflow {
		t.Fatalf("first ticket %+v", res.Tickets[0])
	}
	if *res.Tickets[1].QueueNumber != 2 || !res.Tickets[1].QueueOverflow {
		t.Fatalf("second ticket %+v", res.Tickets[1])
	}
}

func TestMissingCapacitySlotStillIssues(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-7", 70)
	r := newReconciler(w, nil)

	res, err := r.HandleNotification(context.Background(), notification(t, "ORD-7", "capture"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tickets) != 2 {
		t.Fatalf("result %+v", res)
	}
	for _, tk := range res.Tickets {
		if tk.CapacityCounted || tk.QueueNumber == nil || tk.QueueOverflow {
			t.Fatalf("ticket %+v", tk)
		}
	}
}

func TestUnknownOrderIsIgnored(t *testing.T) {
	w := newWorld()
	r := newReconciler(w, nil)
	res, err := r.HandleNotification(context.Background(), notification(t, "ORD-404", "settlement"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Ignored == "" || res.Applied {
		t.Fatalf("result %+v", res)
	}
	if len(w.logs) != 1 {
		t.Fatalf("logs=%d, want 1", len(w.logs))
	}
}

func TestSyncOrder(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-8", 80)
	w.total[slotKey().String()] = 100

	r := newReconciler(w, stubGateway{n: notification(t, "ORD-8", "settlement")})
	res, err := r.SyncOrder(context.Background(), "ORD-8")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied || res.Status != model.OrderPaid || len(res.Tickets) != 2 {
		t.Fatalf("result %+v", res)
	}

	if _, err := r.SyncOrder(context.Background(), "ORD-missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err=%v, want ErrOrderNotFound", err)
	}

	w.seedOrder("ORD-9", 90)
	r = newReconciler(w, stubGateway{n: notification(t, "ORD-8", "settlement")})
	if _, err := r.SyncOrder(context.Background(), "ORD-9"); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("err=%v, want ErrOrderMismatch", err)
	}

	r = newReconciler(w, stubGateway{err: payment.ErrTransactionNotFound})
	res, err = r.SyncOrder(context.Background(), "ORD-9")
	if err != nil || res.Ignored == "" || res.Status != model.OrderPending {
		t.Fatalf("res=%+v err=%v", res, err)
	}

	r = newReconciler(w, stubGateway{err: payment.ErrGatewayUnavailable})
	if _, err := r.SyncOrder(context.Background(), "ORD-9"); !errors.Is(err, payment.ErrGatewayUnavailable) {
		t.Fatalf("err=%v, want ErrGatewayUnavailable", err)
	}

	if _, err := newReconciler(w, nil).SyncOrder(context.Background(), "ORD-9"); !errors.Is(err, ErrSyncUnavailable) {
		t.Fatalf("err=%v, want ErrSyncUnavailable", err)
	}
}

func TestPaidOrderReleasesReservedSeatsOnce(t *testing.T) {
	w := newWorld()
	w.seedOrder("ORD-10", 100)
	key := slotKey()
	w.total[key.String()] = 100
	w.reserved[key.String()] = 3
	w.holds["ORD-10"] = []model.Reservation{
		{ID: 1, OrderID: "ORD-10", ResourceID: 1, Date: key.Date, TimeSlot: key.TimeSlot, Quantity: 3, Status: model.ReservationPending},
	}
	r := newReconciler(w, nil)
	n := notification(t, "ORD-10", "settlement")
	for i := 0; i < 3; i++ {
		if _, err := r.HandleNotification(context.Background(), n); err != nil {
			t.Fatal(err)
		}
	}
	if w.reserved[key.String()] != 0 || w.sold[key.String()] != 3 {
		t.Fatalf("reserved=%d sold=%d", w.reserved[key.String()], w.sold[key.String()])
	}
	if w.holds["ORD-10"][0].Status != model.ReservationConfirmed {
		t.Fatalf("reservation %+v", w.holds["ORD-10"][0])
	}
}
