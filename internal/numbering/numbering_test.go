package numbering

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

func intp(n int) *int { return &n }

func TestAssignOrdersByCreationThenID(t *testing.T) {
	base := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	tickets := []model.PurchasedTicket{
		{ID: 30, CreatedAt: base.Add(2 * time.Second)},
		{ID: 12, CreatedAt: base},
		{ID: 11, CreatedAt: base},
		{ID: 5, CreatedAt: base.Add(time.Second), QueueNumber: intp(4)},
	}
	got := Assign(4, intp(6), tickets)
	want := []Assignment{
		{TicketID: 11, Number: 5},
		{TicketID: 12, Number: 6},
		{TicketID: 30, Number: 7, Overflow: true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("assignment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAssignWithoutCapacityNeverOverflows(t *testing.T) {
	got := Assign(1000, nil, []model.PurchasedTicket{{ID: 1}})
	if len(got) != 1 || got[0].Number != 1001 || got[0].Overflow {
		t.Fatalf("got %+v", got)
	}
	if got := Assign(0, intp(1), nil); len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}

// memBucketStore serialises WithBucket per bucket and applies writes only on
// commit, the way a row lock plus transaction would.
type memBucketStore struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	last     map[string]int
	capacity map[string]*int
	tickets  map[uint64]*model.PurchasedTicket
	failSet  bool
}

func newMemBucketStore() *memBucketStore {
	return &memBucketStore{
		locks:    map[string]*sync.Mutex{},
		last:     map[string]int{},
		capacity: map[string]*int{},
		tickets:  map[uint64]*model.PurchasedTicket{},
	}
}

func (m *memBucketStore) add(t model.PurchasedTicket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = &t
}

func (m *memBucketStore) WithBucket(ctx context.Context, key model.SlotKey, fn func(tx BucketTx) error) error {
	m.mu.Lock()
	l, ok := m.locks[key.String()]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key.String()] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	tx := &memTx{store: m, key: key, numbers: map[uint64]Assignment{}, last: -1}
	if err := fn(tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range tx.numbers {
		n := a.Number
		m.tickets[id].QueueNumber = &n
		m.tickets[id].QueueOverflow = a.Overflow
	}
	if tx.last >= 0 {
		m.last[key.String()] = tx.last
	}
	return nil
}

type memTx struct {
	store   *memBucketStore
	key     model.SlotKey
	numbers map[uint64]Assignment
	last    int
}

func (tx *memTx) LastNumber(ctx context.Context) (int, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return tx.store.last[tx.key.String()], nil
}

func (tx *memTx) TotalCapacity(ctx context.Context) (*int, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return tx.store.capacity[tx.key.String()], nil
}

func (tx *memTx) Unnumbered(ctx context.Context) ([]model.PurchasedTicket, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var out []model.PurchasedTicket
	for _, t := range tx.store.tickets {
		if t.QueueNumber == nil && t.SlotKey().String() == tx.key.String() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (tx *memTx) SetNumber(ctx context.Context, a Assignment) error {
	if tx.store.failSet {
		return errors.New("disk full")
	}
	tx.numbers[a.TicketID] = a
	return nil
}

func (tx *memTx) SetLastNumber(ctx context.Context, n int) error {
	tx.last = n
	return nil
}

func bucketKey() model.SlotKey {
	ts := "10:00:00"
	return model.SlotKey{ResourceID: 4, Date: "2026-08-01", TimeSlot: &ts}
}

func ticketIn(key model.SlotKey, id uint64, at time.Time) model.PurchasedTicket {
	return model.PurchasedTicket{ID: id, TicketID: key.ResourceID, ValidDate: key.Date, TimeSlot: key.TimeSlot, CreatedAt: at}
}

func TestAssignBucketIsIdempotentAndContinuesAcrossRuns(t *testing.T) {
	key := bucketKey()
	st := newMemBucketStore()
	st.capacity[key.String()] = intp(2)
	base := time.Now()
	st.add(ticketIn(key, 1, base))
	st.add(ticketIn(key, 2, base.Add(time.Second)))

	a := NewAssigner(st)
	first, err := a.AssignBucket(context.Background(), key)
	if err != nil || len(first) != 2 {
		t.Fatalf("first=%+v err=%v", first, err)
	}
	again, err := a.AssignBucket(context.Background(), key)
	if err != nil || len(again) != 0 {
		t.Fatalf("rerun assigned %+v err=%v", again, err)
	}

	st.add(ticketIn(key, 3, base.Add(2*time.Second)))
	third, err := a.AssignBucket(context.Background(), key)
	if err != nil || len(third) != 1 || third[0].Number != 3 || !third[0].Overflow {
		t.Fatalf("third=%+v err=%v", third, err)
	}
	if *st.tickets[1].QueueNumber != 1 || *st.tickets[2].QueueNumber != 2 || st.tickets[2].QueueOverflow {
		t.Fatalf("unexpected stored numbers")
	}
}

func TestAssignBucketConcurrentRunsStayDense(t *testing.T) {
	key := bucketKey()
	st := newMemBucketStore()
	st.capacity[key.String()] = intp(10)
	a := NewAssigner(st)

	var wg sync.WaitGroup
	base := time.Now()
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			st.add(ticketIn(key, id, base.Add(time.Duration(id)*time.Millisecond)))
			if _, err := a.AssignBucket(context.Background(), key); err != nil {
				t.Errorf("assign: %v", err)
			}
		}(uint64(i))
	}
	wg.Wait()

	var numbers []int
	for _, tk := range st.tickets {
		if tk.QueueNumber == nil {
			t.Fatalf("ticket %d left unnumbered", tk.ID)
		}
		if tk.QueueOverflow != (*tk.QueueNumber > 10) {
			t.Fatalf("ticket %d number %d overflow=%v", tk.ID, *tk.QueueNumber, tk.QueueOverflow)
		}
		numbers = append(numbers, *tk.QueueNumber)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			t.Fatalf("numbers not dense from 1: %v", numbers)
		}
	}
}

func TestAssignBucketRollsBackOnError(t *testing.T) {
	key := bucketKey()
	st := newMemBucketStore()
	st.add(ticketIn(key, 1, time.Now()))
	st.failSet = true
	if _, err := NewAssigner(st).AssignBucket(context.Background(), key); err == nil {
		t.Fatal("expected error")
	}
	if st.tickets[1].QueueNumber != nil || st.last[key.String()] != 0 {
		t.Fatal("partial assignment was committed")
	}
}
