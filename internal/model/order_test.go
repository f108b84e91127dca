package model

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from  OrderStatus
		to    OrderStatus
		valid bool
	}{
		{OrderPending, OrderPaid, true},
		{OrderPending, OrderFailed, true},
		{OrderPending, OrderExpired, true},
		{OrderPending, OrderRefunded, false},
		{OrderPending, OrderPending, false},
		{OrderPaid, OrderRefunded, true},
		{OrderPaid, OrderPaid, false},
		{OrderPaid, OrderPending, false},
		{OrderPaid, OrderFailed, false},
		{OrderPaid, OrderExpired, false},
		{OrderFailed, OrderPaid, false},
		{OrderFailed, OrderPending, false},
		{OrderExpired, OrderPaid, false},
		{OrderRefunded, OrderPaid, false},
		{OrderRefunded, OrderPending, false},
		{"bogus", OrderPaid, false},
	}
	for _, tt := range cases {
		if got := CanTransition(tt.from, tt.to); got != tt.valid {
			t.Fatalf("CanTransition(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderPending:  false,
		OrderPaid:     false,
		OrderFailed:   true,
		OrderExpired:  true,
		OrderRefunded: true,
	}
	for s, want := range terminal {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
		if s.Terminal() != want {
			t.Fatalf("%q Terminal()=%v, want %v", s, s.Terminal(), want)
		}
	}
	if OrderStatus("settled").Valid() {
		t.Fatal("unknown status reported valid")
	}
}

func TestSlotKeyString(t *testing.T) {
	slot := "09:00:00"
	if got := (SlotKey{ResourceID: 7, Date: "2026-01-02", TimeSlot: &slot}).String(); got != "7|2026-01-02|09:00:00" {
		t.Fatalf("got %s", got)
	}
	if got := (SlotKey{ResourceID: 7, Date: "2026-01-02"}).String(); got != "7|2026-01-02|all-day" {
		t.Fatalf("got %s", got)
	}
}
