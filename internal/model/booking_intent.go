package model

import "time"

// BookingIntent is the snapshot of an unfinished checkout that must survive
// a forced re-authentication.  Timestamp is set when the intent is
// preserved; the record is only honoured within the staleness window.
type BookingIntent struct {
	ResourceID     uint64    `json:"resource_id"`
	ResourceName   string    `json:"resource_name,omitempty"`
	Date           string    `json:"date"`
	TimeSlot       *string   `json:"time_slot,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Timestamp      time.Time `json:"timestamp"`
}

// Complete reports whether every required field is present.
func (b BookingIntent) Complete() bool {
	return b.ResourceID > 0 && b.Date != "" && b.Quantity > 0 && !b.Timestamp.IsZero()
}
