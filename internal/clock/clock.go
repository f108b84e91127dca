// Package clock is the single place where instants are converted to and from
// the business timezone.  Dates are exchanged as "YYYY-MM-DD" keys and time
// slots as "HH:MM" or "HH:MM:SS" strings; comparing raw host-timezone
// timestamps anywhere else is a bug.
package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of a date key.
const DateLayout = "2006-01-02"

// DefaultZone is used when BUSINESS_TZ is not configured.
const DefaultZone = "Asia/Jakarta"

var (
	// ErrInvalidDate is returned when a date key is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date key")
	// ErrInvalidTime is returned when a time slot is not HH:MM[:SS].
	ErrInvalidTime = errors.New("invalid time of day")
)

// Authority converts between absolute instants and business-zone calendar
// values.  The zero value is not usable; construct it with New or MustLoad.
type Authority struct {
	loc *time.Location
	now func() time.Time
}

// New returns an Authority for loc.  A nil now defaults to time.Now.
func New(loc *time.Location, now func() time.Time) *Authority {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Authority{loc: loc, now: now}
}

// Load resolves the named IANA zone and returns an Authority using the
// system clock.  An empty name selects DefaultZone.
func Load(name string) (*Authority, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", name, err)
	}
	return New(loc, nil), nil
}

// Location returns the business timezone.
func (a *Authority) Location() *time.Location { return a.loc }

// Now returns the current instant expressed in the business timezone.
func (a *Authority) Now() time.Time { return a.now().In(a.loc) }

// StartOfDay returns midnight of t's calendar day in the business timezone.
func (a *Authority) StartOfDay(t time.Time) time.Time {
	t = t.In(a.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.loc)
}

// DateKey formats t as the business-zone calendar date.
func (a *Authority) DateKey(t time.Time) string { return t.In(a.loc).Format(DateLayout) }

// Today is DateKey(Now()).
func (a *Authority) Today() string { return a.DateKey(a.Now()) }

// ParseDateKey returns midnight of the given business-zone date.
func (a *Authority) ParseDateKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(key), a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, key)
	}
	return t, nil
}

// Combine returns the instant at clock time hhmm on the business-zone date
// identified by dateKey.  Both "HH:MM" and "HH:MM:SS" are accepted.
func (a *Authority) Combine(dateKey, hhmm string) (time.Time, error) {
	day, err := a.ParseDateKey(dateKey)
	if err != nil {
		return time.Time{}, err
	}
	h, m, s, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, s, 0, a.loc), nil
}

// AddMinutes shifts t by n minutes of elapsed time.
func (a *Authority) AddMinutes(t time.Time, n int) time.Time {
	return t.In(a.loc).Add(time.Duration(n) * time.Minute)
}

// AddDays shifts t by n calendar days in the business zone, keeping the
// wall-clock time.
func (a *Authority) AddDays(t time.Time, n int) time.Time {
	return t.In(a.loc).AddDate(0, 0, n)
}

// AddDaysKey shifts a date key by n calendar days.
func (a *Authority) AddDaysKey(key string, n int) (string, error) {
	t, err := a.ParseDateKey(key)
	if err != nil {
		return "", err
	}
	return a.DateKey(t.AddDate(0, 0, n)), nil
}

// IsPastDate reports whether the business-zone date key is strictly before
// today.
func (a *Authority) IsPastDate(key string) (bool, error) {
	t, err := a.ParseDateKey(key)
	if err != nil {
		return false, err
	}
	return t.Before(a.StartOfDay(a.Now())), nil
}

// ParseClock splits "HH:MM[:SS]" into its components.
func ParseClock(s string) (h, m, sec int, err error) {
	s = strings.TrimSpace(s)
	var t time.Time
	switch strings.Count(s, ":") {
	case 1:
		t, err = time.Parse("15:04", s)
	case 2:
		t, err = time.Parse("15:04:05", s)
	default:
		err = ErrInvalidTime
	}
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t.Hour(), t.Minute(), t.Second(), nil
}

// NormalizeClock returns the canonical "HH:MM:SS" form of a time slot, which
// is how slots are stored.
func NormalizeClock(s string) (string, error) {
	h, m, sec, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec), nil
}
