// Package retention prunes operational tables and expires tickets whose
// date has passed.  Every deletion is independent: one table failing never
// stops the others, and a run over already-clean tables deletes nothing.
package retention

import (
	"context"
	"log"
	"time"
)

// DeleteFunc removes rows older than cutoff and returns how many it removed.
type DeleteFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// Target is one table pruned by the sweeper.
type Target struct {
	Name   string
	MaxAge time.Duration
	Delete DeleteFunc
}

// Store deletes rows from the pruned tables.
type Store interface {
	DeleteWebhookLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePendingReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTerminalReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpiredStockHoldsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Thresholds holds the maximum age per table.
type Thresholds struct {
	WebhookLogs          time.Duration
	PendingReservations  time.Duration
	TerminalReservations time.Duration
	StockHolds           time.Duration
}

// DefaultThresholds are the maximum ages used when none are configured.
var DefaultThresholds = Thresholds{
	WebhookLogs:          30 * 24 * time.Hour,
	PendingReservations:  time.Hour,
	TerminalReservations: 90 * 24 * time.Hour,
	StockHolds:           24 * time.Hour,
}

// Targets returns the standard targets over s.  A zero or negative
// threshold disables its target.  Stock holds are measured from their
// expiry, everything else from creation or last update.
func Targets(s Store, th Thresholds) []Target {
	all := []Target{
		{Name: "webhook_logs", MaxAge: th.WebhookLogs, Delete: s.DeleteWebhookLogsBefore},
		{Name: "reservations_pending", MaxAge: th.PendingReservations, Delete: s.DeletePendingReservationsBefore},
		{Name: "reservations_terminal", MaxAge: th.TerminalReservations, Delete: s.DeleteTerminalReservationsBefore},
		{Name: "stock_holds", MaxAge: th.StockHolds, Delete: s.DeleteExpiredStockHoldsBefore},
	}
	out := all[:0]
	for _, t := range all {
		if t.MaxAge > 0 {
			out = append(out, t)
		}
	}
	return out
}

// TableResult is the outcome for one target.
type TableResult struct {
	Table   string    `json:"table"`
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
	Error   string    `json:"error,omitempty"`
}

// Report is the outcome of one sweep.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Results   []TableResult `json:"results"`
}

// Failed reports whether any target returned an error.
func (r Report) Failed() bool {
	for _, t := range r.Results {
		if t.Error != "" {
			return true
		}
	}
	return false
}

// Sweeper runs targets.
type Sweeper struct {
	targets []Target
	now     func() time.Time
}

// NewSweeper returns a Sweeper.  A nil now means time.Now.
func NewSweeper(targets []Target, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{targets: targets, now: now}
}

// Sweep runs every target once and reports each separately.  It never
// returns an aggregate error.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	rep := Report{StartedAt: s.now()}
	for _, t := range s.targets {
		res := TableResult{Table: t.Name, Cutoff: rep.StartedAt.Add(-t.MaxAge)}
		n, err := t.Delete(ctx, res.Cutoff)
		res.Deleted = n
		if err != nil {
			res.Error = err.Error()
			log.Printf("retention: %s sweep failed: %v", t.Name, err)
		} else if n > 0 {
			log.Printf("retention: %s deleted %d rows older than %s", t.Name, n, res.Cutoff.Format(time.RFC3339))
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}
