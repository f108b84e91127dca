package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/entrance-ticketing/internal/clock"
	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// MaxGenerateDays bounds a single generation request.
const MaxGenerateDays = 366

var (
	// ErrInvalidRange is returned for an inverted or oversized date range.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrInvalidInput wraps every other rejected field of a request.
	ErrInvalidInput = errors.New("invalid generation request")
)

// SlotWriter upserts capacity rows keyed on (resource, date, slot).  An
// existing row only has its total capacity overwritten; reserved, sold and
// version are preserved.
type SlotWriter interface {
	UpsertSlots(ctx context.Context, slots []model.CapacitySlot) (int64, error)
}

// Generator produces one slot per (date, daily time slot) over a date range.
type Generator struct {
	writer       SlotWriter
	clock        *clock.Authority
	defaultSlots []string
}

// NewGenerator returns a Generator.  defaultSlots are used when a request
// names none; they are normalised to HH:MM:SS.
func NewGenerator(w SlotWriter, clk *clock.Authority, defaultSlots []string) (*Generator, error) {
	norm, err := normalizeSlots(defaultSlots)
	if err != nil {
		return nil, err
	}
	return &Generator{writer: w, clock: clk, defaultSlots: norm}, nil
}

// GenerateInput describes an administrative generation request.  AllDay
// produces a single slot per date with no time of day.
type GenerateInput struct {
	ResourceID    uint64   `json:"resource_id"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	TotalCapacity int      `json:"total_capacity"`
	TimeSlots     []string `json:"time_slots,omitempty"`
	AllDay        bool     `json:"all_day,omitempty"`
}

// GenerateResult summarises a generation run.
type GenerateResult struct {
	Planned     int   `json:"planned"`
	SkippedPast int   `json:"skipped_past"`
	Affected    int64 `json:"affected"`
}

// Plan expands the request into slots without writing them.  Dates before
// today in the business zone are skipped.
func (g *Generator) Plan(in GenerateInput) ([]model.CapacitySlot, int, error) {
	if in.ResourceID == 0 {
		return nil, 0, fmt.Errorf("%w: resource_id is required", ErrInvalidInput)
	}
	if in.TotalCapacity < 0 {
		return nil, 0, fmt.Errorf("%w: total_capacity must not be negative", ErrInvalidInput)
	}
	from, err := g.clock.ParseDateKey(in.From)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: from: %w", ErrInvalidInput, err)
	}
	to, err := g.clock.ParseDateKey(in.To)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: to: %w", ErrInvalidInput, err)
	}
	if to.Before(from) {
		return nil, 0, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, in.To, in.From)
	}

	var times []*string
	if !in.AllDay {
		slots := g.defaultSlots
		if len(in.TimeSlots) > 0 {
			if slots, err = normalizeSlots(in.TimeSlots); err != nil {
				return nil, 0, fmt.Errorf("%w: time_slots: %w", ErrInvalidInput, err)
			}
		}
		for _, s := range slots {
			times = append(times, &s)
		}
	}
	if len(times) == 0 {
		times = []*string{nil}
	}

	today := g.clock.StartOfDay(g.clock.Now())
	var out []model.CapacitySlot
	skipped := 0
	days := 0
	for d := from; !d.After(to); d = g.clock.AddDays(d, 1) {
		days++
		if days > MaxGenerateDays {
			return nil, 0, fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxGenerateDays)
		}
		if d.Before(today) {
			skipped++
			continue
		}
		key := g.clock.DateKey(d)
		for _, ts := range times {
			var slot *string
			if ts != nil {
				v := *ts
				slot = &v
			}
			out = append(out, model.CapacitySlot{
				ResourceID:    in.ResourceID,
				Date:          key,
				TimeSlot:      slot,
				TotalCapacity: in.TotalCapacity,
			})
		}
	}
	return out, skipped, nil
}

// Generate plans and upserts the slots.  Re-running over an overlapping
// range is safe.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	slots, skipped, err := g.Plan(in)
	if err != nil {
		return GenerateResult{}, err
	}
	res := GenerateResult{Planned: len(slots), SkippedPast: skipped}
	if len(slots) == 0 {
		return res, nil
	}
	n, err := g.writer.UpsertSlots(ctx, slots)
	if err != nil {
		return res, fmt.Errorf("upsert capacity slots: %w", err)
	}
	res.Affected = n
	return res, nil
}

func normalizeSlots(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		n, err := clock.NormalizeClock(s)
		if err != nil {
			return nil, err
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}
