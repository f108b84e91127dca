package retention

import (
	"context"
	"fmt"
	"log"

	"github.com/iliyamo/entrance-ticketing/internal/clock"
)

// TicketExpirer moves active tickets dated strictly before a date key to
// expired.
type TicketExpirer interface {
	ExpireTicketsBefore(ctx context.Context, dateKey string) (int64, error)
}

// ExpireTickets expires every active ticket whose valid date is before today
// in the business zone.  Tickets for today stay active all day.
func ExpireTickets(ctx context.Context, clk *clock.Authority, store TicketExpirer) (int64, error) {
	today := clk.Today()
	n, err := store.ExpireTicketsBefore(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("expire tickets before %s: %w", today, err)
	}
	if n > 0 {
		log.Printf("retention: expired %d tickets dated before %s", n, today)
	}
	return n, nil
}
