package retention

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/entrance-ticketing/internal/clock"
)

// Scheduler runs the retention sweep and the ticket expiry sweep on their own
// intervals.  Both run once immediately when Run starts.
type Scheduler struct {
	Sweeper        *Sweeper
	SweepInterval  time.Duration
	Clock          *clock.Authority
	Tickets        TicketExpirer
	ExpiryInterval time.Duration
}

// Run blocks until ctx is cancelled.
func (s Scheduler) Run(ctx context.Context) {
	sweepEvery, expireEvery := s.SweepInterval, s.ExpiryInterval
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	if expireEvery <= 0 {
		expireEvery = 24 * time.Hour
	}
	sweepTick := time.NewTicker(sweepEvery)
	defer sweepTick.Stop()
	expireTick := time.NewTicker(expireEvery)
	defer expireTick.Stop()

	log.Printf("retention: scheduler started sweep=%s expiry=%s", sweepEvery, expireEvery)
	s.sweep(ctx)
	s.expire(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("retention: scheduler stopped")
			return
		case <-sweepTick.C:
			s.sweep(ctx)
		case <-expireTick.C:
			s.expire(ctx)
		}
	}
}

func (s Scheduler) sweep(ctx context.Context) {
	if s.Sweeper == nil {
		return
	}
	s.Sweeper.Sweep(ctx)
}

func (s Scheduler) expire(ctx context.Context) {
	if s.Tickets == nil || s.Clock == nil {
		return
	}
	if _, err := ExpireTickets(ctx, s.Clock, s.Tickets); err != nil {
		log.Printf("retention: %v", err)
	}
}
