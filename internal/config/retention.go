package config

import "time"

// RetentionConfig holds the per-table maximum ages and the scheduler
// intervals.  A zero or negative age disables pruning of that table.
type RetentionConfig struct {
	WebhookLogs          time.Duration // RETENTION_WEBHOOK_LOGS
	PendingReservations  time.Duration // RETENTION_PENDING_RESERVATIONS
	TerminalReservations time.Duration // RETENTION_TERMINAL_RESERVATIONS
	StockHolds           time.Duration // RETENTION_STOCK_HOLDS

	Interval       time.Duration // RETENTION_INTERVAL
	ExpiryInterval time.Duration // TICKET_EXPIRY_INTERVAL
}

// LoadRetentionConfig reads RETENTION_* and TICKET_EXPIRY_INTERVAL.
func LoadRetentionConfig() RetentionConfig {
	return RetentionConfig{
		WebhookLogs:          envDur("RETENTION_WEBHOOK_LOGS", 720*time.Hour),
		PendingReservations:  envDur("RETENTION_PENDING_RESERVATIONS", time.Hour),
		TerminalReservations: envDur("RETENTION_TERMINAL_RESERVATIONS", 2160*time.Hour),
		StockHolds:           envDur("RETENTION_STOCK_HOLDS", 24*time.Hour),
		Interval:             envDur("RETENTION_INTERVAL", time.Hour),
		ExpiryInterval:       envDur("TICKET_EXPIRY_INTERVAL", 24*time.Hour),
	}
}
