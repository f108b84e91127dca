package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// maxOutcomeLen matches webhook_logs.outcome.
const maxOutcomeLen = 255

// WebhookLogRepo stores one row per gateway delivery.  It implements
// reconcile.AuditLog.
type WebhookLogRepo struct {
	db *sql.DB
}

// NewWebhookLogRepo returns a WebhookLogRepo.
func NewWebhookLogRepo(db *sql.DB) *WebhookLogRepo { return &WebhookLogRepo{db: db} }

// RecordWebhook implements reconcile.AuditLog.
func (r *WebhookLogRepo) RecordWebhook(ctx context.Context, e model.WebhookLog) error {
	outcome := e.Outcome
	if len(outcome) > maxOutcomeLen {
		outcome = outcome[:maxOutcomeLen]
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	const q = `INSERT INTO webhook_logs (order_id, transaction_status, signature_valid, outcome, payload, created_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, e.OrderID, e.TransactionStatus, e.SignatureValid, outcome, payload, e.CreatedAt.UTC())
	return err
}
