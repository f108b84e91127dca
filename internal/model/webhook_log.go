package model

import (
	"encoding/json"
	"time"
)

// WebhookLog records one inbound gateway delivery, authentic or not.  Unlike
// Order.PaymentData these rows are pruned by the retention sweeper.
type WebhookLog struct {
	ID                uint64          // webhook_logs.id
	OrderID           string          // webhook_logs.order_id
	TransactionStatus string          // webhook_logs.transaction_status
	SignatureValid    bool            // webhook_logs.signature_valid
	Outcome           string          // webhook_logs.outcome
	Payload           json.RawMessage // webhook_logs.payload
	CreatedAt         time.Time       // webhook_logs.created_at
}
