package models

import "time"

// Idempotency states for at-least-once event handling.
const (
	IdempotencyStatusStarted   = "STARTED"
	IdempotencyStatusSucceeded = "SUCCEEDED"
	IdempotencyStatusFailed    = "FAILED"
)

// IdempotencyKey makes Pub/Sub push deliveries safe to retry: one row per
// (client, handler, message). A SUCCEEDED row means the delivery was fully
// handled and a redelivery can be acked without reprocessing.
type IdempotencyKey struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ClientId    string    `gorm:"size:36;not null;uniqueIndex:idx_idem_key" json:"client_id"`
	HandlerName string    `gorm:"size:100;not null;uniqueIndex:idx_idem_key" json:"handler_name"`
	MessageId   string    `gorm:"size:100;not null;uniqueIndex:idx_idem_key" json:"message_id"`
	Status      string    `gorm:"size:20;not null" json:"status"`
	LastError   *string   `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
