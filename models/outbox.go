package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
)

// Document lifecycle events published to Pub/Sub.
const (
	DocumentEventCompleted = "document.completed"
	DocumentEventFailed    = "document.failed"
	DocumentEventDeleted   = "document.deleted"
)

// DocumentEventRecord is the transactional outbox row for document lifecycle
// events. The row is written in the same transaction as the status change;
// the dispatcher publishes after commit and stamps publish metadata here.
type DocumentEventRecord struct {
	ID            int       `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	ClientId      string    `gorm:"size:36;not null;index" json:"client_id"`
	DocumentId    string    `gorm:"size:36;not null;index" json:"document_id"`
	DocumentType  string    `gorm:"size:20" json:"document_type"`
	Event         string    `gorm:"size:40;not null" json:"event"`
	OccurredAt    time.Time `gorm:"index;not null" json:"occurred_at"`
	Metadata      []byte    `gorm:"type:blob" json:"metadata"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`

	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Outbox publish states.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// MaxPublishAttempts before a row is parked as DEAD and needs manual revert.
const MaxPublishAttempts = 10

func ConvertToDocumentEventMessage(record DocumentEventRecord) config.DocumentEventMessage {
	return config.DocumentEventMessage{
		ID:            record.ID,
		ClientId:      record.ClientId,
		DocumentId:    record.DocumentId,
		DocumentType:  record.DocumentType,
		Event:         record.Event,
		OccurredAt:    record.OccurredAt,
		Metadata:      record.Metadata,
		CorrelationId: record.CorrelationId,
	}
}

// EnqueueDocumentEvent writes an outbox row inside tx. Call it in the same
// transaction that mutates the document so the event and the state change
// commit or roll back together.
func EnqueueDocumentEvent(tx *gorm.DB, record *DocumentEventRecord) error {
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if record.PublishStatus == "" {
		record.PublishStatus = OutboxPublishStatusPending
	}
	return tx.Create(record).Error
}
