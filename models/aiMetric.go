package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AiMetric is one assistant turn's latency/usage record, persisted for cost
// tracking alongside the AI_METRICS log line.
type AiMetric struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientId      string `gorm:"type:varchar(36);index;not null" json:"client_id"`
	UserId        string `gorm:"type:varchar(36)" json:"user_id"`
	CorrelationId string `gorm:"type:varchar(36)" json:"correlation_id"`

	Model            string          `gorm:"type:varchar(60)" json:"model"`
	DurationMs       int64           `json:"duration_ms"`
	TimeToFirstToken int64           `json:"time_to_first_token_ms"`
	TotalTokens      int64           `json:"total_tokens"`
	EstimatedCostUsd decimal.Decimal `gorm:"type:decimal(20,8)" json:"estimated_cost_usd"`
	GuardrailTripped string          `gorm:"type:varchar(60)" json:"guardrail_tripped"`
	Streamed         bool            `json:"streamed"`

	CreatedAt time.Time `json:"created_at"`
}

func (m *AiMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func CreateAiMetric(ctx context.Context, db *gorm.DB, metric *AiMetric) error {
	return db.WithContext(ctx).Create(metric).Error
}
