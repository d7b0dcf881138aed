package assistant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
)

// GPT-4o pricing per 1M tokens, assuming a 50/50 input/output split.
var (
	inputCostPerToken  = decimal.RequireFromString("2.50").Div(decimal.NewFromInt(1_000_000))
	outputCostPerToken = decimal.RequireFromString("10").Div(decimal.NewFromInt(1_000_000))
)

// Metrics is one assistant turn's observability record, emitted as an
// AI_METRICS structured log line and persisted to the ai_metrics table.
type Metrics struct {
	RequestId          string `json:"requestId"`
	UserId             string `json:"userId"`
	ClientId           string `json:"clientId"`
	QuestionLength     int    `json:"questionLength"`
	ResponseLength     int    `json:"responseLength"`
	TokensUsed         int64  `json:"tokensUsed"`
	CostUSD            string `json:"costUSD"`
	LatencyMs          int64  `json:"latencyMs"`
	TimeToFirstToken   int64  `json:"timeToFirstToken"`
	ToolCallsCount     int    `json:"toolCallsCount"`
	GuardrailTriggered bool   `json:"guardrailTriggered"`
	GuardrailType      string `json:"guardrailType,omitempty"`
	Error              string `json:"error,omitempty"`
	Timestamp          string `json:"timestamp"`
}

// MetricsCollector accumulates latency, token usage and cost for one
// assistant request.
type MetricsCollector struct {
	startTime      time.Time
	firstTokenTime *time.Time
	cost           decimal.Decimal
	metrics        Metrics
}

func NewMetricsCollector(requestId string, userId string, clientId string, questionLength int) *MetricsCollector {
	return &MetricsCollector{
		startTime: time.Now(),
		metrics: Metrics{
			RequestId:      requestId,
			UserId:         userId,
			ClientId:       clientId,
			QuestionLength: questionLength,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// RecordFirstToken captures the time-to-first-token once; later calls are
// no-ops.
func (c *MetricsCollector) RecordFirstToken() {
	if c.firstTokenTime == nil {
		now := time.Now()
		c.firstTokenTime = &now
		c.metrics.TimeToFirstToken = now.Sub(c.startTime).Milliseconds()
	}
}

func (c *MetricsCollector) RecordToolCall() {
	c.metrics.ToolCallsCount++
}

// AddTokens accumulates usage reported by the model backend across the
// round trips of one request.
func (c *MetricsCollector) AddTokens(tokens int64) {
	c.metrics.TokensUsed += tokens
}

func (c *MetricsCollector) RecordGuardrailTrigger(guardrailType string) {
	c.metrics.GuardrailTriggered = true
	c.metrics.GuardrailType = guardrailType
}

func (c *MetricsCollector) RecordError(message string) {
	c.metrics.Error = message
}

// Finalize computes latency and estimated cost from the accumulated token
// count and emits the AI_METRICS log line.
func (c *MetricsCollector) Finalize(response string) {
	c.metrics.ResponseLength = len(response)
	c.metrics.LatencyMs = time.Since(c.startTime).Milliseconds()

	tokens := decimal.NewFromInt(c.metrics.TokensUsed)
	half := tokens.Div(decimal.NewFromInt(2))
	c.cost = half.Mul(inputCostPerToken).Add(half.Mul(outputCostPerToken))
	c.metrics.CostUSD = c.cost.StringFixed(8)

	payload, err := json.Marshal(c.metrics)
	if err != nil {
		return
	}
	config.GetLogger().WithFields(logrus.Fields{
		"metrics": json.RawMessage(payload),
	}).Info("AI_METRICS")
}

// Persist writes the collected metrics to the ai_metrics table.
func (c *MetricsCollector) Persist(ctx context.Context, db *gorm.DB, streamed bool) error {
	return models.CreateAiMetric(ctx, db, &models.AiMetric{
		ClientId:         c.metrics.ClientId,
		UserId:           c.metrics.UserId,
		CorrelationId:    c.metrics.RequestId,
		Model:            "gpt-4o",
		DurationMs:       c.metrics.LatencyMs,
		TimeToFirstToken: c.metrics.TimeToFirstToken,
		TotalTokens:      c.metrics.TokensUsed,
		EstimatedCostUsd: c.cost,
		GuardrailTripped: c.metrics.GuardrailType,
		Streamed:         streamed,
	})
}

func (c *MetricsCollector) Snapshot() Metrics {
	return c.metrics
}

// Summary is the client-facing slice of the metrics attached to the done
// event.
func (c *MetricsCollector) Summary() map[string]interface{} {
	return map[string]interface{}{
		"latencyMs":        c.metrics.LatencyMs,
		"timeToFirstToken": c.metrics.TimeToFirstToken,
		"tokensUsed":       c.metrics.TokensUsed,
		"costUSD":          c.metrics.CostUSD,
		"toolCallsCount":   c.metrics.ToolCallsCount,
	}
}
