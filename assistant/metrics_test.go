package assistant

import (
	"testing"
	"time"

	"github.com/contabilhub/contabil_backend/models"
)

func TestMetricsCollectorCost(t *testing.T) {
	collector := NewMetricsCollector("req-1", testUserId, testClientId, 30)
	collector.AddTokens(600_000)
	collector.AddTokens(400_000)
	collector.Finalize("resposta final")

	snapshot := collector.Snapshot()
	if snapshot.TokensUsed != 1_000_000 {
		t.Fatalf("tokens: got %d", snapshot.TokensUsed)
	}
	// 500k input at $2.50/1M plus 500k output at $10/1M.
	if snapshot.CostUSD != "6.25000000" {
		t.Errorf("cost: got %s, want 6.25000000", snapshot.CostUSD)
	}
	if snapshot.ResponseLength != len("resposta final") {
		t.Errorf("response length: got %d", snapshot.ResponseLength)
	}
	if snapshot.LatencyMs < 0 {
		t.Errorf("latency: got %d", snapshot.LatencyMs)
	}
}

func TestMetricsCollectorFirstTokenOnce(t *testing.T) {
	collector := NewMetricsCollector("req-1", testUserId, testClientId, 10)
	collector.RecordFirstToken()
	first := collector.Snapshot().TimeToFirstToken

	time.Sleep(5 * time.Millisecond)
	collector.RecordFirstToken()
	if collector.Snapshot().TimeToFirstToken != first {
		t.Error("later calls must not move the first-token timestamp")
	}
}

func TestMetricsCollectorToolCallsAndGuardrail(t *testing.T) {
	collector := NewMetricsCollector("req-1", testUserId, testClientId, 10)
	collector.RecordToolCall()
	collector.RecordToolCall()
	collector.RecordGuardrailTrigger("Security Check")

	snapshot := collector.Snapshot()
	if snapshot.ToolCallsCount != 2 {
		t.Errorf("tool calls: got %d", snapshot.ToolCallsCount)
	}
	if !snapshot.GuardrailTriggered || snapshot.GuardrailType != "Security Check" {
		t.Errorf("guardrail: got %+v", snapshot)
	}

	summary := collector.Summary()
	if summary["toolCallsCount"] != 2 {
		t.Errorf("summary tool calls: got %v", summary["toolCallsCount"])
	}
}

func TestMetricsPersist(t *testing.T) {
	db := newTestDB(t)
	collector := NewMetricsCollector("req-9", testUserId, testClientId, 25)
	collector.AddTokens(1234)
	collector.Finalize("resposta")

	if err := collector.Persist(testContext(), db, true); err != nil {
		t.Fatalf("persist: %v", err)
	}

	var metric models.AiMetric
	if err := db.WithContext(testContext()).Where("correlation_id = ?", "req-9").First(&metric).Error; err != nil {
		t.Fatalf("load metric: %v", err)
	}
	if metric.TotalTokens != 1234 {
		t.Errorf("tokens: got %d", metric.TotalTokens)
	}
	if metric.Model != "gpt-4o" {
		t.Errorf("model: got %s", metric.Model)
	}
	if !metric.Streamed {
		t.Error("streamed flag must persist")
	}
}
