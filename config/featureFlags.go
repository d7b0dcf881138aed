package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentBackend selects the assistant model-calling implementation.
//
// Set via env:
// - AGENT_BACKEND=openai (default)
func AgentBackend() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AGENT_BACKEND")))
	if v == "" {
		return "openai"
	}
	return v
}

// AssistantRequestTimeout bounds one assistant request end to end,
// including every model round trip and tool call.
//
// Set via env:
// - ASSISTANT_TIMEOUT_SECONDS=120 (default)
func AssistantRequestTimeout() time.Duration {
	v := strings.TrimSpace(os.Getenv("ASSISTANT_TIMEOUT_SECONDS"))
	if v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 120 * time.Second
}

// OutboxDirectProcessing routes outbox events to the in-process handler
// instead of Pub/Sub. Local development only; production publishes.
//
// Set via env:
// - OUTBOX_DIRECT_PROCESSING=true
func OutboxDirectProcessing() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_PROCESSING")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// StrictStreamGuardrails enables incremental output-guardrail checks over a
// sliding window of streamed text instead of end-of-stream only.
//
// Set via env:
// - STRICT_STREAM_GUARDRAILS=true
func StrictStreamGuardrails() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_STREAM_GUARDRAILS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
