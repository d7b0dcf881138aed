package assistant

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
)

// AgentContext carries the tenant identity and the handles the agent's
// tools need. UserId comes from the bearer credential, never from the
// request body.
type AgentContext struct {
	ClientId string
	UserId   string
	DB       *gorm.DB
	Metrics  *MetricsCollector
}

// AgentRunner abstracts the model backend so it can be swapped without
// touching the guardrail pipeline.
type AgentRunner interface {
	// Run executes one turn to completion and returns the structured output.
	Run(ctx context.Context, question string, agentCtx AgentContext) (*AssistantResponse, error)

	// RunStream executes one turn, emitting incremental text through
	// onToken. The structured output is available from CompletedOutput
	// after the stream ends.
	RunStream(ctx context.Context, question string, agentCtx AgentContext, onToken func(string)) error

	// CompletedOutput returns the final structured output of the last run,
	// or nil if none completed.
	CompletedOutput() *AssistantResponse
}

// NewAgentRunner picks the backend from AGENT_BACKEND.
func NewAgentRunner() (AgentRunner, error) {
	backend := config.AgentBackend()
	switch backend {
	case "openai":
		return NewOpenAIRunnerFromEnv(), nil
	default:
		return nil, fmt.Errorf("unknown agent backend: %s", backend)
	}
}
