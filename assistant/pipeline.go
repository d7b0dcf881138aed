package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/utils"
)

// Rejection message shown to the user when a guardrail blocks the request
// or the response.
const guardrailRejectionMessage = "Não posso processar esta solicitação. Por favor, reformule sua pergunta."

// Pipeline wires the guardrail chain around an AgentRunner:
// input guardrails, agent run, output guardrails, metrics.
type Pipeline struct {
	db     *gorm.DB
	runner AgentRunner
	logger *logrus.Logger
}

func NewPipeline(db *gorm.DB, runner AgentRunner) *Pipeline {
	return &Pipeline{
		db:     db,
		runner: runner,
		logger: config.GetLogger(),
	}
}

// Result is the outcome of one assistant request.
type Result struct {
	RequestId string
	Output    *AssistantResponse
	Metrics   map[string]interface{}
}

func (p *Pipeline) prepare(ctx context.Context, question string) (AgentContext, *MetricsCollector, error) {
	clientId, hasClient := utils.GetClientIdFromContext(ctx)
	userId, hasUser := utils.GetUserIdFromContext(ctx)
	if !hasClient || !hasUser {
		return AgentContext{}, nil, utils.ErrorUnauthorized
	}

	requestId := uuid.New().String()
	collector := NewMetricsCollector(requestId, userId, clientId, len(question))
	agentCtx := AgentContext{
		ClientId: clientId,
		UserId:   userId,
		DB:       p.db,
		Metrics:  collector,
	}
	return agentCtx, collector, nil
}

func (p *Pipeline) rejectInput(ctx context.Context, collector *MetricsCollector, trip *GuardrailTrip) *GuardrailTrip {
	collector.RecordGuardrailTrigger(trip.Guardrail)
	collector.Finalize("")
	p.persistMetrics(ctx, collector, false)
	return trip
}

func (p *Pipeline) persistMetrics(ctx context.Context, collector *MetricsCollector, streamed bool) {
	if err := collector.Persist(ctx, p.db, streamed); err != nil {
		config.LogError(p.logger, "assistant", "persistMetrics", "failed to persist ai metrics", nil, err)
	}
}

// Ask runs one non-streaming assistant turn. A returned *GuardrailTrip
// (matched with errors.As) means the request was blocked, not that the
// system failed.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Result, error) {
	agentCtx, collector, err := p.prepare(ctx, question)
	if err != nil {
		return nil, err
	}

	if trip := RunInputGuardrails(ctx, p.db, question); trip != nil {
		return nil, p.rejectInput(ctx, collector, trip)
	}

	runCtx, cancel := context.WithTimeout(ctx, config.AssistantRequestTimeout())
	defer cancel()

	output, err := p.runner.Run(runCtx, question, agentCtx)
	if err != nil {
		collector.RecordError(err.Error())
		collector.Finalize("")
		p.persistMetrics(ctx, collector, false)
		return nil, err
	}

	if trip := RunOutputGuardrails(ctx, p.db, output); trip != nil {
		collector.RecordGuardrailTrigger(trip.Guardrail)
		collector.Finalize(output.Response)
		p.persistMetrics(ctx, collector, false)
		return nil, trip
	}

	collector.Finalize(output.Response)
	p.persistMetrics(ctx, collector, false)

	return &Result{
		RequestId: collector.Snapshot().RequestId,
		Output:    output,
		Metrics:   collector.Summary(),
	}, nil
}

// Stream runs one streaming assistant turn, writing SSE events to stream.
// Input guardrails run before the start event; output guardrails gate the
// done event. Tokens that already left before an output trip are an
// accepted limitation of streaming unless strict stream guardrails are on.
func (p *Pipeline) Stream(ctx context.Context, question string, stream *StreamWriter) error {
	agentCtx, collector, err := p.prepare(ctx, question)
	if err != nil {
		return err
	}

	if trip := RunInputGuardrails(ctx, p.db, question); trip != nil {
		p.rejectInput(ctx, collector, trip)
		stream.SendError(guardrailRejectionMessage, trip.Guardrail)
		return trip
	}

	if err := stream.SendStart(collector.Snapshot().RequestId); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, config.AssistantRequestTimeout())
	defer cancel()

	var mu sync.Mutex
	var streamed strings.Builder
	suppressed := false

	strict := config.StrictStreamGuardrails()
	onToken := func(token string) {
		mu.Lock()
		defer mu.Unlock()
		if suppressed {
			return
		}
		streamed.WriteString(token)
		if strict && leaksSensitiveData(streamed.String()) {
			suppressed = true
			cancel()
			return
		}
		stream.SendToken(token)
	}

	runErr := p.runner.RunStream(runCtx, question, agentCtx, onToken)

	mu.Lock()
	wasSuppressed := suppressed
	mu.Unlock()

	if wasSuppressed {
		trip := &GuardrailTrip{Guardrail: "Data Leak Prevention", Info: map[string]interface{}{"strictStream": true}}
		collector.RecordGuardrailTrigger(trip.Guardrail)
		collector.Finalize(streamed.String())
		p.persistMetrics(ctx, collector, true)
		stream.SendError(guardrailRejectionMessage, trip.Guardrail)
		return trip
	}

	if runErr != nil {
		collector.RecordError(runErr.Error())
		collector.Finalize(streamed.String())
		p.persistMetrics(ctx, collector, true)
		stream.SendError("erro interno ao processar a solicitação", "")
		return runErr
	}

	output := p.runner.CompletedOutput()
	if output == nil {
		err := errors.New("stream completed without structured output")
		collector.RecordError(err.Error())
		collector.Finalize(streamed.String())
		p.persistMetrics(ctx, collector, true)
		stream.SendError("erro interno ao processar a solicitação", "")
		return err
	}

	if trip := RunOutputGuardrails(ctx, p.db, output); trip != nil {
		collector.RecordGuardrailTrigger(trip.Guardrail)
		collector.Finalize(output.Response)
		p.persistMetrics(ctx, collector, true)
		stream.SendError(guardrailRejectionMessage, trip.Guardrail)
		return trip
	}

	collector.Finalize(output.Response)
	p.persistMetrics(ctx, collector, true)
	return stream.SendDone(output, collector.Summary())
}

// leaksSensitiveData checks the accumulated stream text against the output
// leak patterns.
func leaksSensitiveData(text string) bool {
	for _, sensitive := range sensitiveOutputPatterns {
		if sensitive.pattern.MatchString(text) {
			return true
		}
	}
	return false
}
