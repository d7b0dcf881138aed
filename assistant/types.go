package assistant

import (
	"fmt"

	"github.com/contabilhub/contabil_backend/models"
)

// Source is one citation in an assistant response.
type Source struct {
	Type      models.SourceType `json:"type"`
	Id        string            `json:"id"`
	Relevance float64           `json:"relevance"`
}

// AssistantResponse is the structured output of one assistant turn. It is
// validated by the output guardrails before it may leave the pipeline.
type AssistantResponse struct {
	Response   string   `json:"response"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources"`
}

// Validate enforces the response schema: confidence in [0,1] and known
// source types.
func (r *AssistantResponse) Validate() error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", r.Confidence)
	}
	for _, source := range r.Sources {
		if !source.Type.IsValid() {
			return fmt.Errorf("unknown source type %q", source.Type)
		}
	}
	return nil
}

// GuardrailTrip is the typed rejection a tripped guardrail produces. It is
// distinguishable from an internal error so callers can tell "your question
// was blocked for reason X" apart from "the system broke".
type GuardrailTrip struct {
	Guardrail string                 `json:"guardrail"`
	Info      map[string]interface{} `json:"info,omitempty"`
}

func (t *GuardrailTrip) Error() string {
	return fmt.Sprintf("guardrail tripped: %s", t.Guardrail)
}
