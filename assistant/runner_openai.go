package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/contabilhub/contabil_backend/config"
)

const assistantSystemPrompt = `Você é um assistente contábil para escritórios de contabilidade brasileiros.
Responda SEMPRE em português brasileiro.
Use as ferramentas disponíveis para consultar notas fiscais, transações bancárias e folha de pagamento do cliente.
Sempre informe o clientId recebido ao chamar ferramentas.
Sua resposta final DEVE ser um objeto JSON com exatamente estes campos:
{"response": "<texto da resposta>", "confidence": <número entre 0 e 1>, "sources": [{"type": "invoice|transaction|payroll|summary", "id": "<id>", "relevance": <número>}]}
Cite em sources todos os registros usados para compor a resposta.`

const maxAgentTurns = 8

// OpenAIRunner drives an OpenAI-compatible chat-completions endpoint with
// function calling.
type OpenAIRunner struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	completedOutput *AssistantResponse
}

func NewOpenAIRunnerFromEnv() *OpenAIRunner {
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIRunner{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: config.AssistantRequestTimeout(),
		},
	}
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallId string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatToolCall struct {
	Id       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	Tools          []chatToolDef          `json:"tools,omitempty"`
	Temperature    float64                `json:"temperature"`
	Stream         bool                   `json:"stream,omitempty"`
	StreamOptions  map[string]interface{} `json:"stream_options,omitempty"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				Id       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

func toolDefinitions() []chatToolDef {
	var defs []chatToolDef
	for _, tool := range Tools() {
		var def chatToolDef
		def.Type = "function"
		def.Function.Name = tool.Name
		def.Function.Description = tool.Description
		def.Function.Parameters = tool.Parameters
		defs = append(defs, def)
	}
	return defs
}

func (r *OpenAIRunner) Run(ctx context.Context, question string, agentCtx AgentContext) (*AssistantResponse, error) {
	return r.run(ctx, question, agentCtx, nil)
}

func (r *OpenAIRunner) RunStream(ctx context.Context, question string, agentCtx AgentContext, onToken func(string)) error {
	_, err := r.run(ctx, question, agentCtx, onToken)
	return err
}

func (r *OpenAIRunner) CompletedOutput() *AssistantResponse {
	return r.completedOutput
}

// run executes the tool-call loop. Tool calls run sequentially; the model
// decides when it is done and emits the final JSON object.
func (r *OpenAIRunner) run(ctx context.Context, question string, agentCtx AgentContext, onToken func(string)) (*AssistantResponse, error) {
	if r.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not configured")
	}
	r.completedOutput = nil

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.httpClient.Timeout)
		defer cancel()
	}

	messages := []chatMessage{
		{Role: "system", Content: assistantSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("clientId: %s\n\n%s", agentCtx.ClientId, question)},
	}
	tools := toolDefinitions()

	for turn := 0; turn < maxAgentTurns; turn++ {
		assistantMsg, usageTokens, err := r.chatOnce(ctx, messages, tools, onToken, agentCtx)
		if err != nil {
			return nil, err
		}
		if agentCtx.Metrics != nil && usageTokens > 0 {
			agentCtx.Metrics.AddTokens(usageTokens)
		}

		if len(assistantMsg.ToolCalls) == 0 {
			output, err := parseAssistantOutput(assistantMsg.Content)
			if err != nil {
				return nil, err
			}
			r.completedOutput = output
			return output, nil
		}

		messages = append(messages, *assistantMsg)
		for _, call := range assistantMsg.ToolCalls {
			if agentCtx.Metrics != nil {
				agentCtx.Metrics.RecordToolCall()
			}
			result := r.executeTool(ctx, agentCtx, call)
			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallId: call.Id,
				Name:       call.Function.Name,
			})
		}
	}

	return nil, errors.New("agent did not produce a final answer within the turn limit")
}

func (r *OpenAIRunner) executeTool(ctx context.Context, agentCtx AgentContext, call chatToolCall) string {
	tool, found := FindTool(call.Function.Name)
	if !found {
		return fmt.Sprintf(`{"error": "unknown tool: %s"}`, call.Function.Name)
	}
	result, err := tool.Execute(ctx, agentCtx.DB, json.RawMessage(call.Function.Arguments))
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(payload)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return `{"error": "failed to encode tool result"}`
	}
	return string(payload)
}

// chatOnce performs a single chat-completions round trip. With onToken set
// the request is streamed and content deltas are forwarded as they arrive.
func (r *OpenAIRunner) chatOnce(ctx context.Context, messages []chatMessage, tools []chatToolDef, onToken func(string), agentCtx AgentContext) (*chatMessage, int64, error) {
	request := chatRequest{
		Model:       r.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: 0.1,
	}
	if onToken != nil {
		request.Stream = true
		request.StreamOptions = map[string]interface{}{"include_usage": true}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 0, fmt.Errorf("model API returned %d: %s", resp.StatusCode, string(raw))
	}

	if onToken == nil {
		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, 0, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return nil, 0, errors.New("model returned no choices")
		}
		message := parsed.Choices[0].Message
		return &message, parsed.Usage.TotalTokens, nil
	}

	return r.readStream(resp.Body, onToken, agentCtx)
}

// readStream assembles a full assistant message from SSE chunks, forwarding
// content deltas and accumulating tool-call argument fragments by index.
func (r *OpenAIRunner) readStream(body io.Reader, onToken func(string), agentCtx AgentContext) (*chatMessage, int64, error) {
	message := &chatMessage{Role: "assistant"}
	var content strings.Builder
	toolCalls := map[int]*chatToolCall{}
	var usageTokens int64
	maxIndex := -1

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usageTokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if agentCtx.Metrics != nil {
				agentCtx.Metrics.RecordFirstToken()
			}
			content.WriteString(delta.Content)
			onToken(delta.Content)
		}
		for _, deltaCall := range delta.ToolCalls {
			call, ok := toolCalls[deltaCall.Index]
			if !ok {
				call = &chatToolCall{Type: "function"}
				toolCalls[deltaCall.Index] = call
				if deltaCall.Index > maxIndex {
					maxIndex = deltaCall.Index
				}
			}
			if deltaCall.Id != "" {
				call.Id = deltaCall.Id
			}
			if deltaCall.Function.Name != "" {
				call.Function.Name = deltaCall.Function.Name
			}
			call.Function.Arguments += deltaCall.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, usageTokens, fmt.Errorf("stream read failed: %w", err)
	}

	message.Content = content.String()
	for idx := 0; idx <= maxIndex; idx++ {
		if call, ok := toolCalls[idx]; ok {
			message.ToolCalls = append(message.ToolCalls, *call)
		}
	}
	return message, usageTokens, nil
}

// parseAssistantOutput decodes the model's final JSON object, tolerating a
// markdown code fence around it.
func parseAssistantOutput(content string) (*AssistantResponse, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var output AssistantResponse
	if err := json.Unmarshal([]byte(trimmed), &output); err != nil {
		return nil, fmt.Errorf("model output is not valid structured JSON: %w", err)
	}
	if err := output.Validate(); err != nil {
		return nil, err
	}
	return &output, nil
}
