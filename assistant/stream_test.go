package assistant

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/contabilhub/contabil_backend/models"
)

func parseFrames(t *testing.T, raw string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, frame := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		lines := strings.SplitN(frame, "\n", 2)
		if len(lines) != 2 {
			t.Fatalf("malformed frame: %q", frame)
		}
		if !strings.HasPrefix(lines[0], "id: ") {
			t.Fatalf("frame missing id line: %q", frame)
		}
		payload := strings.TrimPrefix(lines[1], "data: ")
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			t.Fatalf("frame payload not json: %q: %v", payload, err)
		}
		event["_id"] = strings.TrimPrefix(lines[0], "id: ")
		events = append(events, event)
	}
	return events
}

func TestStreamWriterFrames(t *testing.T) {
	var buf bytes.Buffer
	stream := NewStreamWriter(&buf, -1)

	if err := stream.SendStart("req-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.SendToken("Olá")
	stream.SendToken(", tudo bem?")
	stream.SendDone(&AssistantResponse{
		Response:   "Olá, tudo bem?",
		Confidence: 0.9,
		Sources:    []Source{{Type: models.SourceTypeSummary, Id: "resumo", Relevance: 1}},
	}, map[string]interface{}{"tokensUsed": 42})

	events := parseFrames(t, buf.String())
	if len(events) != 4 {
		t.Fatalf("events: got %d, want 4", len(events))
	}

	wantIds := []string{"0", "1", "2", "3"}
	wantTypes := []string{StreamEventStart, StreamEventToken, StreamEventToken, StreamEventDone}
	for idx, event := range events {
		if event["_id"] != wantIds[idx] {
			t.Errorf("event %d id: got %v, want %s", idx, event["_id"], wantIds[idx])
		}
		if event["type"] != wantTypes[idx] {
			t.Errorf("event %d type: got %v, want %s", idx, event["type"], wantTypes[idx])
		}
	}

	done := events[3]
	if done["confidence"] != 0.9 {
		t.Errorf("done confidence: got %v", done["confidence"])
	}
	if done["metrics"] == nil {
		t.Error("done must carry metrics")
	}
}

func TestStreamWriterResumesNumbering(t *testing.T) {
	var buf bytes.Buffer
	stream := NewStreamWriter(&buf, 7)

	stream.SendToken("continuação")
	events := parseFrames(t, buf.String())
	if events[0]["_id"] != "8" {
		t.Errorf("resumed id: got %v, want 8", events[0]["_id"])
	}
}

func TestParseLastEventId(t *testing.T) {
	cases := []struct {
		header string
		want   int64
	}{
		{"", -1},
		{"0", 0},
		{"41", 41},
		{" 41 ", 41},
		{"abc", -1},
		{"-5", -1},
	}
	for _, tc := range cases {
		if got := ParseLastEventId(tc.header); got != tc.want {
			t.Errorf("ParseLastEventId(%q): got %d, want %d", tc.header, got, tc.want)
		}
	}
}

func TestStreamWriterErrorCarriesGuardrail(t *testing.T) {
	var buf bytes.Buffer
	stream := NewStreamWriter(&buf, -1)
	stream.SendError("bloqueado", "Security Check")

	events := parseFrames(t, buf.String())
	if events[0]["type"] != StreamEventError {
		t.Fatalf("type: got %v", events[0]["type"])
	}
	if events[0]["guardrail"] != "Security Check" {
		t.Errorf("guardrail: got %v", events[0]["guardrail"])
	}
}
