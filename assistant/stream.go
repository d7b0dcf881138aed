package assistant

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Stream event kinds.
const (
	StreamEventStart = "start"
	StreamEventToken = "token"
	StreamEventDone  = "done"
	StreamEventError = "error"
)

// StreamWriter emits server-sent events with monotonically increasing
// integer ids. Reconnecting clients send Last-Event-ID and numbering
// continues from there; already-sent tokens are not replayed.
type StreamWriter struct {
	writer  io.Writer
	flusher http.Flusher
	nextId  int64
}

// NewStreamWriter starts event numbering at lastEventId+1. Pass -1 (or any
// negative value) for a fresh stream starting at id 0.
func NewStreamWriter(writer io.Writer, lastEventId int64) *StreamWriter {
	flusher, _ := writer.(http.Flusher)
	return &StreamWriter{
		writer:  writer,
		flusher: flusher,
		nextId:  lastEventId + 1,
	}
}

// ParseLastEventId reads the Last-Event-ID header value. Absent or
// malformed values mean a fresh stream.
func ParseLastEventId(header string) int64 {
	header = strings.TrimSpace(header)
	if header == "" {
		return -1
	}
	id, err := strconv.ParseInt(header, 10, 64)
	if err != nil || id < 0 {
		return -1
	}
	return id
}

// SetSSEHeaders must run before the first event is written.
func SetSSEHeaders(header http.Header) {
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
}

// Send writes one event frame and flushes it so tokens reach the client
// without buffering delay.
func (s *StreamWriter) Send(kind string, payload map[string]interface{}) error {
	event := map[string]interface{}{"type": kind}
	for key, value := range payload {
		event[key] = value
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}

	if _, err := fmt.Fprintf(s.writer, "id: %d\ndata: %s\n\n", s.nextId, data); err != nil {
		return err
	}
	s.nextId++

	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *StreamWriter) SendStart(requestId string) error {
	return s.Send(StreamEventStart, map[string]interface{}{"requestId": requestId})
}

func (s *StreamWriter) SendToken(token string) error {
	return s.Send(StreamEventToken, map[string]interface{}{"content": token})
}

// SendDone closes the stream with the validated structured output and the
// request's metrics summary.
func (s *StreamWriter) SendDone(output *AssistantResponse, metrics map[string]interface{}) error {
	return s.Send(StreamEventDone, map[string]interface{}{
		"response":   output.Response,
		"confidence": output.Confidence,
		"sources":    output.Sources,
		"metrics":    metrics,
	})
}

// SendError reports a terminal failure. Guardrail rejections carry the
// guardrail name so clients can distinguish them from infrastructure
// errors.
func (s *StreamWriter) SendError(message string, guardrail string) error {
	payload := map[string]interface{}{"error": message}
	if guardrail != "" {
		payload["guardrail"] = guardrail
	}
	return s.Send(StreamEventError, payload)
}

// NextId exposes the id the next event will carry.
func (s *StreamWriter) NextId() int64 {
	return s.nextId
}
