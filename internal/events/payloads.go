package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface every typed kernel event payload implements.
type EventPayload interface {
	EventType() EventType
}

// StatusPayload carries a free-form progress message (e.g. "planning",
// "invoking model").
type StatusPayload struct {
	Message string `json:"message"`
}

func (StatusPayload) EventType() EventType { return EventStatus }

// ToolStartedPayload announces a tool invocation about to run.
type ToolStartedPayload struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (ToolStartedPayload) EventType() EventType { return EventToolStarted }

// ToolCompletedPayload reports a finished tool invocation's outcome.
type ToolCompletedPayload struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
}

func (ToolCompletedPayload) EventType() EventType { return EventToolCompleted }

// TokenUsagePayload reports one model turn's reported/estimated token cost.
type TokenUsagePayload struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}

func (TokenUsagePayload) EventType() EventType { return EventTokenUsage }

// CompletedPayload carries the task's final assistant message.
type CompletedPayload struct {
	Message string `json:"message"`
}

func (CompletedPayload) EventType() EventType { return EventCompleted }

// ErrorPayload carries a fatal error's message.
type ErrorPayload struct {
	Message string `json:"message"`
}

func (ErrorPayload) EventType() EventType { return EventError }

// LogPayload carries a structured log line for sinks that want to surface
// kernel-internal logging (e.g. a TUI's debug pane).
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (LogPayload) EventType() EventType { return EventLog }

// NewTypedEvent builds an Event from source and payload, stamping the
// event's Type from payload.EventType().
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventWithSession is NewTypedEvent scoped to a session/task id.
func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes e.Payload back into a typed payload T.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
