package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStateTransition is emitted whenever the orchestration loop
	// moves from one state to the next.
	EventTypeStateTransition EventType = "state-transition"

	// Execution-phase events (tools actually being executed locally)
	EventTypeToolCallExecute EventType = "tool-call-execute"
	EventTypeToolCallResult  EventType = "tool-call-result"

	EventTypeFinal EventType = "final"
	EventTypeError EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata correlates an event with the session and turn it belongs to.
type EventMetadata struct {
	ID        uuid.UUID      `json:"message_id" yaml:"message_id"`
	SessionID string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	TurnID    string         `json:"turn_id,omitempty" yaml:"turn_id,omitempty"`
	Extra     map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func NewEventMetadata(sessionID, turnID string) EventMetadata {
	return EventMetadata{
		ID:        uuid.New(),
		SessionID: sessionID,
		TurnID:    turnID,
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	if em.TurnID != "" {
		e.Str("turn_id", em.TurnID)
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// set when the event was deserialized from JSON (see NewEventFromJson)
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

type EventStateTransition struct {
	EventImpl
	From string `json:"from"`
	To   string `json:"to"`
}

func NewStateTransitionEvent(metadata EventMetadata, from, to string) *EventStateTransition {
	return &EventStateTransition{
		EventImpl: EventImpl{Type_: EventTypeStateTransition, Metadata_: metadata},
		From:      from,
		To:        to,
	}
}

var _ Event = &EventStateTransition{}

type ToolCall struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Input string `json:"input" yaml:"input"`
}

type EventToolCallExecute struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolCallExecuteEvent(metadata EventMetadata, toolCall ToolCall) *EventToolCallExecute {
	return &EventToolCallExecute{
		EventImpl: EventImpl{Type_: EventTypeToolCallExecute, Metadata_: metadata},
		ToolCall:  toolCall,
	}
}

var _ Event = &EventToolCallExecute{}

type ToolResult struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Result  string `json:"result" yaml:"result"`
	IsError bool   `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

type EventToolCallResult struct {
	EventImpl
	ToolResult ToolResult `json:"tool_result"`
}

func NewToolCallResultEvent(metadata EventMetadata, toolResult ToolResult) *EventToolCallResult {
	return &EventToolCallResult{
		EventImpl:  EventImpl{Type_: EventTypeToolCallResult, Metadata_: metadata},
		ToolResult: toolResult,
	}
}

var _ Event = &EventToolCallResult{}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
	}
}

var _ Event = &EventFinal{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil {
		return nil, false
	}

	return ret, true
}

// NewEventFromJson decodes an event published by a WatermillSink back into
// its concrete type.
func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}

	e.payload = b

	switch e.Type_ {
	case EventTypeStateTransition:
		return decodeTyped[EventStateTransition](e)
	case EventTypeToolCallExecute:
		return decodeTyped[EventToolCallExecute](e)
	case EventTypeToolCallResult:
		return decodeTyped[EventToolCallResult](e)
	case EventTypeFinal:
		return decodeTyped[EventFinal](e)
	case EventTypeError:
		return decodeTyped[EventError](e)
	}

	return nil, fmt.Errorf("unknown event type: %s", e.Type_)
}

type payloadSetter interface {
	setPayload([]byte)
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}

func decodeTyped[T any, PT interface {
	*T
	Event
	payloadSetter
}](e *EventImpl) (Event, error) {
	ret, ok := ToTypedEvent[T](e)
	if !ok || ret == nil {
		return nil, fmt.Errorf("could not cast event to %s", e.Type_)
	}
	PT(ret).setPayload(e.payload)
	return PT(ret), nil
}
