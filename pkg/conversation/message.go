package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation history.
//
// The set of implementations is closed: UserMessage, AssistantMessage and
// ToolResultMessage. Consumers switch on the concrete type (or use Visit)
// and treat anything else as an error.
type Message interface {
	Role() Role
	String() string
	isMessage()
}

// ToolCall is a structured request, emitted by the worker model, to run a
// named tool with the given JSON arguments.
type ToolCall struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

type UserMessage struct {
	Text string `json:"text" yaml:"text"`
}

func NewUserMessage(text string) *UserMessage {
	return &UserMessage{Text: text}
}

func (m *UserMessage) Role() Role     { return RoleUser }
func (m *UserMessage) String() string { return fmt.Sprintf("[user]: %s", m.Text) }
func (m *UserMessage) isMessage()     {}

type AssistantMessage struct {
	Text      string     `json:"text,omitempty" yaml:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
}

func NewAssistantMessage(text string, calls ...ToolCall) *AssistantMessage {
	return &AssistantMessage{Text: text, ToolCalls: calls}
}

func (m *AssistantMessage) Role() Role { return RoleAssistant }

func (m *AssistantMessage) String() string {
	if len(m.ToolCalls) == 0 {
		return fmt.Sprintf("[assistant]: %s", m.Text)
	}
	names := make([]string, 0, len(m.ToolCalls))
	for _, c := range m.ToolCalls {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("[assistant]: %s (tool calls: %s)", m.Text, strings.Join(names, ", "))
}

func (m *AssistantMessage) isMessage() {}

// HasPendingToolCalls reports whether the message requests at least one tool call.
func (m *AssistantMessage) HasPendingToolCalls() bool {
	return m != nil && len(m.ToolCalls) > 0
}

// ToolResultMessage carries the payload produced by executing one ToolCall.
// Payload is either the tool's structured result or an error string.
type ToolResultMessage struct {
	ToolCallID string `json:"tool_call_id" yaml:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	Payload    any    `json:"payload" yaml:"payload"`
}

func NewToolResultMessage(call ToolCall, payload any) *ToolResultMessage {
	return &ToolResultMessage{ToolCallID: call.ID, ToolName: call.Name, Payload: payload}
}

func (m *ToolResultMessage) Role() Role { return RoleTool }

func (m *ToolResultMessage) String() string {
	return fmt.Sprintf("[tool %s]: %s", m.ToolCallID, PayloadString(m.Payload))
}

func (m *ToolResultMessage) isMessage() {}

var (
	_ Message = (*UserMessage)(nil)
	_ Message = (*AssistantMessage)(nil)
	_ Message = (*ToolResultMessage)(nil)
)

// Visitor has one callback per message variant. Nil callbacks are skipped.
type Visitor struct {
	User       func(*UserMessage) error
	Assistant  func(*AssistantMessage) error
	ToolResult func(*ToolResultMessage) error
}

// Visit dispatches m to the matching callback of v.
func Visit(m Message, v Visitor) error {
	switch m_ := m.(type) {
	case *UserMessage:
		if v.User != nil {
			return v.User(m_)
		}
	case *AssistantMessage:
		if v.Assistant != nil {
			return v.Assistant(m_)
		}
	case *ToolResultMessage:
		if v.ToolResult != nil {
			return v.ToolResult(m_)
		}
	case nil:
		return errors.New("nil message")
	default:
		return errors.Errorf("unknown message type %T", m)
	}
	return nil
}

// Clone returns a deep copy of m.
func Clone(m Message) Message {
	if m == nil {
		return nil
	}
	return clone.Clone(m).(Message)
}

// CloneAll returns deep copies of all messages, preserving order.
func CloneAll(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Clone(m)
	}
	return out
}

// PayloadString renders a tool payload the way it is shown to a model:
// strings verbatim, everything else as compact JSON.
func PayloadString(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	case json.RawMessage:
		return string(p)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}

// Validate checks that every ToolResultMessage answers a ToolCall of the
// closest preceding AssistantMessage, and that no call is answered twice.
func Validate(msgs []Message) error {
	var open map[string]bool
	for i, m := range msgs {
		err := Visit(m, Visitor{
			User: func(*UserMessage) error {
				open = nil
				return nil
			},
			Assistant: func(a *AssistantMessage) error {
				open = make(map[string]bool, len(a.ToolCalls))
				for _, c := range a.ToolCalls {
					if c.ID == "" {
						return errors.Errorf("tool call %q has no id", c.Name)
					}
					open[c.ID] = true
				}
				return nil
			},
			ToolResult: func(r *ToolResultMessage) error {
				if !open[r.ToolCallID] {
					return errors.Errorf("tool result %q does not answer a pending tool call", r.ToolCallID)
				}
				delete(open, r.ToolCallID)
				return nil
			},
		})
		if err != nil {
			return errors.Wrapf(err, "message %d", i)
		}
	}
	return nil
}
