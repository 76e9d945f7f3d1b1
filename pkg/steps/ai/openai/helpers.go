package openai

import (
	"encoding/json"
	"net/http"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/go-go-golems/tessa/pkg/inference/engine"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/steps/ai/settings"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// MakeClient builds a go-openai client for any OpenAI-compatible endpoint.
func MakeClient(cs *settings.ClientSettings) (*go_openai.Client, error) {
	if cs == nil {
		return nil, errors.New("no client settings")
	}
	if cs.APIKey == "" {
		return nil, errors.New("no API key configured")
	}
	config := go_openai.DefaultConfig(cs.APIKey)
	if cs.BaseURL != "" {
		config.BaseURL = cs.BaseURL
	}
	switch {
	case cs.HTTPClient != nil:
		config.HTTPClient = cs.HTTPClient
	case cs.Timeout != nil:
		config.HTTPClient = &http.Client{Timeout: *cs.Timeout}
	}
	return go_openai.NewClientWithConfig(config), nil
}

// messagesToOpenAI converts the system instruction and the history into the
// chat completion message list.
func messagesToOpenAI(systemInstruction string, history []conversation.Message) ([]go_openai.ChatCompletionMessage, error) {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(history)+1)
	if systemInstruction != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		})
	}

	for i, m := range history {
		err := conversation.Visit(m, conversation.Visitor{
			User: func(u *conversation.UserMessage) error {
				msgs = append(msgs, go_openai.ChatCompletionMessage{
					Role:    go_openai.ChatMessageRoleUser,
					Content: u.Text,
				})
				return nil
			},
			Assistant: func(a *conversation.AssistantMessage) error {
				msg := go_openai.ChatCompletionMessage{
					Role:    go_openai.ChatMessageRoleAssistant,
					Content: a.Text,
				}
				for _, c := range a.ToolCalls {
					args := string(c.Arguments)
					if args == "" {
						args = "{}"
					}
					msg.ToolCalls = append(msg.ToolCalls, go_openai.ToolCall{
						ID:   c.ID,
						Type: go_openai.ToolTypeFunction,
						Function: go_openai.FunctionCall{
							Name:      c.Name,
							Arguments: args,
						},
					})
				}
				msgs = append(msgs, msg)
				return nil
			},
			ToolResult: func(r *conversation.ToolResultMessage) error {
				msgs = append(msgs, go_openai.ChatCompletionMessage{
					Role:       go_openai.ChatMessageRoleTool,
					Content:    conversation.PayloadString(r.Payload),
					ToolCallID: r.ToolCallID,
				})
				return nil
			},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "history message %d", i)
		}
	}
	return msgs, nil
}

func toolsToOpenAI(defs []tools.ToolDefinition) []go_openai.Tool {
	ret := make([]go_openai.Tool, 0, len(defs))
	for _, def := range defs {
		ret = append(ret, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return ret
}

// assistantFromOpenAI converts a completion message into an AssistantMessage.
// Tool calls without an id get a generated one so results can be paired.
func assistantFromOpenAI(msg go_openai.ChatCompletionMessage) *conversation.AssistantMessage {
	blocks := make([]engine.ContentBlock, 0, len(msg.MultiContent))
	for _, part := range msg.MultiContent {
		blocks = append(blocks, engine.ContentBlock{Type: string(part.Type), Text: part.Text})
	}
	text := engine.NormalizeText(engine.NewResponse(msg.Content, blocks))

	var calls []conversation.ToolCall
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		calls = append(calls, conversation.ToolCall{ID: id, Name: tc.Function.Name, Arguments: args})
	}
	return conversation.NewAssistantMessage(text, calls...)
}
