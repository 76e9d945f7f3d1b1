package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/steps/ai/settings"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dateArgs struct{}

func newTestServer(t *testing.T, reply string, seen *go_openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(t *testing.T, srv *httptest.Server, options ...Option) *OpenAIEngine {
	t.Helper()
	cs := settings.NewClientSettings()
	cs.APIKey = "test-key"
	cs.BaseURL = srv.URL
	e, err := NewOpenAIEngine(cs, settings.NewChatSettings(0.2), options...)
	require.NoError(t, err)
	return e
}

func TestInvokeParsesToolCalls(t *testing.T) {
	var seen go_openai.ChatCompletionRequest
	srv := newTestServer(t, `{
		"id": "x", "object": "chat.completion", "model": "gemini-2.5-flash",
		"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
			"role": "assistant", "content": "",
			"tool_calls": [
				{"id": "c1", "type": "function", "function": {"name": "get_current_date", "arguments": "{}"}},
				{"id": "", "type": "function", "function": {"name": "search_flights", "arguments": "{\"origin_location_code\":\"BLR\"}"}}
			]}}]
	}`, &seen)

	def, err := tools.NewTool("get_current_date", "today", dateArgs{}, func(context.Context, dateArgs) (string, error) { return "", nil })
	require.NoError(t, err)
	e := newTestEngine(t, srv, WithTools(*def))

	msg, err := e.Invoke(context.Background(), "You call tools.", []conversation.Message{
		conversation.NewUserMessage("flights from BLR"),
	})
	require.NoError(t, err)

	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, "c1", msg.ToolCalls[0].ID)
	assert.Equal(t, "search_flights", msg.ToolCalls[1].Name)
	assert.NotEmpty(t, msg.ToolCalls[1].ID)
	assert.JSONEq(t, `{"origin_location_code":"BLR"}`, string(msg.ToolCalls[1].Arguments))

	require.Len(t, seen.Messages, 2)
	assert.Equal(t, go_openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, "You call tools.", seen.Messages[0].Content)
	require.Len(t, seen.Tools, 1)
	assert.Equal(t, "get_current_date", seen.Tools[0].Function.Name)
	assert.InDelta(t, 0.2, seen.Temperature, 1e-6)
}

func TestInvokeWithoutToolsSendsNone(t *testing.T) {
	var seen go_openai.ChatCompletionRequest
	srv := newTestServer(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"  Here are your flights. "}}]}`, &seen)
	e := newTestEngine(t, srv)

	msg, err := e.Invoke(context.Background(), "", []conversation.Message{conversation.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "Here are your flights.", msg.Text)
	assert.False(t, msg.HasPendingToolCalls())
	assert.Empty(t, seen.Tools)
	assert.Len(t, seen.Messages, 1)
}

func TestInvokeSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()
	e := newTestEngine(t, srv)

	_, err := e.Invoke(context.Background(), "", []conversation.Message{conversation.NewUserMessage("hi")})
	require.Error(t, err)
}

func TestMakeClientRequiresAPIKey(t *testing.T) {
	_, err := MakeClient(settings.NewClientSettings())
	require.Error(t, err)
}

func TestMessagesToOpenAIPairsToolResults(t *testing.T) {
	call := conversation.ToolCall{ID: "c1", Name: "search_hotels_by_city", Arguments: json.RawMessage(`{"city_code":"PAR"}`)}
	msgs, err := messagesToOpenAI("sys", []conversation.Message{
		conversation.NewUserMessage("hotels in paris"),
		conversation.NewAssistantMessage("", call),
		conversation.NewToolResultMessage(call, []map[string]interface{}{{"hotelId": "H1"}}),
		conversation.NewToolResultMessage(conversation.ToolCall{ID: "c2"}, "Error: nope"),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	assert.Equal(t, go_openai.ChatMessageRoleAssistant, msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, `{"city_code":"PAR"}`, msgs[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, go_openai.ChatMessageRoleTool, msgs[3].Role)
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	assert.Equal(t, `[{"hotelId":"H1"}]`, msgs[3].Content)
	assert.Equal(t, "Error: nope", msgs[4].Content)
}

func TestAssistantFromOpenAIJoinsTextParts(t *testing.T) {
	msg := assistantFromOpenAI(go_openai.ChatCompletionMessage{
		Role: go_openai.ChatMessageRoleAssistant,
		MultiContent: []go_openai.ChatMessagePart{
			{Type: go_openai.ChatMessagePartTypeText, Text: "Option 1"},
			{Type: go_openai.ChatMessagePartTypeText, Text: "Option 2"},
		},
	})
	assert.Equal(t, "Option 1\nOption 2", msg.Text)
}
