package openai

import (
	"context"
	"math"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/go-go-golems/tessa/pkg/inference/engine"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine implements engine.Model against an OpenAI-compatible chat
// completions endpoint.
type OpenAIEngine struct {
	client     *go_openai.Client
	chat       *settings.ChatSettings
	tools      []go_openai.Tool
	toolConfig tools.ToolConfig
}

type Option func(*OpenAIEngine)

// WithTools binds tool definitions to every request made by the engine.
func WithTools(defs ...tools.ToolDefinition) Option {
	return func(e *OpenAIEngine) {
		e.tools = append(e.tools, toolsToOpenAI(defs)...)
	}
}

// WithToolConfig sets the tool choice and the parallel tool call hint.
func WithToolConfig(cfg tools.ToolConfig) Option {
	return func(e *OpenAIEngine) {
		e.toolConfig = cfg
	}
}

func NewOpenAIEngine(cs *settings.ClientSettings, chat *settings.ChatSettings, options ...Option) (*OpenAIEngine, error) {
	client, err := MakeClient(cs)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		chat = settings.NewChatSettings(settings.DefaultWorkerTemperature)
	}
	ret := &OpenAIEngine{
		client:     client,
		chat:       chat.Clone(),
		toolConfig: tools.DefaultToolConfig(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

func (e *OpenAIEngine) makeRequest(systemInstruction string, history []conversation.Message) (go_openai.ChatCompletionRequest, error) {
	msgs, err := messagesToOpenAI(systemInstruction, history)
	if err != nil {
		return go_openai.ChatCompletionRequest{}, err
	}
	req := go_openai.ChatCompletionRequest{
		Model:    e.chat.Model,
		Messages: msgs,
	}
	if e.chat.Temperature != nil {
		req.Temperature = float32(*e.chat.Temperature)
		// the client drops a zero temperature as unset
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if e.chat.MaxResponseTokens != nil {
		req.MaxTokens = *e.chat.MaxResponseTokens
	}

	if len(e.tools) > 0 {
		req.Tools = e.tools
		switch e.toolConfig.ToolChoice {
		case tools.ToolChoiceNone:
			req.ToolChoice = "none"
		case tools.ToolChoiceRequired:
			req.ToolChoice = "required"
		default:
			req.ToolChoice = "auto"
		}
		if e.toolConfig.MaxParallelTools > 1 {
			req.ParallelToolCalls = true
		}
	}
	return req, nil
}

func (e *OpenAIEngine) Invoke(ctx context.Context, systemInstruction string, history []conversation.Message) (*conversation.AssistantMessage, error) {
	req, err := e.makeRequest(systemInstruction, history)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Msg("sending chat completion request")

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	ret := assistantFromOpenAI(choice.Message)
	log.Debug().
		Str("finish_reason", string(choice.FinishReason)).
		Int("tool_calls", len(ret.ToolCalls)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion received")
	return ret, nil
}

var _ engine.Model = (*OpenAIEngine)(nil)
