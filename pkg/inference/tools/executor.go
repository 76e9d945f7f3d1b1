package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/go-go-golems/tessa/pkg/events"
	"github.com/go-go-golems/tessa/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ToolCallResult is the outcome of executing one ToolCall.
type ToolCallResult struct {
	Call     conversation.ToolCall
	Result   interface{}
	Err      error
	Duration time.Duration
}

// Payload is the value that goes into the ToolResultMessage: the tool's
// result, or the error rendered with ErrorPayload.
func (r ToolCallResult) Payload() interface{} {
	if r.Err != nil {
		return ErrorPayload(r.Err)
	}
	return r.Result
}

// Executor runs the tool calls of one ACTING step against a Registry.
type Executor struct {
	registry Registry
	config   ToolConfig
}

func NewExecutor(registry Registry, config ToolConfig) *Executor {
	return &Executor{registry: registry, config: config}
}

// ExecuteToolCalls runs calls with at most MaxParallelTools in flight and
// returns exactly one result per call, in call order. Failures are reported
// per call and never abort the batch.
func (e *Executor) ExecuteToolCalls(ctx context.Context, calls []conversation.ToolCall) []ToolCallResult {
	results := make([]ToolCallResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	limit := e.config.MaxParallelTools
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = e.ExecuteToolCall(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type invocation struct {
	value interface{}
	err   error
}

// ExecuteToolCall runs a single call with the configured timeout.
func (e *Executor) ExecuteToolCall(ctx context.Context, call conversation.ToolCall) ToolCallResult {
	start := time.Now()
	events.PublishEventToContext(ctx, events.NewToolCallExecuteEvent(
		events.MetadataFromContext(ctx),
		events.ToolCall{ID: call.ID, Name: call.Name, Input: compactArguments(call.Arguments)},
	))

	res := ToolCallResult{Call: call}
	if !e.config.IsToolAllowed(call.Name) {
		res.Err = &ToolError{ToolName: call.Name, ToolID: call.ID, Type: ToolErrorNotAllowed, Message: fmt.Sprintf("tool not allowed: %s", call.Name)}
	} else {
		res.Result, res.Err = e.invoke(ctx, call)
	}
	res.Duration = time.Since(start)

	outcome := classifyOutcome(res)
	metrics.RecordToolInvocation(call.Name, outcome, res.Duration)
	log.Debug().
		Str("tool", call.Name).
		Str("tool_call_id", call.ID).
		Str("outcome", outcome).
		Dur("duration", res.Duration).
		Msg("tool call finished")

	events.PublishEventToContext(ctx, events.NewToolCallResultEvent(
		events.MetadataFromContext(ctx),
		events.ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Result:  conversation.PayloadString(res.Payload()),
			IsError: res.Err != nil,
		},
	))
	return res
}

func (e *Executor) invoke(ctx context.Context, call conversation.ToolCall) (interface{}, error) {
	callCtx := ctx
	if e.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.config.ExecutionTimeout)
		defer cancel()
	}

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("tool", call.Name).Interface("panic", r).Msg("tool panicked")
				done <- invocation{err: &ToolError{
					ToolName: call.Name,
					ToolID:   call.ID,
					Type:     ToolErrorExecution,
					Message:  fmt.Sprintf("tool panicked: %v", r),
				}}
			}
		}()
		v, err := e.registry.Invoke(callCtx, call.Name, call.Arguments)
		done <- invocation{value: v, err: err}
	}()

	select {
	case inv := <-done:
		var te *ToolError
		if errors.As(inv.err, &te) && te.ToolID == "" {
			te.ToolID = call.ID
		}
		return inv.value, inv.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &ToolError{
				ToolName: call.Name,
				ToolID:   call.ID,
				Type:     ToolErrorTimeout,
				Message:  fmt.Sprintf("tool %s did not finish within %s", call.Name, e.config.ExecutionTimeout),
			}
		}
		return nil, &ToolError{ToolName: call.Name, ToolID: call.ID, Type: ToolErrorCancelled, Message: callCtx.Err().Error()}
	}
}

func classifyOutcome(res ToolCallResult) string {
	var ve *ValidationError
	var te *ToolError
	switch {
	case errors.As(res.Err, &ve):
		return metrics.OutcomeValidationError
	case errors.As(res.Err, &te) && te.Type == ToolErrorTimeout:
		return metrics.OutcomeTimeout
	case res.Err != nil:
		return metrics.OutcomeFailed
	}
	if s, ok := res.Result.(string); ok && looksLikeErrorPayload(s) {
		return metrics.OutcomeErrorPayload
	}
	return metrics.OutcomeOK
}

func looksLikeErrorPayload(s string) bool {
	return strings.HasPrefix(s, "Error") || strings.HasPrefix(s, "An error") || strings.HasPrefix(s, "An unexpected error")
}

func compactArguments(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	var tmp interface{}
	if err := json.Unmarshal(args, &tmp); err != nil {
		return string(args)
	}
	b, err := json.Marshal(tmp)
	if err != nil {
		return string(args)
	}
	return string(b)
}
