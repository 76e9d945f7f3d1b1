package toolloop

import (
	"context"
	"time"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/go-go-golems/tessa/pkg/events"
	"github.com/go-go-golems/tessa/pkg/inference/engine"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Loop runs one user turn: the worker decides, tools act, the supervisor
// summarizes.
type Loop struct {
	worker     engine.Model
	supervisor engine.Model
	registry   tools.Registry
	loopCfg    LoopConfig
	toolCfg    tools.ToolConfig
	executor   *tools.Executor
	now        func() time.Time

	snapshotHook SnapshotHook
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		loopCfg: DefaultLoopConfig(),
		toolCfg: tools.DefaultToolConfig(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.registry != nil {
		l.executor = tools.NewExecutor(l.registry, l.toolCfg)
	}
	return l
}

func WithWorker(m engine.Model) Option {
	return func(l *Loop) { l.worker = m }
}

func WithSupervisor(m engine.Model) Option {
	return func(l *Loop) { l.supervisor = m }
}

func WithRegistry(reg tools.Registry) Option {
	return func(l *Loop) { l.registry = reg }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

func WithToolConfig(cfg tools.ToolConfig) Option {
	return func(l *Loop) { l.toolCfg = cfg }
}

// WithClock sets the time source used for prompt rendering.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

func WithSnapshotHook(h SnapshotHook) Option {
	return func(l *Loop) { l.snapshotHook = h }
}

// Result is the outcome of a completed run.
type Result struct {
	// Messages is the input history followed by every message the run produced.
	Messages    []conversation.Message
	Transitions []Transition
}

// Final returns the terminal assistant message.
func (r *Result) Final() *conversation.AssistantMessage {
	if r == nil || len(r.Messages) == 0 {
		return nil
	}
	final, _ := r.Messages[len(r.Messages)-1].(*conversation.AssistantMessage)
	return final
}

func (l *Loop) snapshot(ctx context.Context, state State, msgs []conversation.Message) {
	h := l.snapshotHook
	if h == nil {
		var ok bool
		if h, ok = SnapshotHookFromContext(ctx); !ok {
			return
		}
	}
	h(ctx, state, conversation.CloneAll(msgs))
}

// RunTurn runs the loop and returns the updated message sequence.
func (l *Loop) RunTurn(ctx context.Context, history []conversation.Message) ([]conversation.Message, error) {
	res, err := l.Run(ctx, history)
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// Run drives the state machine from StateDeciding to StateDone. history is
// never modified. A failing tool never aborts the run; a failing model does,
// with a *engine.ModelInvocationError.
func (l *Loop) Run(ctx context.Context, history []conversation.Message) (*Result, error) {
	if l == nil {
		return nil, errors.New("tool loop is nil")
	}
	if l.worker == nil {
		return nil, errors.New("tool loop worker is nil")
	}
	if l.supervisor == nil {
		return nil, errors.New("tool loop supervisor is nil")
	}
	if l.registry == nil || l.executor == nil {
		return nil, errors.New("tool loop registry is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := conversation.Validate(history); err != nil {
		return nil, errors.Wrap(err, "invalid history")
	}

	start := time.Now()
	res, err := l.run(ctx, history)
	metrics.RecordTurn(err == nil, time.Since(start))
	if err != nil {
		events.PublishEventToContext(ctx, events.NewErrorEvent(events.MetadataFromContext(ctx), err))
		return nil, err
	}
	events.PublishEventToContext(ctx, events.NewFinalEvent(events.MetadataFromContext(ctx), res.Final().Text))
	return res, nil
}

func (l *Loop) run(ctx context.Context, history []conversation.Message) (*Result, error) {
	workerPrompt, supervisorPrompt, err := l.renderPrompts()
	if err != nil {
		return nil, err
	}

	msgs := conversation.CloneAll(history)
	res := &Result{}
	var latest *conversation.AssistantMessage

	for state := StateDeciding; state != StateDone; {
		l.snapshot(ctx, state, msgs)

		switch state {
		case StateDeciding:
			reply, err := l.invokeModel(ctx, engine.RoleWorker, l.worker, workerPrompt, msgs)
			if err != nil {
				return nil, err
			}
			latest = reply
			msgs = append(msgs, reply)

		case StateActing:
			results := l.executor.ExecuteToolCalls(ctx, latest.ToolCalls)
			for _, r := range results {
				msgs = append(msgs, conversation.NewToolResultMessage(r.Call, r.Payload()))
			}

		case StateSummarizing:
			reply, err := l.invokeModel(ctx, engine.RoleSupervisor, l.supervisor, supervisorPrompt, msgs)
			if err != nil {
				return nil, err
			}
			if reply.HasPendingToolCalls() {
				log.Warn().Int("tool_calls", len(reply.ToolCalls)).Msg("toolloop: discarding tool calls from supervisor")
				reply = conversation.NewAssistantMessage(reply.Text)
			}
			latest = reply
			msgs = append(msgs, reply)
		}

		next := NextState(state, latest)
		res.Transitions = append(res.Transitions, Transition{From: state, To: next})
		log.Debug().Str("from", state.String()).Str("to", next.String()).Int("messages", len(msgs)).Msg("toolloop: transition")
		events.PublishEventToContext(ctx, events.NewStateTransitionEvent(events.MetadataFromContext(ctx), state.String(), next.String()))
		state = next
	}
	l.snapshot(ctx, StateDone, msgs)

	res.Messages = msgs
	return res, nil
}

func (l *Loop) renderPrompts() (string, string, error) {
	now := l.now()
	data := PromptData{Now: now, Today: now.Format("2006-01-02")}
	for _, def := range l.toolCfg.FilterTools(l.registry.ListTools()) {
		data.Tools = append(data.Tools, def.Name)
	}

	worker, err := RenderPrompt("worker", l.loopCfg.WorkerPrompt, data)
	if err != nil {
		return "", "", err
	}
	supervisor, err := RenderPrompt("supervisor", l.loopCfg.SupervisorPrompt, data)
	if err != nil {
		return "", "", err
	}
	return worker, supervisor, nil
}

func (l *Loop) invokeModel(
	ctx context.Context,
	role engine.Role,
	m engine.Model,
	instruction string,
	msgs []conversation.Message,
) (*conversation.AssistantMessage, error) {
	callCtx := ctx
	if l.loopCfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.loopCfg.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := m.Invoke(callCtx, instruction, conversation.CloneAll(msgs))
	if err == nil && reply == nil {
		err = errors.New("model returned no message")
	}
	metrics.RecordModelInvocation(string(role), err == nil, time.Since(start))

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrapf(context.DeadlineExceeded, "no reply within %s: %v", l.loopCfg.ModelTimeout, err)
		}
		var mie *engine.ModelInvocationError
		if errors.As(err, &mie) {
			return nil, err
		}
		log.Error().Err(err).Str("role", string(role)).Msg("toolloop: model invocation failed")
		return nil, &engine.ModelInvocationError{Role: role, Err: err}
	}
	return reply, nil
}
