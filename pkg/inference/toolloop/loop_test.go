package toolloop

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/go-go-golems/tessa/pkg/events"
	"github.com/go-go-golems/tessa/pkg/inference/engine"
	"github.com/go-go-golems/tessa/pkg/inference/session"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/travel"
	"github.com/go-go-golems/tessa/pkg/travel/amadeus"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu      sync.Mutex
	queries []amadeus.FlightQuery
	records []amadeus.Record
}

func (p *fakeProvider) FlightOffers(_ context.Context, q amadeus.FlightQuery) ([]amadeus.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, q)
	return p.records, nil
}

func (p *fakeProvider) HotelsByCity(context.Context, string) ([]amadeus.Record, error) {
	return []amadeus.Record{{"hotelId": "HLCOK001"}}, nil
}

func (p *fakeProvider) HotelsByGeocode(context.Context, amadeus.GeoQuery) ([]amadeus.Record, error) {
	return nil, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) PublishEvent(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type())
	}
	return out
}

var fixedNow = func() time.Time { return time.Date(2025, 7, 20, 9, 30, 0, 0, time.UTC) }

func newTravelRegistry(t *testing.T, p travel.Provider) *tools.InMemoryToolRegistry {
	t.Helper()
	reg := tools.NewInMemoryToolRegistry()
	require.NoError(t, travel.RegisterTools(reg, travel.NewGateway(p, nil), fixedNow))
	return reg
}

func call(id, name, args string) conversation.ToolCall {
	return conversation.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// scriptedWorker returns replies in order, one per invocation.
func scriptedWorker(replies ...*conversation.AssistantMessage) (engine.Model, *int) {
	n := 0
	return engine.ModelFunc(func(context.Context, string, []conversation.Message) (*conversation.AssistantMessage, error) {
		if n >= len(replies) {
			return nil, errors.New("unexpected worker call")
		}
		r := replies[n]
		n++
		return r, nil
	}), &n
}

func echoSupervisor(seen *[]conversation.Message) engine.Model {
	return engine.ModelFunc(func(_ context.Context, _ string, history []conversation.Message) (*conversation.AssistantMessage, error) {
		if seen != nil {
			*seen = history
		}
		return conversation.NewAssistantMessage("summary"), nil
	})
}

func TestLoop_OneResultPerToolCallInOrder(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker, _ := scriptedWorker(conversation.NewAssistantMessage("",
		call("c1", "get_current_date", `{}`),
		call("c2", "search_hotels_by_city", `{"city_code":"COK"}`),
		call("c3", "get_current_date", `{}`),
	))
	var seen []conversation.Message
	loop := New(WithWorker(worker), WithSupervisor(echoSupervisor(&seen)), WithRegistry(reg), WithClock(fixedNow))

	history := []conversation.Message{conversation.NewUserMessage("what day is it and any hotels in Kochi?")}
	res, err := loop.Run(context.Background(), history)
	require.NoError(t, err)

	require.Len(t, res.Messages, 6)
	for i, id := range []string{"c1", "c2", "c3"} {
		tr, ok := res.Messages[2+i].(*conversation.ToolResultMessage)
		require.True(t, ok)
		assert.Equal(t, id, tr.ToolCallID)
	}
	assert.Equal(t, "2025-07-20", res.Messages[2].(*conversation.ToolResultMessage).Payload)
	assert.Equal(t, "summary", res.Final().Text)
	assert.Len(t, seen, 5)
	assert.NoError(t, conversation.Validate(res.Messages))

	assert.Equal(t, []Transition{
		{From: StateDeciding, To: StateActing},
		{From: StateActing, To: StateSummarizing},
		{From: StateSummarizing, To: StateDone},
	}, res.Transitions)
}

func TestLoop_NoToolCallsSkipsActing(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker, _ := scriptedWorker(conversation.NewAssistantMessage("Hello there"))
	loop := New(WithWorker(worker), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg))

	res, err := loop.Run(context.Background(), []conversation.Message{conversation.NewUserMessage("hi")})
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, []Transition{
		{From: StateDeciding, To: StateSummarizing},
		{From: StateSummarizing, To: StateDone},
	}, res.Transitions)
}

func TestLoop_DoesNotMutateHistory(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker := engine.ModelFunc(func(_ context.Context, _ string, h []conversation.Message) (*conversation.AssistantMessage, error) {
		// a misbehaving model that scribbles over its input
		if u, ok := h[0].(*conversation.UserMessage); ok {
			u.Text = "changed"
		}
		return conversation.NewAssistantMessage("", call("c1", "get_current_date", `{}`)), nil
	})
	loop := New(WithWorker(worker), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg), WithClock(fixedNow))

	history := []conversation.Message{conversation.NewUserMessage("today?")}
	first, err := loop.Run(context.Background(), history)
	require.NoError(t, err)
	second, err := loop.Run(context.Background(), history)
	require.NoError(t, err)

	assert.Equal(t, "today?", history[0].(*conversation.UserMessage).Text)
	assert.Len(t, history, 1)
	assert.Equal(t, "today?", first.Messages[0].(*conversation.UserMessage).Text)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, first.Transitions, second.Transitions)
}

func TestLoop_FlightSearchReachesSupervisor(t *testing.T) {
	p := &fakeProvider{records: []amadeus.Record{{"id": "1"}, {"id": "2"}, {"id": "3"}}}
	reg := newTravelRegistry(t, p)
	worker, _ := scriptedWorker(conversation.NewAssistantMessage("", call("c1", "search_flights",
		`{"origin":"BLR","destination":"COK","departure_date":"2025-07-25"}`)))
	var seen []conversation.Message
	loop := New(WithWorker(worker), WithSupervisor(echoSupervisor(&seen)), WithRegistry(reg))

	res, err := loop.Run(context.Background(), []conversation.Message{conversation.NewUserMessage("flights BLR to COK on 25 July")})
	require.NoError(t, err)

	require.Len(t, p.queries, 1)
	q := p.queries[0]
	assert.Equal(t, "BLR", q.Origin)
	assert.Equal(t, "COK", q.Destination)
	assert.Equal(t, 1, q.Adults)
	assert.Equal(t, 0, q.Children)
	assert.True(t, q.NonStop)
	assert.Equal(t, 10, q.Max)

	tr := seen[2].(*conversation.ToolResultMessage)
	assert.Equal(t, p.records, tr.Payload)
	assert.Equal(t, "summary", res.Final().Text)
}

func TestLoop_InvalidArgumentsStillReachDone(t *testing.T) {
	p := &fakeProvider{}
	reg := newTravelRegistry(t, p)
	worker, _ := scriptedWorker(conversation.NewAssistantMessage("", call("c1", "search_flights",
		`{"origin":"BLR","departure_date":"2025-07-25"}`)))
	loop := New(WithWorker(worker), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg))

	res, err := loop.Run(context.Background(), []conversation.Message{conversation.NewUserMessage("flights from BLR")})
	require.NoError(t, err)
	assert.Empty(t, p.queries)

	tr := res.Messages[2].(*conversation.ToolResultMessage)
	payload, ok := tr.Payload.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(payload, "Error: invalid arguments for tool search_flights"), payload)
	assert.Contains(t, payload, "destination")
	assert.Equal(t, StateDone, res.Transitions[len(res.Transitions)-1].To)
}

func TestLoop_WorkerFailureIsFatal(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker := engine.ModelFunc(func(context.Context, string, []conversation.Message) (*conversation.AssistantMessage, error) {
		return nil, errors.New("quota exhausted")
	})
	supervisorCalled := false
	supervisor := engine.ModelFunc(func(context.Context, string, []conversation.Message) (*conversation.AssistantMessage, error) {
		supervisorCalled = true
		return conversation.NewAssistantMessage("x"), nil
	})
	sink := &recordingSink{}
	ctx := events.WithEventSinks(context.Background(), sink)

	_, err := New(WithWorker(worker), WithSupervisor(supervisor), WithRegistry(reg)).
		Run(ctx, []conversation.Message{conversation.NewUserMessage("hi")})
	require.Error(t, err)

	var mie *engine.ModelInvocationError
	require.True(t, errors.As(err, &mie))
	assert.Equal(t, engine.RoleWorker, mie.Role)
	assert.Contains(t, err.Error(), "quota exhausted")
	assert.False(t, supervisorCalled)
	assert.Equal(t, []events.EventType{events.EventTypeError}, sink.types())
}

func TestLoop_SupervisorFailureIsFatal(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker, _ := scriptedWorker(conversation.NewAssistantMessage("", call("c1", "get_current_date", `{}`)))
	supervisor := engine.ModelFunc(func(context.Context, string, []conversation.Message) (*conversation.AssistantMessage, error) {
		return nil, errors.New("503")
	})

	_, err := New(WithWorker(worker), WithSupervisor(supervisor), WithRegistry(reg)).
		Run(context.Background(), []conversation.Message{conversation.NewUserMessage("today?")})
	var mie *engine.ModelInvocationError
	require.True(t, errors.As(err, &mie))
	assert.Equal(t, engine.RoleSupervisor, mie.Role)
}

func TestLoop_ModelTimeout(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker := engine.ModelFunc(func(ctx context.Context, _ string, _ []conversation.Message) (*conversation.AssistantMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	loop := New(
		WithWorker(worker),
		WithSupervisor(echoSupervisor(nil)),
		WithRegistry(reg),
		WithLoopConfig(DefaultLoopConfig().WithModelTimeout(20*time.Millisecond)),
	)

	_, err := loop.Run(context.Background(), []conversation.Message{conversation.NewUserMessage("hi")})
	var mie *engine.ModelInvocationError
	require.True(t, errors.As(err, &mie))
	assert.Equal(t, engine.RoleWorker, mie.Role)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLoop_NilReplyIsModelError(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker := engine.ModelFunc(func(context.Context, string, []conversation.Message) (*conversation.AssistantMessage, error) {
		return nil, nil
	})
	_, err := New(WithWorker(worker), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg)).
		Run(context.Background(), []conversation.Message{conversation.NewUserMessage("hi")})
	var mie *engine.ModelInvocationError
	require.True(t, errors.As(err, &mie))
}

func TestLoop_SupervisorToolCallsAreDiscarded(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker, calls := scriptedWorker(conversation.NewAssistantMessage("nothing to do"))
	supervisor := engine.ModelFunc(func(context.Context, string, []conversation.Message) (*conversation.AssistantMessage, error) {
		return conversation.NewAssistantMessage("final", call("s1", "get_current_date", `{}`)), nil
	})

	res, err := New(WithWorker(worker), WithSupervisor(supervisor), WithRegistry(reg)).
		Run(context.Background(), []conversation.Message{conversation.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, "final", res.Final().Text)
	assert.Empty(t, res.Final().ToolCalls)
}

func TestLoop_PromptsAreRendered(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	var workerPrompt, supervisorPrompt string
	worker := engine.ModelFunc(func(_ context.Context, p string, _ []conversation.Message) (*conversation.AssistantMessage, error) {
		workerPrompt = p
		return conversation.NewAssistantMessage("ok"), nil
	})
	supervisor := engine.ModelFunc(func(_ context.Context, p string, _ []conversation.Message) (*conversation.AssistantMessage, error) {
		supervisorPrompt = p
		return conversation.NewAssistantMessage("done"), nil
	})
	cfg := DefaultLoopConfig().WithWorkerPrompt(`Today is {{ .Today }}. Tools: {{ join ", " .Tools }}.`)

	_, err := New(WithWorker(worker), WithSupervisor(supervisor), WithRegistry(reg), WithClock(fixedNow), WithLoopConfig(cfg)).
		Run(context.Background(), []conversation.Message{conversation.NewUserMessage("hi")})
	require.NoError(t, err)

	assert.Equal(t, "Today is 2025-07-20. Tools: get_current_date, search_flights, search_hotels_by_city, search_hotels_by_area.", workerPrompt)
	assert.Contains(t, supervisorPrompt, "top 5")
}

func TestLoop_BadPromptTemplate(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	cfg := DefaultLoopConfig().WithWorkerPrompt(`{{ .Missing }}`)
	_, err := New(WithWorker(echoSupervisor(nil)), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg), WithLoopConfig(cfg)).
		Run(context.Background(), []conversation.Message{conversation.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker prompt")
}

func TestLoop_RejectsInvalidHistory(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	history := []conversation.Message{
		conversation.NewUserMessage("hi"),
		conversation.NewToolResultMessage(conversation.ToolCall{ID: "orphan"}, "x"),
	}
	_, err := New(WithWorker(echoSupervisor(nil)), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg)).
		Run(context.Background(), history)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid history")
}

func TestLoop_MissingDependencies(t *testing.T) {
	_, err := New().Run(context.Background(), nil)
	assert.Error(t, err)
	_, err = New(WithWorker(echoSupervisor(nil))).Run(context.Background(), nil)
	assert.Error(t, err)
	_, err = New(WithWorker(echoSupervisor(nil)), WithSupervisor(echoSupervisor(nil))).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestLoop_PublishesEventsAndSnapshots(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker, _ := scriptedWorker(conversation.NewAssistantMessage("", call("c1", "get_current_date", `{}`)))
	sink := &recordingSink{}
	var states []State
	var sizes []int
	hook := func(_ context.Context, s State, msgs []conversation.Message) {
		states = append(states, s)
		sizes = append(sizes, len(msgs))
	}
	ctx := events.WithEventSinks(context.Background(), sink)
	ctx = WithSnapshotHookContext(ctx, hook)

	_, err := New(WithWorker(worker), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg), WithClock(fixedNow)).
		Run(ctx, []conversation.Message{conversation.NewUserMessage("today?")})
	require.NoError(t, err)

	assert.Equal(t, []State{StateDeciding, StateActing, StateSummarizing, StateDone}, states)
	assert.Equal(t, []int{1, 2, 3, 4}, sizes)
	assert.Equal(t, []events.EventType{
		events.EventTypeStateTransition,
		events.EventTypeToolCallExecute,
		events.EventTypeToolCallResult,
		events.EventTypeStateTransition,
		events.EventTypeStateTransition,
		events.EventTypeFinal,
	}, sink.types())
}

func TestLoop_SessionIntegration(t *testing.T) {
	reg := newTravelRegistry(t, &fakeProvider{})
	worker, _ := scriptedWorker(conversation.NewAssistantMessage("", call("c1", "get_current_date", `{}`)))
	loop := New(WithWorker(worker), WithSupervisor(echoSupervisor(nil)), WithRegistry(reg), WithClock(fixedNow))

	s := session.NewSession(conversation.NewAssistantMessage("Hi! How can I help you with your travel plans today?"))
	final, err := s.Ask(context.Background(), loop, "what is the date?")
	require.NoError(t, err)
	assert.Equal(t, "summary", final.Text)
	require.Equal(t, 3, s.Len())
	_, isUser := s.Snapshot()[1].(*conversation.UserMessage)
	assert.True(t, isUser)

	failing := New(
		WithWorker(engine.ModelFunc(func(context.Context, string, []conversation.Message) (*conversation.AssistantMessage, error) {
			return nil, errors.New("down")
		})),
		WithSupervisor(echoSupervisor(nil)),
		WithRegistry(reg),
	)
	_, err = s.Ask(context.Background(), failing, "again")
	require.Error(t, err)
	assert.Equal(t, 3, s.Len())
}
