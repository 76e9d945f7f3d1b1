package session

import (
	"context"
	"errors"
	"sync"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNil           = errors.New("session is nil")
	ErrSessionRunnerNil     = errors.New("session runner is nil")
	ErrSessionAlreadyActive = errors.New("session already has an active turn")
	ErrSessionEmptyPrompt   = errors.New("user prompt is empty")
	ErrNoFinalMessage       = errors.New("turn did not end with a final assistant message")
)

// TurnRunner runs one turn over a history snapshot and returns the updated
// message sequence, whose last element is the final assistant message.
type TurnRunner interface {
	RunTurn(ctx context.Context, history []conversation.Message) ([]conversation.Message, error)
}

// Session is the conversation history of one user.
//
// It is append-only: entries are never mutated or removed. Snapshots are
// deep copies, so the orchestration loop cannot alias session state.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []conversation.Message
	active   bool
}

// NewSession constructs a Session with a generated ID, seeded with the
// given messages (e.g. a greeting).
func NewSession(seed ...conversation.Message) *Session {
	s := &Session{ID: uuid.NewString()}
	for _, m := range seed {
		s.Append(m)
	}
	return s
}

// Append appends a message to the session history.
func (s *Session) Append(m conversation.Message) {
	if s == nil || m == nil {
		return
	}
	s.mu.Lock()
	s.messages = append(s.messages, conversation.Clone(m))
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the history, oldest first.
func (s *Session) Snapshot() []conversation.Message {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return conversation.CloneAll(s.messages)
}

// WithUserMessage returns a snapshot with a new user message appended.
// The session itself is not modified.
func (s *Session) WithUserMessage(text string) []conversation.Message {
	return append(s.Snapshot(), conversation.NewUserMessage(text))
}

func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Last returns the most recent message, or nil for an empty session.
func (s *Session) Last() conversation.Message {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	return conversation.Clone(s.messages[len(s.messages)-1])
}

// Ask runs one turn for prompt and, on success, appends the user message and
// the final assistant message to the session. Tool calls and tool results of
// the turn stay out of the session. On failure nothing is appended.
func (s *Session) Ask(ctx context.Context, runner TurnRunner, prompt string) (*conversation.AssistantMessage, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	if runner == nil {
		return nil, ErrSessionRunnerNil
	}
	if prompt == "" {
		return nil, ErrSessionEmptyPrompt
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, ErrSessionAlreadyActive
	}
	s.active = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	user := conversation.NewUserMessage(prompt)
	history := append(s.Snapshot(), user)

	turnID := uuid.NewString()
	ctx = WithSessionMeta(ctx, s.ID, turnID)
	log.Debug().Str("session_id", s.ID).Str("turn_id", turnID).Int("history_len", len(history)).Msg("session: running turn")

	out, err := runner.RunTurn(ctx, history)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoFinalMessage
	}
	final, ok := out[len(out)-1].(*conversation.AssistantMessage)
	if !ok || final.HasPendingToolCalls() {
		return nil, ErrNoFinalMessage
	}

	s.Append(user)
	s.Append(final)
	return final, nil
}
