package engine

import (
	"context"
	"fmt"

	"github.com/go-go-golems/tessa/pkg/conversation"
)

// Role names which of the two model roles an invocation was made for.
type Role string

const (
	RoleWorker     Role = "worker"
	RoleSupervisor Role = "supervisor"
)

// Model is a chat model bound to a fixed configuration (and, for the
// worker, a fixed set of tools).
type Model interface {
	// Invoke sends the system instruction followed by history and returns the
	// model's reply. History is not modified.
	Invoke(ctx context.Context, systemInstruction string, history []conversation.Message) (*conversation.AssistantMessage, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, systemInstruction string, history []conversation.Message) (*conversation.AssistantMessage, error)

func (f ModelFunc) Invoke(ctx context.Context, systemInstruction string, history []conversation.Message) (*conversation.AssistantMessage, error) {
	return f(ctx, systemInstruction, history)
}

// ModelInvocationError is returned when the worker or supervisor model
// fails. It is fatal for the turn.
type ModelInvocationError struct {
	Role Role
	Err  error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("%s model invocation failed: %v", e.Role, e.Err)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}

// Cause lets github.com/pkg/errors.Cause see through the wrapper.
func (e *ModelInvocationError) Cause() error {
	return e.Err
}
