package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Registry holds the tools available to the worker model.
type Registry interface {
	RegisterTool(name string, def ToolDefinition) error
	GetTool(name string) (*ToolDefinition, error)
	// ListTools returns the definitions in registration order.
	ListTools() []ToolDefinition
	// Invoke validates args against the named tool's schema and runs it.
	Invoke(ctx context.Context, name string, args json.RawMessage) (interface{}, error)
}

// InMemoryToolRegistry is a thread-safe in-memory implementation of Registry.
type InMemoryToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
	order []string
}

func NewInMemoryToolRegistry() *InMemoryToolRegistry {
	return &InMemoryToolRegistry{
		tools: make(map[string]ToolDefinition),
	}
}

func (r *InMemoryToolRegistry) RegisterTool(name string, def ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Name != "" && def.Name != name {
		return fmt.Errorf("tool definition name (%s) does not match registry name (%s)", def.Name, name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	def.Name = name
	r.tools[name] = def
	r.order = append(r.order, name)
	return nil
}

func (r *InMemoryToolRegistry) GetTool(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, &ToolError{ToolName: name, Type: ToolErrorNotFound, Message: fmt.Sprintf("tool not found: %s", name)}
	}

	toolCopy := tool
	return &toolCopy, nil
}

func (r *InMemoryToolRegistry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

func (r *InMemoryToolRegistry) Invoke(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	def, err := r.GetTool(name)
	if err != nil {
		return nil, err
	}
	return def.Invoke(ctx, args)
}

var _ Registry = (*InMemoryToolRegistry)(nil)
