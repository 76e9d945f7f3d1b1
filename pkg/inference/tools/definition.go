package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/huandu/go-clone"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ToolDefinition represents a tool that can be called by the worker model.
type ToolDefinition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Parameters  *jsonschema.Schema `json:"parameters" yaml:"parameters"`
	Function    ToolFunc           `json:"-" yaml:"-"`
}

// ToolFunc is the typed implementation behind a ToolDefinition, together
// with the compiled validator for its arguments.
type ToolFunc struct {
	validator *gojsonschema.Schema
	call      func(ctx context.Context, args []byte) (interface{}, error)
}

// ToolError represents an error that occurred outside of argument
// validation: unknown tool, timeout, panic.
type ToolError struct {
	ToolName string `json:"tool_name"`
	ToolID   string `json:"tool_id,omitempty"`
	Type     string `json:"type"`
	Message  string `json:"message"`
}

const (
	ToolErrorNotFound   = "not_found"
	ToolErrorNotAllowed = "not_allowed"
	ToolErrorTimeout    = "timeout"
	ToolErrorCancelled  = "cancelled"
	ToolErrorExecution  = "execution"
)

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error [%s]: %s", e.Type, e.Message)
}

// NewTool creates a ToolDefinition from a typed function. The parameter
// schema is reflected from In; defaults holds the values used for optional
// fields the caller omits.
func NewTool[In any, Out any](
	name, description string,
	defaults In,
	fn func(context.Context, In) (Out, error),
) (*ToolDefinition, error) {
	if name == "" {
		return nil, errors.New("tool name cannot be empty")
	}
	if fn == nil {
		return nil, errors.Errorf("tool %s has no implementation", name)
	}

	inputType := reflect.TypeOf((*In)(nil)).Elem()
	if inputType.Kind() != reflect.Struct {
		return nil, errors.Errorf("tool %s: input must be a struct, got %s", name, inputType)
	}

	schema := reflectSchema(reflect.New(inputType).Elem().Interface())
	validator, err := compileSchema(schema)
	if err != nil {
		return nil, errors.Wrapf(err, "tool %s", name)
	}

	call := func(ctx context.Context, args []byte) (interface{}, error) {
		in := clone.Clone(defaults).(In)
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, &ValidationError{Tool: name, Reason: err.Error()}
		}
		return fn(ctx, in)
	}

	return &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Function: ToolFunc{
			validator: validator,
			call:      call,
		},
	}, nil
}

// Invoke validates args and, only if they are valid, runs the implementation.
func (d *ToolDefinition) Invoke(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if d.Function.call == nil {
		return nil, errors.Errorf("tool %s not properly initialized", d.Name)
	}
	prepared, err := d.prepareArguments(args)
	if err != nil {
		return nil, err
	}
	return d.Function.call(ctx, prepared)
}

func reflectSchema(v interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		Anonymous:                  true,
		AllowAdditionalProperties:  true,
	}
	schema := reflector.Reflect(v)

	// the validator only understands draft-07 and earlier
	schema.Version = ""
	schema.ID = ""
	if schema.Type == "" {
		schema.Type = "object"
	}
	if schema.Properties == nil {
		schema.Properties = jsonschema.NewProperties()
	}
	return schema
}

func compileSchema(schema *jsonschema.Schema) (*gojsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema")
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, errors.Wrap(err, "compile schema")
	}
	return compiled, nil
}
