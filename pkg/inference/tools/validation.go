package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError reports tool arguments that do not satisfy the tool's
// parameter schema. The implementation is never reached when it is returned.
type ValidationError struct {
	Tool   string `json:"tool"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for tool %s: %s: %s", e.Tool, e.Field, e.Reason)
}

// ErrorPayload renders a failed invocation as the string handed back to the
// model in place of a result.
func ErrorPayload(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}

// prepareArguments turns raw model arguments into the JSON document that is
// decoded into the tool's input struct: nulls and unknown keys are dropped,
// unambiguous scalar mismatches are coerced and the result is validated.
func (d *ToolDefinition) prepareArguments(args json.RawMessage) ([]byte, error) {
	obj, err := decodeObject(args)
	if err != nil {
		return nil, &ValidationError{Tool: d.Name, Reason: err.Error()}
	}

	props := d.Parameters.Properties
	for key, value := range obj {
		var prop *jsonschema.Schema
		if props != nil {
			prop, _ = props.Get(key)
		}
		switch {
		case prop == nil:
			log.Debug().Str("tool", d.Name).Str("field", key).Msg("dropping unknown argument")
			delete(obj, key)
		case value == nil:
			log.Debug().Str("tool", d.Name).Str("field", key).Msg("dropping null argument")
			delete(obj, key)
		default:
			obj[key] = coerce(prop.Type, value)
		}
	}

	if d.Function.validator != nil {
		result, err := d.Function.validator.Validate(gojsonschema.NewGoLoader(obj))
		if err != nil {
			return nil, &ValidationError{Tool: d.Name, Reason: err.Error()}
		}
		if !result.Valid() {
			return nil, validationErrorFromResult(d.Name, result.Errors())
		}
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "tool %s: encode arguments", d.Name)
	}
	return b, nil
}

func decodeObject(args json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, errors.Wrap(err, "arguments are not valid JSON")
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("arguments must be a JSON object, got %T", v)
	}
	return obj, nil
}

// coerce converts a value to the schema type when the conversion is
// lossless. Anything else is left for the validator to reject. Integer
// strings are read as plain decimal: "010" is 10 and "0x2" is not a number.
func coerce(schemaType string, value interface{}) interface{} {
	switch schemaType {
	case "integer":
		if s, ok := value.(string); ok {
			if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return i
			}
		}
	case "number":
		if s, ok := value.(string); ok {
			if f, err := cast.ToFloat64E(strings.TrimSpace(s)); err == nil {
				return f
			}
		}
	case "boolean":
		if s, ok := value.(string); ok {
			if b, err := cast.ToBoolE(strings.TrimSpace(s)); err == nil {
				return b
			}
		}
	case "string":
		switch value.(type) {
		case float64, bool:
			if s, err := cast.ToStringE(value); err == nil {
				return s
			}
		}
	}
	return value
}

func validationErrorFromResult(tool string, errs []gojsonschema.ResultError) *ValidationError {
	if len(errs) == 0 {
		return &ValidationError{Tool: tool, Reason: "arguments do not match schema"}
	}
	first := errs[0]
	field := first.Field()
	if first.Type() == "required" {
		if p, ok := first.Details()["property"].(string); ok {
			field = p
		}
	}
	if field == "(root)" {
		field = ""
	}
	reasons := make([]string, 0, len(errs))
	for _, e := range errs {
		reasons = append(reasons, e.String())
	}
	log.Debug().Str("tool", tool).Strs("errors", reasons).Msg("tool arguments failed validation")
	return &ValidationError{Tool: tool, Field: field, Reason: first.Description()}
}
