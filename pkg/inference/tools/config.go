package tools

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ToolConfig specifies how tool calls are executed during the ACTING step.
type ToolConfig struct {
	ToolChoice       ToolChoice    `json:"tool_choice" yaml:"tool_choice"`
	ExecutionTimeout time.Duration `json:"execution_timeout" yaml:"execution_timeout"`
	MaxParallelTools int           `json:"max_parallel_tools" yaml:"max_parallel_tools"`
	AllowedTools     []string      `json:"allowed_tools" yaml:"allowed_tools"`
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		ToolChoice:       ToolChoiceAuto,
		ExecutionTimeout: 30 * time.Second,
		MaxParallelTools: 3,
		AllowedTools:     nil, // nil means all tools are allowed
	}
}

func (tc ToolConfig) WithToolChoice(choice ToolChoice) ToolConfig {
	tc.ToolChoice = choice
	return tc
}

func (tc ToolConfig) WithExecutionTimeout(timeout time.Duration) ToolConfig {
	tc.ExecutionTimeout = timeout
	return tc
}

func (tc ToolConfig) WithMaxParallelTools(maxParallel int) ToolConfig {
	tc.MaxParallelTools = maxParallel
	return tc
}

func (tc ToolConfig) WithAllowedTools(toolNames []string) ToolConfig {
	tc.AllowedTools = toolNames
	return tc
}

// ToolChoice defines how the model should choose tools
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ParseToolChoice accepts auto, none or required, case-insensitively. An
// empty string means auto.
func ParseToolChoice(s string) (ToolChoice, error) {
	switch c := ToolChoice(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ToolChoiceAuto, nil
	case ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return c, nil
	default:
		return "", errors.Errorf("unknown tool choice %q (want auto, none or required)", s)
	}
}

func (tc *ToolConfig) IsToolAllowed(toolName string) bool {
	if tc.AllowedTools == nil {
		return true
	}

	for _, allowed := range tc.AllowedTools {
		if allowed == toolName {
			return true
		}
	}

	return false
}

// FilterTools returns only the tools that are allowed by this configuration
func (tc *ToolConfig) FilterTools(tools []ToolDefinition) []ToolDefinition {
	if tc.AllowedTools == nil {
		return tools
	}

	filtered := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		if tc.IsToolAllowed(tool.Name) {
			filtered = append(filtered, tool)
		}
	}

	return filtered
}
