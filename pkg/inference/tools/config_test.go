package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolChoice(t *testing.T) {
	cases := map[string]ToolChoice{
		"":         ToolChoiceAuto,
		"auto":     ToolChoiceAuto,
		" None ":   ToolChoiceNone,
		"REQUIRED": ToolChoiceRequired,
	}
	for in, want := range cases {
		got, err := ParseToolChoice(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	_, err := ParseToolChoice("always")
	assert.Error(t, err)
}

func TestFilterToolsHonorsAllowList(t *testing.T) {
	defs := []ToolDefinition{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	cfg := DefaultToolConfig()
	assert.Len(t, cfg.FilterTools(defs), 3)

	cfg = cfg.WithAllowedTools([]string{"c", "a"})
	filtered := cfg.FilterTools(defs)
	require.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].Name)
	assert.Equal(t, "c", filtered[1].Name)
	assert.False(t, cfg.IsToolAllowed("b"))
}
