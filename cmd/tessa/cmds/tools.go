package cmds

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ToolsCommand emits one row per registered tool.
type ToolsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ToolsCommand)(nil)

func NewToolsCommand() (*ToolsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create Glazed parameter layer")
	}

	return &ToolsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"tools",
			cmds.WithShort("List the tools available to the assistant"),
			cmds.WithLong("Lists every registered tool with its description, required arguments and JSON parameter schema. Use --output json or --output yaml for the full schema."),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

// NewToolsCobraCommand wraps the tools command for the root command.
func NewToolsCobraCommand() (*cobra.Command, error) {
	toolsCmd, err := NewToolsCommand()
	if err != nil {
		return nil, err
	}
	return cli.BuildCobraCommandFromGlazeCommand(toolsCmd)
}

func (c *ToolsCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	registry, err := NewRegistry(ctx, viper.GetViper())
	if err != nil {
		return err
	}
	return addToolRows(ctx, gp, registry.ListTools())
}

func addToolRows(ctx context.Context, gp middlewares.Processor, defs []tools.ToolDefinition) error {
	for _, def := range defs {
		var params map[string]interface{}
		var required []string
		if def.Parameters != nil {
			b, err := json.Marshal(def.Parameters)
			if err != nil {
				return errors.Wrapf(err, "marshal schema of %s", def.Name)
			}
			if err := json.Unmarshal(b, &params); err != nil {
				return errors.Wrapf(err, "decode schema of %s", def.Name)
			}
			required = def.Parameters.Required
		}

		row := types.NewRow(
			types.MRP("name", def.Name),
			types.MRP("description", def.Description),
			types.MRP("required", strings.Join(required, ",")),
			types.MRP("parameters", params),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return errors.Wrapf(err, "add row for %s", def.Name)
		}
	}
	return nil
}
