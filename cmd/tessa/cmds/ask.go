package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/tessa/pkg/inference/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const apology = "Assistant: Sorry, I ran into a problem answering that. Please try again."

// errTurnFailed is returned once the cause has been logged and the apology
// printed.
var errTurnFailed = errors.New("turn failed")

func NewAskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <query...>",
		Short: "Ask a single travel question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), viper.GetViper())
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			return app.Run(cmd.Context(), func(ctx context.Context) error {
				return ask(ctx, app, query, os.Stdout)
			})
		},
	}
}

func ask(ctx context.Context, app *App, query string, out io.Writer) error {
	s := session.NewSession()
	final, err := s.Ask(ctx, app.Loop, query)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error().Err(err).Str("session_id", s.ID).Msg("turn failed")
		if _, err := fmt.Fprintln(out, apology); err != nil {
			return err
		}
		return errTurnFailed
	}
	return NewPrinter(out).Print("Assistant:", final.Text)
}
