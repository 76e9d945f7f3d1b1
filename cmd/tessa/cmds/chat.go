package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/tessa/pkg/conversation"
	"github.com/go-go-golems/tessa/pkg/inference/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const exitCommand = "/exit"

// greeting opens every chat session and is part of the history the models see.
var greeting = conversation.NewAssistantMessage("Hi! How can I help you with your travel plans today?")

func NewChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the travel assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), viper.GetViper())
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), func(ctx context.Context) error {
				return chat(ctx, app, os.Stdin, os.Stdout)
			})
		},
	}
}

func chat(ctx context.Context, app *App, in io.Reader, out io.Writer) error {
	printer := NewPrinter(out)
	s := session.NewSession(greeting)
	if err := printer.Print("Assistant:", greeting.Text); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		if _, err := fmt.Fprint(out, "You: "); err != nil {
			return err
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == exitCommand:
			return nil
		}

		final, err := s.Ask(ctx, app.Loop, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("session_id", s.ID).Msg("turn failed")
			if _, err := fmt.Fprintln(out, apology); err != nil {
				return err
			}
			continue
		}
		if err := printer.Print("Assistant:", final.Text); err != nil {
			return err
		}
	}
}
