package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// StepPrinterFunc returns a handler that prints loop progress to w:
// state transitions as one-liners, tool calls and results as YAML.
func StepPrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("printer", name).Msg("could not decode event")
			return nil
		}

		switch p_ := e.(type) {
		case *EventStateTransition:
			_, err = fmt.Fprintf(w, "[%s] %s -> %s\n", name, p_.From, p_.To)

		case *EventToolCallExecute:
			err = printYAML(w, "tool call", p_.ToolCall)

		case *EventToolCallResult:
			err = printYAML(w, "tool result", p_.ToolResult)

		case *EventError:
			_, err = fmt.Fprintf(w, "[%s] error: %s\n", name, p_.ErrorString)

		case *EventFinal:
		}

		return err
	}
}

func printYAML(w io.Writer, title string, v interface{}) error {
	v_, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "--- %s\n%s", title, v_)
	return err
}
