package events

import (
	"context"

	"github.com/go-go-golems/tessa/pkg/inference/session"
	"github.com/rs/zerolog/log"
)

// EventSink receives events published during a turn.
type EventSink interface {
	PublishEvent(event Event) error
}

// ctxKey is an unexported type for keys defined in this package.
type ctxKey int

const (
	ctxKeyEventSinks ctxKey = iota
)

// WithEventSinks attaches one or more EventSink instances to the context.
// Downstream code can retrieve the sinks and publish events without
// requiring access to loop configuration.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := GetEventSinks(ctx)
	combined := append([]EventSink{}, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeyEventSinks, combined)
}

// GetEventSinks returns the list of EventSinks attached to the context.
func GetEventSinks(ctx context.Context) []EventSink {
	if v := ctx.Value(ctxKeyEventSinks); v != nil {
		if sinks, ok := v.([]EventSink); ok {
			return sinks
		}
	}
	return nil
}

// MetadataFromContext builds event metadata from the session and turn
// identifiers stored in ctx.
func MetadataFromContext(ctx context.Context) EventMetadata {
	return NewEventMetadata(session.SessionIDFromContext(ctx), session.TurnIDFromContext(ctx))
}

// PublishEventToContext publishes the provided event to all EventSinks stored in the context.
// If no sinks are present, this is a no-op.
func PublishEventToContext(ctx context.Context, event Event) {
	sinks := GetEventSinks(ctx)
	if len(sinks) == 0 {
		log.Trace().Str("component", "events.context").Str("event_type", string(event.Type())).Msg("PublishEventToContext: no sinks in context")
		return
	}
	for _, sink := range sinks {
		// sink errors are logged by the sink and never interrupt the turn
		_ = sink.PublishEvent(event)
	}
}
