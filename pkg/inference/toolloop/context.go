package toolloop

import (
	"context"

	"github.com/go-go-golems/tessa/pkg/conversation"
)

// SnapshotHook observes the accumulated messages whenever the loop enters a
// state. It must not modify msgs.
type SnapshotHook func(ctx context.Context, state State, msgs []conversation.Message)

type snapshotHookKey struct{}

// WithSnapshotHookContext attaches a snapshot hook to the context.
func WithSnapshotHookContext(ctx context.Context, hook SnapshotHook) context.Context {
	if hook == nil {
		return ctx
	}
	return context.WithValue(ctx, snapshotHookKey{}, hook)
}

// SnapshotHookFromContext returns the snapshot hook attached to the context, if any.
func SnapshotHookFromContext(ctx context.Context) (SnapshotHook, bool) {
	v := ctx.Value(snapshotHookKey{})
	if v == nil {
		return nil, false
	}
	h, ok := v.(SnapshotHook)
	return h, ok && h != nil
}
