// Package invocation threads a per-operation correlation id through a call
// chain. The id lives in a context.Context, so every goroutine handed a
// context sees a snapshot of the id at hand-off time.
package invocation

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Prefix starts every non-empty invocation id.
const Prefix = "gccl-invocation-id/"

// idLength is the length of a canonical UUID string.
const idLength = 36

type contextKey struct{}

// Begin returns a copy of ctx carrying a freshly generated invocation id.
func Begin(ctx context.Context) context.Context {
	return With(ctx, Prefix+uuid.NewString())
}

// With returns a copy of ctx carrying id. An empty id clears the value.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// Current returns the invocation id carried by ctx, or "" if there is none.
func Current(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Clear returns a copy of ctx on which Current reports "".
func Clear(ctx context.Context) context.Context {
	return With(ctx, "")
}

// Detach returns a context that keeps the invocation id of ctx but none of its
// deadlines or cancellation, for work that outlives the request.
func Detach(ctx context.Context) context.Context {
	return With(context.Background(), Current(ctx))
}

// Go runs fn on a new goroutine with ctx. The goroutine observes the id ctx
// carried when Go was called; later Begin or Clear calls on either side do not
// reach the other.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	snapshot := With(ctx, Current(ctx))
	go fn(snapshot)
}

// Valid reports whether id is a well-formed, non-empty invocation id.
func Valid(id string) bool {
	if !strings.HasPrefix(id, Prefix) {
		return false
	}
	suffix := id[len(Prefix):]
	if len(suffix) != idLength {
		return false
	}
	_, err := uuid.Parse(suffix)
	return err == nil
}
