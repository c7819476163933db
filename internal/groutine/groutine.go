// Package groutine starts goroutines carrying a pprof label, so session
// read loops and exit watchers can be told apart in profiles and dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey struct{}

// Go runs fn on a new goroutine labelled name. A nil parent means
// context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}
	labels := pprof.Labels("goroutine", name)
	go pprof.Do(parent, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, ctxKey{}, name))
	})
}

// Name returns the label given to Go, or "" outside such a goroutine.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(ctxKey{}).(string)
	return name
}
