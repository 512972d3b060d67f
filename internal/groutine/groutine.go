// Package groutine starts named goroutines so long-lived background work
// (connection watchers, dispatchers) shows up labeled in pprof profiles.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts a goroutine labeled with name. A nil parent context falls back
// to context.Background().
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	go pprof.Do(parentCtx, pprof.Labels("goroutine_name", name), fn)
}
