package safego

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// Execute runs fn in a new goroutine, recovering and logging any panic with its stack.
func Execute(ctx context.Context, logger domain.Logger, goroutineName string, fn func()) {
	go run(ctx, logger, goroutineName, fn)
}

// Group tracks goroutines started through it so shutdown can wait for them.
type Group struct {
	logger domain.Logger
	wg     sync.WaitGroup
}

func NewGroup(logger domain.Logger) *Group {
	return &Group{logger: logger}
}

// Go starts fn like Execute and registers it with the group.
func (g *Group) Go(ctx context.Context, goroutineName string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(ctx, g.logger, goroutineName, fn)
	}()
}

// Wait blocks until every goroutine started by Go has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

func run(ctx context.Context, logger domain.Logger, goroutineName string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logCtx := ctx
			if ctx.Err() != nil {
				logCtx = context.Background()
			}
			logger.Error(logCtx, fmt.Sprintf("Panic recovered in goroutine: %s", goroutineName),
				"panic_info", fmt.Sprintf("%v", r),
				"stacktrace", string(debug.Stack()),
			)
		}
	}()
	fn()
}
