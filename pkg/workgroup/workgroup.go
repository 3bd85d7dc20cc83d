package workgroup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type workgroup struct {
	ctx   context.Context
	group *errgroup.Group
}

// WithContext creates a group whose workers share a context that is cancelled
// when the first worker returns an error.
func WithContext(ctx context.Context) *workgroup {
	group, gctx := errgroup.WithContext(ctx)
	return &workgroup{
		ctx:   gctx,
		group: group,
	}
}

func (g *workgroup) Work(fn func(context.Context) error) {
	g.group.Go(func() error {
		return fn(g.ctx)
	})
}

func (g *workgroup) Wait() error {
	return g.group.Wait()
}
