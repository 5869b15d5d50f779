package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work bound to a context.
type Task func(ctx context.Context) error

// Run starts every task in its own goroutine. Tasks share a context that is
// cancelled as soon as one of them fails or parent is done. It waits for all
// tasks and returns the first error encountered.
func Run(parent context.Context, tasks ...Task) error {
	g, ctx := errgroup.WithContext(parent)
	for _, task := range tasks {
		if task == nil {
			continue
		}
		g.Go(func() error {
			return task(ctx)
		})
	}
	return g.Wait()
}

// Each runs action for every element concurrently and returns the first error.
func Each[T any](items []T, action func(T) error) error {
	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			return action(item)
		})
	}
	return g.Wait()
}
