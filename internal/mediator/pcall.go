package mediator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// result is one replica's reply, tagged with the node that produced it.
type result[T any] struct {
	node  string
	value T
	err   error
}

// pcall implements the §4.5 parallel dispatch contract: invoke f on every
// replica concurrently, wait for every reply (g.Wait always drains the
// whole group -- f's own error is folded into the per-replica result, not
// returned to errgroup, so a single failing replica never cancels the
// others), and partition into Good/Bad. Grounded on the teacher's
// writeToReplicas/readFromReplicas errgroup fan-out.
func pcall[T any](ctx context.Context, replicas []string, f func(ctx context.Context, node string) (T, error)) (good, bad []result[T]) {
	results := make([]result[T], len(replicas))

	g, gctx := errgroup.WithContext(ctx)
	for i, node := range replicas {
		i, node := i, node
		g.Go(func() error {
			v, err := f(gctx, node)
			results[i] = result[T]{node: node, value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.err == nil {
			good = append(good, r)
		} else {
			bad = append(bad, r)
		}
	}
	return good, bad
}
