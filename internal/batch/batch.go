// Package batch runs work in small sequential clusters with bounded fan-out
// inside each cluster. Every item is settled: one failure never cancels its
// siblings or later clusters.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultSize is the cluster size used when a non-positive size is given.
const DefaultSize = 5

// Outcome pairs an item with the error its handler returned.
type Outcome[T any] struct {
	Item T
	Err  error
}

// Cluster splits items into contiguous groups of at most size.
func Cluster[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultSize
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end])
	}
	return groups
}

// Settle runs fn for every item. Clusters run one after another; items in a
// cluster run concurrently. Outcomes are returned in input order. Panics in fn
// are converted to errors.
func Settle[T any](ctx context.Context, items []T, size int, fn func(context.Context, T) error) []Outcome[T] {
	outcomes := make([]Outcome[T], len(items))
	offset := 0
	for _, group := range Cluster(items, size) {
		var g errgroup.Group
		for i, item := range group {
			idx := offset + i
			outcomes[idx].Item = item
			g.Go(func() error {
				outcomes[idx].Err = call(ctx, item, fn)
				return nil
			})
		}
		_ = g.Wait()
		offset += len(group)
	}
	return outcomes
}

func call[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
