// Package processor defines the post-commit hook the ledger runtime feeds.
//
// Every finished transaction, committed or aborted, is handed to the ledger's
// processors in submission order. The storage journal and the pool metrics
// reporter are processors; Chain and Conditional compose them.
package processor

import (
	"context"
	"errors"

	"github.com/lugondev/go-vaultswap/internal/metrics"
)

// Processor handles one item of type T and may record metrics while doing so.
type Processor[T any] interface {
	Process(ctx context.Context, data T, metrics *metrics.Collection) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc[T any] func(ctx context.Context, data T, metrics *metrics.Collection) error

// Process implements the Processor interface.
func (f ProcessorFunc[T]) Process(ctx context.Context, data T, metrics *metrics.Collection) error {
	return f(ctx, data, metrics)
}

// Chain runs processors in order. A failing processor does not keep the
// later ones from seeing the item; all errors are returned joined.
type Chain[T any] struct {
	processors []Processor[T]
}

// NewChain creates a chain of processors.
func NewChain[T any](processors ...Processor[T]) *Chain[T] {
	return &Chain[T]{processors: processors}
}

// Add appends p to the chain.
func (c *Chain[T]) Add(p Processor[T]) *Chain[T] {
	c.processors = append(c.processors, p)
	return c
}

// Len returns the number of chained processors.
func (c *Chain[T]) Len() int {
	return len(c.processors)
}

func (c *Chain[T]) Process(ctx context.Context, data T, metrics *metrics.Collection) error {
	var errs []error
	for _, p := range c.processors {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := p.Process(ctx, data, metrics); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Conditional forwards only the items match accepts.
type Conditional[T any] struct {
	processor Processor[T]
	match     func(T) bool
}

// When wraps p so it only sees items for which match returns true.
func When[T any](match func(T) bool, p Processor[T]) *Conditional[T] {
	return &Conditional[T]{processor: p, match: match}
}

func (c *Conditional[T]) Process(ctx context.Context, data T, metrics *metrics.Collection) error {
	if !c.match(data) {
		return nil
	}
	return c.processor.Process(ctx, data, metrics)
}
