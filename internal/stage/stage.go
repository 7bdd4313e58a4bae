// Package stage defines the unit of work the pipeline runs and its two
// backing implementations: in-process functions and subprocess commands.
package stage

import (
	"context"
	"time"
)

// Stage is one step of the fixed pipeline. Run receives the previous stage's
// payload (nil for the first stage) and the time elapsed since the cycle began.
type Stage interface {
	Name() string
	Run(ctx context.Context, input any, elapsed time.Duration) (any, error)
}

// RunFunc is the signature of an in-process stage body.
type RunFunc func(ctx context.Context, input any, elapsed time.Duration) (any, error)

// Func adapts a RunFunc to the Stage interface.
type Func struct {
	name string
	fn   RunFunc
}

// NewFunc returns an in-process stage.
func NewFunc(name string, fn RunFunc) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Stage.
func (f *Func) Name() string { return f.name }

// Run implements Stage.
func (f *Func) Run(ctx context.Context, input any, elapsed time.Duration) (any, error) {
	return f.fn(ctx, input, elapsed)
}
