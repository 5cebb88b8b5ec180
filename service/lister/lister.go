// Package lister defines the capability that inspects a bundle for its
// runnable task names.
package lister

import "context"

// Lister returns the task names contained in a bundle, failing with
// model.ErrCorruptArtifact when the bundle cannot be inspected.
type Lister interface {
	List(ctx context.Context, blob []byte) ([]string, error)
}

// Func adapts a function to Lister.
type Func func(ctx context.Context, blob []byte) ([]string, error)

// List calls f.
func (f Func) List(ctx context.Context, blob []byte) ([]string, error) {
	return f(ctx, blob)
}
