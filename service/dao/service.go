package dao

import (
	"context"
)

// Service is a generic keyed persistence contract. Implementations must be
// safe for concurrent use and must hand out copies, never shared pointers.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
