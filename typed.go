package keysafe

import "context"

// Set stores value under key, replacing any previous entry.
func Set[T any](ctx context.Context, s *Store, key string, value T) error {
	return s.set(ctx, key, value)
}

// Get reads the entry under key as a T. A missing entry is reported as
// found == false with a nil error; a blob that does not decode as T is an
// error matching ErrDecodeFailed.
func Get[T any](ctx context.Context, s *Store, key string) (value T, found bool, err error) {
	found, err = s.get(ctx, key, &value)
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return value, true, nil
}

// Typed binds a Store to one value type.
type Typed[T any] struct {
	store *Store
}

func NewTyped[T any](store *Store) *Typed[T] {
	return &Typed[T]{store: store}
}

func (t *Typed[T]) Set(ctx context.Context, key string, value T) error {
	return Set(ctx, t.store, key, value)
}

func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	return Get[T](ctx, t.store, key)
}

func (t *Typed[T]) Clear(ctx context.Context) error {
	return t.store.Clear(ctx)
}
