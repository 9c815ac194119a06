package keysafe

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a Backend when no entry matches.
	ErrNotFound = errors.New("entry not found")

	// ErrDuplicate is returned by Backend.Insert when an entry already exists
	// for the same class and account.
	ErrDuplicate = errors.New("entry already exists")
)

// Class groups entries inside a backing store. Clear works on a whole class.
type Class string

const ClassGenericPassword Class = "generic-password"

// Item is one entry in a backing store.
type Item struct {
	Class   Class
	Account string
	Data    []byte
	Access  AccessPolicy
}

// Backend is the backing secure store. Implementations enforce at most one
// entry per (class, account).
type Backend interface {
	// Insert stores a new entry. It returns ErrDuplicate if one exists.
	Insert(ctx context.Context, item Item) error

	// Query returns the data of the entry, or ErrNotFound.
	Query(ctx context.Context, class Class, account string) ([]byte, error)

	// DeleteByAccount removes one entry, or returns ErrNotFound.
	DeleteByAccount(ctx context.Context, class Class, account string) error

	// DeleteByClass removes every entry of class. Nothing to delete is not an error.
	DeleteByClass(ctx context.Context, class Class) error
}

// Upserter is implemented by backends with a native insert-or-replace.
type Upserter interface {
	Upsert(ctx context.Context, item Item) error
}
