package keysafe

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyKey         = errors.New("key must not be empty")
	ErrEncodeFailed     = errors.New("encode failed")
	ErrDecodeFailed     = errors.New("decode failed")
	ErrWriteFailed      = errors.New("store write failed")
	ErrReadFailed       = errors.New("store read failed")
	ErrBulkDeleteFailed = errors.New("bulk delete failed")
)

// OpError describes a failed Store operation. It matches both its Kind and
// the underlying cause with errors.Is.
type OpError struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, key string, kind, err error) error {
	return &OpError{Op: op, Key: key, Kind: kind, Err: err}
}
