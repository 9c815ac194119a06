package keysafe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Store keeps codec-encoded values in a Backend, one entry per key. It holds
// no copy of any value: every call is a round trip to the backend.
type Store struct {
	backend Backend
	codec   Codec
	class   Class
	access  AccessPolicy
	log     zerolog.Logger
	metrics *Metrics
	locks   *keyLocks
}

func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		codec:   JSONCodec{},
		class:   ClassGenericPassword,
		access:  DefaultAccessPolicy,
		log:     zerolog.Nop(),
		locks:   newKeyLocks(),
	}
}

func (s *Store) WithCodec(codec Codec) *Store {
	s.codec = codec
	return s
}

// WithClass scopes the store, and Clear, to class.
func (s *Store) WithClass(class Class) *Store {
	s.class = class
	return s
}

func (s *Store) WithAccessPolicy(access AccessPolicy) *Store {
	s.access = access
	return s
}

func (s *Store) WithLogger(log zerolog.Logger) *Store {
	s.log = log.With().Str("component", "keysafe").Logger()
	return s
}

func (s *Store) WithMetrics(metrics *Metrics) *Store {
	s.metrics = metrics
	return s
}

func (s *Store) Class() Class { return s.class }

func (s *Store) Codec() Codec { return s.codec }

// Clear deletes every entry of the store's class, including entries this
// process never wrote. An empty store clears successfully.
func (s *Store) Clear(ctx context.Context) (err error) {
	defer s.observe("clear", time.Now(), &err)

	if err := s.backend.DeleteByClass(ctx, s.class); err != nil {
		s.log.Error().Err(err).Str("class", string(s.class)).Str("op", "clear").Msg("bulk delete failed")
		return opError("clear", "", ErrBulkDeleteFailed, err)
	}

	s.log.Debug().Str("class", string(s.class)).Str("op", "clear").Msg("class cleared")
	return nil
}

// Close releases the backend when it holds connections.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, value any) (err error) {
	defer s.observe("set", time.Now(), &err)

	if key == "" {
		return opError("set", key, ErrEmptyKey, nil)
	}

	data, err := s.codec.Marshal(value)
	if err != nil {
		return opError("set", key, ErrEncodeFailed, err)
	}

	if err := s.replace(ctx, key, data); err != nil {
		s.log.Error().Err(err).Str("class", string(s.class)).Str("op", "set").Str("key", key).Msg("write failed")
		return opError("set", key, ErrWriteFailed, err)
	}

	s.log.Debug().Str("class", string(s.class)).Str("op", "set").Str("key", key).Int("size", len(data)).Msg("entry stored")
	return nil
}

// replace swaps the entry under key for a new one. Without a native upsert it
// deletes then inserts under a per-key lock; if the insert then fails the
// previous entry is already gone.
func (s *Store) replace(ctx context.Context, key string, data []byte) error {
	item := Item{
		Class:   s.class,
		Account: key,
		Data:    data,
		Access:  s.access,
	}

	if upserter, ok := s.backend.(Upserter); ok {
		return upserter.Upsert(ctx, item)
	}

	unlock := s.locks.lock(key)
	defer unlock()

	if err := s.delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("could not delete previous entry: %w", err)
	}

	if err := s.backend.Insert(ctx, item); err != nil {
		s.log.Warn().Str("class", string(s.class)).Str("key", key).Msg("insert failed after delete, key left empty")
		return fmt.Errorf("could not insert entry: %w", err)
	}

	return nil
}

func (s *Store) get(ctx context.Context, key string, target any) (found bool, err error) {
	defer s.observe("get", time.Now(), &err)

	if key == "" {
		return false, opError("get", key, ErrEmptyKey, nil)
	}

	data, err := s.backend.Query(ctx, s.class, key)
	if errors.Is(err, ErrNotFound) {
		s.log.Debug().Str("class", string(s.class)).Str("op", "get").Str("key", key).Msg("entry not found")
		return false, nil
	}
	if err != nil {
		s.log.Error().Err(err).Str("class", string(s.class)).Str("op", "get").Str("key", key).Msg("read failed")
		return false, opError("get", key, ErrReadFailed, err)
	}

	if err := s.codec.Unmarshal(data, target); err != nil {
		s.log.Warn().Err(err).Str("class", string(s.class)).Str("op", "get").Str("key", key).Msg("stored entry could not be decoded")
		return false, opError("get", key, ErrDecodeFailed, err)
	}

	return true, nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	return s.backend.DeleteByAccount(ctx, s.class, key)
}

func (s *Store) observe(op string, start time.Time, err *error) {
	s.metrics.observe(op, start, *err)
}
