package keysafe

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func testMasterKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealedBackend_Contract(t *testing.T) {
	sealed, err := NewSealedBackend(NewMemoryBackend(), testMasterKey())
	if err != nil {
		t.Fatalf("NewSealedBackend: %v", err)
	}
	backendContract(t, sealed)
}

func TestSealedBackend_EncryptsData(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	sealed, err := NewSealedBackend(inner, testMasterKey())
	if err != nil {
		t.Fatalf("NewSealedBackend: %v", err)
	}

	plaintext := []byte("correct horse battery staple")
	if err := sealed.Insert(ctx, Item{Class: ClassGenericPassword, Account: "k", Data: plaintext}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	raw, err := inner.Query(ctx, ClassGenericPassword, "k")
	if err != nil {
		t.Fatalf("inner Query: %v", err)
	}
	if bytes.Contains(raw, plaintext) {
		t.Fatal("plaintext found in the wrapped backend")
	}
	if raw[0] != sealVersion {
		t.Fatalf("expected version byte %d, got %d", sealVersion, raw[0])
	}
}

func TestSealedBackend_MovedBlobDoesNotOpen(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	sealed, err := NewSealedBackend(inner, testMasterKey())
	if err != nil {
		t.Fatalf("NewSealedBackend: %v", err)
	}

	if err := sealed.Insert(ctx, Item{Class: ClassGenericPassword, Account: "alice", Data: []byte("a")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	raw, err := inner.Query(ctx, ClassGenericPassword, "alice")
	if err != nil {
		t.Fatalf("inner Query: %v", err)
	}
	if err := inner.Insert(ctx, Item{Class: ClassGenericPassword, Account: "mallory", Data: raw}); err != nil {
		t.Fatalf("inner Insert: %v", err)
	}

	if _, err := sealed.Query(ctx, ClassGenericPassword, "mallory"); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("expected ErrSealBroken, got %v", err)
	}
}

func TestSealedBackend_WrongKey(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()

	sealed, err := NewSealedBackend(inner, testMasterKey())
	if err != nil {
		t.Fatalf("NewSealedBackend: %v", err)
	}
	if err := sealed.Insert(ctx, Item{Class: ClassGenericPassword, Account: "k", Data: []byte("a")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	other, err := NewSealedBackend(inner, bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("NewSealedBackend: %v", err)
	}
	if _, err := other.Query(ctx, ClassGenericPassword, "k"); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("expected ErrSealBroken, got %v", err)
	}

	store := NewStore(other)
	if _, _, err := Get[string](ctx, store, "k"); !errors.Is(err, ErrReadFailed) {
		t.Fatalf("expected ErrReadFailed through the store, got %v", err)
	}
}

func TestNewSealedBackend(t *testing.T) {
	if _, err := NewSealedBackend(NewMemoryBackend(), make([]byte, 16)); err == nil {
		t.Fatal("expected short master key to be rejected")
	}

	plain, err := NewSealedBackend(NewMemoryBackend(), testMasterKey())
	if err != nil {
		t.Fatalf("NewSealedBackend: %v", err)
	}
	if _, ok := plain.(Upserter); ok {
		t.Fatal("sealed memory backend must not advertise Upsert")
	}

	withUpsert, err := NewSealedBackend(&upsertBackend{MemoryBackend: NewMemoryBackend()}, testMasterKey())
	if err != nil {
		t.Fatalf("NewSealedBackend: %v", err)
	}
	if _, ok := withUpsert.(Upserter); !ok {
		t.Fatal("expected Upsert to be forwarded")
	}
	backendContract(t, withUpsert)
}
