package keysafe

import (
	"context"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringBackend_Contract(t *testing.T) {
	keyring.MockInit()

	backendContract(t, NewKeyringBackend("keysafe-test"))
}

func TestKeyringBackend_ServicePerClass(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	backend := NewKeyringBackend("app")
	item := Item{Class: ClassGenericPassword, Account: "alice", Data: []byte{0x00, 0xff, 0x10}}
	if err := backend.Insert(ctx, item); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	secret, err := keyring.Get("app/generic-password", "alice")
	if err != nil {
		t.Fatalf("keyring.Get: %v", err)
	}
	if secret != "AP8Q" {
		t.Fatalf("expected base64 secret %q, got %q", "AP8Q", secret)
	}
}

func TestKeyringBackend_Store(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	store := NewStore(NewKeyringBackend("keysafe-test"))
	if err := Set(ctx, store, "token", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set(ctx, store, "token", "def"); err != nil {
		t.Fatalf("Set again: %v", err)
	}

	got, found, err := Get[string](ctx, store, "token")
	if err != nil || !found || got != "def" {
		t.Fatalf("Get = %q, %v, %v", got, found, err)
	}
}
