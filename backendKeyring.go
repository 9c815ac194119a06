package keysafe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ErrKeyringUnsupported is returned when the platform has no credential store.
var ErrKeyringUnsupported = keyring.ErrUnsupportedPlatform

// KeyringBackend stores entries in the OS credential store (macOS Keychain,
// Secret Service, Windows Credential Manager). Each class is one keyring
// service named "<service>/<class>"; accounts are keyring users.
//
// The OS store applies its own accessibility rules; Item.Access is not
// forwarded.
type KeyringBackend struct {
	service string
}

func NewKeyringBackend(service string) *KeyringBackend {
	return &KeyringBackend{
		service: service,
	}
}

func (k *KeyringBackend) serviceName(class Class) string {
	return k.service + "/" + string(class)
}

func (k *KeyringBackend) Insert(ctx context.Context, item Item) error {
	service := k.serviceName(item.Class)

	_, err := keyring.Get(service, item.Account)
	if err == nil {
		return ErrDuplicate
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring lookup failed: %w", err)
	}

	return k.Upsert(ctx, item)
}

// Upsert relies on keyring.Set replacing an existing secret in place.
func (k *KeyringBackend) Upsert(ctx context.Context, item Item) error {
	secret := base64.StdEncoding.EncodeToString(item.Data)
	if err := keyring.Set(k.serviceName(item.Class), item.Account, secret); err != nil {
		return fmt.Errorf("keyring set failed: %w", err)
	}
	return nil
}

func (k *KeyringBackend) Query(ctx context.Context, class Class, account string) ([]byte, error) {
	secret, err := keyring.Get(k.serviceName(class), account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get failed: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("keyring entry is not base64: %w", err)
	}
	return data, nil
}

func (k *KeyringBackend) DeleteByAccount(ctx context.Context, class Class, account string) error {
	err := keyring.Delete(k.serviceName(class), account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keyring delete failed: %w", err)
	}
	return nil
}

func (k *KeyringBackend) DeleteByClass(ctx context.Context, class Class) error {
	err := keyring.DeleteAll(k.serviceName(class))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete all failed: %w", err)
	}
	return nil
}
