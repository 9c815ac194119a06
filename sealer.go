package keysafe

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"slices"
)

const (
	hkdfEntryKeyInfo = "keysafe/v1/hkdf/info/entry-key"

	sealVersion       byte = 1
	masterKeyMinSize       = 32
	entryKeySize           = 32
	encryptionNonceSz      = 12
)

// ErrSealBroken is returned when a sealed entry fails authentication.
var ErrSealBroken = errors.New("sealed entry could not be opened")

// SealedBackend encrypts entry data with AES-256-GCM before it reaches the
// wrapped backend. Each entry uses its own key derived from the master key,
// and the class and account are authenticated, so a blob moved to another
// key does not open.
type SealedBackend struct {
	inner     Backend
	masterKey []byte
}

type sealedUpsertBackend struct {
	*SealedBackend
}

// NewSealedBackend wraps inner. The result implements Upserter only when
// inner does.
func NewSealedBackend(inner Backend, masterKey []byte) (Backend, error) {
	if len(masterKey) < masterKeyMinSize {
		return nil, fmt.Errorf("master key must be at least %d bytes", masterKeyMinSize)
	}

	sealed := &SealedBackend{
		inner:     inner,
		masterKey: slices.Clone(masterKey),
	}

	if _, ok := inner.(Upserter); ok {
		return &sealedUpsertBackend{sealed}, nil
	}
	return sealed, nil
}

func (s *SealedBackend) aead(class Class, account string) (cipher.AEAD, error) {
	info := hkdfEntryKeyInfo + "/" + string(class) + "\x00" + account
	encKey, err := hkdf.Key(sha256.New, s.masterKey, nil, info, entryKeySize)
	if err != nil {
		return nil, fmt.Errorf("could not derive entry key: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("could not initialize AES: %w", err)
	}
	aesGcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("could not initialize AES-GCM: %w", err)
	}
	return aesGcm, nil
}

func additionalData(class Class, account string) []byte {
	return slices.Concat([]byte{sealVersion}, []byte(class), []byte{0}, []byte(account))
}

// seal returns version || nonce || ciphertext.
func (s *SealedBackend) seal(class Class, account string, plaintext []byte) ([]byte, error) {
	aesGcm, err := s.aead(class, account)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, encryptionNonceSz)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("could not generate the encryption nonce: %w", err)
	}

	ciphertext := aesGcm.Seal(nil, nonce, plaintext, additionalData(class, account))
	return slices.Concat([]byte{sealVersion}, nonce, ciphertext), nil
}

func (s *SealedBackend) open(class Class, account string, sealed []byte) ([]byte, error) {
	if len(sealed) < 1+encryptionNonceSz {
		return nil, fmt.Errorf("%w: too short", ErrSealBroken)
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrSealBroken, sealed[0])
	}

	aesGcm, err := s.aead(class, account)
	if err != nil {
		return nil, err
	}

	nonce := sealed[1 : 1+encryptionNonceSz]
	ciphertext := sealed[1+encryptionNonceSz:]
	plaintext, err := aesGcm.Open(nil, nonce, ciphertext, additionalData(class, account))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSealBroken, err)
	}
	return plaintext, nil
}

func (s *SealedBackend) sealItem(item Item) (Item, error) {
	data, err := s.seal(item.Class, item.Account, item.Data)
	if err != nil {
		return Item{}, err
	}
	item.Data = data
	return item, nil
}

func (s *SealedBackend) Insert(ctx context.Context, item Item) error {
	sealed, err := s.sealItem(item)
	if err != nil {
		return err
	}
	return s.inner.Insert(ctx, sealed)
}

func (s *SealedBackend) Query(ctx context.Context, class Class, account string) ([]byte, error) {
	data, err := s.inner.Query(ctx, class, account)
	if err != nil {
		return nil, err
	}
	return s.open(class, account, data)
}

func (s *SealedBackend) DeleteByAccount(ctx context.Context, class Class, account string) error {
	return s.inner.DeleteByAccount(ctx, class, account)
}

func (s *SealedBackend) DeleteByClass(ctx context.Context, class Class) error {
	return s.inner.DeleteByClass(ctx, class)
}

func (s *SealedBackend) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *sealedUpsertBackend) Upsert(ctx context.Context, item Item) error {
	sealed, err := s.sealItem(item)
	if err != nil {
		return err
	}
	return s.inner.(Upserter).Upsert(ctx, sealed)
}
