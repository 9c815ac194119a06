package keysafe

import (
	"context"
	"slices"
	"sync"
)

type memoryKey struct {
	class   Class
	account string
}

// MemoryBackend keeps entries in process memory. It has no native upsert,
// like the platform keychain it stands in for.
type MemoryBackend struct {
	mutex  sync.Mutex
	values map[memoryKey]Item
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		mutex:  sync.Mutex{},
		values: map[memoryKey]Item{},
	}
}

func (m *MemoryBackend) Insert(ctx context.Context, item Item) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	k := memoryKey{class: item.Class, account: item.Account}
	if _, ok := m.values[k]; ok {
		return ErrDuplicate
	}

	item.Data = slices.Clone(item.Data)
	m.values[k] = item
	return nil
}

func (m *MemoryBackend) Query(ctx context.Context, class Class, account string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	item, ok := m.values[memoryKey{class: class, account: account}]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(item.Data), nil
}

func (m *MemoryBackend) DeleteByAccount(ctx context.Context, class Class, account string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	k := memoryKey{class: class, account: account}
	if _, ok := m.values[k]; !ok {
		return ErrNotFound
	}
	delete(m.values, k)
	return nil
}

func (m *MemoryBackend) DeleteByClass(ctx context.Context, class Class) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for k := range m.values {
		if k.class == class {
			delete(m.values, k)
		}
	}
	return nil
}

// Policy returns the access policy stored with an entry.
func (m *MemoryBackend) Policy(class Class, account string) (AccessPolicy, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	item, ok := m.values[memoryKey{class: class, account: account}]
	return item.Access, ok
}

func (m *MemoryBackend) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.values)
}
