package keysafe

import "sync"

// keyLocks hands out one mutex per key and forgets it once nobody holds it.
type keyLocks struct {
	mutex sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{
		locks: map[string]*keyLock{},
	}
}

// lock blocks until key is free and returns the matching unlock function.
func (kl *keyLocks) lock(key string) func() {
	kl.mutex.Lock()
	l, ok := kl.locks[key]
	if !ok {
		l = &keyLock{}
		kl.locks[key] = l
	}
	l.refs++
	kl.mutex.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		kl.mutex.Lock()
		defer kl.mutex.Unlock()

		l.refs--
		if l.refs == 0 {
			delete(kl.locks, key)
		}
	}
}

func (kl *keyLocks) size() int {
	kl.mutex.Lock()
	defer kl.mutex.Unlock()

	return len(kl.locks)
}
