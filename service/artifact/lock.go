package artifact

import "sync"

// KeyedLock serialises writers per key while readers of the same key share
// access. Different keys never contend.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	sync.RWMutex
	refs int
}

// Lock acquires the write lock for key and returns its release function.
func (l *KeyedLock) Lock(key string) func() {
	entry := l.acquire(key)
	entry.Lock()
	return func() {
		entry.Unlock()
		l.release(key, entry)
	}
}

// RLock acquires the read lock for key and returns its release function.
func (l *KeyedLock) RLock(key string) func() {
	entry := l.acquire(key)
	entry.RLock()
	return func() {
		entry.RUnlock()
		l.release(key, entry)
	}
}

func (l *KeyedLock) acquire(key string) *keyedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*keyedEntry)
	}
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *KeyedLock) release(key string, entry *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}
