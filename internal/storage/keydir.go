package storage

import "sync"

// Entry is the KeyDir's record of where a key's newest live value lives
// on disk (spec §3).
type Entry struct {
	FileID    uint64
	ValueSize uint32
	ValuePos  int64
	Timestamp uint64
}

// KeyDir is the concurrent in-memory index from key to physical record
// location (spec §4.4). Point operations never block each other beyond
// the usual RWMutex fairness; it carries no knowledge of the writer.
type KeyDir struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewKeyDir constructs an empty KeyDir.
func NewKeyDir() *KeyDir {
	return &KeyDir{entries: make(map[string]Entry)}
}

// Get returns the entry for key, if any.
func (k *KeyDir) Get(key string) (Entry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[key]
	return e, ok
}

// Put installs or overwrites the entry for key.
func (k *KeyDir) Put(key string, e Entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries[key] = e
}

// PutIfNewer installs e for key only if there is no existing entry or the
// existing entry's timestamp is no newer than e's. This is the guard merge
// step 7 uses (spec §4.8, Open Question 4): a concurrent put that lands
// between the merge's liveness check and its index install must win.
func (k *KeyDir) PutIfNewer(key string, e Entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if existing, ok := k.entries[key]; ok && existing.Timestamp > e.Timestamp {
		return
	}
	k.entries[key] = e
}

// Delete removes key from the index.
func (k *KeyDir) Delete(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, key)
}

// Has reports whether key has a live entry.
func (k *KeyDir) Has(key string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.entries[key]
	return ok
}

// Keys returns a best-effort snapshot of all live keys. No ordering or
// total-consistency guarantee is made with respect to concurrent writers.
func (k *KeyDir) Keys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]string, 0, len(k.entries))
	for key := range k.entries {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of live keys.
func (k *KeyDir) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.entries)
}
