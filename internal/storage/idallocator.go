package storage

import (
	"sync"
	"time"
)

// idAllocator hands out file ids for rotation and merge, sharing the two
// u64 slots spec §4.5 describes: activeID (the file currently appended
// to) and nextID (the candidate for the next rotation/merge output).
//
// nextID is seeded from wall-clock seconds, as spec §3 requires file ids
// to be. Open Question 1 (same-second collisions) is resolved here: each
// call to advance bumps monotonically past the last id it ever handed
// out, rather than colliding when two rotations land in the same second.
type idAllocator struct {
	mu       sync.Mutex
	activeID uint64
	nextID   uint64
	lastUsed uint64
}

func newIDAllocator(activeID uint64) *idAllocator {
	a := &idAllocator{activeID: activeID, lastUsed: activeID}
	a.nextID = a.bump(nowFunc())
	a.lastUsed = a.nextID
	return a
}

// nowFunc returns the current wall-clock second as a file id source.
// A var so tests can force collisions deterministically.
var nowFunc = func() uint64 { return uint64(time.Now().Unix()) }

// bump returns candidate advanced past lastUsed if necessary, without
// mutating state; callers record the result into lastUsed themselves.
func (a *idAllocator) bump(candidate uint64) uint64 {
	if candidate <= a.lastUsed {
		return a.lastUsed + 1
	}
	return candidate
}

// Active returns the current active file id.
func (a *idAllocator) Active() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeID
}

// AdvanceForRotation assigns nextID to activeID and refreshes nextID from
// the wall clock, per spec §4.5's rotation rule. Returns the new activeID.
func (a *idAllocator) AdvanceForRotation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.activeID = a.nextID
	a.lastUsed = a.activeID
	a.nextID = a.bump(nowFunc())
	a.lastUsed = a.nextID
	return a.activeID
}

// TakeForMerge returns the current nextID as the merge output file id and
// refreshes nextID, per spec §4.8 step 2.
func (a *idAllocator) TakeForMerge() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.lastUsed = id
	a.nextID = a.bump(nowFunc())
	a.lastUsed = a.nextID
	return id
}
