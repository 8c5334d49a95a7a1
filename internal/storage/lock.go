package storage

import (
	"github.com/gofrs/flock"
)

// dirLock is an advisory, single-writer lock on the database directory
// itself (spec §6: "no other files are created or interpreted" beyond the
// data/merge files already named elsewhere). gofrs/flock uses flock(2) (or
// the platform equivalent) rather than a lock-file's mere existence, so a
// crashed process never leaves a stale lock behind.
type dirLock struct {
	fl *flock.Flock
}

// acquireDirLock attempts to take an exclusive, non-blocking lock on dir.
// Returns ErrDatabaseLocked if another process already holds it.
func acquireDirLock(dir string) (*dirLock, error) {
	fl := flock.New(dir)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, newIOError("acquireDirLock", err)
	}
	if !ok {
		return nil, ErrDatabaseLocked
	}
	return &dirLock{fl: fl}, nil
}

func (d *dirLock) Release() error {
	if err := d.fl.Unlock(); err != nil {
		return newIOError("dirLock.Release", err)
	}
	return nil
}
