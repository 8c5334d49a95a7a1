package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// errTombstoneCollision is returned when a caller tries to Put the literal
// one-byte tombstone sentinel as a value. Spec §3 leaves this ambiguity to
// the caller's contract; Open Question 6 resolves it by rejecting the
// collision outright rather than silently turning the Put into a delete.
var errTombstoneCollision = errors.New("bitcask: value collides with the tombstone sentinel (single 0x00 byte)")

// Config is the subset of pkg/bitcaskopt.Options the storage engine itself
// consumes. The option-builder package is responsible for defaults and
// validation; by the time Open sees a Config its fields are already sane.
type Config struct {
	DataDir             string
	Name                string
	MaxFileSize         int64
	MaxFileHandleCaches int
	MaxHistoricalFiles  int
	StrictCRCValidation bool
}

// Stats is a point-in-time snapshot of engine state, exposed for
// operational visibility (spec §1's sanctioned "facade" additions).
type Stats struct {
	KeyCount      int
	DataFileCount int
	ActiveFileID  uint64
	MergeRunning  bool
}

// Bitcask is the engine facade: the single entry point wiring the KeyDir,
// handle cache, writer, reader, id allocator, and file-id list together
// (spec §4.9, §5). All exported methods are safe for concurrent use.
type Bitcask struct {
	dir  string
	cfg  Config
	log  *zap.SugaredLogger
	lock *dirLock

	keydir  *KeyDir
	handles *HandleCache
	writer  *Writer
	reader  *Reader
	alloc   *idAllocator

	filesMu sync.RWMutex
	fileIDs []uint64

	mergeInFlight atomic.Bool
	closed        atomic.Bool
}

// Open locks dir for exclusive use, recovers the KeyDir from whatever data
// files are present, and returns a ready-to-use engine (spec §4.9 step "open").
// The engine's actual data directory is <cfg.DataDir>/<cfg.Name>/, so two
// instances sharing a DataDir but configured with different Name values get
// separate, independently-locked directories (spec §6).
func Open(cfg Config, log *zap.SugaredLogger) (*Bitcask, error) {
	if cfg.Name != "" {
		cfg.DataDir = filepath.Join(cfg.DataDir, cfg.Name)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, newIOError("Open", err)
	}

	lock, err := acquireDirLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	db, err := open(cfg, lock, log)
	if err != nil {
		lock.Release()
		return nil, err
	}
	return db, nil
}

func open(cfg Config, lock *dirLock, log *zap.SugaredLogger) (*Bitcask, error) {
	if err := RemoveMergeLeftovers(cfg.DataDir); err != nil {
		return nil, err
	}

	fileIDs, err := ListFileIDs(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	keydir := NewKeyDir()
	if err := Recover(cfg.DataDir, fileIDs, keydir, cfg.StrictCRCValidation, log); err != nil {
		return nil, err
	}

	// Open Question 2: recovery does not seal the last file it replays and
	// start a fresh one. The active writer continues appending to whichever
	// file was already last on disk, so a restart after a clean close picks
	// up exactly where it left off instead of accumulating an empty file
	// per restart.
	var activeID uint64
	if len(fileIDs) > 0 {
		activeID = fileIDs[len(fileIDs)-1]
	} else {
		activeID = uint64(time.Now().Unix())
		fileIDs = []uint64{activeID}
	}

	alloc := newIDAllocator(activeID)

	db := &Bitcask{
		dir:     cfg.DataDir,
		cfg:     cfg,
		log:     log,
		lock:    lock,
		keydir:  keydir,
		alloc:   alloc,
		fileIDs: fileIDs,
	}

	writer, err := newWriter(cfg.DataDir, alloc, cfg.MaxFileSize, db.onRotate, log)
	if err != nil {
		return nil, err
	}
	db.writer = writer

	handles, err := NewHandleCache(cfg.MaxFileHandleCaches, func(id uint64) (*os.File, error) {
		return OpenRead(cfg.DataDir, id)
	})
	if err != nil {
		writer.Close()
		return nil, err
	}
	db.handles = handles
	db.reader = newReader(cfg.DataDir, handles, keydir, cfg.StrictCRCValidation, log)

	return db, nil
}

// onRotate is the Writer's rotationListener: it keeps the file-id list in
// sync whenever a new active file is created (spec §5).
func (b *Bitcask) onRotate(newID uint64) {
	b.filesMu.Lock()
	defer b.filesMu.Unlock()
	b.fileIDs = append(b.fileIDs, newID)
}

// Get returns the value for key, or ErrKeyNotFound.
func (b *Bitcask) Get(key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrEngineClosed
	}
	return b.reader.Get(key)
}

// Put writes key=value, superseding any earlier value (spec §4.9). If the
// write pushes the sealed-file count to or past max_historical_files and no
// merge is already running, a merge pass is kicked off in the background.
func (b *Bitcask) Put(key string, value []byte) error {
	if b.closed.Load() {
		return ErrEngineClosed
	}
	if IsTombstone(value) {
		return newInvalidError("Put", errTombstoneCollision)
	}
	if err := b.append(key, value); err != nil {
		return err
	}
	if b.CanMerge() {
		b.Merge()
	}
	return nil
}

// Delete marks key as deleted by appending a tombstone record. Open
// Question 3: delete is routed through the same Append path as Put (rather
// than bypassing maybeRotateLocked), so a long run of deletes still rotates
// files exactly as a run of puts would.
func (b *Bitcask) Delete(key string) error {
	if b.closed.Load() {
		return ErrEngineClosed
	}
	if !b.keydir.Has(key) {
		return nil
	}
	if err := b.append(key, TombstoneValue); err != nil {
		return err
	}
	b.keydir.Delete(key)
	return nil
}

func (b *Bitcask) append(key string, value []byte) error {
	record := &Record{Timestamp: uint64(time.Now().Unix()), Key: []byte(key), Value: value}
	encoded := record.Encode()

	fileID, start, err := b.writer.Append(encoded)
	if err != nil {
		return err
	}

	if !IsTombstone(value) {
		b.keydir.Put(key, Entry{
			FileID:    fileID,
			ValueSize: uint32(len(value)),
			ValuePos:  start + int64(HeaderSize) + int64(len(key)),
			Timestamp: record.Timestamp,
		})
	}
	return nil
}

// Contains reports whether key has a live value.
func (b *Bitcask) Contains(key string) bool {
	return b.keydir.Has(key)
}

// ListKeys returns a best-effort snapshot of all live keys.
func (b *Bitcask) ListKeys() []string {
	return b.keydir.Keys()
}

// Sync forces the active file's buffered writes to stable storage.
func (b *Bitcask) Sync() error {
	if b.closed.Load() {
		return ErrEngineClosed
	}
	return b.writer.Sync()
}

// CanMerge reports whether the number of sealed (non-active) files is at or
// above max_historical_files, with no merge already running (spec §4.8's
// trigger condition).
func (b *Bitcask) CanMerge() bool {
	if b.mergeInFlight.Load() {
		return false
	}
	b.filesMu.RLock()
	defer b.filesMu.RUnlock()
	sealed := len(b.fileIDs) - 1 // exclude the active file
	return sealed >= b.cfg.MaxHistoricalFiles
}

// Merge runs one online compaction pass in the background and returns
// immediately. Only one merge may run at a time (spec §4.8); a call while
// one is already in flight is a no-op.
func (b *Bitcask) Merge() {
	if b.closed.Load() {
		return
	}
	if !b.mergeInFlight.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer b.mergeInFlight.Store(false)

		activeID := b.alloc.Active()
		b.filesMu.RLock()
		stale := make([]uint64, 0, len(b.fileIDs))
		for _, id := range b.fileIDs {
			if id != activeID {
				stale = append(stale, id)
			}
		}
		b.filesMu.RUnlock()

		if len(stale) == 0 {
			return
		}

		result, err := Merge(b.dir, stale, b.alloc, b.keydir, b.handles, b.cfg.StrictCRCValidation, b.log)
		if err != nil {
			b.log.Errorw("merge pass failed", "error", err)
			return
		}

		b.filesMu.Lock()
		kept := b.fileIDs[:0]
		staleSet := make(map[uint64]bool, len(stale))
		for _, id := range stale {
			staleSet[id] = true
		}
		for _, id := range b.fileIDs {
			if !staleSet[id] {
				kept = append(kept, id)
			}
		}
		b.fileIDs = append(kept, result.OutputFileID)
		b.filesMu.Unlock()

		b.log.Infow("merge pass complete",
			"filesMerged", result.FilesMerged,
			"recordsKept", result.RecordsKept,
			"recordsPruned", result.RecordsPruned,
			"outputFileID", result.OutputFileID,
		)
	}()
}

// Stats returns a point-in-time snapshot of engine state.
func (b *Bitcask) Stats() Stats {
	b.filesMu.RLock()
	defer b.filesMu.RUnlock()
	return Stats{
		KeyCount:      b.keydir.Len(),
		DataFileCount: len(b.fileIDs),
		ActiveFileID:  b.alloc.Active(),
		MergeRunning:  b.mergeInFlight.Load(),
	}
}

// Close flushes and closes every open file handle and releases the
// directory lock. Idempotent: a second Close is a no-op that returns nil
// (Open Question 7).
func (b *Bitcask) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	if err := b.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.handles.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.lock.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
