package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	mergeWaitTimeout  = time.Second
	mergeWaitInterval = time.Millisecond
)

func testConfig(dir string) Config {
	return Config{
		DataDir:             dir,
		MaxFileSize:         1 << 20,
		MaxFileHandleCaches: 8,
		MaxHistoricalFiles:  10,
		StrictCRCValidation: false,
	}
}

func TestBitcaskPutGetDelete(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(testConfig(dir), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put("a", []byte("1")))
	v, err := db.Get("a")
	require.NoError(t, err)
	require.Equal(t, "1", string(v))

	require.True(t, db.Contains("a"))
	require.NoError(t, db.Delete("a"))
	require.False(t, db.Contains("a"))

	_, err = db.Get("a")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBitcaskOverwriteIsLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(testConfig(dir), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put("a", []byte("1")))
	require.NoError(t, db.Put("a", []byte("2")))
	v, err := db.Get("a")
	require.NoError(t, err)
	require.Equal(t, "2", string(v))
}

func TestBitcaskRejectsTombstoneValue(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(testConfig(dir), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	err = db.Put("a", TombstoneValue)
	require.Error(t, err)
}

func TestBitcaskCrashRecoveryWithoutClose(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	db, err := Open(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, db.Put("a", []byte("1")))
	require.NoError(t, db.Put("b", []byte("2")))
	require.NoError(t, db.Sync())
	// Simulate a crash: no Close, just release the lock so a second Open
	// (standing in for a restart) can acquire it.
	require.NoError(t, db.lock.Release())

	db2, err := Open(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db2.Close()

	v, err := db2.Get("a")
	require.NoError(t, err)
	require.Equal(t, "1", string(v))
	v, err = db2.Get("b")
	require.NoError(t, err)
	require.Equal(t, "2", string(v))
}

func TestBitcaskSecondOpenFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	db, err := Open(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	_, err = Open(cfg, zap.NewNop().Sugar())
	require.ErrorIs(t, err, ErrDatabaseLocked)
}

func TestBitcaskMergeReclaimsSpace(t *testing.T) {
	dir := t.TempDir()
	// A tiny max file size forces a rotation per put, giving merge multiple
	// sealed files to compact. max_historical_files is set high so these
	// puts don't also race a background auto-merge.
	cfg := Config{DataDir: dir, MaxFileSize: 1, MaxFileHandleCaches: 8, MaxHistoricalFiles: 5, StrictCRCValidation: false}
	db, err := Open(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put("a", []byte("1")))
	require.NoError(t, db.Put("a", []byte("2")))
	require.NoError(t, db.Put("b", []byte("3")))

	// Below the max_historical_files threshold, can_merge is false, but an
	// explicit merge can still be requested.
	require.False(t, db.CanMerge())
	require.Equal(t, 3, db.Stats().DataFileCount)
	db.Merge()

	require.Eventually(t, func() bool {
		return !db.mergeInFlight.Load()
	}, mergeWaitTimeout, mergeWaitInterval)
	// The two sealed files are replaced by one merged file beside the active one.
	require.Equal(t, 2, db.Stats().DataFileCount)

	v, err := db.Get("a")
	require.NoError(t, err)
	require.Equal(t, "2", string(v))
	v, err = db.Get("b")
	require.NoError(t, err)
	require.Equal(t, "3", string(v))
}

func TestBitcaskAutoMergeTriggersOnPut(t *testing.T) {
	dir := t.TempDir()
	// max_historical_files of 1 means a single sealed file is already
	// enough for can_merge to hold, so the second put (the first one that
	// rotates) should kick off a background merge on its own.
	cfg := Config{DataDir: dir, MaxFileSize: 1, MaxFileHandleCaches: 8, MaxHistoricalFiles: 1, StrictCRCValidation: false}
	db, err := Open(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put("a", []byte("1")))
	require.NoError(t, db.Put("a", []byte("2"))) // rotates, sealing the first file

	require.Eventually(t, func() bool {
		return !db.mergeInFlight.Load() && db.Stats().DataFileCount <= 2
	}, mergeWaitTimeout, mergeWaitInterval)

	v, err := db.Get("a")
	require.NoError(t, err)
	require.Equal(t, "2", string(v))
}

func TestBitcaskNameSeparatesInstancesUnderSharedDataDir(t *testing.T) {
	dir := t.TempDir()

	cfgFoo := testConfig(dir)
	cfgFoo.Name = "foo"
	dbFoo, err := Open(cfgFoo, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer dbFoo.Close()

	cfgBar := testConfig(dir)
	cfgBar.Name = "bar"
	dbBar, err := Open(cfgBar, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer dbBar.Close()

	require.NoError(t, dbFoo.Put("k", []byte("foo-value")))
	require.NoError(t, dbBar.Put("k", []byte("bar-value")))

	v, err := dbFoo.Get("k")
	require.NoError(t, err)
	require.Equal(t, "foo-value", string(v))

	v, err = dbBar.Get("k")
	require.NoError(t, err)
	require.Equal(t, "bar-value", string(v))

	require.DirExists(t, filepath.Join(dir, "foo"))
	require.DirExists(t, filepath.Join(dir, "bar"))
}

func TestBitcaskCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(testConfig(dir), zap.NewNop().Sugar())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Get("a")
	require.ErrorIs(t, err, ErrEngineClosed)
}
