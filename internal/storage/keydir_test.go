package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyDirBasic(t *testing.T) {
	kd := NewKeyDir()
	require.False(t, kd.Has("a"))

	kd.Put("a", Entry{FileID: 1, ValuePos: 10, Timestamp: 1})
	require.True(t, kd.Has("a"))

	e, ok := kd.Get("a")
	require.True(t, ok)
	require.EqualValues(t, 1, e.FileID)

	kd.Delete("a")
	require.False(t, kd.Has("a"))
	_, ok = kd.Get("a")
	require.False(t, ok)
}

func TestKeyDirPutIfNewerRejectsStale(t *testing.T) {
	kd := NewKeyDir()
	kd.Put("a", Entry{FileID: 2, Timestamp: 100})

	// A stale merge install must not regress a newer concurrent write.
	kd.PutIfNewer("a", Entry{FileID: 1, Timestamp: 50})
	e, _ := kd.Get("a")
	require.EqualValues(t, 2, e.FileID)

	// A fresh merge install (timestamp == incumbent) is allowed through.
	kd.PutIfNewer("a", Entry{FileID: 9, Timestamp: 100})
	e, _ = kd.Get("a")
	require.EqualValues(t, 9, e.FileID)
}

func TestKeyDirKeysSnapshot(t *testing.T) {
	kd := NewKeyDir()
	kd.Put("a", Entry{})
	kd.Put("b", Entry{})
	keys := kd.Keys()
	require.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestKeyDirConcurrentAccess(t *testing.T) {
	kd := NewKeyDir()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kd.Put("k", Entry{Timestamp: uint64(i)})
			kd.Get("k")
			kd.Has("k")
			kd.Keys()
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, kd.Len())
}
