package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeRecordsToFile(t *testing.T, dir string, id uint64, records []*Record) {
	t.Helper()
	f, err := OpenAppend(dir, id)
	require.NoError(t, err)
	defer f.Close()
	for _, r := range records {
		_, err := f.Write(r.Encode())
		require.NoError(t, err)
	}
}

func newTestReader(t *testing.T, dir string, keydir *KeyDir, strictCRC bool) *Reader {
	t.Helper()
	handles, err := NewHandleCache(4, func(id uint64) (*os.File, error) {
		return OpenRead(dir, id)
	})
	require.NoError(t, err)
	t.Cleanup(func() { handles.Close() })
	return newReader(dir, handles, keydir, strictCRC, zap.NewNop().Sugar())
}

func indexRecords(keydir *KeyDir, fileID uint64, records []*Record) {
	var offset int64
	for _, r := range records {
		keydir.Put(string(r.Key), Entry{
			FileID:    fileID,
			ValueSize: uint32(len(r.Value)),
			ValuePos:  offset + int64(HeaderSize) + int64(len(r.Key)),
			Timestamp: r.Timestamp,
		})
		offset += r.Size()
	}
}

func TestReaderGet(t *testing.T) {
	dir := t.TempDir()
	records := []*Record{
		{Timestamp: 1, Key: []byte("a"), Value: []byte("alpha")},
		{Timestamp: 2, Key: []byte("b"), Value: []byte("beta")},
	}
	writeRecordsToFile(t, dir, 1, records)

	keydir := NewKeyDir()
	indexRecords(keydir, 1, records)

	reader := newTestReader(t, dir, keydir, false)

	v, err := reader.Get("a")
	require.NoError(t, err)
	require.Equal(t, "alpha", string(v))

	v, err = reader.Get("b")
	require.NoError(t, err)
	require.Equal(t, "beta", string(v))
}

func TestReaderGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	reader := newTestReader(t, dir, NewKeyDir(), false)

	_, err := reader.Get("missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestReaderGetStaleEntryIsNotFoundUnlessStrict(t *testing.T) {
	dir := t.TempDir()
	records := []*Record{{Timestamp: 1, Key: []byte("a"), Value: []byte("alpha")}}
	writeRecordsToFile(t, dir, 1, records)

	keydir := NewKeyDir()
	// Point past the end of the file: simulates a stale/corrupt index entry.
	keydir.Put("a", Entry{FileID: 1, ValueSize: 999, ValuePos: 9999, Timestamp: 1})

	lenient := newTestReader(t, dir, keydir, false)
	_, err := lenient.Get("a")
	require.ErrorIs(t, err, ErrKeyNotFound)

	strict := newTestReader(t, dir, keydir, true)
	_, err = strict.Get("a")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrKeyNotFound)
}
