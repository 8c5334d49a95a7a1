package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWriter(t *testing.T, maxSize int64, onRotate rotationListener) (*Writer, string, *idAllocator) {
	t.Helper()
	dir := t.TempDir()
	withFixedNow(t, 1000)
	alloc := newIDAllocator(1)
	w, err := newWriter(dir, alloc, maxSize, onRotate, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, dir, alloc
}

func TestWriterAppendNoRotation(t *testing.T) {
	w, _, alloc := newTestWriter(t, 1<<20, nil)

	r1 := (&Record{Timestamp: 1, Key: []byte("a"), Value: []byte("1")}).Encode()
	fileID, offset, err := w.Append(r1)
	require.NoError(t, err)
	require.EqualValues(t, alloc.Active(), fileID)
	require.EqualValues(t, 0, offset)

	r2 := (&Record{Timestamp: 2, Key: []byte("b"), Value: []byte("2")}).Encode()
	_, offset2, err := w.Append(r2)
	require.NoError(t, err)
	require.EqualValues(t, len(r1), offset2)
}

func TestWriterRotatesOnThreshold(t *testing.T) {
	var rotatedTo uint64
	record := (&Record{Timestamp: 1, Key: []byte("a"), Value: []byte("1")}).Encode()

	w, _, _ := newTestWriter(t, int64(len(record)), func(id uint64) { rotatedTo = id })

	firstID, _, err := w.Append(record)
	require.NoError(t, err)

	// The active file is now exactly full; the next append must rotate.
	secondID, offset, err := w.Append(record)
	require.NoError(t, err)
	require.NotEqual(t, firstID, secondID)
	require.EqualValues(t, 0, offset)
	require.Equal(t, secondID, rotatedTo)
}

func TestWriterAllowsOversizedRecordOnEmptyFile(t *testing.T) {
	huge := (&Record{Timestamp: 1, Key: []byte("k"), Value: make([]byte, 100)}).Encode()
	w, _, alloc := newTestWriter(t, 10, nil)

	fileID, offset, err := w.Append(huge)
	require.NoError(t, err)
	require.EqualValues(t, alloc.Active(), fileID)
	require.EqualValues(t, 0, offset)
}
