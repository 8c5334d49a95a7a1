package storage

import (
	"bufio"
	"os"
	"sync"

	"go.uber.org/zap"
)

// rotationListener is notified whenever the writer rotates to a new
// active file, so the engine can keep its file-id list in sync (spec §5:
// "File-id list ... writers hold it during rotation").
type rotationListener func(newID uint64)

// Writer owns the single active append file and the exclusive lock that
// serializes all appends (spec §4.5, §5). It is the only component
// allowed to mutate the active file or its offset.
type Writer struct {
	mu        sync.Mutex
	dir       string
	alloc     *idAllocator
	file      *os.File
	bw        *bufio.Writer
	offset    int64
	maxSize   int64
	onRotate  rotationListener
	log       *zap.SugaredLogger
}

// newWriter constructs a Writer already positioned at the end of the
// active file, ready to append.
func newWriter(dir string, alloc *idAllocator, maxSize int64, onRotate rotationListener, log *zap.SugaredLogger) (*Writer, error) {
	id := alloc.Active()
	f, err := OpenAppend(dir, id)
	if err != nil {
		return nil, err
	}
	size, err := FileSize(dir, id)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Writer{
		dir:      dir,
		alloc:    alloc,
		file:     f,
		bw:       bufio.NewWriterSize(f, 64*1024),
		offset:   size,
		maxSize:  maxSize,
		onRotate: onRotate,
		log:      log,
	}, nil
}

// Append writes record to the active file, rotating first if it wouldn't
// fit within max_file_size. It returns the file id and the byte offset
// the record starts at, then flushes (but does not fsync) per spec §4.5.
func (w *Writer) Append(record []byte) (fileID uint64, startOffset int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.maybeRotateLocked(int64(len(record))); err != nil {
		return 0, 0, err
	}

	start := w.offset
	if _, err := w.bw.Write(record); err != nil {
		return 0, 0, newIOError("Writer.Append", err)
	}
	if err := w.bw.Flush(); err != nil {
		return 0, 0, newIOError("Writer.Append", err)
	}
	w.offset += int64(len(record))

	return w.alloc.Active(), start, nil
}

// maybeRotateLocked rotates the active file if appending recordSize more
// bytes would exceed max_file_size. Called with w.mu held.
func (w *Writer) maybeRotateLocked(recordSize int64) error {
	if w.maxSize > 0 && w.offset+recordSize <= w.maxSize {
		return nil
	}
	if w.offset == 0 {
		// An oversized single record on an empty file: nothing to gain by
		// rotating into another empty file, so just let it through.
		return nil
	}
	return w.rotateLocked()
}

// rotateLocked flushes and fsyncs the current active file, opens a new
// one, and swaps it in. Called with w.mu held.
func (w *Writer) rotateLocked() error {
	if err := w.syncLocked(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		w.log.Warnw("failed to close sealed file during rotation", "error", err)
	}

	newID := w.alloc.AdvanceForRotation()
	f, err := OpenAppend(w.dir, newID)
	if err != nil {
		return err
	}

	w.file = f
	w.bw = bufio.NewWriterSize(f, 64*1024)
	w.offset = 0

	if w.onRotate != nil {
		w.onRotate(newID)
	}
	w.log.Infow("rotated active file", "newFileID", newID)
	return nil
}

// Sync flushes and fsyncs the active file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if err := w.bw.Flush(); err != nil {
		return newIOError("Writer.Sync", err)
	}
	if err := w.file.Sync(); err != nil {
		return newIOError("Writer.Sync", err)
	}
	return nil
}

// Close flushes, fsyncs, and closes the active file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.syncLocked(); err != nil {
		return err
	}
	return w.file.Close()
}
