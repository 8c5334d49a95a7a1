package storage

import (
	"errors"
	"io"

	"go.uber.org/zap"
)

// Reader resolves a key via the KeyDir and fetches its value through the
// handle cache (spec §4.6). It never touches the writer's lock: reads
// rely on append-only semantics, since the bytes behind any offset
// already reflected in the index are immutable.
type Reader struct {
	dir       string
	handles   *HandleCache
	keydir    *KeyDir
	strictCRC bool
	log       *zap.SugaredLogger
}

func newReader(dir string, handles *HandleCache, keydir *KeyDir, strictCRC bool, log *zap.SugaredLogger) *Reader {
	return &Reader{dir: dir, handles: handles, keydir: keydir, strictCRC: strictCRC, log: log}
}

// Get returns the value stored for key, or ErrKeyNotFound.
func (r *Reader) Get(key string) ([]byte, error) {
	entry, ok := r.keydir.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}

	file, err := r.handles.Acquire(entry.FileID)
	if err != nil {
		return nil, err
	}
	defer r.handles.Release(entry.FileID)

	recordStart := entry.ValuePos - int64(HeaderSize) - int64(len(key))
	if recordStart < 0 {
		return nil, r.stale(key, errors.New("index points before start of file"))
	}

	section := io.NewSectionReader(file, recordStart, int64(HeaderSize)+int64(len(key))+int64(entry.ValueSize))
	record, _, err := DecodeNext(section)
	if err != nil {
		return nil, r.handleDecodeErr(key, err)
	}

	return record.Value, nil
}

// handleDecodeErr implements spec §4.6 step 4/5: a stale index entry
// (pointing at an EOF boundary or a corrupt record) surfaces as
// ErrKeyNotFound unless strict CRC mode is on, in which case it is a hard
// error.
func (r *Reader) handleDecodeErr(key string, err error) error {
	if r.strictCRC {
		return newCorruptedError("Reader.Get", err)
	}
	return r.stale(key, err)
}

func (r *Reader) stale(key string, cause error) error {
	r.log.Warnw("keydir entry did not resolve to a valid record", "key", key, "error", cause)
	return ErrKeyNotFound
}
