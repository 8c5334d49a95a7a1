package storage

import (
	"bufio"
	"io"

	"go.uber.org/zap"
)

// Recover replays every file in fileIDs (ascending) into keydir. Files are
// processed oldest-first and records within a file are appended in time
// order, so the last write naturally wins (spec §4.7).
func Recover(dir string, fileIDs []uint64, keydir *KeyDir, strictCRC bool, log *zap.SugaredLogger) error {
	for _, id := range fileIDs {
		if err := recoverFile(dir, id, keydir, strictCRC, log); err != nil {
			return err
		}
	}
	return nil
}

func recoverFile(dir string, id uint64, keydir *KeyDir, strictCRC bool, log *zap.SugaredLogger) error {
	f, err := OpenRead(dir, id)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var offset int64

	for {
		record, consumed, err := DecodeNext(r)
		if err == io.EOF {
			return nil
		}
		var corrupt *CorruptRecordError
		if asCorrupt(err, &corrupt) {
			if strictCRC {
				return newCorruptedError("Recover", err)
			}
			log.Warnw("skipping corrupt record during recovery", "fileID", id, "offset", offset, "skip", corrupt.Skip)
			// DecodeNext already consumed the full record (header+body) from
			// r before it could tell the CRC was wrong, so r is already
			// positioned at the next record; nothing further to discard.
			offset += corrupt.Skip
			continue
		}
		if err != nil {
			return newIOError("Recover", err)
		}

		valuePos := offset + int64(HeaderSize) + int64(len(record.Key))
		if IsTombstone(record.Value) {
			keydir.Delete(string(record.Key))
		} else {
			keydir.Put(string(record.Key), Entry{
				FileID:    id,
				ValueSize: uint32(len(record.Value)),
				ValuePos:  valuePos,
				Timestamp: record.Timestamp,
			})
		}

		offset += int64(consumed)
	}
}

// asCorrupt is a small errors.As helper kept local to avoid importing
// "errors" into every caller's vocabulary just for this one check.
func asCorrupt(err error, target **CorruptRecordError) bool {
	if err == nil {
		return false
	}
	c, ok := err.(*CorruptRecordError)
	if !ok {
		return false
	}
	*target = c
	return true
}
