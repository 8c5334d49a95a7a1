package storage

import (
	"bufio"
	"io"

	"go.uber.org/zap"
)

// MergeResult reports what a merge pass accomplished, for Stats/logging.
type MergeResult struct {
	FilesMerged   int
	RecordsKept   int
	RecordsPruned int
	OutputFileID  uint64
}

// Merge runs one full online compaction pass over the immutable (non-active)
// files named in staleIDs, producing a single replacement file (spec §4.8).
//
// Liveness is tested against keydir as it stands at the moment each record
// is visited, not a frozen snapshot taken at the start of the scan: a write
// that lands on a key mid-merge must never be clobbered by a stale copy of
// that key re-surfacing from the file being compacted (Open Question 4).
func Merge(dir string, staleIDs []uint64, alloc *idAllocator, keydir *KeyDir, handles *HandleCache, strictCRC bool, log *zap.SugaredLogger) (MergeResult, error) {
	if len(staleIDs) == 0 {
		return MergeResult{}, nil
	}

	outID := alloc.TakeForMerge()
	out, err := OpenMerge(dir, outID)
	if err != nil {
		return MergeResult{}, err
	}
	bw := bufio.NewWriterSize(out, 64*1024)

	var result MergeResult
	var outOffset int64
	staged := make(map[string][2]Entry)

	for _, id := range staleIDs {
		kept, pruned, err := mergeFile(dir, id, outID, keydir, bw, &outOffset, staged, strictCRC, log)
		if err != nil {
			out.Close()
			return MergeResult{}, err
		}
		result.RecordsKept += kept
		result.RecordsPruned += pruned
		result.FilesMerged++
	}

	if err := bw.Flush(); err != nil {
		out.Close()
		return MergeResult{}, newIOError("Merge", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return MergeResult{}, newIOError("Merge", err)
	}
	if err := out.Close(); err != nil {
		return MergeResult{}, newIOError("Merge", err)
	}

	if err := FinalizeMerge(dir, outID); err != nil {
		return MergeResult{}, err
	}
	result.OutputFileID = outID

	// Install only now that the output exists under its final name, and only
	// where the key still points at the record that was copied.
	for key, s := range staged {
		if cur, ok := keydir.Get(key); ok && cur == s[0] {
			keydir.PutIfNewer(key, s[1])
		}
	}

	for _, id := range staleIDs {
		if err := Delete(dir, id); err != nil {
			log.Warnw("failed to remove superseded file after merge", "fileID", id, "error", err)
			continue
		}
		handles.Invalidate(id)
	}

	return result, nil
}

// mergeFile rescans one stale file, re-appending every record still live in
// keydir to bw (the merge output), and stages the record's old and new
// locations in staged for Merge to install once the output is finalized.
// Returns (kept, pruned) record counts.
func mergeFile(dir string, srcID, outID uint64, keydir *KeyDir, bw *bufio.Writer, outOffset *int64, staged map[string][2]Entry, strictCRC bool, log *zap.SugaredLogger) (kept, pruned int, err error) {
	f, err := OpenRead(dir, srcID)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var srcOffset int64

	for {
		record, consumed, derr := DecodeNext(r)
		if derr == io.EOF {
			return kept, pruned, nil
		}
		var corrupt *CorruptRecordError
		if asCorrupt(derr, &corrupt) {
			if strictCRC {
				return kept, pruned, newCorruptedError("Merge", derr)
			}
			log.Warnw("skipping corrupt record during merge", "fileID", srcID, "offset", srcOffset, "skip", corrupt.Skip)
			// DecodeNext already consumed the full record from r; nothing
			// further to discard (see recovery.go's recoverFile).
			srcOffset += corrupt.Skip
			continue
		}
		if derr != nil {
			return kept, pruned, newIOError("Merge", derr)
		}
		recordStart := srcOffset
		srcOffset += int64(consumed)

		key := string(record.Key)
		valuePos := recordStart + int64(HeaderSize) + int64(len(record.Key))
		live, ok := keydir.Get(key)
		if !ok || live.FileID != srcID || live.ValuePos != valuePos || live.Timestamp != record.Timestamp {
			// Superseded by a later write, or already deleted: drop it.
			pruned++
			continue
		}
		if IsTombstone(record.Value) {
			// A live tombstone has nothing to carry forward.
			pruned++
			continue
		}

		encoded := record.Encode()
		if _, werr := bw.Write(encoded); werr != nil {
			return kept, pruned, newIOError("Merge", werr)
		}

		newValuePos := *outOffset + int64(HeaderSize) + int64(len(record.Key))
		staged[key] = [2]Entry{live, {
			FileID:    outID,
			ValueSize: uint32(len(record.Value)),
			ValuePos:  newValuePos,
			Timestamp: record.Timestamp,
		}}
		*outOffset += int64(len(encoded))
		kept++
	}
}
