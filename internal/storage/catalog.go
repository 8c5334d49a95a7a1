package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Ext is the data file extension for the default (Bitcask) storage model.
const Ext = "bsk"

const mergeSuffix = "." + Ext + ".merge"

// dataFileName returns the on-disk name for a sealed or active data file.
func dataFileName(id uint64) string {
	return strconv.FormatUint(id, 10) + "." + Ext
}

// mergeFileName returns the on-disk name for a transient merge output file.
func mergeFileName(id uint64) string {
	return strconv.FormatUint(id, 10) + mergeSuffix
}

// ListFileIDs enumerates dir and returns the ascending, sorted ids of every
// regular data file it contains. Anything that isn't a regular file whose
// stem parses as a uint64 and whose extension matches Ext is ignored,
// including any leftover .merge files.
func ListFileIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newIOError("ListFileIDs", err)
	}

	var ids []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, "."+Ext) || strings.HasSuffix(name, mergeSuffix) {
			continue
		}
		stem := strings.TrimSuffix(name, "."+Ext)
		id, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// OpenAppend opens (creating if necessary) the data file for id in append-only mode.
func OpenAppend(dir string, id uint64) (*os.File, error) {
	path := filepath.Join(dir, dataFileName(id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, newIOError("OpenAppend", err)
	}
	return f, nil
}

// OpenRead opens the data file for id read-only.
func OpenRead(dir string, id uint64) (*os.File, error) {
	path := filepath.Join(dir, dataFileName(id))
	f, err := os.Open(path)
	if err != nil {
		return nil, newIOError("OpenRead", err)
	}
	return f, nil
}

// OpenMerge opens (creating if necessary) the transient merge output file for id.
func OpenMerge(dir string, id uint64) (*os.File, error) {
	path := filepath.Join(dir, mergeFileName(id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, newIOError("OpenMerge", err)
	}
	return f, nil
}

// FinalizeMerge renames the transient merge file for id to its final data
// file name. Same-filesystem renames are already atomic on POSIX, which is
// exactly the "rename .merge -> final name" operation spec §4.2 describes.
func FinalizeMerge(dir string, id uint64) error {
	src := filepath.Join(dir, mergeFileName(id))
	dst := filepath.Join(dir, dataFileName(id))
	if err := os.Rename(src, dst); err != nil {
		return newIOError("FinalizeMerge", err)
	}
	return nil
}

// Delete unlinks the data file for id.
func Delete(dir string, id uint64) error {
	if err := os.Remove(filepath.Join(dir, dataFileName(id))); err != nil && !os.IsNotExist(err) {
		return newIOError("Delete", err)
	}
	return nil
}

// RemoveMergeLeftovers deletes any .merge files found in dir. Resolves
// Open Question 5: rather than leaving a crash-interrupted merge's
// leftovers to be silently ignored forever, they are cleaned up at open.
func RemoveMergeLeftovers(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return newIOError("RemoveMergeLeftovers", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), mergeSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return newIOError("RemoveMergeLeftovers", err)
		}
	}
	return nil
}

// FileSize returns the current size in bytes of the sealed/active data file for id.
func FileSize(dir string, id uint64) (int64, error) {
	info, err := os.Stat(filepath.Join(dir, dataFileName(id)))
	if err != nil {
		return 0, newIOError("FileSize", err)
	}
	return info.Size(), nil
}
