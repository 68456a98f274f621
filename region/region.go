package region

import (
	"errors"
	"io"
)

// Region is the low-level storage for one region's entries. A region stores
// a constant number of entries, given by its KeyProvider. Different regions
// may be backed by different kinds of storage: a single region file (File)
// or a sidecar directory of per-id files (Ext).
//
// Implementations serialize all operations on one instance; callers provide
// cross-instance exclusion (see the save package's providers).
type Region interface {
	// WriteValue stores value at key. A nil value removes the existing
	// entry. If the data cannot be written due to format constraints,
	// WriteValue fails with UnsupportedDataError and the stored data is
	// unchanged.
	WriteValue(key Key, value []byte) error
	// WriteValues stores multiple values, nil removing as in WriteValue.
	// Format failures are collected into one MultiUnsupportedDataError;
	// entries for the failed keys are unchanged.
	WriteValues(entries map[Key][]byte) error
	// WriteSpecial erases key's entry and stores the sentinel registered
	// for marker in its place.
	WriteSpecial(key Key, marker any) error
	// ReadValue loads the value at key, or nil if nothing is stored there.
	ReadValue(key Key) ([]byte, error)
	// HasValue reports whether something is stored at key.
	HasValue(key Key) bool
	// ForEachKey calls fn for every present key, in id order.
	ForEachKey(fn func(Key) error) error
	// Flush forces written data to disk.
	Flush() error
	// Close flushes and releases the region's resources.
	Close() error
}

// writeValues implements the batched write shared by Region
// implementations: every entry is attempted, format errors are collected,
// and anything else aborts immediately.
func writeValues(r Region, entries map[Key][]byte) error {
	var failed map[Key]*UnsupportedDataError
	for key, value := range entries {
		err := r.WriteValue(key, value)
		if err == nil {
			continue
		}
		var unsupported *UnsupportedDataError
		if !errors.As(err, &unsupported) {
			return err
		}
		if failed == nil {
			failed = make(map[Key]*UnsupportedDataError)
		}
		failed[key] = unsupported
	}
	if len(failed) != 0 {
		return &MultiUnsupportedDataError{Children: failed}
	}
	return nil
}

func ceilDiv(x, y int) int {
	return (x + y - 1) / y
}

// readFullAt reads len(buf) bytes at off, tolerating the io.EOF that a full
// read ending exactly at end-of-file may report.
func readFullAt(f io.ReaderAt, buf []byte, off int64) error {
	n, err := f.ReadAt(buf, off)
	if err == io.EOF && n == len(buf) {
		return nil
	}
	return err
}
