package region

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExtDirSuffix is appended to a region's name to form its sidecar
// directory.
const ExtDirSuffix = ".ext"

// Ext is the sidecar storage for entries too large for the inline region
// format: a directory next to the region file holding one file per id,
// named by the id in decimal. Each file starts with the same header
// columns as the inline header (minus the sector map), then the payload;
// the payload length is the file size minus the header size.
//
// Writes replace files atomically (temp file + rename), so a reader never
// observes a partially written entry. The directory itself is created
// lazily on the first oversized write.
type Ext struct {
	mu sync.Mutex

	dir             string
	headerProviders []HeaderEntryProvider
	keyProvider     KeyProvider
	regionKey       RegionKey
	totalHeaderSize int

	exists      *bitset.BitSet
	initialized bool
}

// NewExt opens the sidecar storage for a region, populating the presence
// set from the directory listing if the directory already exists.
func NewExt(saveDir string, headerProviders []HeaderEntryProvider, keyProvider KeyProvider, regionKey RegionKey) (*Ext, error) {
	headerSize := 0
	for _, p := range headerProviders {
		headerSize += p.EntryByteCount()
	}
	keyCount := keyProvider.KeyCount(regionKey)

	e := &Ext{
		dir:             filepath.Join(saveDir, regionKey.Name()+ExtDirSuffix),
		headerProviders: headerProviders,
		keyProvider:     keyProvider,
		regionKey:       regionKey,
		totalHeaderSize: headerSize,
		exists:          bitset.New(uint(keyCount)),
	}

	entries, err := os.ReadDir(e.dir)
	if os.IsNotExist(err) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list ext directory: %w", err)
	}
	e.initialized = true
	for _, entry := range entries {
		id, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if id >= 0 && id < keyCount {
			e.exists.Set(uint(id))
		}
	}
	return e, nil
}

func (e *Ext) WriteValue(key Key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uint(key.ID())
	if value == nil && (!e.initialized || !e.exists.Test(id)) {
		// nothing to erase; in particular, don't create the directory
		// just to delete from it
		return nil
	}

	if !e.initialized {
		if err := os.MkdirAll(e.dir, 0755); err != nil {
			return fmt.Errorf("failed to create ext directory: %w", err)
		}
		e.initialized = true
	}

	path := filepath.Join(e.dir, strconv.Itoa(key.ID()))
	if value == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete ext entry: %w", err)
		}
		e.exists.Clear(id)
		return nil
	}

	buf := make([]byte, e.totalHeaderSize, e.totalHeaderSize+len(value))
	cell := buf
	for _, p := range e.headerProviders {
		p.WriteEntry(key, cell[:p.EntryByteCount()])
		cell = cell[p.EntryByteCount():]
	}
	buf = append(buf, value...)

	// write to a temp file and rename over, so a crash leaves either the
	// old entry or the complete new one
	tmp := path + "." + uuid.NewString() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create ext temp file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write ext entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync ext entry: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close ext temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace ext entry: %w", err)
	}
	e.exists.Set(id)
	return nil
}

func (e *Ext) WriteValues(entries map[Key][]byte) error {
	return writeValues(e, entries)
}

func (e *Ext) WriteSpecial(key Key, marker any) error {
	return fmt.Errorf("ext regions do not support special values")
}

func (e *Ext) ReadValue(key Key) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uint(key.ID())
	if !e.initialized || !e.exists.Test(id) {
		return nil, nil
	}

	path := filepath.Join(e.dir, strconv.Itoa(key.ID()))
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		e.dropStale(key.ID())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ext entry: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat ext entry: %w", err)
	}
	remaining := info.Size() - int64(e.totalHeaderSize)
	if remaining > math.MaxInt32 {
		return nil, &UnsupportedDataError{
			Reason: fmt.Sprintf("ext entry of %d bytes exceeds the single-entry limit", remaining),
			Size:   remaining,
		}
	}

	data := make([]byte, remaining)
	if err := readFullAt(f, data, int64(e.totalHeaderSize)); err != nil {
		return nil, fmt.Errorf("failed to read ext entry: %w", err)
	}
	return data, nil
}

func (e *Ext) HasValue(key Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uint(key.ID())
	if !e.initialized || !e.exists.Test(id) {
		return false
	}
	if _, err := os.Stat(filepath.Join(e.dir, strconv.Itoa(key.ID()))); os.IsNotExist(err) {
		e.dropStale(key.ID())
		return false
	}
	return true
}

// dropStale clears a presence bit whose file turned out to be gone.
// Callers hold the lock.
func (e *Ext) dropStale(id int) {
	logrus.WithFields(logrus.Fields{
		"region": e.regionKey.Name(),
		"id":     id,
	}).Debug("clearing stale ext presence bit")
	e.exists.Clear(uint(id))
}

func (e *Ext) ForEachKey(fn func(Key) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, ok := e.exists.NextSet(0); ok; id, ok = e.exists.NextSet(id + 1) {
		key, err := e.keyProvider.FromRegionAndID(e.regionKey, int(id))
		if err != nil {
			return err
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op: every ext write is synced before its rename.
func (e *Ext) Flush() error {
	return nil
}

func (e *Ext) Close() error {
	return nil
}

var _ Region = (*Ext)(nil)
