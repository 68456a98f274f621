package region

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSectorSize is the sector size used when a FileBuilder does not set
// one. The classic Minecraft chunk format uses 4096 instead.
const DefaultSectorSize = 512

// FileBuilder assembles a File. Dir, Key and KeyProvider are required;
// everything else has defaults. Extra header columns are laid out after the
// sector-map column in the order given.
type FileBuilder struct {
	Dir             string
	Key             RegionKey
	KeyProvider     KeyProvider
	SectorSize      int
	HeaderProviders []HeaderEntryProvider
	SpecialEntries  []SpecialEntry
}

// Build opens (creating if necessary) the region file and loads its sector
// map and used-sector bitmap.
func (b *FileBuilder) Build() (*File, error) {
	sectorSize := b.SectorSize
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	if !b.Key.HasValidName() {
		return nil, &InvalidRegionNameError{Name: b.Key.Name()}
	}
	for i := range b.SpecialEntries {
		if b.SpecialEntries[i].RawValue == 0 {
			return nil, fmt.Errorf("special entry raw value 0 is reserved for absent entries")
		}
	}

	f, err := os.OpenFile(filepath.Join(b.Dir, b.Key.Name()), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open region file %q: %w", b.Key.Name(), err)
	}

	keyCount := b.KeyProvider.KeyCount(b.Key)
	headerStride := 4
	for _, p := range b.HeaderProviders {
		headerStride += p.EntryByteCount()
	}
	headerSectors := ceilDiv(keyCount*headerStride, sectorSize)

	sectorMap, err := readOrCreateSectorMap(f, keyCount, b.SpecialEntries)
	if err != nil {
		f.Close()
		return nil, err
	}
	tracker, err := trackerFromFile(f, sectorMap, headerSectors, sectorSize)
	if err != nil {
		f.Close()
		return nil, err
	}

	providers := make([]HeaderEntryProvider, 0, len(b.HeaderProviders)+1)
	providers = append(providers, sectorMap.headerProvider())
	providers = append(providers, b.HeaderProviders...)

	return &File{
		f:               f,
		regionKey:       b.Key,
		keyProvider:     b.KeyProvider,
		keyCount:        keyCount,
		sectorSize:      sectorSize,
		sectorMap:       sectorMap,
		tracker:         tracker,
		headerProviders: providers,
	}, nil
}

// File is a single region file: the header sectors followed by data
// sectors. All operations on one File are serialized by its lock; reads
// observe a consistent sector-map snapshot.
type File struct {
	mu sync.Mutex

	f               *os.File
	regionKey       RegionKey
	keyProvider     KeyProvider
	keyCount        int
	sectorSize      int
	sectorMap       *SectorMap
	tracker         *sectorTracker
	headerProviders []HeaderEntryProvider
	closed          bool
}

// RegionKey returns the key of the region this file stores.
func (r *File) RegionKey() RegionKey {
	return r.regionKey
}

func (r *File) WriteValue(key Key, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrAlreadyClosed
	}

	if value == nil {
		r.tracker.remove(key.ID())
		return r.updateHeader(key)
	}

	withLength := len(value) + 4
	if withLength > MaxSectorSize*r.sectorSize {
		return &UnsupportedDataError{
			Reason: fmt.Sprintf("value needs %d bytes but the inline limit is %d", withLength, MaxSectorSize*r.sectorSize),
			Size:   int64(len(value)),
		}
	}

	oldWord := r.sectorMap.entries[key.ID()]
	loc, onConflict, err := r.tracker.reserveFor(key.ID(), ceilDiv(withLength, r.sectorSize))
	if err != nil {
		return err
	}

	payload := value
	if onConflict != nil {
		// the allocation collided with a registered special value; the
		// handler either transforms the payload or re-routes the write
		// (signalled by returning nil)
		payload, err = onConflict(key, value)
		if err != nil {
			return err
		}
		if payload == nil {
			return r.updateHeader(key)
		}
		if len(payload)+4 > loc.Size()*r.sectorSize {
			// nothing was written yet: put the previous location back
			r.tracker.clearRange(loc)
			r.sectorMap.entries[key.ID()] = oldWord
			if old, ok := r.sectorMap.Get(key.ID()); ok && !r.sectorMap.IsSpecial(old) {
				r.tracker.setRange(old)
			}
			return &UnsupportedDataError{
				Reason: "conflict handler produced a payload larger than the reserved sectors",
				Size:   int64(len(payload)),
			}
		}
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := r.f.WriteAt(buf, int64(loc.Offset())*int64(r.sectorSize)); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	return r.updateHeader(key)
}

func (r *File) WriteValues(entries map[Key][]byte) error {
	return writeValues(r, entries)
}

func (r *File) WriteSpecial(key Key, marker any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrAlreadyClosed
	}

	r.tracker.remove(key.ID())
	if err := r.sectorMap.SetSpecial(key.ID(), marker); err != nil {
		return err
	}
	return r.updateHeader(key)
}

func (r *File) ReadValue(key Key) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrAlreadyClosed
	}

	if reader, ok := r.sectorMap.TrySpecialValue(key.ID()); ok {
		return reader(key)
	}

	loc, ok := r.sectorMap.Get(key.ID())
	if !ok {
		return nil, nil
	}

	var lengthBuf [4]byte
	byteOffset := int64(loc.Offset()) * int64(r.sectorSize)
	if err := readFullAt(r.f, lengthBuf[:], byteOffset); err != nil {
		return nil, fmt.Errorf("failed to read entry length: %w", err)
	}
	length := int(binary.BigEndian.Uint32(lengthBuf[:]))
	if length > loc.Size()*r.sectorSize {
		return nil, &CorruptedDataError{Expected: loc.Size() * r.sectorSize, Found: length}
	}

	data := make([]byte, length)
	if err := readFullAt(r.f, data, byteOffset+4); err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	return data, nil
}

func (r *File) HasValue(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sectorMap.Get(key.ID())
	return ok
}

func (r *File) ForEachKey(fn func(Key) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrAlreadyClosed
	}

	var walkErr error
	r.sectorMap.scan(func(id int, loc SectorLocation) bool {
		key, err := r.keyProvider.FromRegionAndID(r.regionKey, id)
		if err != nil {
			walkErr = err
			return false
		}
		walkErr = fn(key)
		return walkErr == nil
	})
	return walkErr
}

// Flush pads the file to a sector boundary with zeros, then syncs it.
func (r *File) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrAlreadyClosed
	}
	return r.flushLocked()
}

func (r *File) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrAlreadyClosed
	}
	r.closed = true

	flushErr := r.flushLocked()
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("failed to close region file: %w", err)
	}
	return flushErr
}

func (r *File) flushLocked() error {
	if err := r.padToSectorBoundary(); err != nil {
		return err
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync region file: %w", err)
	}
	return nil
}

func (r *File) padToSectorBoundary() error {
	info, err := r.f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat region file: %w", err)
	}
	tail := info.Size() % int64(r.sectorSize)
	if tail == 0 {
		return nil
	}
	pad := make([]byte, int64(r.sectorSize)-tail)
	if _, err := r.f.WriteAt(pad, info.Size()); err != nil {
		return fmt.Errorf("failed to pad region file: %w", err)
	}
	return nil
}

// updateHeader rewrites every header column's cell for one id. Columns are
// column-major, so each provider's fixed cell is written independently to
// keep partial writes bounded.
func (r *File) updateHeader(key Key) error {
	columnOffset := 0
	for _, p := range r.headerProviders {
		width := p.EntryByteCount()
		cell := make([]byte, width)
		p.WriteEntry(key, cell)
		at := int64(columnOffset)*int64(r.keyCount) + int64(key.ID())*int64(width)
		if _, err := r.f.WriteAt(cell, at); err != nil {
			return fmt.Errorf("failed to write header entry: %w", err)
		}
		columnOffset += width
	}
	return nil
}

var _ Region = (*File)(nil)
var _ io.Closer = (*File)(nil)
