package region

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SpecialReader produces the synthetic payload of a special entry.
type SpecialReader func(key Key) ([]byte, error)

// ConflictHandler resolves a collision between a normal allocation and a
// registered special value: it runs after the sector map update but before
// the payload write. It may return a transformed payload to be written
// instead, or nil to indicate it re-routed the write itself.
type ConflictHandler func(key Key, value []byte) ([]byte, error)

// SpecialEntry maps a reserved raw sector-map word to a marker token, a
// reader producing the entry's synthetic payload, and a handler for the
// case where a normal allocation happens to produce the same raw word.
type SpecialEntry struct {
	Marker     any
	RawValue   uint32
	Reader     SpecialReader
	OnConflict ConflictHandler
}

// SectorMap is the in-memory mirror of the packed sector-location header
// column: one 32-bit word per id, zero meaning absent. It answers lookups
// and edits and recognizes registered special values.
//
// A SectorMap is owned by its Region and shares the Region's lock.
type SectorMap struct {
	entries []uint32
	special []SpecialEntry
}

// readOrCreateSectorMap loads the sector-map column from the start of a
// region file, first zero-filling it if the file is shorter than the column.
// A file smaller than the column cannot hold any entries, so the fill is
// safe.
func readOrCreateSectorMap(f *os.File, keyCount int, special []SpecialEntry) (*SectorMap, error) {
	columnBytes := 4 * keyCount

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat region file: %w", err)
	}
	if info.Size() < int64(columnBytes) {
		if err := f.Truncate(int64(columnBytes)); err != nil {
			return nil, fmt.Errorf("failed to extend region header: %w", err)
		}
	}

	buf := make([]byte, columnBytes)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read sector map: %w", err)
	}

	entries := make([]uint32, keyCount)
	for i := range entries {
		entries[i] = binary.BigEndian.Uint32(buf[i*4:])
	}
	return &SectorMap{entries: entries, special: special}, nil
}

// Get returns the location stored for id. The second return is false when
// the id is absent (zero word). A special entry's raw word unpacks to a
// (meaningless) location and reports present; use IsSpecial to tell them
// apart.
func (m *SectorMap) Get(id int) (SectorLocation, bool) {
	packed := m.entries[id]
	if packed == 0 {
		return SectorLocation{}, false
	}
	return unpackLocation(packed), true
}

// Set stores a location for id. It rejects sizes over MaxSectorSize and
// offsets over MaxSectorOffset with UnsupportedDataError. If the packed
// word collides with a registered special value, the entry's conflict
// handler is returned for the caller to invoke before writing the payload.
func (m *SectorMap) Set(id int, loc SectorLocation) (ConflictHandler, error) {
	if loc.Size() > MaxSectorSize {
		return nil, &UnsupportedDataError{
			Reason: fmt.Sprintf("max supported size %d but requested %d", MaxSectorSize, loc.Size()),
			Size:   int64(loc.Size()),
		}
	}
	if loc.Offset() > MaxSectorOffset {
		return nil, &UnsupportedDataError{
			Reason: fmt.Sprintf("max supported offset %d but requested %d", MaxSectorOffset, loc.Offset()),
			Size:   int64(loc.Offset()),
		}
	}

	packed := packLocation(loc)
	var handler ConflictHandler
	for i := range m.special {
		if m.special[i].RawValue == packed {
			handler = m.special[i].OnConflict
		}
	}
	m.entries[id] = packed
	return handler, nil
}

// Remove zeroes the word for id, marking it absent.
func (m *SectorMap) Remove(id int) {
	m.entries[id] = 0
}

// SetSpecial stores the raw value registered for marker at id. The marker
// must have been registered when the region was built.
func (m *SectorMap) SetSpecial(id int, marker any) error {
	for i := range m.special {
		if m.special[i].Marker == marker {
			m.entries[id] = m.special[i].RawValue
			return nil
		}
	}
	return fmt.Errorf("unknown special entry marker %v", marker)
}

// IsSpecial reports whether a location packs to a registered special value.
func (m *SectorMap) IsSpecial(loc SectorLocation) bool {
	if len(m.special) == 0 {
		return false
	}
	packed := packLocation(loc)
	for i := range m.special {
		if m.special[i].RawValue == packed {
			return true
		}
	}
	return false
}

// TrySpecialValue returns the reader for id when its stored word is a
// registered special value.
func (m *SectorMap) TrySpecialValue(id int) (SpecialReader, bool) {
	if len(m.special) == 0 {
		return nil, false
	}
	packed := m.entries[id]
	for i := range m.special {
		if m.special[i].RawValue == packed {
			return m.special[i].Reader, true
		}
	}
	return nil, false
}

// scan calls fn for every present (non-zero) id in ascending order,
// stopping early if fn returns false.
func (m *SectorMap) scan(fn func(id int, loc SectorLocation) bool) {
	for id, packed := range m.entries {
		if packed == 0 {
			continue
		}
		if !fn(id, unpackLocation(packed)) {
			return
		}
	}
}

// headerProvider returns the sector-map header column: the packed current
// word for every id.
func (m *SectorMap) headerProvider() HeaderEntryProvider {
	return &sectorMapHeaderProvider{m: m}
}

type sectorMapHeaderProvider struct {
	m *SectorMap
}

func (p *sectorMapHeaderProvider) EntryByteCount() int {
	return 4
}

func (p *sectorMapHeaderProvider) WriteEntry(key Key, dst []byte) {
	binary.BigEndian.PutUint32(dst, p.m.entries[key.ID()])
}
