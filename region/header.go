package region

import (
	"encoding/binary"
	"time"
)

// HeaderEntryProvider contributes one fixed-width column to a region's
// header: for every id the provider writes EntryByteCount bytes. Columns
// are laid out column-major in registration order, with the packed sector
// map always first.
type HeaderEntryProvider interface {
	// EntryByteCount returns the fixed width of this column's cells.
	EntryByteCount() int
	// WriteEntry fills dst (EntryByteCount bytes) with the cell for key.
	WriteEntry(key Key, dst []byte)
}

// TimestampHeaderProvider is a header column recording the last write time
// of each entry as a 4-byte big-endian Unix time, in the configured unit.
type TimestampHeaderProvider struct {
	unit time.Duration
	now  func() time.Time
}

// NewTimestampHeaderProvider creates a timestamp column. Classic Minecraft
// region files use time.Second.
func NewTimestampHeaderProvider(unit time.Duration) *TimestampHeaderProvider {
	return &TimestampHeaderProvider{unit: unit, now: time.Now}
}

func (p *TimestampHeaderProvider) EntryByteCount() int {
	return 4
}

func (p *TimestampHeaderProvider) WriteEntry(key Key, dst []byte) {
	stamp := p.now().UnixNano() / int64(p.unit)
	binary.BigEndian.PutUint32(dst, uint32(stamp))
}
