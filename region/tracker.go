package region

import (
	"fmt"
	"os"

	"github.com/bits-and-blooms/bitset"
)

// sectorTracker allocates sectors for a region file. It keeps one bit per
// sector (set = used); header sector bits are permanently set. Bits are
// updated in the same step as the sector map, under the region's lock.
type sectorTracker struct {
	used      *bitset.BitSet
	sectorMap *SectorMap
}

// trackerFromFile builds the used-sector bitmap for an open region file:
// the header sectors are marked used, then every sector covered by a
// present sector-map entry. Special values carry no location and mark
// nothing.
func trackerFromFile(f *os.File, sectorMap *SectorMap, reservedSectors, sectorSize int) (*sectorTracker, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat region file: %w", err)
	}

	sectors := int(info.Size() / int64(sectorSize))
	if sectors < reservedSectors {
		sectors = reservedSectors
	}

	used := bitset.New(uint(sectors))
	for i := 0; i < reservedSectors; i++ {
		used.Set(uint(i))
	}
	sectorMap.scan(func(id int, loc SectorLocation) bool {
		if sectorMap.IsSpecial(loc) {
			return true
		}
		for i := 0; i < loc.Size(); i++ {
			used.Set(uint(loc.Offset() + i))
		}
		return true
	})

	return &sectorTracker{used: used, sectorMap: sectorMap}, nil
}

// reserveFor finds and reserves a sector run for an entry of the given size,
// records it in the sector map, and returns the new location. If the packed
// value collides with a registered special value, the conflict handler is
// returned for the caller to invoke before writing the payload.
//
// Placement policy: shrink in place, else grow in place when the sectors
// just past the current run are free, else first-fit from sector 1.
func (t *sectorTracker) reserveFor(id int, sectors int) (SectorLocation, ConflictHandler, error) {
	if sectors <= 0 {
		return SectorLocation{}, nil, fmt.Errorf("cannot reserve %d sectors", sectors)
	}
	if sectors > MaxSectorSize {
		return SectorLocation{}, nil, &UnsupportedDataError{
			Reason: fmt.Sprintf("max supported size %d but requested %d sectors", MaxSectorSize, sectors),
			Size:   int64(sectors),
		}
	}

	old, hasOld := t.sectorMap.Get(id)
	if hasOld && t.sectorMap.IsSpecial(old) {
		// a special value is a sentinel, not a location
		hasOld = false
	}

	found := t.findSectorFor(old, hasOld, sectors)
	handler, err := t.sectorMap.Set(id, found)
	if err != nil {
		return SectorLocation{}, nil, err
	}

	if hasOld {
		t.clearRange(old)
	}
	t.setRange(found)
	return found, handler, nil
}

// remove releases an entry's sectors and zeroes its sector-map word.
// Payload bytes are left in place; the data is dead once unreferenced.
func (t *sectorTracker) remove(id int) {
	if old, ok := t.sectorMap.Get(id); ok && !t.sectorMap.IsSpecial(old) {
		t.clearRange(old)
	}
	t.sectorMap.Remove(id)
}

func (t *sectorTracker) findSectorFor(old SectorLocation, hasOld bool, sectors int) SectorLocation {
	oldSize := 0
	if hasOld {
		oldSize = old.Size()
	}

	// shrink in place, never move
	if sectors <= oldSize {
		return old.WithSize(sectors)
	}

	// grow in place when the run just past the entry is free
	enough := true
	for i := old.Offset() + oldSize; i < old.Offset()+sectors; i++ {
		if !t.isFree(i) {
			enough = false
			break
		}
	}
	if enough {
		return old.WithSize(sectors)
	}

	return t.findNextFree(sectors)
}

// findNextFree scans for the first run of free sectors of the requested
// length, starting at sector 1 (sector 0 is always part of the header).
func (t *sectorTracker) findNextFree(sectors int) SectorLocation {
	run := 0
	sector := 0
	for {
		sector++
		if t.isFree(sector) {
			run++
		} else {
			run = 0
		}
		if run == sectors {
			return NewSectorLocation(sector-run+1, sectors)
		}
	}
}

func (t *sectorTracker) isFree(sector int) bool {
	return !t.used.Test(uint(sector))
}

func (t *sectorTracker) setRange(loc SectorLocation) {
	for i := 0; i < loc.Size(); i++ {
		t.used.Set(uint(loc.Offset() + i))
	}
}

func (t *sectorTracker) clearRange(loc SectorLocation) {
	for i := 0; i < loc.Size(); i++ {
		t.used.Clear(uint(loc.Offset() + i))
	}
}
