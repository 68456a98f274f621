package keys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/OpenCubicChunks/RegionLib/region"
)

const (
	// LocBits is the number of local coordinate bits per axis.
	LocBits = 5
	// LocBitmask masks a coordinate down to its local part.
	LocBitmask = 1<<LocBits - 1

	// EntriesPerRegion2D is the entry count of a 2D region (32x32).
	EntriesPerRegion2D = 1 << (2 * LocBits)
)

var region2DNamePattern = regexp.MustCompile(`^-?\d+\.-?\d+\.2dr$`)

// EntryLocation2D addresses a column at chunk coordinates (x, z). Regions
// are 32x32 columns named "X.Z.2dr" after their region coordinates; the id
// within a region packs the local coordinates as (x&31)<<5 | (z&31).
type EntryLocation2D struct {
	x, z int
}

// NewEntryLocation2D creates a key for chunk coordinates (x, z).
func NewEntryLocation2D(x, z int) EntryLocation2D {
	return EntryLocation2D{x: x, z: z}
}

// X returns the entry's chunk x coordinate.
func (l EntryLocation2D) X() int { return l.x }

// Z returns the entry's chunk z coordinate.
func (l EntryLocation2D) Z() int { return l.z }

func (l EntryLocation2D) RegionKey() region.RegionKey {
	return region.NewRegionKey(fmt.Sprintf("%d.%d.2dr", l.x>>LocBits, l.z>>LocBits))
}

func (l EntryLocation2D) ID() int {
	return (l.x&LocBitmask)<<LocBits | (l.z & LocBitmask)
}

func (l EntryLocation2D) String() string {
	return fmt.Sprintf("EntryLocation2D(%d, %d)", l.x, l.z)
}

// Provider2D is the key model for 2D regions.
type Provider2D struct{}

func (Provider2D) KeyCount(regionKey region.RegionKey) int {
	return EntriesPerRegion2D
}

func (Provider2D) IsValid(regionKey region.RegionKey) bool {
	return region2DNamePattern.MatchString(regionKey.Name())
}

func (p Provider2D) FromRegionAndID(regionKey region.RegionKey, id int) (region.Key, error) {
	if !p.IsValid(regionKey) {
		return nil, &region.InvalidRegionNameError{Name: regionKey.Name()}
	}
	if id < 0 || id >= EntriesPerRegion2D {
		return nil, fmt.Errorf("id %d out of range for region %q: %w",
			id, regionKey.Name(), &region.InvalidRegionNameError{Name: regionKey.Name()})
	}
	parts := strings.Split(regionKey.Name(), ".")
	regX, _ := strconv.Atoi(parts[0])
	regZ, _ := strconv.Atoi(parts[1])
	return NewEntryLocation2D(
		regX<<LocBits|(id>>LocBits),
		regZ<<LocBits|(id&LocBitmask),
	), nil
}

var _ region.Key = EntryLocation2D{}
var _ region.KeyProvider = Provider2D{}
