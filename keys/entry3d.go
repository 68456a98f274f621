package keys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/OpenCubicChunks/RegionLib/region"
)

// EntriesPerRegion3D is the entry count of a 3D region (32x32x32).
const EntriesPerRegion3D = 1 << (3 * LocBits)

var region3DNamePattern = regexp.MustCompile(`^-?\d+\.-?\d+\.-?\d+\.3dr$`)

// EntryLocation3D addresses a cube at chunk coordinates (x, y, z). Regions
// are 32x32x32 cubes named "X.Y.Z.3dr"; the id within a region packs the
// local coordinates as (x&31)<<10 | (y&31)<<5 | (z&31).
type EntryLocation3D struct {
	x, y, z int
}

// NewEntryLocation3D creates a key for chunk coordinates (x, y, z).
func NewEntryLocation3D(x, y, z int) EntryLocation3D {
	return EntryLocation3D{x: x, y: y, z: z}
}

// X returns the entry's chunk x coordinate.
func (l EntryLocation3D) X() int { return l.x }

// Y returns the entry's chunk y coordinate.
func (l EntryLocation3D) Y() int { return l.y }

// Z returns the entry's chunk z coordinate.
func (l EntryLocation3D) Z() int { return l.z }

func (l EntryLocation3D) RegionKey() region.RegionKey {
	return region.NewRegionKey(fmt.Sprintf("%d.%d.%d.3dr",
		l.x>>LocBits, l.y>>LocBits, l.z>>LocBits))
}

func (l EntryLocation3D) ID() int {
	return (l.x&LocBitmask)<<(2*LocBits) | (l.y&LocBitmask)<<LocBits | (l.z & LocBitmask)
}

func (l EntryLocation3D) String() string {
	return fmt.Sprintf("EntryLocation3D(%d, %d, %d)", l.x, l.y, l.z)
}

// Provider3D is the key model for 3D regions.
type Provider3D struct{}

func (Provider3D) KeyCount(regionKey region.RegionKey) int {
	return EntriesPerRegion3D
}

func (Provider3D) IsValid(regionKey region.RegionKey) bool {
	return region3DNamePattern.MatchString(regionKey.Name())
}

func (p Provider3D) FromRegionAndID(regionKey region.RegionKey, id int) (region.Key, error) {
	if !p.IsValid(regionKey) {
		return nil, &region.InvalidRegionNameError{Name: regionKey.Name()}
	}
	if id < 0 || id >= EntriesPerRegion3D {
		return nil, fmt.Errorf("id %d out of range for region %q: %w",
			id, regionKey.Name(), &region.InvalidRegionNameError{Name: regionKey.Name()})
	}
	parts := strings.Split(regionKey.Name(), ".")
	regX, _ := strconv.Atoi(parts[0])
	regY, _ := strconv.Atoi(parts[1])
	regZ, _ := strconv.Atoi(parts[2])
	return NewEntryLocation3D(
		regX<<LocBits|(id>>(2*LocBits)),
		regY<<LocBits|((id>>LocBits)&LocBitmask),
		regZ<<LocBits|(id&LocBitmask),
	), nil
}

var _ region.Key = EntryLocation3D{}
var _ region.KeyProvider = Provider3D{}
