package keys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/OpenCubicChunks/RegionLib/region"
)

// Vanilla region file extensions.
const (
	ExtensionMCA = "mca" // anvil
	ExtensionMCR = "mcr" // pre-anvil
)

// MinecraftChunkLocation addresses a vanilla chunk at (x, z). Regions are
// named "r.X.Z.<ext>". Note the id packing is reversed relative to
// EntryLocation2D: (z&31)<<5 | (x&31), matching the vanilla format.
type MinecraftChunkLocation struct {
	x, z int
	ext  string
}

// NewMinecraftChunkLocation creates a key for chunk coordinates (x, z) with
// the given region file extension (ExtensionMCA or ExtensionMCR).
func NewMinecraftChunkLocation(x, z int, ext string) MinecraftChunkLocation {
	return MinecraftChunkLocation{x: x, z: z, ext: ext}
}

// X returns the chunk x coordinate.
func (l MinecraftChunkLocation) X() int { return l.x }

// Z returns the chunk z coordinate.
func (l MinecraftChunkLocation) Z() int { return l.z }

func (l MinecraftChunkLocation) RegionKey() region.RegionKey {
	return region.NewRegionKey(fmt.Sprintf("r.%d.%d.%s", l.x>>LocBits, l.z>>LocBits, l.ext))
}

func (l MinecraftChunkLocation) ID() int {
	return (l.z&LocBitmask)<<LocBits | (l.x & LocBitmask)
}

func (l MinecraftChunkLocation) String() string {
	return fmt.Sprintf("MinecraftChunkLocation(%d, %d)", l.x, l.z)
}

// MinecraftProvider is the key model for vanilla region files with a fixed
// extension.
type MinecraftProvider struct {
	ext     string
	pattern *regexp.Regexp
}

// NewMinecraftProvider creates the key model for the given region file
// extension.
func NewMinecraftProvider(ext string) *MinecraftProvider {
	return &MinecraftProvider{
		ext:     ext,
		pattern: regexp.MustCompile(`^r\.-?\d+\.-?\d+\.` + regexp.QuoteMeta(ext) + `$`),
	}
}

func (p *MinecraftProvider) KeyCount(regionKey region.RegionKey) int {
	return EntriesPerRegion2D
}

func (p *MinecraftProvider) IsValid(regionKey region.RegionKey) bool {
	return p.pattern.MatchString(regionKey.Name())
}

func (p *MinecraftProvider) FromRegionAndID(regionKey region.RegionKey, id int) (region.Key, error) {
	if !p.IsValid(regionKey) {
		return nil, &region.InvalidRegionNameError{Name: regionKey.Name()}
	}
	if id < 0 || id >= EntriesPerRegion2D {
		return nil, fmt.Errorf("id %d out of range for region %q: %w",
			id, regionKey.Name(), &region.InvalidRegionNameError{Name: regionKey.Name()})
	}
	parts := strings.Split(regionKey.Name(), ".")
	regX, _ := strconv.Atoi(parts[1])
	regZ, _ := strconv.Atoi(parts[2])
	return NewMinecraftChunkLocation(
		regX<<LocBits|(id&LocBitmask),
		regZ<<LocBits|(id>>LocBits),
		p.ext,
	), nil
}

var _ region.Key = MinecraftChunkLocation{}
var _ region.KeyProvider = (*MinecraftProvider)(nil)
