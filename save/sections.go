package save

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenCubicChunks/RegionLib/keys"
	"github.com/OpenCubicChunks/RegionLib/region"
)

// NewSaveSection2D creates the standard 2D section in dir: inline region
// files ("X.Z.2dr", 512-byte sectors) with the oversize sidecar fallback,
// both served from the given shared cache (nil for the process default).
func NewSaveSection2D(dir string, cache *SharedCache) *SaveSection {
	keyProvider := keys.Provider2D{}
	return NewSaveSection(
		NewSharedCachedRegionProvider(NewInlineRegionFactory(keyProvider, dir, region.DefaultSectorSize), cache),
		NewSharedCachedRegionProvider(NewExtRegionFactory(keyProvider, dir), cache),
	)
}

// NewSaveSection3D creates the standard 3D section in dir: inline region
// files ("X.Y.Z.3dr", 512-byte sectors) with the oversize sidecar
// fallback, both served from the given shared cache (nil for the process
// default).
func NewSaveSection3D(dir string, cache *SharedCache) *SaveSection {
	keyProvider := keys.Provider3D{}
	return NewSaveSection(
		NewSharedCachedRegionProvider(NewInlineRegionFactory(keyProvider, dir, region.DefaultSectorSize), cache),
		NewSharedCachedRegionProvider(NewExtRegionFactory(keyProvider, dir), cache),
	)
}

// minecraftCacheSize matches the vanilla-format section's per-instance
// region cache.
const minecraftCacheSize = 128

// NewMinecraftSaveSection creates a section over vanilla-format region
// files in dir ("r.X.Z.<ext>", 4096-byte sectors, last-modified timestamp
// column in seconds). It uses a per-instance region cache rather than the
// shared one.
func NewMinecraftSaveSection(dir string, ext string) *SaveSection {
	keyProvider := keys.NewMinecraftProvider(ext)
	factory := NewInlineRegionFactory(keyProvider, dir, 4096,
		region.NewTimestampHeaderProvider(time.Second))
	return NewSaveSection(NewCachedRegionProvider(factory, minecraftCacheSize))
}

// SaveCubeColumns bundles a 3D section for cubes and a 2D section for
// columns under one save directory.
type SaveCubeColumns struct {
	section2D *SaveSection
	section3D *SaveSection
}

// CreateSaveCubeColumns opens (creating directories as needed) the bundled
// save at dir, with region2d/ and region3d/ subdirectories served from the
// process-wide shared cache.
func CreateSaveCubeColumns(dir string) (*SaveCubeColumns, error) {
	part2D := filepath.Join(dir, "region2d")
	part3D := filepath.Join(dir, "region3d")
	for _, p := range []string{dir, part2D, part3D} {
		if err := os.MkdirAll(p, 0755); err != nil {
			return nil, fmt.Errorf("failed to create save directory: %w", err)
		}
	}

	return &SaveCubeColumns{
		section2D: NewSaveSection2D(part2D, nil),
		section3D: NewSaveSection3D(part3D, nil),
	}, nil
}

// Section2D returns the column section.
func (s *SaveCubeColumns) Section2D() *SaveSection {
	return s.section2D
}

// Section3D returns the cube section.
func (s *SaveCubeColumns) Section3D() *SaveSection {
	return s.section3D
}

// Save3D stores a cube's data. Safe for concurrent use.
func (s *SaveCubeColumns) Save3D(location keys.EntryLocation3D, data []byte) error {
	return s.section3D.Save(location, data)
}

// Save2D stores a column's data. Safe for concurrent use.
func (s *SaveCubeColumns) Save2D(location keys.EntryLocation2D, data []byte) error {
	return s.section2D.Save(location, data)
}

// Load3D reads a cube's data, or nil if the cube was never saved.
func (s *SaveCubeColumns) Load3D(location keys.EntryLocation3D) ([]byte, error) {
	return s.section3D.Load(location, true)
}

// Load2D reads a column's data, or nil if the column was never saved.
func (s *SaveCubeColumns) Load2D(location keys.EntryLocation2D) ([]byte, error) {
	return s.section2D.Load(location, true)
}

// Flush flushes both sections.
func (s *SaveCubeColumns) Flush() error {
	return errors.Join(s.section2D.Flush(), s.section3D.Flush())
}

// Close closes both sections.
func (s *SaveCubeColumns) Close() error {
	return errors.Join(s.section2D.Close(), s.section3D.Close())
}
