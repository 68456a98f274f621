package save

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenCubicChunks/RegionLib/region"
)

// RegionFactory opens regions on demand and enumerates the regions that
// already exist. Factories are used as cache identities: two stores sharing
// a global cache never collide because their factories differ.
type RegionFactory interface {
	// KeyProvider returns the key model the factory's regions use.
	KeyProvider() region.KeyProvider
	// GetRegion opens the region, creating it if it does not exist.
	GetRegion(regionKey region.RegionKey) (region.Region, error)
	// GetExistingRegion opens the region, or returns (nil, nil) if it
	// does not exist.
	GetExistingRegion(regionKey region.RegionKey) (region.Region, error)
	// AllRegions lists the keys of every existing region.
	AllRegions() ([]region.RegionKey, error)
}

// BuildRegionFunc constructs a region for a key.
type BuildRegionFunc func(keyProvider region.KeyProvider, regionKey region.RegionKey) (region.Region, error)

// RegionExistsFunc reports whether a region already exists on disk.
type RegionExistsFunc func(regionKey region.RegionKey) (bool, error)

// SimpleRegionFactory is a stateless RegionFactory: every GetRegion call
// builds a fresh region handle.
type SimpleRegionFactory struct {
	keyProvider region.KeyProvider
	dir         string
	build       BuildRegionFunc
	exists      RegionExistsFunc
	listSuffix  string
}

// NewSimpleRegionFactory creates a factory from explicit build and
// existence functions.
func NewSimpleRegionFactory(keyProvider region.KeyProvider, dir string, build BuildRegionFunc, exists RegionExistsFunc) *SimpleRegionFactory {
	return &SimpleRegionFactory{
		keyProvider: keyProvider,
		dir:         dir,
		build:       build,
		exists:      exists,
	}
}

// NewInlineRegionFactory creates the default factory for inline region
// files in dir. Extra header columns follow the sector map in the order
// given.
func NewInlineRegionFactory(keyProvider region.KeyProvider, dir string, sectorSize int, headerProviders ...region.HeaderEntryProvider) *SimpleRegionFactory {
	return NewSimpleRegionFactory(keyProvider, dir,
		func(kp region.KeyProvider, rk region.RegionKey) (region.Region, error) {
			b := &region.FileBuilder{
				Dir:             dir,
				Key:             rk,
				KeyProvider:     kp,
				SectorSize:      sectorSize,
				HeaderProviders: headerProviders,
			}
			return b.Build()
		},
		func(rk region.RegionKey) (bool, error) {
			return pathExists(filepath.Join(dir, rk.Name()))
		},
	)
}

// NewExtRegionFactory creates the factory for the oversize sidecar storage
// in dir. Header columns match the inline region's extra columns (the
// sector map has no ext counterpart).
func NewExtRegionFactory(keyProvider region.KeyProvider, dir string, headerProviders ...region.HeaderEntryProvider) *SimpleRegionFactory {
	f := NewSimpleRegionFactory(keyProvider, dir,
		func(kp region.KeyProvider, rk region.RegionKey) (region.Region, error) {
			return region.NewExt(dir, headerProviders, kp, rk)
		},
		func(rk region.RegionKey) (bool, error) {
			return pathExists(filepath.Join(dir, rk.Name()+region.ExtDirSuffix))
		},
	)
	f.listSuffix = region.ExtDirSuffix
	return f
}

func (f *SimpleRegionFactory) KeyProvider() region.KeyProvider {
	return f.keyProvider
}

func (f *SimpleRegionFactory) GetRegion(regionKey region.RegionKey) (region.Region, error) {
	return f.build(f.keyProvider, regionKey)
}

func (f *SimpleRegionFactory) GetExistingRegion(regionKey region.RegionKey) (region.Region, error) {
	ok, err := f.exists(regionKey)
	if err != nil || !ok {
		return nil, err
	}
	return f.GetRegion(regionKey)
}

// AllRegions lists directory entries whose names (after stripping the
// factory's list suffix, if any) the key model accepts.
func (f *SimpleRegionFactory) AllRegions() ([]region.RegionKey, error) {
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list region directory: %w", err)
	}

	var regions []region.RegionKey
	for _, entry := range entries {
		name := entry.Name()
		if f.listSuffix != "" {
			if !strings.HasSuffix(name, f.listSuffix) {
				continue
			}
			name = strings.TrimSuffix(name, f.listSuffix)
		}
		rk := region.NewRegionKey(name)
		if f.keyProvider.IsValid(rk) {
			regions = append(regions, rk)
		}
	}
	return regions, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

var _ RegionFactory = (*SimpleRegionFactory)(nil)
