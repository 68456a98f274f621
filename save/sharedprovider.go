package save

import (
	"sync/atomic"

	"github.com/OpenCubicChunks/RegionLib/region"
)

// SharedCachedRegionProvider serves regions through a SharedCache, so any
// number of providers (and stores) share one bounded pool of open regions.
type SharedCachedRegionProvider struct {
	cache   *SharedCache
	factory RegionFactory
	closed  atomic.Bool
}

// NewSharedCachedRegionProvider creates a provider serving the factory's
// regions from the given cache. A nil cache means the process default.
func NewSharedCachedRegionProvider(factory RegionFactory, cache *SharedCache) *SharedCachedRegionProvider {
	if cache == nil {
		cache = DefaultSharedCache()
	}
	return &SharedCachedRegionProvider{cache: cache, factory: factory}
}

func (p *SharedCachedRegionProvider) ForRegion(regionKey region.RegionKey, fn func(region.Region) error) error {
	if p.closed.Load() {
		return region.ErrAlreadyClosed
	}
	_, err := p.cache.ForRegion(regionKey, p.factory, true, fn)
	return err
}

func (p *SharedCachedRegionProvider) ForExistingRegion(regionKey region.RegionKey, fn func(region.Region) error) (bool, error) {
	if p.closed.Load() {
		return false, region.ErrAlreadyClosed
	}
	return p.cache.ForRegion(regionKey, p.factory, false, fn)
}

func (p *SharedCachedRegionProvider) KeyProvider() region.KeyProvider {
	return p.factory.KeyProvider()
}

func (p *SharedCachedRegionProvider) AllRegions() ([]region.RegionKey, error) {
	if p.closed.Load() {
		return nil, region.ErrAlreadyClosed
	}
	return p.factory.AllRegions()
}

func (p *SharedCachedRegionProvider) AllKeys() (*KeyStream, error) {
	if p.closed.Load() {
		return nil, region.ErrAlreadyClosed
	}
	return allKeysOf(p)
}

func (p *SharedCachedRegionProvider) AllEntries() (*EntryStream, error) {
	if p.closed.Load() {
		return nil, region.ErrAlreadyClosed
	}
	return allEntriesOf(p)
}

// Flush flushes the whole shared cache, including regions opened by other
// providers sharing it.
func (p *SharedCachedRegionProvider) Flush() error {
	if p.closed.Load() {
		return region.ErrAlreadyClosed
	}
	return p.cache.Flush()
}

// Close marks the provider closed and purges the shared cache. Regions of
// other providers sharing the cache are closed too; they reopen on their
// next access.
func (p *SharedCachedRegionProvider) Close() error {
	if p.closed.Swap(true) {
		return region.ErrAlreadyClosed
	}
	return p.cache.Close()
}

var _ RegionProvider = (*SharedCachedRegionProvider)(nil)
