package save

import (
	"sync"

	"github.com/OpenCubicChunks/RegionLib/region"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
)

// CachedRegionProvider keeps a bounded per-instance LRU of open regions.
// Evicted regions are closed. Access is serialized by one lock, which also
// provides the per-region exclusion the regions rely on.
type CachedRegionProvider struct {
	mu sync.Mutex

	factory RegionFactory
	cache   *lru.Cache
	open    map[region.RegionKey]region.Region
	closed  bool

	// first eviction close failure, surfaced on Close
	evictErr error
}

// NewCachedRegionProvider creates a provider caching up to maxSize open
// regions from the given factory.
func NewCachedRegionProvider(factory RegionFactory, maxSize int) *CachedRegionProvider {
	p := &CachedRegionProvider{
		factory: factory,
		open:    make(map[region.RegionKey]region.Region, maxSize),
	}
	p.cache = &lru.Cache{
		MaxEntries: maxSize,
		OnEvicted: func(key lru.Key, value interface{}) {
			rk := key.(region.RegionKey)
			delete(p.open, rk)
			if err := value.(region.Region).Close(); err != nil {
				logrus.WithError(err).WithField("region", rk.Name()).
					Warn("failed to close evicted region")
				if p.evictErr == nil {
					p.evictErr = err
				}
			}
		},
	}
	return p
}

func (p *CachedRegionProvider) ForRegion(regionKey region.RegionKey, fn func(region.Region) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.forRegionLocked(regionKey, fn, true)
	return err
}

func (p *CachedRegionProvider) ForExistingRegion(regionKey region.RegionKey, fn func(region.Region) error) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forRegionLocked(regionKey, fn, false)
}

func (p *CachedRegionProvider) forRegionLocked(regionKey region.RegionKey, fn func(region.Region) error, canCreate bool) (bool, error) {
	if p.closed {
		return false, region.ErrAlreadyClosed
	}

	if cached, ok := p.cache.Get(regionKey); ok {
		return true, fn(cached.(region.Region))
	}

	var r region.Region
	var err error
	if canCreate {
		r, err = p.factory.GetRegion(regionKey)
	} else {
		r, err = p.factory.GetExistingRegion(regionKey)
	}
	if err != nil || r == nil {
		return false, err
	}

	p.cache.Add(regionKey, r)
	p.open[regionKey] = r
	return true, fn(r)
}

func (p *CachedRegionProvider) KeyProvider() region.KeyProvider {
	return p.factory.KeyProvider()
}

func (p *CachedRegionProvider) AllRegions() ([]region.RegionKey, error) {
	return p.factory.AllRegions()
}

func (p *CachedRegionProvider) AllKeys() (*KeyStream, error) {
	return allKeysOf(p)
}

func (p *CachedRegionProvider) AllEntries() (*EntryStream, error) {
	return allEntriesOf(p)
}

// Flush flushes every cached region without evicting it.
func (p *CachedRegionProvider) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return region.ErrAlreadyClosed
	}
	for _, r := range p.open {
		if err := r.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close evicts and closes every cached region. The first close failure
// (from now or from an earlier eviction) is returned.
func (p *CachedRegionProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return region.ErrAlreadyClosed
	}
	p.closed = true
	p.cache.Clear()

	err := p.evictErr
	p.evictErr = nil
	return err
}

var _ RegionProvider = (*CachedRegionProvider)(nil)
