package save

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/OpenCubicChunks/RegionLib/region"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// MaxCacheSizeEnv overrides the default shared cache's size.
const MaxCacheSizeEnv = "REGIONLIB_MAX_CACHE_SIZE"

const defaultMaxCacheSize = 256

// SharedCache is a process-wide bounded cache of open regions, shared by
// every SharedCachedRegionProvider pointed at it. Entries are keyed by
// (region key, factory), so distinct stores sharing one cache never
// collide.
//
// The cache operates with a hard and a soft limit. Crossing the soft limit
// triggers a cleanup that evicts entries by insertion order; only one
// cleanup runs at a time, and other goroutines keep working against cached
// regions meanwhile. Everyone blocks only when the cache completely fills,
// which requires regions to be opened faster than a running cleanup can
// close them.
//
// Per-key slots guarantee that no region is ever operated on by more than
// one goroutine at a time.
type SharedCache struct {
	maxSize       int
	softThreshold int

	mu    sync.Mutex
	slots map[sharedCacheKey]*cacheSlot

	tickets     *semaphore.Weighted
	usedTickets atomic.Int64
	cleanupMu   sync.Mutex

	openCounter atomic.Int64
}

type sharedCacheKey struct {
	regionKey region.RegionKey
	factory   RegionFactory
}

type cacheSlot struct {
	mu         sync.Mutex
	refs       int
	region     region.Region
	openedTime int64
}

var (
	defaultCache     *SharedCache
	defaultCacheOnce sync.Once
)

// DefaultSharedCache returns the process-wide cache, sized by
// MaxCacheSizeEnv or 256 entries.
func DefaultSharedCache() *SharedCache {
	defaultCacheOnce.Do(func() {
		size := defaultMaxCacheSize
		if v := os.Getenv(MaxCacheSizeEnv); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 2 {
				logrus.WithField("value", v).Warnf("ignoring invalid %s", MaxCacheSizeEnv)
			} else {
				size = parsed
			}
		}
		defaultCache = NewSharedCache(size)
	})
	return defaultCache
}

// NewSharedCache creates a cache holding at most maxSize open regions.
// maxSize must be at least 2.
func NewSharedCache(maxSize int) *SharedCache {
	if maxSize < 2 {
		panic(fmt.Sprintf("shared cache size must be at least 2, got %d", maxSize))
	}

	headroom := maxSize >> 3
	if limit := 2 * runtime.GOMAXPROCS(0); headroom > limit {
		headroom = limit
	}
	if headroom < 1 {
		headroom = 1
	}
	softThreshold := maxSize - headroom
	if softThreshold < 1 {
		softThreshold = 1
	}

	return &SharedCache{
		maxSize:       maxSize,
		softThreshold: softThreshold,
		slots:         make(map[sharedCacheKey]*cacheSlot, 2*maxSize),
		tickets:       semaphore.NewWeighted(int64(maxSize)),
	}
}

// ForRegion runs fn on the region the factory supplies for regionKey, with
// exclusive access for the duration of the call. The first return reports
// whether fn ran: it is false only when allowCreate is false and the region
// does not exist.
func (c *SharedCache) ForRegion(regionKey region.RegionKey, factory RegionFactory, allowCreate bool, fn func(region.Region) error) (bool, error) {
	key := sharedCacheKey{regionKey: regionKey, factory: factory}

	for {
		slot := c.acquireSlot(key)
		slot.mu.Lock()

		if slot.region == nil {
			if !c.tickets.TryAcquire(1) {
				// cache is completely full: let go of the slot, run a
				// blocking cleanup and retry
				slot.mu.Unlock()
				c.releaseSlot(key, slot)
				if err := c.cleanup(true, false); err != nil {
					return false, err
				}
				continue
			}
			c.usedTickets.Add(1)

			var r region.Region
			var err error
			if allowCreate {
				r, err = factory.GetRegion(regionKey)
			} else {
				r, err = factory.GetExistingRegion(regionKey)
			}
			if err != nil || r == nil {
				c.releaseTicket()
				slot.mu.Unlock()
				c.releaseSlot(key, slot)
				return false, err
			}

			slot.region = r
			slot.openedTime = c.openCounter.Add(1)

			fnErr := fn(r)
			slot.mu.Unlock()
			c.releaseSlot(key, slot)
			if fnErr != nil {
				return true, fnErr
			}
			// opening grew the cache; trim it lazily if a cleanup isn't
			// already running
			return true, c.cleanup(false, false)
		}

		fnErr := fn(slot.region)
		slot.mu.Unlock()
		c.releaseSlot(key, slot)
		return true, fnErr
	}
}

func (c *SharedCache) acquireSlot(key sharedCacheKey) *cacheSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := c.slots[key]
	if slot == nil {
		slot = &cacheSlot{}
		c.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (c *SharedCache) releaseSlot(key sharedCacheKey, slot *cacheSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot.refs--
	if slot.refs == 0 && slot.region == nil {
		delete(c.slots, key)
	}
}

func (c *SharedCache) releaseTicket() {
	c.usedTickets.Add(-1)
	c.tickets.Release(1)
}

// cleanup evicts cache entries by insertion rank. A forced cleanup waits
// for a running one; a lazy cleanup no-ops when one is already running or
// the cache is below its soft threshold. When full is set every entry is
// evicted, otherwise roughly the older half.
func (c *SharedCache) cleanup(force, full bool) error {
	used := int(c.usedTickets.Load())

	if force {
		c.cleanupMu.Lock()
	} else {
		if full {
			if used == 0 {
				return nil
			}
		} else if used < c.softThreshold {
			return nil
		}
		if !c.cleanupMu.TryLock() {
			return nil
		}
	}
	defer c.cleanupMu.Unlock()

	var threshold int64
	if full {
		threshold = math.MaxInt64
	} else {
		threshold = c.openCounter.Load() - int64(used>>1)
	}

	c.mu.Lock()
	snapshot := make(map[sharedCacheKey]*cacheSlot, len(c.slots))
	for key, slot := range c.slots {
		snapshot[key] = slot
	}
	c.mu.Unlock()

	var errs []error
	for key, slot := range snapshot {
		slot.mu.Lock()
		if slot.region != nil && slot.openedTime <= threshold {
			if err := slot.region.Close(); err != nil {
				logrus.WithError(err).WithField("region", key.regionKey.Name()).
					Warn("failed to close evicted region")
				errs = append(errs, err)
			}
			slot.region = nil
			c.releaseTicket()
		}
		slot.mu.Unlock()

		c.mu.Lock()
		if slot.refs == 0 && slot.region == nil {
			delete(c.slots, key)
		}
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Flush flushes every cached region without evicting it.
func (c *SharedCache) Flush() error {
	c.mu.Lock()
	snapshot := make([]*cacheSlot, 0, len(c.slots))
	for _, slot := range c.slots {
		snapshot = append(snapshot, slot)
	}
	c.mu.Unlock()

	for _, slot := range snapshot {
		slot.mu.Lock()
		r := slot.region
		var err error
		if r != nil {
			err = r.Flush()
		}
		slot.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Close evicts and closes every cached region.
func (c *SharedCache) Close() error {
	return c.cleanup(true, true)
}
