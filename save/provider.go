package save

import (
	"errors"

	"github.com/OpenCubicChunks/RegionLib/region"
)

// RegionProvider hands out exclusive access to regions. All region access
// goes through a callback so the provider can scope locks and decide the
// region's lifetime (close immediately, keep cached, share globally).
type RegionProvider interface {
	// ForRegion runs fn with exclusive access to the region, creating it
	// if it does not exist.
	ForRegion(regionKey region.RegionKey, fn func(region.Region) error) error
	// ForExistingRegion runs fn with exclusive access to the region if it
	// exists. The first return reports whether fn ran.
	ForExistingRegion(regionKey region.RegionKey, fn func(region.Region) error) (bool, error)
	// KeyProvider returns the key model of this provider's regions.
	KeyProvider() region.KeyProvider
	// AllRegions lists the keys of every existing region.
	AllRegions() ([]region.RegionKey, error)
	// AllKeys streams every saved key. Keys saved while the stream is
	// consumed may be missed; keys removed may still be yielded.
	AllKeys() (*KeyStream, error)
	// AllEntries streams every saved entry, with the caveats of AllKeys.
	AllEntries() (*EntryStream, error)
	// Flush forces buffered state of the provider's open regions to disk.
	Flush() error
	// Close releases the provider and every region it holds open.
	Close() error
}

// SimpleRegionProvider opens a fresh region for every call and closes it
// when the callback returns. It is intended as the source for a caching
// provider rather than for direct heavy use.
type SimpleRegionProvider struct {
	factory RegionFactory
}

// NewSimpleRegionProvider creates a provider over the given factory.
func NewSimpleRegionProvider(factory RegionFactory) *SimpleRegionProvider {
	return &SimpleRegionProvider{factory: factory}
}

func (p *SimpleRegionProvider) ForRegion(regionKey region.RegionKey, fn func(region.Region) error) error {
	r, err := p.factory.GetRegion(regionKey)
	if err != nil {
		return err
	}
	return errors.Join(fn(r), r.Close())
}

func (p *SimpleRegionProvider) ForExistingRegion(regionKey region.RegionKey, fn func(region.Region) error) (bool, error) {
	r, err := p.factory.GetExistingRegion(regionKey)
	if err != nil || r == nil {
		return false, err
	}
	return true, errors.Join(fn(r), r.Close())
}

func (p *SimpleRegionProvider) KeyProvider() region.KeyProvider {
	return p.factory.KeyProvider()
}

func (p *SimpleRegionProvider) AllRegions() ([]region.RegionKey, error) {
	return p.factory.AllRegions()
}

func (p *SimpleRegionProvider) AllKeys() (*KeyStream, error) {
	return allKeysOf(p)
}

func (p *SimpleRegionProvider) AllEntries() (*EntryStream, error) {
	return allEntriesOf(p)
}

// Flush is a no-op: the provider keeps no regions open between calls.
func (p *SimpleRegionProvider) Flush() error {
	return nil
}

func (p *SimpleRegionProvider) Close() error {
	return nil
}

var _ RegionProvider = (*SimpleRegionProvider)(nil)
