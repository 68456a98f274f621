package save

import (
	"fmt"

	"github.com/OpenCubicChunks/RegionLib/region"
	"github.com/bits-and-blooms/bloom/v3"
)

// Sizing for the per-provider negative caches used when deduplicating keys
// across providers.
const (
	dedupFilterSize = 1_000_000
	dedupFilterFPR  = 0.01
)

// KeyStream is a lazy sequence of keys. Streams hold no file handles
// between Next calls, but should still be closed when abandoned early.
type KeyStream struct {
	next  func() (region.Key, bool, error)
	close func() error
}

// Next returns the next key. The second return is false once the stream is
// exhausted.
func (s *KeyStream) Next() (region.Key, bool, error) {
	return s.next()
}

// Close releases the stream.
func (s *KeyStream) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Entry is one (key, value) pair yielded by an EntryStream.
type Entry struct {
	Key   region.Key
	Value []byte
}

// EntryStream is a lazy sequence of entries.
type EntryStream struct {
	next  func() (Entry, bool, error)
	close func() error
}

// Next returns the next entry. The second return is false once the stream
// is exhausted.
func (s *EntryStream) Next() (Entry, bool, error) {
	return s.next()
}

// Close releases the stream.
func (s *EntryStream) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// allKeysOf streams every present key of one provider, region by region.
func allKeysOf(p RegionProvider) (*KeyStream, error) {
	regions, err := p.AllRegions()
	if err != nil {
		return nil, err
	}

	idx := 0
	var pending []region.Key
	return &KeyStream{
		next: func() (region.Key, bool, error) {
			for len(pending) == 0 {
				if idx >= len(regions) {
					return nil, false, nil
				}
				rk := regions[idx]
				idx++
				if _, err := p.ForExistingRegion(rk, func(r region.Region) error {
					return r.ForEachKey(func(k region.Key) error {
						pending = append(pending, k)
						return nil
					})
				}); err != nil {
					return nil, false, err
				}
			}
			k := pending[0]
			pending = pending[1:]
			return k, true, nil
		},
	}, nil
}

// allEntriesOf streams every present entry of one provider. The region is
// locked once to collect its keys and then once per read, so long streams
// do not starve writers.
func allEntriesOf(p RegionProvider) (*EntryStream, error) {
	keyStream, err := allKeysOf(p)
	if err != nil {
		return nil, err
	}

	return &EntryStream{
		next: func() (Entry, bool, error) {
			for {
				key, ok, err := keyStream.Next()
				if err != nil || !ok {
					return Entry{}, false, err
				}
				var value []byte
				if _, err := p.ForExistingRegion(key.RegionKey(), func(r region.Region) error {
					v, err := r.ReadValue(key)
					value = v
					return err
				}); err != nil {
					return Entry{}, false, err
				}
				if value == nil {
					// removed since the keys were collected
					continue
				}
				return Entry{Key: key, Value: value}, true, nil
			}
		},
		close: keyStream.Close,
	}, nil
}

// keyFingerprint is the byte form of a key fed to the dedup filters.
func keyFingerprint(k region.Key) []byte {
	return []byte(fmt.Sprintf("%s#%d", k.RegionKey().Name(), k.ID()))
}

// uniqueKeyFilter drops keys already present in any of the earlier
// providers. Because provider streams are consumed strictly in order, every
// fully-consumed earlier stream has fed all its keys into a bloom filter; a
// negative filter hit proves absence and skips the exact per-region lookup,
// a positive one falls through to it.
type uniqueKeyFilter struct {
	providers []RegionProvider
	filters   []*bloom.BloomFilter
	complete  []bool
}

func newUniqueKeyFilter(providers []RegionProvider) *uniqueKeyFilter {
	f := &uniqueKeyFilter{
		providers: providers,
		filters:   make([]*bloom.BloomFilter, len(providers)),
		complete:  make([]bool, len(providers)),
	}
	for i := range f.filters {
		f.filters[i] = bloom.NewWithEstimates(dedupFilterSize, dedupFilterFPR)
	}
	return f
}

// seen records a key yielded by provider i.
func (f *uniqueKeyFilter) seen(i int, k region.Key) {
	f.filters[i].Add(keyFingerprint(k))
}

// exhausted marks provider i's stream as fully consumed.
func (f *uniqueKeyFilter) exhausted(i int) {
	f.complete[i] = true
}

// keep reports whether provider i's key is absent from all earlier
// providers.
func (f *uniqueKeyFilter) keep(i int, k region.Key) (bool, error) {
	fingerprint := keyFingerprint(k)
	for j := 0; j < i; j++ {
		if f.complete[j] && !f.filters[j].Test(fingerprint) {
			continue
		}
		found := false
		if _, err := f.providers[j].ForExistingRegion(k.RegionKey(), func(r region.Region) error {
			found = r.HasValue(k)
			return nil
		}); err != nil {
			return false, err
		}
		if found {
			return false, nil
		}
	}
	return true, nil
}
