package save

import (
	"errors"
	"fmt"

	"github.com/OpenCubicChunks/RegionLib/region"
	"github.com/google/btree"
)

// SaveSection is a simple database for values addressed by
// spatially-clustered keys. It walks an ordered chain of region providers:
// a save goes to the first provider that accepts the value and is erased
// from every later one, so at most one provider holds a key at a time.
//
// All methods are safe for concurrent use; the providers' per-region
// exclusion serializes access per region.
type SaveSection struct {
	providers []RegionProvider
	codec     Codec
}

// NewSaveSection creates a section over the given fallback chain. Each
// provider after the first is a fallback for values the ones before it
// cannot hold.
func NewSaveSection(providers ...RegionProvider) *SaveSection {
	return &SaveSection{providers: providers}
}

// WithCodec makes the section pass every payload through the codec:
// encoded on save, decoded on load. Must be set before first use and never
// changed afterwards.
func (s *SaveSection) WithCodec(codec Codec) *SaveSection {
	s.codec = codec
	return s
}

// Save stores value at key, falling back through the provider chain until
// a provider accepts it. If none does, it fails with SaveSectionError
// wrapping the per-provider causes.
func (s *SaveSection) Save(key region.Key, value []byte) error {
	encoded, err := s.encode(value)
	if err != nil {
		return err
	}

	toWrite := encoded
	var causes []error
	for _, prov := range s.providers {
		w := toWrite
		err := prov.ForRegion(key.RegionKey(), func(r region.Region) error {
			writeErr := r.WriteValue(key, w)
			if writeErr == nil {
				causes = causes[:0]
				return nil
			}
			var unsupported *region.UnsupportedDataError
			if !errors.As(writeErr, &unsupported) {
				return writeErr
			}
			causes = append(causes, writeErr)
			// make sure no stale copy remains on this provider
			return r.WriteValue(key, nil)
		})
		if err != nil {
			return err
		}
		if len(causes) == 0 {
			// accepted here; everything after only needs to erase
			toWrite = nil
		}
	}

	if len(causes) != 0 {
		return &SaveSectionError{
			Description: fmt.Sprintf("no region provider supporting key %v with data size %d", key, len(value)),
			Causes:      causes,
		}
	}
	return nil
}

// SaveAll stores multiple values, batching per region so each region is
// locked once per provider. Successfully written keys are deleted from
// entries; failed keys remain, and a SaveSectionError aggregating their
// causes is returned if there are any.
func (s *SaveSection) SaveAll(entries map[region.Key][]byte) error {
	pending := make(map[region.Key][]byte, len(entries))
	for key, value := range entries {
		encoded, err := s.encode(value)
		if err != nil {
			return err
		}
		pending[key] = encoded
	}

	failures := make(map[region.Key][]error)
	for _, group := range groupByRegion(pending) {
		for _, prov := range s.providers {
			positions := group.keys
			err := prov.ForRegion(group.regionKey, func(r region.Region) error {
				batch := make(map[region.Key][]byte, len(positions))
				for _, k := range positions {
					batch[k] = pending[k]
				}

				writeErr := r.WriteValues(batch)
				if writeErr != nil {
					var multi *region.MultiUnsupportedDataError
					if !errors.As(writeErr, &multi) {
						return writeErr
					}

					// split off the failed keys and erase any stale
					// copies of them on this provider
					accepted := make([]region.Key, 0, len(positions))
					nulls := make(map[region.Key][]byte)
					for _, k := range positions {
						if cause, bad := multi.Children[k]; bad {
							failures[k] = append(failures[k], cause)
							nulls[k] = nil
						} else {
							accepted = append(accepted, k)
						}
					}
					positions = accepted
					if err := r.WriteValues(nulls); err != nil {
						return err
					}
				}

				for _, k := range positions {
					// written here; later providers only erase
					delete(failures, k)
					pending[k] = nil
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}

	for key := range entries {
		if _, failed := failures[key]; !failed {
			delete(entries, key)
		}
	}

	if len(failures) != 0 {
		causes := make([]error, 0, len(failures))
		for key, errs := range failures {
			causes = append(causes, &SaveSectionError{
				Description: fmt.Sprintf("no region provider supporting key %v with data size %d", key, len(entries[key])),
				Causes:      errs,
			})
		}
		return &SaveSectionError{Description: "multiple write errors", Causes: causes}
	}
	return nil
}

// Load reads the value at key, or nil if nothing is stored there. With
// createRegion set, missing regions are created (and cached); this is the
// preferred mode. Without it, a missing region on the first provider ends
// the walk early.
func (s *SaveSection) Load(key region.Key, createRegion bool) ([]byte, error) {
	for _, prov := range s.providers {
		var value []byte
		read := func(r region.Region) error {
			v, err := r.ReadValue(key)
			value = v
			return err
		}

		if createRegion {
			if err := prov.ForRegion(key.RegionKey(), read); err != nil {
				return nil, err
			}
		} else {
			done, err := prov.ForExistingRegion(key.RegionKey(), read)
			if err != nil {
				return nil, err
			}
			if !done {
				// no region file at all: nothing was ever saved here
				return nil, nil
			}
		}

		if value != nil {
			return s.decode(value)
		}
	}
	return nil, nil
}

// Has reports whether any provider holds a value at key.
func (s *SaveSection) Has(key region.Key) (bool, error) {
	for _, prov := range s.providers {
		found := false
		_, err := prov.ForExistingRegion(key.RegionKey(), func(r region.Region) error {
			found = r.HasValue(key)
			return nil
		})
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// AllKeys streams every saved key. With ensureUnique, keys stored on
// several providers are yielded once, at the cost of membership checks
// against the earlier providers; without it a key may appear once per
// provider holding it. Keys saved or removed while the stream is consumed
// may be missed or duplicated either way.
//
// Close the stream once done with it.
func (s *SaveSection) AllKeys(ensureUnique bool) (*KeyStream, error) {
	streams := make([]*KeyStream, len(s.providers))
	for i, prov := range s.providers {
		stream, err := prov.AllKeys()
		if err != nil {
			closeKeyStreams(streams[:i])
			return nil, err
		}
		streams[i] = stream
	}

	if !ensureUnique {
		return concatKeyStreams(streams, nil), nil
	}
	return concatKeyStreams(streams, newUniqueKeyFilter(s.providers)), nil
}

// AllEntries streams every saved entry, with the uniqueness and staleness
// caveats of AllKeys.
func (s *SaveSection) AllEntries(ensureUnique bool) (*EntryStream, error) {
	keyStream, err := s.AllKeys(ensureUnique)
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
				value, err := s.Load(key, false)
				if err != nil {
					return Entry{}, false, err
				}
				if value == nil {
					continue
				}
				return Entry{Key: key, Value: value}, true, nil
			}
		},
		close: keyStream.Close,
	}, nil
}

// ForAllKeys calls fn for every saved key, deduplicated across providers.
func (s *SaveSection) ForAllKeys(fn func(region.Key) error) error {
	stream, err := s.AllKeys(true)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		key, ok, err := stream.Next()
		if err != nil || !ok {
			return err
		}
		if err := fn(key); err != nil {
			return err
		}
	}
}

// Flush flushes every provider.
func (s *SaveSection) Flush() error {
	for _, prov := range s.providers {
		if err := prov.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every provider.
func (s *SaveSection) Close() error {
	var errs []error
	for _, prov := range s.providers {
		if err := prov.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SaveSection) encode(value []byte) ([]byte, error) {
	if s.codec == nil || value == nil {
		return value, nil
	}
	return s.codec.Encode(value)
}

func (s *SaveSection) decode(value []byte) ([]byte, error) {
	if s.codec == nil {
		return value, nil
	}
	return s.codec.Decode(value)
}

// regionGroup is one region's share of a batched save.
type regionGroup struct {
	regionKey region.RegionKey
	keys      []region.Key
}

// groupByRegion buckets keys by their region, in lexicographic region
// order so concurrent batches touch regions in a deterministic sequence.
func groupByRegion(entries map[region.Key][]byte) []regionGroup {
	byName := make(map[string]*regionGroup)
	tree := btree.NewOrderedG[string](3)
	for key := range entries {
		rk := key.RegionKey()
		group, ok := byName[rk.Name()]
		if !ok {
			group = &regionGroup{regionKey: rk}
			byName[rk.Name()] = group
			tree.ReplaceOrInsert(rk.Name())
		}
		group.keys = append(group.keys, key)
	}

	groups := make([]regionGroup, 0, len(byName))
	tree.Ascend(func(name string) bool {
		groups = append(groups, *byName[name])
		return true
	})
	return groups
}

func closeKeyStreams(streams []*KeyStream) {
	for _, stream := range streams {
		if stream != nil {
			stream.Close()
		}
	}
}

// concatKeyStreams chains provider streams in order, optionally dropping
// keys already seen on an earlier provider.
func concatKeyStreams(streams []*KeyStream, filter *uniqueKeyFilter) *KeyStream {
	idx := 0
	return &KeyStream{
		next: func() (region.Key, bool, error) {
			for idx < len(streams) {
				key, ok, err := streams[idx].Next()
				if err != nil {
					return nil, false, err
				}
				if !ok {
					if filter != nil {
						filter.exhausted(idx)
					}
					idx++
					continue
				}
				if filter != nil {
					keep, err := filter.keep(idx, key)
					if err != nil {
						return nil, false, err
					}
					if !keep {
						continue
					}
					filter.seen(idx, key)
				}
				return key, true, nil
			}
			return nil, false, nil
		},
		close: func() error {
			var errs []error
			for _, stream := range streams {
				if err := stream.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}
