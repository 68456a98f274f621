package region

import "regexp"

// regionNamePattern is the set of names a RegionKey may carry. Region keys
// are used directly as file names, so they are restricted to lowercase
// characters that are safe on every filesystem.
var regionNamePattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

// RegionKey identifies a single region. It is an immutable opaque name,
// unique per region and usable as a filesystem name.
type RegionKey struct {
	name string
}

// NewRegionKey wraps a name as a RegionKey. The name is not validated here;
// key models apply their own, stricter patterns via KeyProvider.IsValid.
func NewRegionKey(name string) RegionKey {
	return RegionKey{name: name}
}

// Name returns the region's file name.
func (k RegionKey) Name() string {
	return k.name
}

// HasValidName reports whether the name matches the generic region name
// pattern (lowercase [a-z0-9._-]+).
func (k RegionKey) HasValidName() bool {
	return regionNamePattern.MatchString(k.name)
}

func (k RegionKey) String() string {
	return k.name
}

// Key addresses a single entry: a region plus an integer id within it.
// Implementations are small immutable value types.
type Key interface {
	// RegionKey returns the key of the region this entry belongs to.
	RegionKey() RegionKey
	// ID returns the entry's id within its region,
	// in the range [0, KeyProvider.KeyCount).
	ID() int
}

// KeyProvider is the key model capability: it knows how many entries a
// region holds, how to rebuild a Key from a region and id, and which region
// names belong to the model.
type KeyProvider interface {
	// KeyCount returns the constant number of entries per region.
	KeyCount(regionKey RegionKey) int
	// FromRegionAndID rebuilds the key for an id within a region.
	// It fails with InvalidRegionNameError if the region name does not
	// match the model, or an error wrapping it if the id is out of range.
	FromRegionAndID(regionKey RegionKey, id int) (Key, error)
	// IsValid reports whether a region name belongs to this key model.
	IsValid(regionKey RegionKey) bool
}
