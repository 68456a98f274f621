package region

import (
	"errors"
	"fmt"
)

// ErrAlreadyClosed is returned when an operation is attempted on a closed
// handle.
var ErrAlreadyClosed = errors.New("already closed")

// UnsupportedDataError means a storage tier cannot hold a value: it is too
// large for the inline format, too large for an ext file, or its allocation
// would overflow the packed sector location. Callers may recover by falling
// back to the next storage tier.
type UnsupportedDataError struct {
	Reason string
	Size   int64
}

func (e *UnsupportedDataError) Error() string {
	return fmt.Sprintf("unsupported data (size %d): %s", e.Size, e.Reason)
}

// MultiUnsupportedDataError is the batched form of UnsupportedDataError,
// returned by WriteValues. It carries every key whose write failed; data for
// those keys is unchanged.
type MultiUnsupportedDataError struct {
	Children map[Key]*UnsupportedDataError
}

func (e *MultiUnsupportedDataError) Error() string {
	return fmt.Sprintf("unsupported data for %d keys", len(e.Children))
}

// CorruptedDataError means the on-disk state is inconsistent: a stored
// length exceeds its sector run. The read fails but the region stays usable.
type CorruptedDataError struct {
	Expected int
	Found    int
}

func (e *CorruptedDataError) Error() string {
	return fmt.Sprintf("corrupted data: expected max %d bytes but found %d", e.Expected, e.Found)
}

// InvalidRegionNameError is returned by key models for region names that do
// not match the model's pattern, or ids outside the region's range.
type InvalidRegionNameError struct {
	Name string
}

func (e *InvalidRegionNameError) Error() string {
	return fmt.Sprintf("invalid region name %q", e.Name)
}
