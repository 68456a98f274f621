package save

import (
	"fmt"
	"strings"
)

// SaveSectionError is raised when no provider in the fallback chain could
// accept a value, or, for batched saves, when some keys could not be
// written anywhere. Causes carries the per-provider (or per-key) failures.
type SaveSectionError struct {
	Description string
	Causes      []error
}

func (e *SaveSectionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Description)
	for i, cause := range e.Causes {
		fmt.Fprintf(&b, "; cause %d/%d: %v", i+1, len(e.Causes), cause)
	}
	return b.String()
}

func (e *SaveSectionError) Unwrap() []error {
	return e.Causes
}
