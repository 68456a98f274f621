// Package save provides the user-facing storage surface over region files:
// region factories and providers, the process-wide shared region cache, and
// SaveSection, a key-value store with an ordered fallback chain of
// providers.
//
// # Fallback chain
//
// A SaveSection holds providers in order, typically [inline, ext]. A save
// walks the chain until a provider accepts the value; every provider after
// the accepting one is told to delete its copy, so at most one provider
// holds a given key at a time. Reads walk the chain in the same order and
// rely on that single-writer invariant.
//
// # On-disk layout of the bundled façade
//
//	<root>/
//	├── region2d/
//	│   ├── {{ X.Z.2dr }}
//	│   ├── {{ X.Z.2dr.ext/ }}
//	├── region3d/
//	│   ├── {{ X.Y.Z.3dr }}
//	│   ├── {{ X.Y.Z.3dr.ext/ }}
//
// Where in the above, X/Y/Z are signed region coordinates. The .ext
// directories appear lazily, only once a region receives an entry too large
// for the inline format.
package save
