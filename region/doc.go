// Package region implements the on-disk region file format and its runtime.
//
// A region is a fixed-capacity bucket of N entries persisted as a single
// file. Values are addressed by a (region key, id) pair and stored in
// fixed-size sectors, so that keys which cluster spatially share a file and
// amortize seek cost.
//
// # Region File Disk Layout
//
// A region file is a sequence of fixed-size sectors:
//
//	sector 0..H-1   header: one fixed-width column per header provider,
//	                column-major. The first column is always the packed
//	                sector map (4 bytes/id, big-endian: offset<<8 | size).
//	sector H..      data: each entry starts at offset*sectorSize with a
//	                big-endian uint32 payload length, then the payload,
//	                zero-padded to the end of its sector run.
//
// A sector map word of zero means the id is absent. Registered special
// values are sentinels whose payload is produced by a reader function
// instead of being read from disk.
//
// Values too large for the inline format (more than 255 sectors) live in a
// sidecar directory next to the region file, one file per id; see ExtRegion.
package region
