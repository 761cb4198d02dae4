// Package filter implements the HDF5 chunk filters used by this module.
//
// Filters are applied in pipeline order when a chunk is written and in
// reverse order when it is read. Supported filters:
//
//   - deflate (ID 1), zlib streams via klauspost/compress
//   - shuffle (ID 2), byte transposition by element size
//   - fletcher32 (ID 3), appended checksum
//   - lz4 (ID 32004), the HDF Group registered LZ4 framing
//   - zstd (ID 32015), the HDF Group registered Zstandard filter
//
// A chunk whose filter mask has bit i set skipped filter i when it was
// written and is passed through that filter unchanged on read.
package filter
