// Package record drives a recording session: it buffers per-channel samples,
// writes them in fixed batches to ARF continuous files, routes events and
// spikes to their tables, and rotates the file set every configured number
// of flushes.
//
// A Session is safe for concurrent use. Sample submission and event or spike
// submission may come from different goroutines; none of them ever writes to
// a file set that is being rotated.
package record
