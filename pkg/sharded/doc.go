// Package sharded stores a file in cloud storage as a set of byte ranges that
// may arrive in any order, and reassembles it on read.
//
// It is storage-agnostic via gocloud.dev/blob.
//
// # Writing
//
// Use [Write] to create or resume a sharded file. Call [File.Put] with each
// range as it arrives (from any goroutine), then [File.Complete] to verify
// that the ranges tile the file and write the manifest.
//
// Options:
//   - [WithSize]: Total size; Complete requires coverage of [0, size)
//   - [WithMetadata]: Caller-defined metadata stored in the manifest
//   - [WithStateInterval]: Persist resume state every N ranges
//   - [WithChecksum]: Compute SHA-256 per range (default true)
//
// # Resume
//
// The same [Write] call picks up state left by an interrupted run. Use
// [File.Has] to skip ranges already stored and [File.Metadata] to check that
// the source has not changed. [File.Reset] discards everything.
//
// # Reading
//
// [Read] and [ReadFromBucket] return an io.ReadCloser streaming all ranges in
// offset order, optionally verifying checksums.
//
// # Storage Layout
//
//	{bucket}/{dest}.ranges/range-000000000000
//	{bucket}/{dest}.ranges/range-000000065536
//	{bucket}/{dest}.ranges/state.json     (during writes, deleted on completion)
//	{bucket}/{dest}.manifest.json         (on completion)
//
// # Manifest Format
//
//	{
//	  "total_size": 1048576,
//	  "parts_prefix": "docs/big.pdf.ranges/",
//	  "shards": [
//	    {"object": "range-000000000000", "offset": 0, "size": 65536, "checksum": "..."},
//	    ...
//	  ],
//	  "metadata": {"source_url": "...", "source_etag": "..."},
//	  "completed_at": "2025-01-15T10:30:00Z"
//	}
package sharded
