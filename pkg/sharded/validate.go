package sharded

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// ValidationResult contains the results of validating a sharded file.
type ValidationResult struct {
	Valid          bool     // true if all ranges exist, sizes match and coverage is complete
	TotalSize      int64    // total size from manifest
	ShardCount     int      // number of ranges in manifest
	MissingShards  int      // number of range objects that don't exist
	SizeMismatches int      // number of range objects with wrong size
	Gaps           []Gap    // parts of the file no range covers
	Errors         []string // detailed error messages
}

// Validate checks that a sharded file is complete: every range object exists
// with the recorded size and the ranges cover [0, TotalSize).
// It reads object attributes only, not data.
//
// Returns an error if:
//   - The manifest doesn't exist (error wraps gcerrors.NotFound)
//   - The manifest JSON is malformed
//   - Object attributes cannot be read (network/permission error)
//   - The context is cancelled
//
// Missing ranges, size mismatches and gaps are reported in the result with
// Valid=false, not as errors.
func Validate(ctx context.Context, bucket *blob.Bucket, dest string) (*ValidationResult, error) {
	manifest, err := readManifest(ctx, bucket, dest)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:      true,
		TotalSize:  manifest.TotalSize,
		ShardCount: len(manifest.Shards),
		Errors:     make([]string, 0),
	}

	for _, shard := range manifest.Shards {
		path := manifest.PartsPrefix + shard.Object

		attrs, err := bucket.Attributes(ctx, path)
		if err != nil {
			if isNotExist(err) {
				result.Valid = false
				result.MissingShards++
				result.Errors = append(result.Errors,
					fmt.Sprintf("range at %d missing: %s", shard.Offset, path))
				continue
			}
			return nil, fmt.Errorf("sharded: check range at %d: %w", shard.Offset, err)
		}

		if attrs.Size != shard.Size {
			result.Valid = false
			result.SizeMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("range at %d size mismatch: expected %d, got %d",
					shard.Offset, shard.Size, attrs.Size))
		}
	}

	result.Gaps = gaps(sortedShards(manifest.Shards), manifest.TotalSize)
	for _, g := range result.Gaps {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("gap [%d, %d)", g.Offset, g.Offset+g.Size))
	}

	return result, nil
}
