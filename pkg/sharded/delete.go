package sharded

import (
	"context"
	"encoding/json"
	"fmt"

	"gocloud.dev/blob"
)

// Delete removes a completed sharded file and all its range objects.
//
// Returns an error if:
//   - The manifest doesn't exist (error wraps gcerrors.NotFound)
//   - The manifest JSON is malformed
//   - A range object cannot be deleted (permission denied, network error)
//   - The context is cancelled
func Delete(ctx context.Context, bucket *blob.Bucket, dest string) error {
	manifest, err := readManifest(ctx, bucket, dest)
	if err != nil {
		return err
	}

	for _, shard := range manifest.Shards {
		path := manifest.PartsPrefix + shard.Object
		if err := bucket.Delete(ctx, path); err != nil && !isNotExist(err) {
			return fmt.Errorf("sharded: delete range %s: %w", path, err)
		}
	}

	if err := bucket.Delete(ctx, manifestPath(dest)); err != nil {
		return fmt.Errorf("sharded: delete manifest: %w", err)
	}

	return nil
}

// DeletePartial removes an incomplete sharded file using its state file.
// If there is no state but a manifest exists, it behaves like Delete.
//
// Returns an error if:
//   - Neither state file nor manifest exists
//   - A range object cannot be deleted (permission denied, network error)
//   - The context is cancelled
func DeletePartial(ctx context.Context, bucket *blob.Bucket, dest string) error {
	partsPrefix := dest + ".ranges/"
	statePath := partsPrefix + "state.json"

	data, err := bucket.ReadAll(ctx, statePath)
	if err != nil {
		if isNotExist(err) {
			if exists, _ := bucket.Exists(ctx, manifestPath(dest)); exists {
				return Delete(ctx, bucket, dest)
			}
			return fmt.Errorf("sharded: no state or manifest found for %s", dest)
		}
		return fmt.Errorf("sharded: read state: %w", err)
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("sharded: unmarshal state: %w", err)
	}

	for _, shard := range s.Shards {
		path := partsPrefix + shard.Object
		if err := bucket.Delete(ctx, path); err != nil && !isNotExist(err) {
			return fmt.Errorf("sharded: delete range %s: %w", path, err)
		}
	}

	if err := bucket.Delete(ctx, statePath); err != nil && !isNotExist(err) {
		return fmt.Errorf("sharded: delete state: %w", err)
	}

	return nil
}
