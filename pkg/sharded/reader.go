package sharded

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"gocloud.dev/blob"
)

// Reader streams a completed sharded file, range by range in offset order.
type Reader struct {
	bucket     *blob.Bucket
	ownsBucket bool
	manifest   *Manifest
	opts       Options

	current    int
	currentRdr io.ReadCloser
	hash       hash.Hash
	closed     bool
}

// Read opens a bucket URL and a sharded file in it for reading.
// Closing the Reader also closes the bucket.
func Read(ctx context.Context, bucketURL string, dest string, options ...Option) (*Reader, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("sharded: open bucket: %w", err)
	}

	r, err := ReadFromBucket(ctx, bucket, dest, options...)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	r.ownsBucket = true
	return r, nil
}

// ReadFromBucket opens a sharded file from an existing bucket handle.
func ReadFromBucket(ctx context.Context, bucket *blob.Bucket, dest string, options ...Option) (*Reader, error) {
	opts := Options{}
	for _, opt := range options {
		opt(&opts)
	}

	manifest, err := readManifest(ctx, bucket, dest)
	if err != nil {
		return nil, err
	}

	return &Reader{
		bucket:   bucket,
		manifest: manifest,
		opts:     opts,
	}, nil
}

// Read reads data from the sharded file.
func (r *Reader) Read(p []byte) (n int, err error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		if r.currentRdr != nil {
			n, err = r.currentRdr.Read(p)
			if n > 0 && r.hash != nil {
				r.hash.Write(p[:n])
			}
			if err == io.EOF {
				if err := r.finishShard(); err != nil {
					return n, err
				}
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}

		if r.current >= len(r.manifest.Shards) {
			return 0, io.EOF
		}

		shard := r.manifest.Shards[r.current]
		rdr, err := r.bucket.NewReader(context.Background(), r.manifest.PartsPrefix+shard.Object, nil)
		if err != nil {
			return 0, fmt.Errorf("sharded: open range at %d: %w", shard.Offset, err)
		}

		r.currentRdr = rdr
		if r.opts.VerifyChecksum && shard.Checksum != "" {
			r.hash = sha256.New()
		}
	}
}

// finishShard closes the current range and verifies its checksum.
func (r *Reader) finishShard() error {
	shard := r.manifest.Shards[r.current]
	r.currentRdr.Close()
	r.currentRdr = nil
	r.current++

	if r.hash != nil {
		actual := hex.EncodeToString(r.hash.Sum(nil))
		r.hash = nil
		if actual != shard.Checksum {
			return fmt.Errorf("sharded: checksum mismatch for range at %d: expected %s, got %s",
				shard.Offset, shard.Checksum, actual)
		}
	}
	return nil
}

// Close closes the reader and releases resources.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if r.currentRdr != nil {
		r.currentRdr.Close()
		r.currentRdr = nil
	}

	if r.ownsBucket {
		return r.bucket.Close()
	}
	return nil
}

// Manifest returns the manifest for the sharded file.
func (r *Reader) Manifest() *Manifest {
	return r.manifest
}
