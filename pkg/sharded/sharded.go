package sharded

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrIncomplete is returned by File.Complete when the stored ranges do not
// cover the file without gaps or overlaps.
var ErrIncomplete = errors.New("sharded: stored ranges do not cover the file")

// ErrSourceChanged is returned when metadata indicates the source has changed
// since the last write attempt.
var ErrSourceChanged = errors.New("sharded: source changed since last attempt")

// Manifest describes a completed sharded file.
type Manifest struct {
	TotalSize   int64             `json:"total_size"`
	PartsPrefix string            `json:"parts_prefix"`
	Shards      []ShardInfo       `json:"shards"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// ShardInfo describes one stored byte range.
type ShardInfo struct {
	Object   string `json:"object"`
	Offset   int64  `json:"offset"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// End returns the exclusive end offset of the shard.
func (s ShardInfo) End() int64 {
	return s.Offset + s.Size
}

// Gap is a byte range not covered by any stored shard.
type Gap struct {
	Offset int64
	Size   int64
}

// state tracks write progress for resume support.
type state struct {
	TotalSize   int64             `json:"total_size,omitempty"`
	PartsPrefix string            `json:"parts_prefix"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Shards      []ShardInfo       `json:"shards"`
	StartedAt   time.Time         `json:"started_at"`
}

// Options configures sharded file operations.
type Options struct {
	Size            int64
	Metadata        map[string]string
	VerifyChecksum  bool
	ComputeChecksum bool // Compute checksums during writes (default: true)
	StateInterval   int  // Persist state every N stored ranges
}

// Option is a functional option for configuring sharded operations.
type Option func(*Options)

// WithSize sets the total size of the file. Complete requires the stored
// ranges to cover exactly [0, size).
func WithSize(size int64) Option {
	return func(o *Options) {
		o.Size = size
	}
}

// WithMetadata sets caller-defined metadata stored in the manifest.
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithVerifyChecksum enables checksum verification during reads.
// Shards without a stored checksum are not verified.
func WithVerifyChecksum(verify bool) Option {
	return func(o *Options) {
		o.VerifyChecksum = verify
	}
}

// WithChecksum enables or disables SHA256 checksum computation during writes.
// Default is true.
func WithChecksum(compute bool) Option {
	return func(o *Options) {
		o.ComputeChecksum = compute
	}
}

// WithStateInterval sets how often to persist state (every N stored ranges).
func WithStateInterval(n int) Option {
	return func(o *Options) {
		o.StateInterval = n
	}
}

// File is a sharded file being assembled from byte ranges that may arrive in
// any order. Put is safe for concurrent use.
type File struct {
	bucket      *blob.Bucket
	dest        string
	opts        Options
	partsPrefix string

	mu        sync.Mutex
	state     *state
	byOffset  map[int64]int // offset -> index into state.Shards
	sinceSave int
	completed bool
}

// Write creates or resumes a sharded file write operation.
// If state exists from a previous incomplete write, it is loaded and the
// ranges it lists are reported by Has.
func Write(ctx context.Context, bucket *blob.Bucket, dest string, options ...Option) (*File, error) {
	opts := Options{
		StateInterval:   10,
		ComputeChecksum: true,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Size < 0 {
		return nil, errors.New("sharded: size must not be negative")
	}
	if opts.StateInterval <= 0 {
		opts.StateInterval = 10
	}

	f := &File{
		bucket:      bucket,
		dest:        dest,
		opts:        opts,
		partsPrefix: dest + ".ranges/",
		byOffset:    make(map[int64]int),
	}

	if err := f.loadState(ctx); err != nil {
		return nil, fmt.Errorf("sharded: load state: %w", err)
	}

	return f, nil
}

func (f *File) freshState() *state {
	return &state{
		TotalSize:   f.opts.Size,
		PartsPrefix: f.partsPrefix,
		Metadata:    f.opts.Metadata,
		Shards:      []ShardInfo{},
		StartedAt:   time.Now(),
	}
}

// loadState attempts to load existing state for resume.
func (f *File) loadState(ctx context.Context) error {
	data, err := f.bucket.ReadAll(ctx, f.statePath())
	if err != nil {
		if isNotExist(err) {
			f.state = f.freshState()
			return nil
		}
		return err
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}

	f.state = &s
	f.partsPrefix = s.PartsPrefix
	if f.opts.Size > 0 && s.TotalSize == 0 {
		f.state.TotalSize = f.opts.Size
	}
	for i, sh := range f.state.Shards {
		f.byOffset[sh.Offset] = i
	}

	return nil
}

func (f *File) statePath() string {
	return f.partsPrefix + "state.json"
}

// SaveState persists the current state for resume.
func (f *File) SaveState(ctx context.Context) error {
	f.mu.Lock()
	data, err := json.MarshalIndent(f.state, "", "  ")
	f.sinceSave = 0
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.bucket.WriteAll(ctx, f.statePath(), data, nil)
}

// Metadata returns the metadata stored in the current state.
// Use this to check values like source ETag for resume validation.
func (f *File) Metadata() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Metadata
}

// Has reports whether a range starting at offset has already been stored.
func (f *File) Has(offset int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byOffset[offset]
	return ok
}

// Put stores data as the range starting at offset, replacing any range
// previously stored at the same offset.
func (f *File) Put(ctx context.Context, offset int64, data []byte) error {
	if offset < 0 {
		return fmt.Errorf("sharded: negative offset %d", offset)
	}

	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return errors.New("sharded: file is completed")
	}
	f.mu.Unlock()

	object := shardName(offset)
	if err := f.bucket.WriteAll(ctx, f.partsPrefix+object, data, &blob.WriterOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return fmt.Errorf("sharded: write range at %d: %w", offset, err)
	}

	info := ShardInfo{
		Object: object,
		Offset: offset,
		Size:   int64(len(data)),
	}
	if f.opts.ComputeChecksum {
		sum := sha256.Sum256(data)
		info.Checksum = hex.EncodeToString(sum[:])
	}

	f.mu.Lock()
	if i, ok := f.byOffset[offset]; ok {
		f.state.Shards[i] = info
	} else {
		f.byOffset[offset] = len(f.state.Shards)
		f.state.Shards = append(f.state.Shards, info)
	}
	f.sinceSave++
	save := f.sinceSave >= f.opts.StateInterval
	f.mu.Unlock()

	if save {
		if err := f.SaveState(ctx); err != nil {
			return fmt.Errorf("sharded: save state: %w", err)
		}
	}
	return nil
}

// Shards returns the stored ranges sorted by offset.
func (f *File) Shards() []ShardInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedShards(f.state.Shards)
}

// CompletedBytes returns the total bytes of all stored ranges.
func (f *File) CompletedBytes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, sh := range f.state.Shards {
		total += sh.Size
	}
	return total
}

// Gaps returns the parts of [0, size) not covered by stored ranges.
// Without a known size only interior gaps are reported.
func (f *File) Gaps() []Gap {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gaps(sortedShards(f.state.Shards), f.state.TotalSize)
}

// Reset deletes every stored range and the state file and starts fresh.
func (f *File) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sh := range f.state.Shards {
		path := f.partsPrefix + sh.Object
		if err := f.bucket.Delete(ctx, path); err != nil && !isNotExist(err) {
			return fmt.Errorf("delete range %s: %w", path, err)
		}
	}

	if err := f.bucket.Delete(ctx, f.statePath()); err != nil && !isNotExist(err) {
		return fmt.Errorf("delete state: %w", err)
	}

	f.state = f.freshState()
	f.byOffset = make(map[int64]int)
	f.sinceSave = 0
	return nil
}

// Complete checks that the stored ranges tile the file, writes the manifest
// and removes the state file. It returns an error wrapping ErrIncomplete if
// there are gaps or overlaps.
func (f *File) Complete(ctx context.Context) error {
	f.mu.Lock()
	shards := sortedShards(f.state.Shards)
	totalSize := f.state.TotalSize
	metadata := f.state.Metadata
	f.mu.Unlock()

	if err := checkCoverage(shards, totalSize); err != nil {
		return err
	}

	if totalSize == 0 && len(shards) > 0 {
		totalSize = shards[len(shards)-1].End()
	}

	manifest := Manifest{
		TotalSize:   totalSize,
		PartsPrefix: f.partsPrefix,
		Shards:      shards,
		Metadata:    metadata,
		CompletedAt: time.Now(),
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := f.bucket.WriteAll(ctx, manifestPath(f.dest), data, nil); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := f.bucket.Delete(ctx, f.statePath()); err != nil && !isNotExist(err) {
		return fmt.Errorf("delete state: %w", err)
	}

	f.mu.Lock()
	f.completed = true
	f.mu.Unlock()
	return nil
}

func checkCoverage(shards []ShardInfo, totalSize int64) error {
	var next int64
	for _, sh := range shards {
		if sh.Offset < next {
			return fmt.Errorf("%w: range at %d overlaps previous range ending at %d", ErrIncomplete, sh.Offset, next)
		}
		if sh.Offset > next {
			return fmt.Errorf("%w: gap [%d, %d)", ErrIncomplete, next, sh.Offset)
		}
		next = sh.End()
	}
	if totalSize > 0 && next != totalSize {
		return fmt.Errorf("%w: covered %d of %d bytes", ErrIncomplete, next, totalSize)
	}
	return nil
}

func gaps(shards []ShardInfo, totalSize int64) []Gap {
	var out []Gap
	var next int64
	for _, sh := range shards {
		if sh.Offset > next {
			out = append(out, Gap{Offset: next, Size: sh.Offset - next})
		}
		next = max(next, sh.End())
	}
	if totalSize > next {
		out = append(out, Gap{Offset: next, Size: totalSize - next})
	}
	return out
}

func sortedShards(in []ShardInfo) []ShardInfo {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b ShardInfo) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})
	return out
}

func shardName(offset int64) string {
	return fmt.Sprintf("range-%012d", offset)
}

func manifestPath(dest string) string {
	return dest + ".manifest.json"
}

func readManifest(ctx context.Context, bucket *blob.Bucket, dest string) (*Manifest, error) {
	data, err := bucket.ReadAll(ctx, manifestPath(dest))
	if err != nil {
		return nil, fmt.Errorf("sharded: read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("sharded: unmarshal manifest: %w", err)
	}
	return &manifest, nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
