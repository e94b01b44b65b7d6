package downloader

import (
	"context"
	"io"

	"github.com/ligustah/pdfrange/internal/transport"
	"github.com/ligustah/pdfrange/pkg/sharded"
)

// FileSink writes each range at its offset in an io.WriterAt, usually an
// *os.File truncated to the full length.
type FileSink struct {
	w io.WriterAt
}

// NewFileSink returns a Sink writing to w.
func NewFileSink(w io.WriterAt) *FileSink {
	return &FileSink{w: w}
}

func (s *FileSink) WriteRange(_ context.Context, begin int64, data []byte) error {
	_, err := s.w.WriteAt(data, begin)
	return err
}

// ShardSink stores each range as its own object in a sharded file.
// Ranges already stored by an earlier run are skipped, whatever their size.
type ShardSink struct {
	f *sharded.File
}

// NewShardSink returns a Sink writing to f.
func NewShardSink(f *sharded.File) *ShardSink {
	return &ShardSink{f: f}
}

func (s *ShardSink) WriteRange(ctx context.Context, begin int64, data []byte) error {
	return s.f.Put(ctx, begin, data)
}

// Held returns the ranges already stored.
func (s *ShardSink) Held() []transport.Range {
	shards := s.f.Shards()
	held := make([]transport.Range, 0, len(shards))
	for _, sh := range shards {
		held = append(held, transport.Range{Begin: sh.Offset, End: sh.End()})
	}
	return held
}
