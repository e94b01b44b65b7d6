//go:build integration

package downloader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/pdfrange/internal/downloader"
	"github.com/ligustah/pdfrange/internal/testutils"
	"github.com/ligustah/pdfrange/pkg/sharded"
)

func TestIntegrationMirrorToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	docs := []testutils.PDF{
		{Name: "tiny.pdf", Data: testutils.GeneratePDF(t, 1024, true)},
		{Name: "small.pdf", Data: testutils.GeneratePDF(t, 300*1024, false)},
		{Name: "medium.pdf", Data: testutils.GeneratePDF(t, 8*1024*1024, true)},
	}
	server := testutils.StartPDFServer(t, docs...)

	env := testutils.StartMinioContainer(t, ctx, "pdfs")
	defer env.Close(ctx)

	bucket, err := env.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	for _, doc := range docs {
		t.Run(doc.Name, func(t *testing.T) {
			err := downloader.ToBucket(ctx, server.URLFor(doc.Name), bucket, "mirror/"+doc.Name, downloader.Options{
				ChunkSize:   64 * 1024,
				Concurrency: 8,
			})
			if err != nil {
				t.Fatalf("ToBucket: %v", err)
			}

			result, err := sharded.Validate(ctx, bucket, "mirror/"+doc.Name)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !result.Valid {
				t.Fatalf("invalid mirror: %v", result.Errors)
			}

			reader, err := sharded.ReadFromBucket(ctx, bucket, "mirror/"+doc.Name, sharded.WithVerifyChecksum(true))
			if err != nil {
				t.Fatalf("ReadFromBucket: %v", err)
			}
			defer reader.Close()
			testutils.AssertReaderEquals(t, reader, doc.Data)
		})
	}
}

func TestIntegrationResumeAfterCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	doc := testutils.PDF{Name: "resume.pdf", Data: testutils.GeneratePDF(t, 4*1024*1024, false)}
	server := testutils.StartPDFServer(t, doc)

	env := testutils.StartMinioContainer(t, ctx, "resume")
	defer env.Close(ctx)

	bucket, err := env.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	runCtx, stop := context.WithTimeout(ctx, 150*time.Millisecond)
	err = downloader.ToBucket(runCtx, server.URLFor(doc.Name), bucket, "resume.pdf", downloader.Options{
		ChunkSize:     16 * 1024,
		Concurrency:   2,
		StateInterval: 1,
	})
	stop()

	var incomplete *downloader.IncompleteError
	if err == nil {
		t.Skip("first run finished before cancellation")
	}
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *IncompleteError, got %v", err)
	}
	firstGETs := server.GETs()

	if err := downloader.ToBucket(ctx, server.URLFor(doc.Name), bucket, "resume.pdf", downloader.Options{
		ChunkSize:   16 * 1024,
		Concurrency: 8,
	}); err != nil {
		t.Fatalf("resume: %v", err)
	}

	total := int64(len(downloader.Plan(int64(len(doc.Data)), 16*1024)))
	stored := total - int64(len(incomplete.Missing))
	if resumed := server.GETs() - firstGETs; stored > 0 && resumed >= total {
		t.Errorf("resume requested %d ranges, expected fewer than %d", resumed, total)
	}

	reader, err := sharded.ReadFromBucket(ctx, bucket, "resume.pdf", sharded.WithVerifyChecksum(true))
	if err != nil {
		t.Fatalf("ReadFromBucket: %v", err)
	}
	defer reader.Close()
	testutils.AssertReaderEquals(t, reader, doc.Data)
}
