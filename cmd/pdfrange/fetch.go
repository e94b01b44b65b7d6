package main

import (
	"errors"
	"fmt"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/pdfrange/internal/config"
	"github.com/ligustah/pdfrange/internal/downloader"
	"github.com/ligustah/pdfrange/internal/progress"
	"github.com/ligustah/pdfrange/pkg/sharded"
)

// runFetch requests every range of a remote PDF and writes the deliveries to
// a local file or, range by range, to object storage.
func runFetch(args []string) int {
	fs := newFlagSet("fetch", `Usage: pdfrange fetch [options]

Fetch a PDF range by range, the way a viewer engine does, and store it either
in a local file (-output) or in object storage (-bucket and -object).
Ranges that fail are not retried within a run; run again to fetch only the
missing ranges of a bucket copy.`)

	var common commonFlags
	common.register(fs)
	url := fs.String("url", "", "PDF URL (required)")
	output := fs.String("output", "", "Destination file path")
	bucket := fs.String("bucket", "", "Destination bucket URL (file://, s3://, gs://)")
	object := fs.String("object", "", "Destination object path")
	chunkSize := fs.String("chunk-size", "", "Size of each requested range (default 64KiB)")
	concurrency := fs.Int("concurrency", 0, "Maximum ranges in flight (default 8)")
	showProgress := fs.Bool("progress", false, "Show progress output")
	stateInterval := fs.Int("state-interval", 10, "Persist resume state every N ranges")
	force := fs.Bool("force", false, "Discard stored ranges and start over")
	noChecksum := fs.Bool("no-checksum", false, "Skip checksum computation (relies on object store integrity)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	chunkBytes, err := parseSize(*chunkSize)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid chunk size: %v\n", err)
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(common, config.Config{
		URL:         *url,
		ChunkSize:   chunkBytes,
		Concurrency: *concurrency,
		Progress:    *showProgress,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	toBucket := *bucket != "" || *object != ""
	switch {
	case cfg.URL == "":
		fmt.Fprintln(stderr, "Error: -url is required")
		fs.Usage()
		return ExitInvalidArgs
	case toBucket && (*bucket == "" || *object == ""):
		fmt.Fprintln(stderr, "Error: -bucket and -object must be given together")
		return ExitInvalidArgs
	case toBucket == (*output != ""):
		fmt.Fprintln(stderr, "Error: give either -output or -bucket and -object")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext(true)
	defer cancel()

	logger := newLogger(cfg)
	client := newClient(cfg)

	info, err := downloader.GetFileInfo(ctx, client, cfg.URL)
	if err != nil {
		fmt.Fprintf(stderr, "Error accessing source URL: %v\n", err)
		return ExitSourceNotAccess
	}
	if info.Size < 0 {
		fmt.Fprintln(stderr, "Error: Server did not report the file size")
		return ExitSourceNotAccess
	}
	if !info.AcceptsRanges {
		fmt.Fprintln(stderr, "Error: Server does not support range requests")
		return ExitRangeNotSupported
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalSize:      info.Size,
			TotalRanges:    len(downloader.Plan(info.Size, cfg.ChunkSize)),
			Concurrency:    cfg.Concurrency,
			Output:         stderr,
			UpdateInterval: 5 * time.Second,
			SourceURL:      cfg.URL,
			RangeSize:      cfg.ChunkSize,
		})
	}

	opts := downloader.Options{
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		StateInterval: *stateInterval,
		Force:         *force,
		NoChecksum:    *noChecksum,
		Client:        client,
		Logger:        logger,
		Progress:      reporter,
	}

	var dest string
	if toBucket {
		bkt, err := blob.OpenBucket(ctx, *bucket)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
			return ExitStorageError
		}
		defer bkt.Close()

		dest = *bucket + "/" + *object
		err = downloader.ToBucket(ctx, cfg.URL, bkt, *object, opts)
		if code := fetchExitCode(err, toBucket); code != ExitSuccess {
			return code
		}
		fmt.Fprintf(stderr, "[pdfrange] Manifest: %s/%s.manifest.json\n", *bucket, *object)
	} else {
		dest = *output
		err = downloader.ToFile(ctx, cfg.URL, *output, opts)
		if code := fetchExitCode(err, toBucket); code != ExitSuccess {
			return code
		}
	}

	fmt.Fprintf(stderr, "[pdfrange] Fetch complete: %s\n", dest)
	return ExitSuccess
}

func fetchExitCode(err error, resumable bool) int {
	if err == nil {
		return ExitSuccess
	}

	var incomplete *downloader.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		for _, r := range incomplete.Missing {
			fmt.Fprintf(stderr, "  missing %s\n", r)
		}
		if resumable {
			fmt.Fprintln(stderr, "[pdfrange] Delivered ranges are stored; run again to fetch the rest")
		}
		return ExitIncomplete
	case errors.Is(err, downloader.ErrRangeNotSupported):
		fmt.Fprintln(stderr, "Error: Server does not support range requests")
		return ExitRangeNotSupported
	case errors.Is(err, sharded.ErrSourceChanged):
		fmt.Fprintln(stderr, "Error: Source file has changed since last fetch attempt")
		fmt.Fprintln(stderr, "Use -force to restart from scratch")
		return ExitGeneralError
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
}
