package main

import (
	"fmt"

	"gocloud.dev/blob"

	"github.com/ligustah/pdfrange/internal/progress"
	"github.com/ligustah/pdfrange/pkg/sharded"
)

// runValidate checks that a stored PDF is complete: every range exists with
// the recorded size and together they cover the file. No data is read.
func runValidate(args []string) int {
	fs := newFlagSet("validate", `Usage: pdfrange validate [options]

Verify that a PDF stored by 'pdfrange fetch' is complete and all ranges exist
with correct sizes. Only metadata is read.`)

	bucket := fs.String("bucket", "", "Bucket URL (required)")
	object := fs.String("object", "", "Object path (required)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if *bucket == "" || *object == "" {
		fmt.Fprintln(stderr, "Error: -bucket and -object are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext(false)
	defer cancel()

	bkt, err := blob.OpenBucket(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	result, err := sharded.Validate(ctx, bkt, *object)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(stdout, "File: %s\n", *object)
	fmt.Fprintf(stdout, "Total size: %s (%d bytes)\n", progress.FormatBytes(result.TotalSize), result.TotalSize)
	fmt.Fprintf(stdout, "Ranges: %d\n", result.ShardCount)

	if result.Valid {
		fmt.Fprintln(stdout, "Status: VALID")
		return ExitSuccess
	}

	fmt.Fprintln(stdout, "Status: INVALID")
	fmt.Fprintf(stdout, "Missing ranges: %d\n", result.MissingShards)
	fmt.Fprintf(stdout, "Size mismatches: %d\n", result.SizeMismatches)
	fmt.Fprintf(stdout, "Gaps: %d\n", len(result.Gaps))

	if len(result.Errors) > 0 {
		fmt.Fprintln(stdout, "\nErrors:")
		for _, e := range result.Errors {
			fmt.Fprintf(stdout, "  - %s\n", e)
		}
	}

	return ExitValidationFailed
}
