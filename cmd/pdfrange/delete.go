package main

import (
	"bufio"
	"fmt"
	"strings"

	"gocloud.dev/blob"

	"github.com/ligustah/pdfrange/pkg/sharded"
)

// runDelete removes a stored PDF and all its ranges.
// Prompts for confirmation unless -force is given.
func runDelete(args []string) int {
	fs := newFlagSet("delete", `Usage: pdfrange delete [options]

Remove a stored PDF and all its ranges from object storage.`)

	bucket := fs.String("bucket", "", "Bucket URL (required)")
	object := fs.String("object", "", "Object path (required)")
	force := fs.Bool("force", false, "Skip confirmation prompt")
	partial := fs.Bool("partial", false, "Delete an incomplete fetch using its resume state")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if *bucket == "" || *object == "" {
		fmt.Fprintln(stderr, "Error: -bucket and -object are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	if !*force {
		fmt.Fprintf(stdout, "Delete %s from %s? [y/N]: ", *object, *bucket)
		response, _ := bufio.NewReader(stdin).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(stderr, "Cancelled")
			return ExitSuccess
		}
	}

	ctx, cancel := signalContext(false)
	defer cancel()

	bkt, err := blob.OpenBucket(ctx, *bucket)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	if *partial {
		err = sharded.DeletePartial(ctx, bkt, *object)
	} else {
		err = sharded.Delete(ctx, bkt, *object)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(stderr, "[pdfrange] Deleted: %s\n", *object)
	return ExitSuccess
}
