package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ligustah/pdfrange/internal/config"
	"github.com/ligustah/pdfrange/internal/linearized"
)

// runProbe reports whether the PDF at -url is linearized.
func runProbe(args []string) int {
	fs := newFlagSet("probe", `Usage: pdfrange probe [options]

Request the first 1 KiB of a PDF and report whether it is linearized.
Prints true or false. A failed probe prints false and exits with code 3.`)

	var common commonFlags
	common.register(fs)
	url := fs.String("url", "", "PDF URL (required)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := loadConfig(common, config.Config{URL: *url})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if cfg.URL == "" {
		fmt.Fprintln(stderr, "Error: -url is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext(false)
	defer cancel()

	logger := newLogger(cfg)
	ok, err := linearized.Check(ctx, newClient(cfg), cfg.URL)
	if err != nil {
		logger.Error("Error checking if PDF is linearized", "url", cfg.URL, "error", err)
		fmt.Fprintln(stdout, false)
		return ExitSourceNotAccess
	}

	fmt.Fprintln(stdout, ok)
	return ExitSuccess
}

// runInfo prints what the server reports about -url.
func runInfo(args []string) int {
	fs := newFlagSet("info", `Usage: pdfrange info [options]

Show the size, ETag, range support and linearization of a remote PDF.`)

	var common commonFlags
	common.register(fs)
	url := fs.String("url", "", "PDF URL (required)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := loadConfig(common, config.Config{URL: *url})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if cfg.URL == "" {
		fmt.Fprintln(stderr, "Error: -url is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext(false)
	defer cancel()

	client := newClient(cfg)
	info, err := client.Head(ctx, cfg.URL)
	if err != nil {
		fmt.Fprintf(stderr, "Error accessing source URL: %v\n", err)
		return ExitSourceNotAccess
	}

	fmt.Fprintf(stdout, "URL: %s\n", cfg.URL)
	if info.Size >= 0 {
		fmt.Fprintf(stdout, "Size: %s (%d bytes)\n", humanize.IBytes(uint64(info.Size)), info.Size)
	} else {
		fmt.Fprintln(stdout, "Size: unknown")
	}
	if info.ContentType != "" {
		fmt.Fprintf(stdout, "Content-Type: %s\n", info.ContentType)
	}
	if info.ETag != "" {
		fmt.Fprintf(stdout, "ETag: %s\n", info.ETag)
	}
	if !info.LastModified.IsZero() {
		fmt.Fprintf(stdout, "Last-Modified: %s (%s)\n",
			info.LastModified.Format(time.RFC1123), humanize.Time(info.LastModified))
	}
	fmt.Fprintf(stdout, "Accepts ranges: %v\n", info.AcceptsRanges)

	lin, err := linearized.Check(ctx, client, cfg.URL)
	if err != nil {
		fmt.Fprintf(stdout, "Linearized: unknown (%v)\n", err)
	} else {
		fmt.Fprintf(stdout, "Linearized: %v\n", lin)
	}

	if !info.AcceptsRanges {
		return ExitRangeNotSupported
	}
	return ExitSuccess
}
