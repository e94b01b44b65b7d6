// Package progress provides progress reporting for range fetches.
//
// The reporter counts ranges as they are requested, delivered or lost and
// prints completion percentage, transfer speed and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalSize:   length,
//	    TotalRanges: numRanges,
//	    Output:      os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.RangeStarted()
//	reporter.RangeDelivered(int64(len(data)))
//
// # Output Format
//
//	[pdfrange] Fetching: https://example.com/file.pdf
//	[pdfrange] Total size: 12 MiB | Ranges: 192 x 64 KiB | Concurrency: 8
//	[pdfrange] Progress: 45.2% | 5.4 MiB / 12 MiB | Speed: 1.2 MiB/s | ETA: 6s
//	[pdfrange] Ranges: 87 delivered | 8 in-flight | 0 failed | 97 pending
package progress
