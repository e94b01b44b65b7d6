// Package downloader drives a transport.Transport the way a PDF engine does:
// it asks for every range of a file, collects deliveries and works out which
// ranges never arrived.
//
// # Usage
//
//	err := downloader.ToBucket(ctx, url, bucket, "docs/big.pdf", downloader.Options{
//	    ChunkSize:   64 * 1024,
//	    Concurrency: 8,
//	    Progress:    reporter,
//	})
//
// [ToFile] writes into a local file instead; [Download] takes any [Sink].
//
// # Concurrency
//
// At most Concurrency ranges are in flight. A slot is released by whichever
// transport hook settles the request, so a failed range never blocks the rest.
//
// # Failures
//
// The transport swallows failures. After all requests settle, ranges that
// were not delivered are returned in an [*IncompleteError]. With a bucket
// sink the delivered ranges stay stored and the next run requests only the
// missing ones.
package downloader
