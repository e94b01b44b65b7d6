// Package http provides the HTTP client used to pull byte ranges of remote PDFs.
//
// This package handles:
//   - HEAD requests to learn a file's length and range support
//   - Range GETs accepting both 206 Partial Content and a 200 fallback
//   - Content-Range parsing
//   - Optional retry with exponential backoff (off by default)
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	// Get file info
//	info, err := client.Head(ctx, url)
//	// info.Size, info.ETag, info.AcceptsRanges
//
//	// Fetch bytes 100..199
//	resp, err := client.GetRange(ctx, url, 100, 199)
//	defer resp.Body.Close()
package http
