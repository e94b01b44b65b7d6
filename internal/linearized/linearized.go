// Package linearized tells whether a remote PDF is linearized (laid out for
// fast web view) by sampling the start of the file.
package linearized

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding/charmap"

	pdfhttp "github.com/ligustah/pdfrange/internal/http"
)

const (
	// SampleSize is the number of leading bytes requested. The linearization
	// dictionary has to appear within it.
	SampleSize = 1024

	// Marker is the dictionary key that identifies a linearized file.
	Marker = "/Linearized"
)

// Check fetches the first SampleSize bytes of url and reports whether they
// contain Marker. Both 206 and a plain 200 are accepted.
func Check(ctx context.Context, client *pdfhttp.Client, url string) (bool, error) {
	resp, err := client.GetRange(ctx, url, 0, SampleSize-1)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	// A server ignoring the range may send the whole file.
	sample, err := io.ReadAll(io.LimitReader(resp.Body, SampleSize))
	if err != nil {
		return false, fmt.Errorf("read sample: %w", err)
	}

	return Contains(sample)
}

// Probe is Check with every error logged and turned into false.
func Probe(ctx context.Context, client *pdfhttp.Client, url string, logger *slog.Logger) bool {
	ok, err := Check(ctx, client, url)
	if err != nil {
		if logger != nil {
			logger.Error("Error checking if PDF is linearized", "url", url, "error", err)
		}
		return false
	}
	return ok
}

// Contains decodes sample as ISO-8859-1 and searches it for Marker.
func Contains(sample []byte) (bool, error) {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(sample)
	if err != nil {
		return false, fmt.Errorf("decode sample: %w", err)
	}
	return strings.Contains(string(text), Marker), nil
}
