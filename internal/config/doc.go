// Package config defines configuration structures for pdfrange.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (PDFRANGE_ prefix)
//   - YAML configuration file
//
// # Example
//
//	url: https://example.com/big.pdf
//	chunk_size: 64KiB
//	concurrency: 8
//	timeout: 30s
//	retry:
//	  attempts: 0
//	log:
//	  level: info
//	  format: text
//	server:
//	  addr: ":8080"
//	documents:
//	  - name: Example 1
//	    url: https://example.com/example-1.pdf
//	    pages: 7
package config
