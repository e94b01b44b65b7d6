package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ligustah/pdfrange/internal/api"
	"github.com/ligustah/pdfrange/internal/config"
	"github.com/ligustah/pdfrange/internal/viewer"
)

// runServe runs the viewer API until interrupted.
func runServe(args []string) int {
	fs := newFlagSet("serve", `Usage: pdfrange serve [options]

Run the HTTP API used by the browser viewer. Documents come from the config
file's documents list, or the four bundled examples served from -pdf-dir.`)

	var common commonFlags
	common.register(fs)
	addr := fs.String("addr", "", "Listen address (default :8080)")
	pdfDir := fs.String("pdf-dir", "", "Directory served under /pdfs/")
	baseURL := fs.String("base-url", "", "Base URL for relative document URLs (default: request host)")
	sessionIdle := fs.Duration("session-idle", viewer.DefaultIdleTimeout, "Drop sessions unused for this long (0 keeps them until closed)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := loadConfig(common, config.Config{Server: config.ServerConfig{Addr: *addr}})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext(true)
	defer cancel()

	logger := newLogger(cfg)
	client := newClient(cfg)

	docs := make([]viewer.Document, 0, len(cfg.Documents))
	for _, d := range cfg.Documents {
		docs = append(docs, viewer.Document{Name: d.Name, URL: d.URL, Pages: d.Pages})
	}

	e := api.New(api.Options{
		Catalog:  viewer.NewCatalog(docs),
		Registry: viewer.NewRegistry(client, logger, viewer.WithIdleTimeout(*sessionIdle)),
		Client:   client,
		Logger:   logger,
		BaseURL:  *baseURL,
		PDFDir:   *pdfDir,
	})

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	return serve(ctx, ln, &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// serve runs srv on ln until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, ln net.Listener, srv *http.Server) int {
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(stderr, "[pdfrange] Listening on %s\n", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		return ExitSuccess
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
		return ExitGeneralError
	}
	return ExitSuccess
}
