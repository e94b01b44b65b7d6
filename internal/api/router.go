// Package api serves the HTTP API used by the browser viewer.
package api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/ligustah/pdfrange/internal/api/controllers"
	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/logging"
	"github.com/ligustah/pdfrange/internal/viewer"
)

// Options configures the API.
type Options struct {
	Catalog  *viewer.Catalog
	Registry *viewer.Registry
	Client   *pdfhttp.Client
	Logger   *slog.Logger

	// BaseURL resolves relative document URLs. Empty means the URL of the
	// incoming request.
	BaseURL string

	// PDFDir, if set, is served under /pdfs/.
	PDFDir string
}

// New returns an echo instance with all routes registered.
func New(opts Options) *echo.Echo {
	if opts.Client == nil {
		opts.Client = pdfhttp.NewClient(pdfhttp.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Catalog == nil {
		opts.Catalog = viewer.NewCatalog(nil)
	}
	if opts.Registry == nil {
		opts.Registry = viewer.NewRegistry(opts.Client, opts.Logger)
	}

	e := echo.New()
	RegisterRoutes(e, opts)
	return e
}

// RegisterRoutes adds the request logger and API routes to e.
func RegisterRoutes(e *echo.Echo, opts Options) {
	logger := opts.Logger

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	docCtrl := &controllers.DocumentController{
		Catalog: opts.Catalog,
		Client:  opts.Client,
		Logger:  logger,
		BaseURL: opts.BaseURL,
	}
	sessionCtrl := &controllers.SessionController{
		Catalog:  opts.Catalog,
		Registry: opts.Registry,
		BaseURL:  opts.BaseURL,
	}

	e.GET("/api/documents", docCtrl.List)
	e.GET("/api/probe", docCtrl.Probe)

	e.POST("/api/sessions", sessionCtrl.Open)
	e.GET("/api/sessions/:token", sessionCtrl.Show)
	e.GET("/api/sessions/:token/range", sessionCtrl.Range)
	e.DELETE("/api/sessions/:token", sessionCtrl.Close)

	if opts.PDFDir != "" {
		files := echo.WrapHandler(http.StripPrefix("/pdfs/", http.FileServer(http.Dir(opts.PDFDir))))
		e.GET("/pdfs/*", files)
		e.HEAD("/pdfs/*", files)
	}
}
