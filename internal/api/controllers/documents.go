package controllers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/linearized"
	"github.com/ligustah/pdfrange/internal/viewer"
)

type DocumentController struct {
	Catalog *viewer.Catalog
	Client  *pdfhttp.Client
	Logger  *slog.Logger
	BaseURL string
}

type documentEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Pages int    `json:"pages"`
	Label string `json:"label"`
}

type documentList struct {
	Documents []documentEntry `json:"documents"`
	Default   int             `json:"default"`
}

// List returns the catalog in picker order.
func (ctrl *DocumentController) List(c *echo.Context) error {
	docs := ctrl.Catalog.Documents()
	out := documentList{
		Documents: make([]documentEntry, 0, len(docs)),
		Default:   viewer.DefaultIndex,
	}
	for i, d := range docs {
		out.Documents = append(out.Documents, documentEntry{
			Index: i,
			Name:  d.Name,
			URL:   d.URL,
			Pages: d.Pages,
			Label: d.Label(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type probeResult struct {
	Document   int    `json:"document"`
	URL        string `json:"url"`
	Linearized bool   `json:"linearized"`
	Error      string `json:"error,omitempty"`
}

// Probe reports whether the catalog document at ?document= is linearized.
// Only catalog documents can be probed; the server does not fetch URLs
// supplied by the caller. A failed probe is not an HTTP error: the answer
// is false and the cause is included.
func (ctrl *DocumentController) Probe(c *echo.Context) error {
	index, err := strconv.Atoi(c.QueryParam("document"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document must be a catalog index")
	}
	doc, err := ctrl.Catalog.Get(index)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	url, err := resolveURL(c, ctrl.BaseURL, doc.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "invalid document url")
	}

	ok, err := linearized.Check(c.Request().Context(), ctrl.Client, url)
	res := probeResult{Document: index, URL: url, Linearized: ok}
	if err != nil {
		ctrl.Logger.Error("Error checking if PDF is linearized", "url", url, "error", err)
		res.Linearized = false
		res.Error = err.Error()
	}
	return c.JSON(http.StatusOK, res)
}
