package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"

	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/viewer"
)

type SessionController struct {
	Catalog  *viewer.Catalog
	Registry *viewer.Registry
	BaseURL  string
}

type openRequest struct {
	Document int     `json:"document"`
	Width    float64 `json:"width"`
}

type sessionView struct {
	Token      string        `json:"token"`
	Document   string        `json:"document"`
	URL        string        `json:"url"`
	Pages      int           `json:"pages"`
	Length     int64         `json:"length"`
	Linearized bool          `json:"linearized"`
	Layout     viewer.Layout `json:"layout"`
	OpenedAt   time.Time     `json:"opened_at"`
}

func newSessionView(s *viewer.Session) sessionView {
	return sessionView{
		Token:      s.Token,
		Document:   s.Document.Name,
		URL:        s.Document.URL,
		Pages:      s.Document.Pages,
		Length:     s.Length,
		Linearized: s.Linearized,
		Layout:     s.Layout,
		OpenedAt:   s.OpenedAt,
	}
}

// Open loads a catalog document and starts a session for it.
func (ctrl *SessionController) Open(c *echo.Context) error {
	var req openRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Width <= viewer.MinViewportWidth {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("width must be greater than %v", viewer.MinViewportWidth))
	}

	doc, err := ctrl.Catalog.Get(req.Document)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	doc.URL, err = resolveURL(c, ctrl.BaseURL, doc.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "invalid document url")
	}

	s, err := ctrl.Registry.Open(c.Request().Context(), doc, req.Width)
	if err != nil {
		return echo.NewHTTPError(upstreamStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, newSessionView(s))
}

// Show returns the session for :token.
func (ctrl *SessionController) Show(c *echo.Context) error {
	s, err := ctrl.Registry.Get(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, newSessionView(s))
}

// Range returns the bytes [begin, end) of the session's document.
func (ctrl *SessionController) Range(c *echo.Context) error {
	s, err := ctrl.Registry.Get(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	begin, err := strconv.ParseInt(c.QueryParam("begin"), 10, 64)
	if err != nil || begin < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "begin must be a non-negative integer")
	}
	end, err := strconv.ParseInt(c.QueryParam("end"), 10, 64)
	if err != nil || end <= begin {
		return echo.NewHTTPError(http.StatusBadRequest, "end must be an integer greater than begin")
	}

	data, err := s.Transport.Fetch(c.Request().Context(), begin, end)
	if err != nil {
		return echo.NewHTTPError(upstreamStatus(err), err.Error())
	}
	// A source that ignores Range answers 200 with the whole file; those
	// bytes do not start at begin.
	if want := min(end, s.Length) - begin; int64(len(data)) != want {
		return echo.NewHTTPError(http.StatusBadGateway,
			fmt.Sprintf("source returned %d bytes for a %d byte range", len(data), want))
	}

	c.Response().Header().Set("X-Range-Begin", strconv.FormatInt(begin, 10))
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
}

// Close ends the session for :token.
func (ctrl *SessionController) Close(c *echo.Context) error {
	if err := ctrl.Registry.Close(c.Param("token")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// resolveURL makes a relative document URL absolute against base, or the
// request's own scheme and host when base is empty.
func resolveURL(c *echo.Context, base, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return ref, nil
	}

	if base == "" {
		base = fmt.Sprintf("%s://%s", c.Scheme(), c.Request().Host)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(u).String(), nil
}

// upstreamStatus maps a source error to the status returned to the client.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, pdfhttp.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pdfhttp.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, viewer.ErrUnknownLength):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
