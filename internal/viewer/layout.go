package viewer

// US Letter in points.
const (
	PageWidth  = 612.0
	PageHeight = 792.0
)

const (
	viewportPadding = 40.0
	maxViewport     = 1200.0
	maxScale        = 1.5
)

// Layout is the page geometry for a viewport width.
type Layout struct {
	Scale      float64 `json:"scale"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
}

// MinViewportWidth is the smallest width that yields a positive scale.
const MinViewportWidth = viewportPadding

// ScaleForViewport returns the render scale that fits a page into a
// viewport of the given width, capped at 1.5.
func ScaleForViewport(width float64) float64 {
	available := min(width-viewportPadding, maxViewport)
	target := min(available, PageWidth*maxScale)
	return target / PageWidth
}

// LayoutForViewport returns the scale and estimated page size for width.
func LayoutForViewport(width float64) Layout {
	scale := ScaleForViewport(width)
	return Layout{
		Scale:      scale,
		PageWidth:  PageWidth * scale,
		PageHeight: PageHeight * scale,
	}
}
