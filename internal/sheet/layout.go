// File: internal/sheet/layout.go
// Description: The layout inference engine. Measures the host spreadsheet's
// chrome (worksheet origin and cell pixel size) by locating header landmarks,
// and caches the result per window with a short TTL. Used only as a fallback
// coordinate model when per-cell controls are not available.

package sheet

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

// Layout is the inferred worksheet pixel geometry, window-relative.
type Layout struct {
	WorksheetLeft float64 `json:"worksheet_left"`
	WorksheetTop  float64 `json:"worksheet_top"`
	CellWidth     float64 `json:"cell_width"`
	CellHeight    float64 `json:"cell_height"`
}

// DefaultLayout is the conservative geometry used whenever inference fails.
func DefaultLayout(cfg config.SheetConfig) Layout {
	return Layout{
		WorksheetLeft: float64(cfg.DefaultLeft),
		WorksheetTop:  float64(cfg.DefaultTop),
		CellWidth:     float64(cfg.DefaultCellWidth),
		CellHeight:    float64(cfg.DefaultCellHeight),
	}
}

// Sanity clamps applied to every inferred layout. Landmark misdetection must
// never produce a degenerate (zero or negative) cell size.
const (
	minCellWidth  = 8.0
	maxCellWidth  = 512.0
	minCellHeight = 4.0
	maxCellHeight = 256.0

	rowHeaderMaxWidth    = 64.0
	columnHeaderMaxHight = 48.0
)

var (
	numericText    = regexp.MustCompile(`^[0-9]+$`)
	alphabeticText = regexp.MustCompile(`^[A-Z]{1,2}$`)
	cellRefText    = regexp.MustCompile(`^[A-Z]{1,2}[0-9]+$`)
)

type cachedLayout struct {
	layout   Layout
	measured time.Time
}

// LayoutEngine infers and caches per-window layouts. One engine is created
// per session and threaded through explicitly; the cache is safe for use by
// the batch runner because window identities never collide across sessions.
type LayoutEngine struct {
	cfg    config.SheetConfig
	driver ui.Driver
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedLayout
}

// NewLayoutEngine builds a layout engine over the host driver.
func NewLayoutEngine(cfg config.SheetConfig, driver ui.Driver, logger *zap.Logger) *LayoutEngine {
	return &LayoutEngine{
		cfg:    cfg,
		driver: driver,
		logger: logger.Named("sheet.layout"),
		now:    time.Now,
		cache:  make(map[string]cachedLayout),
	}
}

// Detect returns the window's layout, measuring it at most once per TTL.
// Measurement failure yields the default layout, which is also cached so
// repeated failures do not re-pay the detection cost within the TTL.
func (e *LayoutEngine) Detect(ctx context.Context, win ui.Window) Layout {
	e.mu.Lock()
	if entry, ok := e.cache[win.ID]; ok && e.now().Sub(entry.measured) < e.cfg.LayoutCacheTTL {
		e.mu.Unlock()
		return entry.layout
	}
	e.mu.Unlock()

	layout, err := e.measure(ctx, win)
	if err != nil {
		e.logger.Warn("Layout inference failed; caching default geometry",
			zap.String("window", win.ID), zap.Error(err))
		layout = DefaultLayout(e.cfg)
	}

	e.mu.Lock()
	e.cache[win.ID] = cachedLayout{layout: layout, measured: e.now()}
	e.mu.Unlock()
	return layout
}

// Invalidate drops the cached layout for one window.
func (e *LayoutEngine) Invalidate(windowID string) {
	e.mu.Lock()
	delete(e.cache, windowID)
	e.mu.Unlock()
}

// measure scans the window's descendants for chrome landmarks and derives the
// geometry from them. Every output is clamped; any missing landmark falls back
// to the corresponding default dimension.
func (e *LayoutEngine) measure(ctx context.Context, win ui.Window) (Layout, error) {
	natives, err := e.driver.ListControls(ctx, win, nil)
	if err != nil {
		return Layout{}, err
	}

	def := DefaultLayout(e.cfg)
	var (
		nameBox    *ui.Rect
		formulaBar *ui.Rect
		rowHeaders []ui.Rect
		colHeaders []ui.Rect
	)

	for _, n := range natives {
		rect := n.Rect().RelativeTo(win.Bounds)
		if rect.Empty() {
			continue
		}
		text := strings.ToUpper(strings.TrimSpace(n.Text()))
		class := strings.ToLower(n.ClassName())

		switch {
		case strings.Contains(class, "namebox") || (cellRefText.MatchString(text) && rect.Width() < 160 && rect.Top < def.WorksheetTop):
			if nameBox == nil {
				r := rect
				nameBox = &r
			}
		case strings.Contains(class, "formulabar"):
			if formulaBar == nil {
				r := rect
				formulaBar = &r
			}
		case numericText.MatchString(text) && rect.Width() <= rowHeaderMaxWidth && rect.Width() < rect.Height()*4:
			rowHeaders = append(rowHeaders, rect)
		case alphabeticText.MatchString(text) && rect.Height() <= columnHeaderMaxHight && rect.Height() < rect.Width()*4:
			colHeaders = append(colHeaders, rect)
		}
	}

	layout := def

	// Worksheet origin: the right edge of the row headers and the bottom edge
	// of the column headers, with chrome landmarks as progressively weaker
	// fallbacks.
	if left, ok := rightmostEdge(rowHeaders); ok {
		layout.WorksheetLeft = left
	} else if nameBox != nil {
		layout.WorksheetLeft = nameBox.Left
	}
	if top, ok := bottommostEdge(colHeaders); ok {
		layout.WorksheetTop = top
	} else if formulaBar != nil {
		layout.WorksheetTop = formulaBar.Bottom
	} else if nameBox != nil {
		layout.WorksheetTop = nameBox.Bottom
	}

	if w, ok := medianSpacing(colHeaders, func(r ui.Rect) float64 { return r.Left }); ok {
		layout.CellWidth = w
	}
	if h, ok := medianSpacing(rowHeaders, func(r ui.Rect) float64 { return r.Top }); ok {
		layout.CellHeight = h
	}

	layout.CellWidth = clamp(layout.CellWidth, minCellWidth, maxCellWidth)
	layout.CellHeight = clamp(layout.CellHeight, minCellHeight, maxCellHeight)
	layout.WorksheetLeft = clamp(layout.WorksheetLeft, 0, win.Bounds.Width())
	layout.WorksheetTop = clamp(layout.WorksheetTop, 0, win.Bounds.Height())

	return layout, nil
}

func rightmostEdge(rects []ui.Rect) (float64, bool) {
	if len(rects) == 0 {
		return 0, false
	}
	edge := rects[0].Right
	for _, r := range rects[1:] {
		if r.Right > edge {
			edge = r.Right
		}
	}
	return edge, true
}

func bottommostEdge(rects []ui.Rect) (float64, bool) {
	if len(rects) == 0 {
		return 0, false
	}
	edge := rects[0].Bottom
	for _, r := range rects[1:] {
		if r.Bottom > edge {
			edge = r.Bottom
		}
	}
	return edge, true
}

// medianSpacing derives a cell dimension from the median gap between
// consecutive sorted header positions. Median over mean: a merged or frozen
// header produces one outlier gap, not a skewed average.
func medianSpacing(rects []ui.Rect, pos func(ui.Rect) float64) (float64, bool) {
	if len(rects) < 2 {
		return 0, false
	}
	positions := make([]float64, 0, len(rects))
	for _, r := range rects {
		positions = append(positions, pos(r))
	}
	sort.Float64s(positions)

	gaps := make([]float64, 0, len(positions)-1)
	for i := 1; i < len(positions); i++ {
		if gap := positions[i] - positions[i-1]; gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return 0, false
	}
	sort.Float64s(gaps)
	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid], true
	}
	return (gaps[mid-1] + gaps[mid]) / 2, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
