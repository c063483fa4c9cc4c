// File: internal/sheet/resolver.go
// Description: The cell-range coordinate resolver. Turns (row, col) ranges
// into window-relative rectangles, preferring live annotated cell controls
// and degrading through the cached layout model. Every resolution reports
// which tier produced it, so the evidence record can show degraded precision.

package sheet

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

// Resolution tiers, strongest first. The tier is carried into the step's
// control log so a reviewer can tell a measured rectangle from an estimate.
const (
	TierAnnotation = "annotation"
	TierLandmark   = "landmark"
	TierScripting  = "scripting"
	TierHeaderText = "header_text"
	TierEstimate   = "estimate"
)

// scriptingProbeLimit bounds the column scan when reading header values
// through the host's scripting interface.
const scriptingProbeLimit = 64

// Resolver resolves worksheet ranges to pixel rectangles for one window.
type Resolver struct {
	engine    *LayoutEngine
	driver    ui.Driver
	cellTypes map[string]struct{}
	logger    *zap.Logger
}

// NewResolver builds a resolver. cellTypes names the control types that
// represent worksheet cells in the API annotation dictionary.
func NewResolver(engine *LayoutEngine, driver ui.Driver, cellTypes []string, logger *zap.Logger) *Resolver {
	types := make(map[string]struct{}, len(cellTypes))
	for _, t := range cellTypes {
		types[strings.ToLower(t)] = struct{}{}
	}
	return &Resolver{
		engine:    engine,
		driver:    driver,
		cellTypes: types,
		logger:    logger.Named("sheet.resolver"),
	}
}

// ResolveRangeRect resolves an inclusive (startRow, startCol)..(endRow,
// endCol) range to a window-relative rectangle.
//
// Tier 1 bounds the actual annotated cell controls whose inferred address
// falls inside the range. Tier 2 computes the rectangle arithmetically from
// the cached layout when no annotated cell matches. Both tiers clamp to the
// window's client area.
func (r *Resolver) ResolveRangeRect(ctx context.Context, win ui.Window, apiDict *ui.Annotation, startRow, startCol, endRow, endCol int) (ui.Rect, string) {
	if startRow > endRow {
		startRow, endRow = endRow, startRow
	}
	if startCol > endCol {
		startCol, endCol = endCol, startCol
	}

	layout := r.engine.Detect(ctx, win)
	client := ui.Rect{Right: win.Bounds.Width(), Bottom: win.Bounds.Height()}

	if rect, ok := r.boundAnnotatedCells(win, apiDict, layout, startRow, startCol, endRow, endCol); ok {
		return rect.Clamp(client), TierAnnotation
	}

	rect := ui.Rect{
		Left:   layout.WorksheetLeft + float64(startCol-1)*layout.CellWidth,
		Top:    layout.WorksheetTop + float64(startRow-1)*layout.CellHeight,
		Right:  layout.WorksheetLeft + float64(endCol)*layout.CellWidth,
		Bottom: layout.WorksheetTop + float64(endRow)*layout.CellHeight,
	}
	return rect.Clamp(client), TierLandmark
}

// boundAnnotatedCells computes the bounding rectangle over every annotated
// cell control addressed inside the requested range.
func (r *Resolver) boundAnnotatedCells(win ui.Window, apiDict *ui.Annotation, layout Layout, startRow, startCol, endRow, endCol int) (ui.Rect, bool) {
	if apiDict == nil {
		return ui.Rect{}, false
	}

	var bound ui.Rect
	found := false
	apiDict.Each(func(_ int, c ui.Control) bool {
		if !r.isCellControl(c) {
			return true
		}
		rect := c.Rect().RelativeTo(win.Bounds)
		row, col, ok := r.cellAddress(c, rect, layout)
		if !ok || row < startRow || row > endRow || col < startCol || col > endCol {
			return true
		}
		bound = bound.Union(rect)
		found = true
		return true
	})
	return bound, found
}

func (r *Resolver) isCellControl(c ui.Control) bool {
	if len(r.cellTypes) == 0 {
		return false
	}
	_, ok := r.cellTypes[strings.ToLower(c.ControlType())]
	return ok
}

// cellAddress infers a cell control's (row, col). A cell-address-shaped text
// label ("B5") is authoritative; otherwise the control's center is projected
// through the layout model.
func (r *Resolver) cellAddress(c ui.Control, rect ui.Rect, layout Layout) (int, int, bool) {
	if row, col, ok := ParseCellAddress(c.Text()); ok {
		return row, col, true
	}
	cx, cy := rect.Center()
	if cx < layout.WorksheetLeft || cy < layout.WorksheetTop || layout.CellWidth <= 0 || layout.CellHeight <= 0 {
		return 0, 0, false
	}
	col := int((cx-layout.WorksheetLeft)/layout.CellWidth) + 1
	row := int((cy-layout.WorksheetTop)/layout.CellHeight) + 1
	return row, col, true
}

// ResolveColumnOrderRect resolves a column-reorder target: the union of the
// columns named by desiredOrder, spanning the visible worksheet height.
//
// Three tiers: read header values through the host's scripting interface,
// match annotated header text, or estimate the first len(desiredOrder)
// columns from the layout alone. The tier is returned for the control log.
func (r *Resolver) ResolveColumnOrderRect(ctx context.Context, win ui.Window, apiDict *ui.Annotation, desiredOrder []string) (ui.Rect, string) {
	layout := r.engine.Detect(ctx, win)
	client := ui.Rect{Right: win.Bounds.Width(), Bottom: win.Bounds.Height()}

	if rect, ok := r.columnsByScripting(ctx, win, layout, desiredOrder); ok {
		return rect.Clamp(client), TierScripting
	}
	if rect, ok := r.columnsByHeaderText(win, apiDict, desiredOrder); ok {
		return rect.Clamp(client), TierHeaderText
	}

	rect := ui.Rect{
		Left:   layout.WorksheetLeft,
		Top:    layout.WorksheetTop,
		Right:  layout.WorksheetLeft + float64(len(desiredOrder))*layout.CellWidth,
		Bottom: win.Bounds.Height(),
	}
	return rect.Clamp(client), TierEstimate
}

// columnsByScripting reads the first worksheet row through the host's own
// scripting handle and unions the columns whose header value matches a
// desired name.
func (r *Resolver) columnsByScripting(ctx context.Context, win ui.Window, layout Layout, desiredOrder []string) (ui.Rect, bool) {
	handle, ok := r.driver.Scripting(win)
	if !ok {
		return ui.Rect{}, false
	}

	wanted := make(map[string]struct{}, len(desiredOrder))
	for _, name := range desiredOrder {
		wanted[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	var bound ui.Rect
	found := false
	for col := 1; col <= scriptingProbeLimit; col++ {
		value, err := handle.CellValue(ctx, 1, col)
		if err != nil {
			r.logger.Debug("Scripting readback stopped",
				zap.Int("column", col), zap.Error(err))
			break
		}
		if value == "" {
			break
		}
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(value))]; !ok {
			continue
		}
		bound = bound.Union(ui.Rect{
			Left:   layout.WorksheetLeft + float64(col-1)*layout.CellWidth,
			Top:    layout.WorksheetTop,
			Right:  layout.WorksheetLeft + float64(col)*layout.CellWidth,
			Bottom: win.Bounds.Height(),
		})
		found = true
	}
	return bound, found
}

// columnsByHeaderText unions the annotated controls whose text matches a
// desired column name, each extended down to the window bottom.
func (r *Resolver) columnsByHeaderText(win ui.Window, apiDict *ui.Annotation, desiredOrder []string) (ui.Rect, bool) {
	if apiDict == nil {
		return ui.Rect{}, false
	}

	wanted := make(map[string]struct{}, len(desiredOrder))
	for _, name := range desiredOrder {
		wanted[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	var bound ui.Rect
	found := false
	apiDict.Each(func(_ int, c ui.Control) bool {
		text := strings.ToLower(strings.TrimSpace(c.Text()))
		if _, ok := wanted[text]; !ok {
			return true
		}
		rect := c.Rect().RelativeTo(win.Bounds)
		rect.Bottom = win.Bounds.Height()
		bound = bound.Union(rect)
		found = true
		return true
	})
	return bound, found
}
