// File: internal/sheet/layout_test.go
package sheet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

func sheetConfig() config.SheetConfig {
	return config.SheetConfig{
		LayoutCacheTTL:    30 * time.Second,
		DefaultLeft:       48,
		DefaultTop:        201,
		DefaultCellWidth:  72,
		DefaultCellHeight: 21,
		CellControlTypes:  []string{"DataItem"},
	}
}

func testWindow() ui.Window {
	return ui.Window{
		ID:      "w1",
		Process: "EXCEL.EXE",
		Bounds:  ui.Rect{Left: 0, Top: 0, Right: 800, Bottom: 600},
	}
}

// headerLandmarks builds four row headers and four column headers laid out
// on a 72x21 grid with the worksheet origin at (50, 200).
func headerLandmarks() []ui.NativeControl {
	var out []ui.NativeControl
	for i := 0; i < 4; i++ {
		out = append(out, &fakeNative{
			text: fmt.Sprint(i + 1),
			rect: ui.Rect{Left: 20, Top: float64(200 + i*21), Right: 50, Bottom: float64(221 + i*21)},
		})
	}
	for i, name := range []string{"A", "B", "C", "D"} {
		out = append(out, &fakeNative{
			text: name,
			rect: ui.Rect{Left: float64(50 + i*72), Top: 180, Right: float64(122 + i*72), Bottom: 200},
		})
	}
	return out
}

func TestDetectMeasuresGridFromHeaders(t *testing.T) {
	driver := &fakeDriver{window: testWindow(), controls: headerLandmarks()}
	engine := NewLayoutEngine(sheetConfig(), driver, zap.NewNop())

	layout := engine.Detect(context.Background(), testWindow())

	assert.InDelta(t, 50, layout.WorksheetLeft, 0.01)
	assert.InDelta(t, 200, layout.WorksheetTop, 0.01)
	assert.InDelta(t, 72, layout.CellWidth, 0.01)
	assert.InDelta(t, 21, layout.CellHeight, 0.01)
}

func TestDetectWithoutLandmarksReturnsDefault(t *testing.T) {
	driver := &fakeDriver{window: testWindow()}
	engine := NewLayoutEngine(sheetConfig(), driver, zap.NewNop())

	layout := engine.Detect(context.Background(), testWindow())

	assert.Equal(t, DefaultLayout(sheetConfig()), layout)
}

func TestDetectFailureCachesDefault(t *testing.T) {
	driver := &fakeDriver{window: testWindow(), listErr: fmt.Errorf("walk failed")}
	engine := NewLayoutEngine(sheetConfig(), driver, zap.NewNop())

	layout := engine.Detect(context.Background(), testWindow())
	require.Equal(t, DefaultLayout(sheetConfig()), layout)

	// The default is cached: repeated failures within the TTL do not re-pay
	// the detection cost.
	engine.Detect(context.Background(), testWindow())
	assert.Equal(t, 1, driver.listCalls)
}

func TestDetectCacheTTLAndInvalidation(t *testing.T) {
	driver := &fakeDriver{window: testWindow(), controls: headerLandmarks()}
	engine := NewLayoutEngine(sheetConfig(), driver, zap.NewNop())

	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return clock }

	engine.Detect(context.Background(), testWindow())
	engine.Detect(context.Background(), testWindow())
	assert.Equal(t, 1, driver.listCalls)

	clock = clock.Add(31 * time.Second)
	engine.Detect(context.Background(), testWindow())
	assert.Equal(t, 2, driver.listCalls)

	engine.Invalidate(testWindow().ID)
	engine.Detect(context.Background(), testWindow())
	assert.Equal(t, 3, driver.listCalls)
}

func TestMedianSpacingIsRobustToMergedHeaders(t *testing.T) {
	rects := []ui.Rect{
		{Left: 0, Right: 10}, {Left: 72, Right: 82}, {Left: 144, Right: 154},
		{Left: 216, Right: 226}, {Left: 500, Right: 510}, // Outlier gap.
	}
	gap, ok := medianSpacing(rects, func(r ui.Rect) float64 { return r.Left })
	require.True(t, ok)
	assert.InDelta(t, 72, gap, 0.01)
}
