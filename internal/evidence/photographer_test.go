// File: internal/evidence/photographer_test.go
package evidence

import (
	"context"
	"encoding/base64"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

var testBackground = color.NRGBA{R: 240, G: 240, B: 240, A: 255}

func testWindow() ui.Window {
	return ui.Window{ID: "w1", Process: "EXCEL.EXE", Bounds: ui.Rect{Left: 0, Top: 0, Right: 120, Bottom: 90}}
}

func newTestPhotographer(t *testing.T) (*Photographer, *fakeDriver, string) {
	t.Helper()
	driver := &fakeDriver{window: testWindow(), img: solidFrame(120, 90, testBackground)}
	return NewPhotographer(driver, zap.NewNop()), driver, t.TempDir()
}

func TestCaptureCleanSavesAndRetainsFrame(t *testing.T) {
	p, _, dir := newTestPhotographer(t)
	path := filepath.Join(dir, "clean.png")

	img, err := p.CaptureClean(context.Background(), testWindow(), path)
	require.NoError(t, err)
	require.NotNil(t, img)

	saved, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 120, saved.Bounds().Dx())
	assert.Equal(t, 90, saved.Bounds().Dy())
}

func TestSaveAnnotatedDrawsBorderAndBadge(t *testing.T) {
	p, _, dir := newTestPhotographer(t)
	base := solidFrame(120, 90, testBackground)
	dict := ui.Annotate([]ui.Control{
		&ui.VirtualControl{Bounds: ui.Rect{Left: 10, Top: 10, Right: 40, Bottom: 25}, Label: "save"},
	})
	path := filepath.Join(dir, "annotated.png")

	require.NoError(t, p.SaveAnnotated(base, testWindow(), dict, path))

	saved, err := imaging.Open(path)
	require.NoError(t, err)
	nrgba := imaging.Clone(saved)

	// Top border away from the label badge.
	assert.Equal(t, annotationBorder, nrgba.NRGBAAt(35, 10))
	// Label badge fill at the control's corner.
	assert.Equal(t, annotationFill, nrgba.NRGBAAt(11, 11))
	// Interior stays untouched.
	assert.Equal(t, testBackground, nrgba.NRGBAAt(30, 18))
}

func TestSaveHighlightedUsesRetainedCleanFrame(t *testing.T) {
	p, _, dir := newTestPhotographer(t)
	win := testWindow()

	_, err := p.CaptureClean(context.Background(), win, filepath.Join(dir, "clean.png"))
	require.NoError(t, err)

	// Pass a different base; the retained clean frame must win.
	other := solidFrame(120, 90, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	path := filepath.Join(dir, "highlighted.png")
	require.NoError(t, p.SaveHighlighted(other, win, []ui.Rect{{Left: 20, Top: 20, Right: 60, Bottom: 50}}, path))

	saved, err := imaging.Open(path)
	require.NoError(t, err)
	nrgba := imaging.Clone(saved)
	assert.Equal(t, highlightBorder, nrgba.NRGBAAt(40, 20))
	assert.Equal(t, testBackground, nrgba.NRGBAAt(40, 40))
}

func TestSaveConcatPlacesFramesSideBySide(t *testing.T) {
	p, _, dir := newTestPhotographer(t)
	left := solidFrame(40, 30, color.NRGBA{R: 10, G: 0, B: 0, A: 255})
	right := solidFrame(40, 50, color.NRGBA{R: 0, G: 10, B: 0, A: 255})
	path := filepath.Join(dir, "concat.png")

	require.NoError(t, p.SaveConcat(left, right, path))

	saved, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 80, saved.Bounds().Dx())
	assert.Equal(t, 50, saved.Bounds().Dy())
}

func TestCropIconsCutsControlsFromCleanFrame(t *testing.T) {
	p, _, dir := newTestPhotographer(t)
	win := testWindow()
	_, err := p.CaptureClean(context.Background(), win, filepath.Join(dir, "clean.png"))
	require.NoError(t, err)

	dict := ui.Annotate([]ui.Control{
		&ui.VirtualControl{Bounds: ui.Rect{Left: 10, Top: 10, Right: 40, Bottom: 25}},
		&ui.VirtualControl{Bounds: ui.Rect{Left: 500, Top: 500, Right: 520, Bottom: 510}}, // Off frame.
	})

	icons := p.CropIcons(win, dict)

	require.Contains(t, icons, 1)
	assert.Equal(t, 30, icons[1].Bounds().Dx())
	assert.Equal(t, 15, icons[1].Bounds().Dy())
	assert.NotContains(t, icons, 2)
}

func TestCropIconsWithoutCleanFrame(t *testing.T) {
	p, _, _ := newTestPhotographer(t)
	assert.Nil(t, p.CropIcons(testWindow(), ui.Annotate(nil)))
}

func TestEncodeBase64ProducesPNG(t *testing.T) {
	encoded, err := EncodeBase64(solidFrame(4, 4, testBackground))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw[:4])
}
