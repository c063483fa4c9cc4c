// File: internal/evidence/fakes_test.go
package evidence

import (
	"context"
	"image"
	"image/color"

	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

type fakeDriver struct {
	window     ui.Window
	img        image.Image
	captureErr error
}

func (d *fakeDriver) FindWindow(context.Context, string, string) (ui.Window, error) {
	return d.window, nil
}

func (d *fakeDriver) ListControls(context.Context, ui.Window, []string) ([]ui.NativeControl, error) {
	return nil, nil
}

func (d *fakeDriver) CaptureWindow(context.Context, ui.Window) (image.Image, error) {
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	return d.img, nil
}

func (d *fakeDriver) CaptureDesktop(context.Context) (image.Image, error) {
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	return d.img, nil
}

func (d *fakeDriver) Scripting(ui.Window) (ui.ScriptingHandle, bool) { return nil, false }

func (d *fakeDriver) Alive(ui.Window) bool { return true }

// solidFrame builds a uniform test frame.
func solidFrame(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
