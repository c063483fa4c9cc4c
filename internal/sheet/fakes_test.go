// File: internal/sheet/fakes_test.go
package sheet

import (
	"context"
	"image"

	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

type fakeNative struct {
	rect  ui.Rect
	text  string
	ctype string
	class string
}

func (n *fakeNative) Rect() ui.Rect       { return n.rect }
func (n *fakeNative) Text() string        { return n.text }
func (n *fakeNative) ControlType() string { return n.ctype }
func (n *fakeNative) ClassName() string   { return n.class }

func (n *fakeNative) Invoke(context.Context, string, map[string]any) (any, error) {
	return nil, nil
}

type fakeScripting struct {
	headerRow []string
}

func (s *fakeScripting) CellValue(_ context.Context, row, col int) (string, error) {
	if row != 1 || col < 1 || col > len(s.headerRow) {
		return "", nil
	}
	return s.headerRow[col-1], nil
}

func (s *fakeScripting) Execute(context.Context, string, map[string]any) (any, error) {
	return nil, nil
}

type fakeDriver struct {
	window    ui.Window
	controls  []ui.NativeControl
	listErr   error
	listCalls int
	scripting ui.ScriptingHandle
}

func (d *fakeDriver) FindWindow(context.Context, string, string) (ui.Window, error) {
	return d.window, nil
}

func (d *fakeDriver) ListControls(context.Context, ui.Window, []string) ([]ui.NativeControl, error) {
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.controls, nil
}

func (d *fakeDriver) CaptureWindow(context.Context, ui.Window) (image.Image, error) {
	return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (d *fakeDriver) CaptureDesktop(context.Context) (image.Image, error) {
	return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (d *fakeDriver) Scripting(ui.Window) (ui.ScriptingHandle, bool) {
	return d.scripting, d.scripting != nil
}

func (d *fakeDriver) Alive(ui.Window) bool { return true }
