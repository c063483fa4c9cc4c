// File: internal/ui/fakes_test.go
package ui

import (
	"context"
	"fmt"
	"image"
)

// fakeNative is a scriptable accessibility node.
type fakeNative struct {
	rect      Rect
	text      string
	ctype     string
	class     string
	invoked   []string
	invokeErr error
	result    any
}

func (n *fakeNative) Rect() Rect          { return n.rect }
func (n *fakeNative) Text() string        { return n.text }
func (n *fakeNative) ControlType() string { return n.ctype }
func (n *fakeNative) ClassName() string   { return n.class }

func (n *fakeNative) Invoke(_ context.Context, command string, _ map[string]any) (any, error) {
	n.invoked = append(n.invoked, command)
	if n.invokeErr != nil {
		return nil, n.invokeErr
	}
	return n.result, nil
}

// fakeDriver is a scriptable host surface.
type fakeDriver struct {
	window    Window
	controls  []NativeControl
	listErr   error
	listCalls int
	img       image.Image
	alive     bool
	scripting ScriptingHandle
}

func (d *fakeDriver) FindWindow(context.Context, string, string) (Window, error) {
	return d.window, nil
}

func (d *fakeDriver) ListControls(_ context.Context, _ Window, _ []string) ([]NativeControl, error) {
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.controls, nil
}

func (d *fakeDriver) CaptureWindow(context.Context, Window) (image.Image, error) {
	if d.img == nil {
		return nil, fmt.Errorf("no frame available")
	}
	return d.img, nil
}

func (d *fakeDriver) CaptureDesktop(context.Context) (image.Image, error) {
	if d.img == nil {
		return nil, fmt.Errorf("no frame available")
	}
	return d.img, nil
}

func (d *fakeDriver) Scripting(Window) (ScriptingHandle, bool) {
	return d.scripting, d.scripting != nil
}

func (d *fakeDriver) Alive(Window) bool { return d.alive }
