// File: internal/agent/fakes_test.go
package agent

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

type fakeNative struct {
	rect      ui.Rect
	text      string
	ctype     string
	invoked   []string
	invokeErr error
	onInvoke  func()
}

func (n *fakeNative) Rect() ui.Rect       { return n.rect }
func (n *fakeNative) Text() string        { return n.text }
func (n *fakeNative) ControlType() string { return n.ctype }
func (n *fakeNative) ClassName() string   { return n.ctype }

func (n *fakeNative) Invoke(_ context.Context, command string, _ map[string]any) (any, error) {
	n.invoked = append(n.invoked, command)
	if n.onInvoke != nil {
		n.onInvoke()
	}
	if n.invokeErr != nil {
		return nil, n.invokeErr
	}
	return "ok", nil
}

type fakeScripting struct {
	executed []string
	execErr  error
	result   any
}

func (s *fakeScripting) CellValue(context.Context, int, int) (string, error) {
	return "", nil
}

func (s *fakeScripting) Execute(_ context.Context, command string, _ map[string]any) (any, error) {
	s.executed = append(s.executed, command)
	if s.execErr != nil {
		return nil, s.execErr
	}
	return s.result, nil
}

type fakeDriver struct {
	mu        sync.Mutex
	window    ui.Window
	controls  []ui.NativeControl
	scripting ui.ScriptingHandle
	alive     bool
}

func (d *fakeDriver) FindWindow(context.Context, string, string) (ui.Window, error) {
	return d.window, nil
}

func (d *fakeDriver) ListControls(context.Context, ui.Window, []string) ([]ui.NativeControl, error) {
	return d.controls, nil
}

func (d *fakeDriver) CaptureWindow(context.Context, ui.Window) (image.Image, error) {
	return image.NewNRGBA(image.Rect(0, 0, 120, 90)), nil
}

func (d *fakeDriver) CaptureDesktop(context.Context) (image.Image, error) {
	return image.NewNRGBA(image.Rect(0, 0, 120, 90)), nil
}

func (d *fakeDriver) Scripting(ui.Window) (ui.ScriptingHandle, bool) {
	return d.scripting, d.scripting != nil
}

func (d *fakeDriver) Alive(ui.Window) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

func (d *fakeDriver) setAlive(alive bool) {
	d.mu.Lock()
	d.alive = alive
	d.mu.Unlock()
}

// fakeLLM returns canned responses in order, repeating the last one, and
// keeps every request it saw.
type fakeLLM struct {
	responses []string
	requests  []schemas.GenerationRequest
	calls     int
	err       error
}

func (l *fakeLLM) Generate(_ context.Context, req schemas.GenerationRequest) (*schemas.GenerationResult, error) {
	l.calls++
	l.requests = append(l.requests, req)
	if l.err != nil {
		return nil, l.err
	}
	if len(l.responses) == 0 {
		return nil, fmt.Errorf("no canned responses")
	}
	idx := l.calls - 1
	if idx >= len(l.responses) {
		idx = len(l.responses) - 1
	}
	return &schemas.GenerationResult{
		Text:             l.responses[idx],
		PromptTokens:     100,
		CompletionTokens: 20,
		Cost:             0.001,
		ElapsedSeconds:   0.5,
	}, nil
}

func (l *fakeLLM) Close() error { return nil }

type fakeStore struct {
	mu      sync.Mutex
	records []schemas.StepRecord
}

func (s *fakeStore) InsertStep(_ context.Context, record *schemas.StepRecord) error {
	s.mu.Lock()
	s.records = append(s.records, *record)
	s.mu.Unlock()
	return nil
}
