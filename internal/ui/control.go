// File: internal/ui/control.go
// Description: The Control variant types and the host accessibility surface
// the engine consumes. Structural controls wrap a live native handle and can
// be interacted with; virtual controls are vision-derived evidence only.

package ui

import (
	"context"
	"image"
)

// Source identifies which detector produced a control.
type Source int

const (
	// SourceStructural marks controls exposed by the OS accessibility tree.
	SourceStructural Source = iota
	// SourceVision marks controls synthesized from pixel-based detection.
	SourceVision
)

func (s Source) String() string {
	if s == SourceVision {
		return "vision"
	}
	return "structural"
}

// Window identifies one live application window.
type Window struct {
	ID      string // Stable identity for the window's lifetime (e.g. native handle rendered as text).
	Title   string
	Process string // Root process name, e.g. "EXCEL.EXE".
	Bounds  Rect   // Absolute screen bounds of the client area.
}

// NativeControl is a single node of the host's accessibility tree.
type NativeControl interface {
	Rect() Rect
	Text() string
	ControlType() string
	ClassName() string
	// Invoke executes a UI command (click, type, select, ...) against the
	// control through the host automation surface.
	Invoke(ctx context.Context, command string, args map[string]any) (any, error)
}

// ScriptingHandle is the host application's own scripting interface, used
// for structured calls that bypass the UI entirely (cell reads, table
// inserts, column reorders).
type ScriptingHandle interface {
	CellValue(ctx context.Context, row, col int) (string, error)
	// Execute runs a named scripting command with keyword arguments and
	// returns its raw result.
	Execute(ctx context.Context, command string, args map[string]any) (any, error)
}

// Driver is the host accessibility and capture surface the engine consumes.
// Implementations are platform plumbing and live outside this repository's
// decision logic.
type Driver interface {
	// FindWindow locates a live window by process name and an optional title
	// substring.
	FindWindow(ctx context.Context, process, titleContains string) (Window, error)
	// ListControls walks the window's accessibility descendants, keeping only
	// controls whose type or class matches the filter (empty filter keeps all).
	ListControls(ctx context.Context, win Window, typeFilter []string) ([]NativeControl, error)
	// CaptureWindow screenshots the window's client area.
	CaptureWindow(ctx context.Context, win Window) (image.Image, error)
	// CaptureDesktop screenshots the full desktop.
	CaptureDesktop(ctx context.Context) (image.Image, error)
	// Scripting returns the window's scripting handle when the host
	// application exposes one.
	Scripting(win Window) (ScriptingHandle, bool)
	// Alive reports whether the window still exists.
	Alive(win Window) bool
}

// Control is the uniform accessor surface over both variants. Identity (the
// annotation label) is only valid within one step; controls are re-detected
// from a live scan every step and never persisted.
type Control interface {
	Rect() Rect
	Text() string
	Source() Source
	ControlType() string
	ClassName() string
}

// StructuralControl wraps a live accessibility node. It is the only variant
// that supports interaction.
type StructuralControl struct {
	native NativeControl
}

// NewStructural wraps a native accessibility node as a Control.
func NewStructural(native NativeControl) *StructuralControl {
	return &StructuralControl{native: native}
}

func (c *StructuralControl) Rect() Rect          { return c.native.Rect() }
func (c *StructuralControl) Text() string        { return c.native.Text() }
func (c *StructuralControl) Source() Source      { return SourceStructural }
func (c *StructuralControl) ControlType() string { return c.native.ControlType() }
func (c *StructuralControl) ClassName() string   { return c.native.ClassName() }

// Invoke executes a UI command against the underlying native control.
func (c *StructuralControl) Invoke(ctx context.Context, command string, args map[string]any) (any, error) {
	return c.native.Invoke(ctx, command, args)
}

// VirtualControl is a vision-derived stand-in: a rectangle and best-effort
// text with no native handle. It grounds coordinates and prompts but cannot
// be invoked.
type VirtualControl struct {
	Bounds     Rect
	Label      string
	Confidence float64
}

func (c *VirtualControl) Rect() Rect          { return c.Bounds }
func (c *VirtualControl) Text() string        { return c.Label }
func (c *VirtualControl) Source() Source      { return SourceVision }
func (c *VirtualControl) ControlType() string { return "Visual" }
func (c *VirtualControl) ClassName() string   { return "Visual" }

var (
	_ Control = (*StructuralControl)(nil)
	_ Control = (*VirtualControl)(nil)
)
