// File: internal/evidence/photographer.go
// Description: Screenshot capture and annotation. The photographer takes
// clean captures through the host driver, draws numbered label boxes and
// highlight rectangles for evidence, concatenates before/after panes, and
// crops per-control icons for the visual filter stage.

package evidence

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

var (
	annotationFill   = color.NRGBA{R: 255, G: 215, B: 0, A: 255}  // Label badge background.
	annotationBorder = color.NRGBA{R: 255, G: 140, B: 0, A: 255}  // Control outline.
	highlightBorder  = color.NRGBA{R: 220, G: 20, B: 60, A: 255}  // Selected-control outline.
	labelText        = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
)

const borderThickness = 2

// Photographer captures and decorates window screenshots. It remembers the
// most recent clean capture per window so icon cropping and highlight
// rendering reuse the frame the controls were detected on.
type Photographer struct {
	driver ui.Driver
	logger *zap.Logger

	mu        sync.Mutex
	lastClean map[string]image.Image
}

// NewPhotographer builds a photographer over the host driver.
func NewPhotographer(driver ui.Driver, logger *zap.Logger) *Photographer {
	return &Photographer{
		driver:    driver,
		logger:    logger.Named("evidence.photographer"),
		lastClean: make(map[string]image.Image),
	}
}

// CaptureClean screenshots the window, saves it to path, and retains the
// frame for later decoration.
func (p *Photographer) CaptureClean(ctx context.Context, win ui.Window, path string) (image.Image, error) {
	img, err := p.driver.CaptureWindow(ctx, win)
	if err != nil {
		return nil, fmt.Errorf("failed to capture window %s: %w", win.ID, err)
	}
	if err := imaging.Save(img, path); err != nil {
		return nil, fmt.Errorf("failed to save screenshot: %w", err)
	}

	p.mu.Lock()
	p.lastClean[win.ID] = img
	p.mu.Unlock()
	return img, nil
}

// CaptureDesktop screenshots the full desktop and saves it to path.
func (p *Photographer) CaptureDesktop(ctx context.Context, path string) error {
	img, err := p.driver.CaptureDesktop(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture desktop: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save desktop screenshot: %w", err)
	}
	return nil
}

// SaveAnnotated draws every dictionary entry onto the base frame - an outline
// around the control and its numeric label in a badge at the top-left corner
// - and saves the result.
func (p *Photographer) SaveAnnotated(base image.Image, win ui.Window, dict *ui.Annotation, path string) error {
	canvas := imaging.Clone(base)
	dict.Each(func(label int, c ui.Control) bool {
		rect := toPixelRect(c.Rect().RelativeTo(win.Bounds), canvas.Bounds())
		drawBorder(canvas, rect, annotationBorder)
		drawLabelBadge(canvas, rect, strconv.Itoa(label))
		return true
	})
	if err := imaging.Save(canvas, path); err != nil {
		return fmt.Errorf("failed to save annotated screenshot: %w", err)
	}
	return nil
}

// SaveHighlighted draws the given window-relative rectangles over the most
// recent clean capture of the window and saves the result. With no retained
// capture or no rectangles it saves an undecorated copy of base.
func (p *Photographer) SaveHighlighted(base image.Image, win ui.Window, rects []ui.Rect, path string) error {
	p.mu.Lock()
	frame, ok := p.lastClean[win.ID]
	p.mu.Unlock()
	if !ok {
		frame = base
	}

	canvas := imaging.Clone(frame)
	for _, r := range rects {
		drawBorder(canvas, toPixelRect(r, canvas.Bounds()), highlightBorder)
	}
	if err := imaging.Save(canvas, path); err != nil {
		return fmt.Errorf("failed to save highlighted screenshot: %w", err)
	}
	return nil
}

// SaveConcat places two frames side by side on a shared baseline and saves
// the composite.
func (p *Photographer) SaveConcat(left, right image.Image, path string) error {
	lb, rb := left.Bounds(), right.Bounds()
	height := lb.Dy()
	if rb.Dy() > height {
		height = rb.Dy()
	}
	canvas := imaging.New(lb.Dx()+rb.Dx(), height, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, right, image.Pt(lb.Dx(), 0))
	if err := imaging.Save(canvas, path); err != nil {
		return fmt.Errorf("failed to save concatenated screenshot: %w", err)
	}
	return nil
}

// CropIcons cuts each annotated control out of the window's most recent
// clean capture. Controls outside the frame are skipped.
func (p *Photographer) CropIcons(win ui.Window, dict *ui.Annotation) map[int]image.Image {
	p.mu.Lock()
	frame, ok := p.lastClean[win.ID]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	icons := make(map[int]image.Image, dict.Len())
	dict.Each(func(label int, c ui.Control) bool {
		rect := toPixelRect(c.Rect().RelativeTo(win.Bounds), frame.Bounds())
		if rect.Empty() {
			return true
		}
		icons[label] = imaging.Crop(frame, rect)
		return true
	})
	return icons
}

// EncodeBase64 renders the image as a base64 PNG string for model payloads.
func EncodeBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// toPixelRect converts a window-relative float rectangle to integer pixels
// clamped inside the frame.
func toPixelRect(r ui.Rect, frame image.Rectangle) image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom)).Intersect(frame)
}

func drawBorder(canvas *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	if rect.Empty() {
		return
	}
	for t := 0; t < borderThickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setPixel(canvas, x, rect.Min.Y+t, c)
			setPixel(canvas, x, rect.Max.Y-1-t, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setPixel(canvas, rect.Min.X+t, y, c)
			setPixel(canvas, rect.Max.X-1-t, y, c)
		}
	}
}

func setPixel(canvas *image.NRGBA, x, y int, c color.NRGBA) {
	if image.Pt(x, y).In(canvas.Bounds()) {
		canvas.SetNRGBA(x, y, c)
	}
}

// drawLabelBadge paints the label number on a filled badge anchored to the
// control's top-left corner.
func drawLabelBadge(canvas *image.NRGBA, rect image.Rectangle, label string) {
	if rect.Empty() {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, label).Ceil() + 6
	height := face.Metrics().Height.Ceil() + 2

	badge := image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+width, rect.Min.Y+height).Intersect(canvas.Bounds())
	draw.Draw(canvas, badge, image.NewUniform(annotationFill), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(labelText),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(rect.Min.X + 3),
			Y: fixed.I(rect.Min.Y + face.Metrics().Ascent.Ceil() + 1),
		},
	}
	drawer.DrawString(label)
}
