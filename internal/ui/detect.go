// File: internal/ui/detect.go
// Description: The two control detectors. The structural detector walks the
// accessibility tree through the Driver; the vision detector sends a
// screenshot to a remote grounding model and converts its boxes into virtual
// controls. Both are fail-silent: unavailability yields an empty list.

package ui

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// Detector produces candidate controls for one window at one instant.
type Detector interface {
	Detect(ctx context.Context, win Window) ([]Control, error)
}

// StructuralDetector lists controls exposed by the OS accessibility API.
type StructuralDetector struct {
	driver   Driver
	typeList []string
	logger   *zap.Logger
}

// NewStructuralDetector builds a detector restricted to the given control
// types/class names.
func NewStructuralDetector(driver Driver, typeList []string, logger *zap.Logger) *StructuralDetector {
	return &StructuralDetector{
		driver:   driver,
		typeList: typeList,
		logger:   logger.Named("detect.structural"),
	}
}

// Detect returns the window's matching accessibility controls. A window
// without an accessibility surface yields an empty list, never an error.
func (d *StructuralDetector) Detect(ctx context.Context, win Window) ([]Control, error) {
	natives, err := d.driver.ListControls(ctx, win, d.typeList)
	if err != nil {
		d.logger.Warn("Accessibility walk failed; treating window as surfaceless",
			zap.String("window", win.ID), zap.Error(err))
		return nil, nil
	}

	controls := make([]Control, 0, len(natives))
	for _, n := range natives {
		if n.Rect().Empty() {
			continue
		}
		controls = append(controls, NewStructural(n))
	}
	return controls, nil
}

// visionRequest is the wire form sent to the grounding model service.
type visionRequest struct {
	Image         string  `json:"image"` // Base64 PNG.
	BoxConfidence float64 `json:"box_confidence"`
	IOUThreshold  float64 `json:"iou_threshold"`
	OCR           bool    `json:"ocr"`
}

type visionBox struct {
	Left       float64 `json:"left"`
	Top        float64 `json:"top"`
	Right      float64 `json:"right"`
	Bottom     float64 `json:"bottom"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type visionResponse struct {
	Boxes []visionBox `json:"boxes"`
}

// VisionDetector invokes a remote detection model on a screenshot and turns
// its bounding boxes into virtual controls carrying only a rectangle and
// text.
type VisionDetector struct {
	cfg        config.VisionConfig
	screenshot func(ctx context.Context, win Window) (image.Image, error)
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVisionDetector builds a vision detector; screenshot supplies the clean
// window capture (normally Driver.CaptureWindow).
func NewVisionDetector(cfg config.VisionConfig, screenshot func(ctx context.Context, win Window) (image.Image, error), logger *zap.Logger) *VisionDetector {
	return &VisionDetector{
		cfg:        cfg,
		screenshot: screenshot,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.Named("detect.vision"),
	}
}

// Detect runs the grounding model over the window screenshot. Disabled or
// unreachable detection yields an empty list, never an error.
func (d *VisionDetector) Detect(ctx context.Context, win Window) ([]Control, error) {
	if !d.cfg.Enabled || d.cfg.Endpoint == "" {
		return nil, nil
	}

	img, err := d.screenshot(ctx, win)
	if err != nil {
		d.logger.Warn("Screenshot capture failed; skipping vision detection", zap.Error(err))
		return nil, nil
	}

	// Resize so the longest edge matches the model's expected input, and
	// remember the scale to project boxes back into window pixels.
	scale := 1.0
	bounds := img.Bounds()
	longest := bounds.Dx()
	if bounds.Dy() > longest {
		longest = bounds.Dy()
	}
	if d.cfg.ResizeTarget > 0 && longest > d.cfg.ResizeTarget {
		scale = float64(longest) / float64(d.cfg.ResizeTarget)
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, d.cfg.ResizeTarget, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, d.cfg.ResizeTarget, imaging.Lanczos)
		}
	}

	boxes, err := d.callModel(ctx, img)
	if err != nil {
		d.logger.Warn("Vision grounding call failed; continuing without vision controls", zap.Error(err))
		return nil, nil
	}

	var controls []Control
	for _, b := range boxes {
		if b.Confidence < d.cfg.BoxConfidence {
			continue
		}
		rect := Rect{
			Left:   win.Bounds.Left + b.Left*scale,
			Top:    win.Bounds.Top + b.Top*scale,
			Right:  win.Bounds.Left + b.Right*scale,
			Bottom: win.Bounds.Top + b.Bottom*scale,
		}
		if rect.Empty() {
			continue
		}
		if overlapsExisting(controls, rect, d.cfg.IOUThreshold) {
			continue
		}
		controls = append(controls, &VirtualControl{Bounds: rect, Label: b.Text, Confidence: b.Confidence})
	}
	return controls, nil
}

func (d *VisionDetector) callModel(ctx context.Context, img image.Image) ([]visionBox, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}

	payload, err := json.Marshal(visionRequest{
		Image:         base64.StdEncoding.EncodeToString(buf.Bytes()),
		BoxConfidence: d.cfg.BoxConfidence,
		IOUThreshold:  d.cfg.IOUThreshold,
		OCR:           d.cfg.OCREnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned status %d", resp.StatusCode)
	}

	var out visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}
	return out.Boxes, nil
}

// overlapsExisting applies the detector-internal IoU de-dup.
func overlapsExisting(existing []Control, rect Rect, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	for _, c := range existing {
		if IoU(c.Rect(), rect) >= threshold {
			return true
		}
	}
	return false
}
