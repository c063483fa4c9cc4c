// File: internal/ui/filter.go
// Description: The pluggable control-filter pipeline. Each configured stage
// independently selects a candidate subset of the annotation dictionary based
// on the previous plan; stage selections are unioned. No stage ever adds or
// relabels controls, and an unavailable stage model skips that stage.

package ui

import (
	"context"
	"errors"
	"image"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

var errStageUnavailable = errors.New("filter stage model unavailable")

// TextEmbedder turns strings into embedding vectors for semantic filtering.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// IconEmbedder scores cropped control icons against plan descriptions.
type IconEmbedder interface {
	// Score returns, per label, a similarity of the icon to the plan text.
	Score(ctx context.Context, icons map[int]image.Image, plans []string) (map[int]float64, error)
}

// IconCropper extracts each annotated control's pixels from the current
// screenshot (implemented by the photographer).
type IconCropper interface {
	CropIcons(win Window, dict *Annotation) map[int]image.Image
}

// FilterStage selects a subset of labels from a dictionary given the plan.
type FilterStage interface {
	Name() string
	Select(ctx context.Context, win Window, dict *Annotation, plans []string) (map[int]struct{}, error)
}

// FilterPipeline composes the configured stages.
type FilterPipeline struct {
	cfg    config.ControlConfig
	stages []FilterStage
	logger *zap.Logger
}

// NewFilterPipeline wires the stages named by cfg.FilterTypes. The embedders
// may be nil, in which case their stage is skipped at run time.
func NewFilterPipeline(cfg config.ControlConfig, text TextEmbedder, icon IconEmbedder, cropper IconCropper, logger *zap.Logger) *FilterPipeline {
	p := &FilterPipeline{cfg: cfg, logger: logger.Named("control_filter")}
	for _, ft := range cfg.FilterTypes {
		switch strings.ToLower(ft) {
		case "text":
			p.stages = append(p.stages, &textStage{})
		case "semantic":
			p.stages = append(p.stages, &semanticStage{embedder: text, topK: cfg.FilterTopKSem})
		case "icon":
			p.stages = append(p.stages, &iconStage{embedder: icon, cropper: cropper, topK: cfg.FilterTopKIcon})
		}
	}
	return p
}

// Filter narrows the dictionary using the previous plan. With no configured
// stages or no plan it is the identity. The result is always a subset of the
// input: same labels, same controls.
func (p *FilterPipeline) Filter(ctx context.Context, win Window, dict *Annotation, prevPlan []string) *Annotation {
	if len(p.stages) == 0 || len(prevPlan) == 0 {
		return dict
	}

	plans := topPlans(prevPlan, p.cfg.FilterTopKPlan)

	keep := make(map[int]struct{})
	for _, stage := range p.stages {
		selected, err := stage.Select(ctx, win, dict, plans)
		if err != nil {
			p.logger.Warn("Filter stage unavailable; skipping",
				zap.String("stage", stage.Name()), zap.Error(err))
			continue
		}
		for label := range selected {
			keep[label] = struct{}{}
		}
	}
	return dict.Subset(keep)
}

// topPlans keeps the k most recent plan lines (the head of the plan list).
func topPlans(plan []string, k int) []string {
	if k <= 0 || k >= len(plan) {
		return plan
	}
	return plan[:k]
}

// -- Text keyword stage --

type textStage struct{}

func (s *textStage) Name() string { return "text" }

// Select keeps controls whose display text shares a keyword with the plan.
func (s *textStage) Select(_ context.Context, _ Window, dict *Annotation, plans []string) (map[int]struct{}, error) {
	keywords := planKeywords(plans)
	keep := make(map[int]struct{})
	dict.Each(func(label int, c Control) bool {
		text := strings.ToLower(c.Text())
		if text == "" {
			return true
		}
		for kw := range keywords {
			if strings.Contains(text, kw) || strings.Contains(kw, text) {
				keep[label] = struct{}{}
				break
			}
		}
		return true
	})
	return keep, nil
}

func planKeywords(plans []string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, p := range plans {
		for _, word := range strings.FieldsFunc(strings.ToLower(p), func(r rune) bool {
			return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
		}) {
			if len(word) >= 3 {
				keywords[word] = struct{}{}
			}
		}
	}
	return keywords
}

// -- Semantic embedding stage --

type semanticStage struct {
	embedder TextEmbedder
	topK     int
}

func (s *semanticStage) Name() string { return "semantic" }

// Select ranks controls by cosine similarity between their text and the plan
// and keeps the top K.
func (s *semanticStage) Select(ctx context.Context, _ Window, dict *Annotation, plans []string) (map[int]struct{}, error) {
	if s.embedder == nil {
		return nil, errStageUnavailable
	}

	var labels []int
	var texts []string
	dict.Each(func(label int, c Control) bool {
		if c.Text() != "" {
			labels = append(labels, label)
			texts = append(texts, c.Text())
		}
		return true
	})
	if len(texts) == 0 {
		return map[int]struct{}{}, nil
	}

	vectors, err := s.embedder.Embed(ctx, append([]string{strings.Join(plans, " ")}, texts...))
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts)+1 {
		return nil, errStageUnavailable
	}

	planVec := vectors[0]
	type scored struct {
		label int
		score float64
	}
	ranked := make([]scored, 0, len(labels))
	for i, label := range labels {
		ranked = append(ranked, scored{label: label, score: cosine(planVec, vectors[i+1])})
	}
	// Insertion sort by descending score; the control set is small.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	keep := make(map[int]struct{})
	for i, r := range ranked {
		if s.topK > 0 && i >= s.topK {
			break
		}
		keep[r.label] = struct{}{}
	}
	return keep, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// -- Cropped-icon stage --

type iconStage struct {
	embedder IconEmbedder
	cropper  IconCropper
	topK     int
}

func (s *iconStage) Name() string { return "icon" }

// Select scores each control's cropped pixels against the plan and keeps the
// top K.
func (s *iconStage) Select(ctx context.Context, win Window, dict *Annotation, plans []string) (map[int]struct{}, error) {
	if s.embedder == nil || s.cropper == nil {
		return nil, errStageUnavailable
	}

	icons := s.cropper.CropIcons(win, dict)
	if len(icons) == 0 {
		return map[int]struct{}{}, nil
	}

	scores, err := s.embedder.Score(ctx, icons, plans)
	if err != nil {
		return nil, err
	}

	type scored struct {
		label int
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for label, score := range scores {
		ranked = append(ranked, scored{label: label, score: score})
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && (ranked[j].score > ranked[j-1].score ||
			(ranked[j].score == ranked[j-1].score && ranked[j].label < ranked[j-1].label)); j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	keep := make(map[int]struct{})
	for i, r := range ranked {
		if s.topK > 0 && i >= s.topK {
			break
		}
		keep[r.label] = struct{}{}
	}
	return keep, nil
}
