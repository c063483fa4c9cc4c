// File: internal/ui/annotate.go
// Description: The annotation dictionary - the per-step mapping from a dense
// integer label to a resolved control. It is the sole namespace the model's
// control choice is validated against, and is regenerated from a live scan
// every step.

package ui

// ControlInfo is the prompt-facing summary of one annotated control.
type ControlInfo struct {
	Label       int    `json:"label"`
	Text        string `json:"control_text"`
	ControlType string `json:"control_type"`
	Source      string `json:"source"`
}

// Annotation is an ordered label -> control mapping for one step.
//
// Invariants: a freshly built dictionary has dense labels 1..N assigned in
// input order; a filtered dictionary is a subset of the full one - same
// labels, same controls, fewer entries - never a relabeling.
type Annotation struct {
	order   []int
	byLabel map[int]Control
}

// Annotate assigns labels 1..N to the merged controls in input order.
func Annotate(controls []Control) *Annotation {
	a := &Annotation{
		order:   make([]int, 0, len(controls)),
		byLabel: make(map[int]Control, len(controls)),
	}
	for i, c := range controls {
		label := i + 1
		a.order = append(a.order, label)
		a.byLabel[label] = c
	}
	return a
}

// Len returns the number of annotated controls.
func (a *Annotation) Len() int { return len(a.order) }

// Labels returns the labels in dictionary order.
func (a *Annotation) Labels() []int {
	out := make([]int, len(a.order))
	copy(out, a.order)
	return out
}

// Get returns the control for a label.
func (a *Annotation) Get(label int) (Control, bool) {
	c, ok := a.byLabel[label]
	return c, ok
}

// Each visits every entry in dictionary order. Returning false stops the walk.
func (a *Annotation) Each(fn func(label int, c Control) bool) {
	for _, label := range a.order {
		if !fn(label, a.byLabel[label]) {
			return
		}
	}
}

// Subset builds a new dictionary containing only the entries whose labels are
// in keep, preserving order and labels.
func (a *Annotation) Subset(keep map[int]struct{}) *Annotation {
	sub := &Annotation{
		order:   make([]int, 0, len(keep)),
		byLabel: make(map[int]Control, len(keep)),
	}
	for _, label := range a.order {
		if _, ok := keep[label]; ok {
			sub.order = append(sub.order, label)
			sub.byLabel[label] = a.byLabel[label]
		}
	}
	return sub
}

// InfoList returns the prompt-facing summaries in dictionary order.
func (a *Annotation) InfoList() []ControlInfo {
	out := make([]ControlInfo, 0, len(a.order))
	for _, label := range a.order {
		c := a.byLabel[label]
		out = append(out, ControlInfo{
			Label:       label,
			Text:        c.Text(),
			ControlType: c.ControlType(),
			Source:      c.Source().String(),
		})
	}
	return out
}
