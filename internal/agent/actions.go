// File: internal/agent/actions.go
// Description: The action vocabulary. Every function the model may call is
// declared here with its dispatch kind - direct UI-control interaction or a
// structured scripting call - plus, for range-based scripting calls, how to
// derive the worksheet range used for evidence rectangles.

package agent

// CommandKind says how a function is dispatched.
type CommandKind int

const (
	// KindUIControl functions require a resolved annotated control and run
	// through the control's native handle (click, type, scroll).
	KindUIControl CommandKind = iota
	// KindStructuredAPI functions run against the host application's
	// scripting surface and need only arguments, no selected control.
	KindStructuredAPI
)

// RangeArgs names the four argument keys a range-based scripting function
// carries, in (startRow, startCol, endRow, endCol) order.
type RangeArgs [4]string

var defaultRangeArgs = RangeArgs{"start_row", "start_col", "end_row", "end_col"}

// ActionSpec declares one callable function.
type ActionSpec struct {
	Name string
	Kind CommandKind
	// HasRange marks scripting functions whose evidence rectangle comes from
	// the cell-range resolver.
	HasRange  bool
	RangeArgs RangeArgs
	// ColumnOrderArg names the argument carrying a desired column order for
	// reorder-style functions; empty otherwise.
	ColumnOrderArg string
}

// Registry maps function names to their specs.
type Registry struct {
	specs map[string]ActionSpec
}

// NewRegistry builds the default action vocabulary.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]ActionSpec)}

	for _, name := range []string{
		"click_input",
		"double_click_input",
		"set_edit_text",
		"keyboard_input",
		"wheel_mouse_input",
		"select_item",
	} {
		r.register(ActionSpec{Name: name, Kind: KindUIControl})
	}

	for _, name := range []string{
		"set_cell_values",
		"select_table_range",
		"auto_fill_range",
		"insert_table",
	} {
		r.register(ActionSpec{Name: name, Kind: KindStructuredAPI, HasRange: true, RangeArgs: defaultRangeArgs})
	}
	r.register(ActionSpec{
		Name:           "reorder_columns",
		Kind:           KindStructuredAPI,
		ColumnOrderArg: "desired_order",
	})
	r.register(ActionSpec{Name: "save_document", Kind: KindStructuredAPI})
	r.register(ActionSpec{Name: "get_sheet_content", Kind: KindStructuredAPI})

	return r
}

func (r *Registry) register(spec ActionSpec) {
	r.specs[spec.Name] = spec
}

// Lookup returns the spec for a function name.
func (r *Registry) Lookup(name string) (ActionSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// OneStepAction is a single function call decided by the model.
type OneStepAction struct {
	Function     string
	Args         map[string]any
	ControlLabel int
	ControlText  string
}

// ActionSequence is an ordered batch of actions for one step. Execution is
// strictly sequential and stops at the first failure; there is no rollback
// of already-executed actions.
type ActionSequence []OneStepAction
