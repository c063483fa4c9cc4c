// File: internal/agent/executor.go
// Description: The action execution layer. Dispatches each decided function
// either through the selected control's native handle or through the host's
// scripting surface, and produces the evidence rectangles and structured
// records the step processor memorizes. Execution failures are recorded,
// never raised.

package agent

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/sheet"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

// Executor runs action sequences against one host window.
type Executor struct {
	driver   ui.Driver
	resolver *sheet.Resolver
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor builds an executor over the host driver and range resolver.
func NewExecutor(driver ui.Driver, resolver *sheet.Resolver, registry *Registry, logger *zap.Logger) *Executor {
	return &Executor{
		driver:   driver,
		resolver: resolver,
		registry: registry,
		logger:   logger.Named("executor"),
	}
}

// ExecutionResult is the outcome of one action sequence.
type ExecutionResult struct {
	Records []schemas.ActionRecord
	// EvidenceRects are the window-relative rectangles to highlight on the
	// evidence screenshot: selected-control bounds for UI actions, resolved
	// range rectangles for structured calls. May be empty.
	EvidenceRects []ui.Rect
	ControlLogs   []schemas.ControlLog
}

// Execute runs the sequence in strict order, stopping at the first failure.
// Every attempted action yields a record; failures populate the record's
// error instead of returning one.
func (e *Executor) Execute(ctx context.Context, win ui.Window, dict, apiDict *ui.Annotation, seq ActionSequence) ExecutionResult {
	var out ExecutionResult
	for _, action := range seq {
		record, rects, controlLog := e.executeOne(ctx, win, dict, apiDict, action)
		out.Records = append(out.Records, record)
		out.EvidenceRects = append(out.EvidenceRects, rects...)
		out.ControlLogs = append(out.ControlLogs, controlLog)
		if !record.Success {
			break
		}
	}
	return out
}

func (e *Executor) executeOne(ctx context.Context, win ui.Window, dict, apiDict *ui.Annotation, action OneStepAction) (schemas.ActionRecord, []ui.Rect, schemas.ControlLog) {
	record := schemas.ActionRecord{
		Function:     action.Function,
		Args:         action.Args,
		ControlLabel: action.ControlLabel,
		ControlText:  action.ControlText,
	}

	spec, ok := e.registry.Lookup(action.Function)
	if !ok {
		record.Error = newExecutionError(ErrCodeUnknownFunction,
			fmt.Sprintf("function %q is not in the action vocabulary", action.Function)).Error()
		return record, nil, schemas.ControlLog{}
	}

	switch spec.Kind {
	case KindUIControl:
		return e.executeUIControl(ctx, win, dict, action, record)
	default:
		return e.executeStructured(ctx, win, apiDict, spec, action, record)
	}
}

// executeUIControl resolves the label against the annotation dictionary and
// invokes the command through the control's native handle. A missing or
// non-interactable label is an execution error, not a crash.
func (e *Executor) executeUIControl(ctx context.Context, win ui.Window, dict *ui.Annotation, action OneStepAction, record schemas.ActionRecord) (schemas.ActionRecord, []ui.Rect, schemas.ControlLog) {
	control, ok := dict.Get(action.ControlLabel)
	if !ok {
		record.Error = newExecutionError(ErrCodeControlNotFound,
			fmt.Sprintf("label %d is not in the annotation dictionary", action.ControlLabel)).Error()
		return record, nil, schemas.ControlLog{}
	}

	structural, ok := control.(*ui.StructuralControl)
	if !ok {
		record.Error = newExecutionError(ErrCodeControlNotInteractable,
			fmt.Sprintf("label %d is a vision-only control with no native handle", action.ControlLabel)).Error()
		return record, nil, controlLogFor(control, "")
	}

	rect := control.Rect().RelativeTo(win.Bounds)
	result, err := structural.Invoke(ctx, action.Function, action.Args)
	if err != nil {
		e.logger.Warn("UI action failed",
			zap.String("function", action.Function),
			zap.Int("label", action.ControlLabel),
			zap.Error(err))
		record.Error = newExecutionError(ErrCodeExecutionFailure, err.Error()).Error()
		return record, []ui.Rect{rect}, controlLogFor(control, "")
	}

	record.Success = true
	record.Result = serializeResult(result)
	return record, []ui.Rect{rect}, controlLogFor(control, "")
}

// executeStructured runs the function through the host's scripting surface.
// The evidence rectangle comes from the cell-range resolver; its absence is
// tolerated (the evidence screenshot degrades to an unannotated copy).
func (e *Executor) executeStructured(ctx context.Context, win ui.Window, apiDict *ui.Annotation, spec ActionSpec, action OneStepAction, record schemas.ActionRecord) (schemas.ActionRecord, []ui.Rect, schemas.ControlLog) {
	handle, ok := e.driver.Scripting(win)
	if !ok {
		record.Error = newExecutionError(ErrCodeScriptingUnavailable,
			fmt.Sprintf("window %s exposes no scripting interface", win.ID)).Error()
		return record, nil, schemas.ControlLog{}
	}

	var rects []ui.Rect
	controlLog := schemas.ControlLog{}
	switch {
	case spec.HasRange:
		if startRow, startCol, endRow, endCol, ok := rangeFromArgs(action.Args, spec.RangeArgs); ok {
			rect, tier := e.resolver.ResolveRangeRect(ctx, win, apiDict, startRow, startCol, endRow, endCol)
			rects = append(rects, rect)
			controlLog = rangeControlLog(rect, tier)
		}
	case spec.ColumnOrderArg != "":
		if order := stringListArg(action.Args, spec.ColumnOrderArg); len(order) > 0 {
			rect, tier := e.resolver.ResolveColumnOrderRect(ctx, win, apiDict, order)
			rects = append(rects, rect)
			controlLog = rangeControlLog(rect, tier)
		}
	}

	result, err := handle.Execute(ctx, action.Function, action.Args)
	if err != nil {
		e.logger.Warn("Structured action failed",
			zap.String("function", action.Function), zap.Error(err))
		record.Error = newExecutionError(ErrCodeExecutionFailure, err.Error()).Error()
		return record, rects, controlLog
	}

	record.Success = true
	record.Result = serializeResult(result)
	return record, rects, controlLog
}

// rangeFromArgs extracts the four range arguments, accepting JSON numbers.
func rangeFromArgs(args map[string]any, keys RangeArgs) (int, int, int, int, bool) {
	values := make([]int, 4)
	for i, key := range keys {
		n, ok := intArg(args, key)
		if !ok {
			return 0, 0, 0, 0, false
		}
		values[i] = n
	}
	return values[0], values[1], values[2], values[3], true
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func stringListArg(args map[string]any, key string) []string {
	var out []string
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// serializeResult coerces a scripting result to a JSON-safe string. A result
// that cannot be serialized becomes the empty string rather than failing the
// step.
func serializeResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(payload)
	}
}

func controlLogFor(c ui.Control, tier string) schemas.ControlLog {
	rect := c.Rect()
	return schemas.ControlLog{
		ControlClass: c.ClassName(),
		ControlType:  c.ControlType(),
		ControlText:  c.Text(),
		ControlCoordinates: map[string]int{
			"left":   int(rect.Left),
			"top":    int(rect.Top),
			"right":  int(rect.Right),
			"bottom": int(rect.Bottom),
		},
		ResolutionTier: tier,
	}
}

func rangeControlLog(rect ui.Rect, tier string) schemas.ControlLog {
	return schemas.ControlLog{
		ControlType: "Range",
		ControlCoordinates: map[string]int{
			"left":   int(rect.Left),
			"top":    int(rect.Top),
			"right":  int(rect.Right),
			"bottom": int(rect.Bottom),
		},
		ResolutionTier: tier,
	}
}
