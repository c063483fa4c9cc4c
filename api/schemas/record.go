// File: api/schemas/record.go
package schemas

// ControlLog captures the identity and geometry of the control an action was
// resolved against, for diagnostics and replay.
type ControlLog struct {
	ControlClass       string         `json:"control_class"`        // Backend classifier of the control.
	ControlType        string         `json:"control_type"`         // Backend control type name.
	ControlText        string         `json:"control_text"`         // Display text at resolution time.
	ControlCoordinates map[string]int `json:"control_coordinates"`  // left/top/right/bottom in screen pixels.
	ResolutionTier     string         `json:"resolution_tier,omitempty"` // Which coordinate-resolution tier produced the rectangle.
}

// ActionRecord is the wire form of a single executed (or attempted) action.
type ActionRecord struct {
	Function     string         `json:"function"`
	Args         map[string]any `json:"args"`
	ControlLabel int            `json:"control_label,omitempty"`
	ControlText  string         `json:"control_text,omitempty"`
	BeforeStatus string         `json:"before_status,omitempty"`
	AfterStatus  string         `json:"after_status,omitempty"`
	Success      bool           `json:"success"`
	Result       string         `json:"result"`
	Error        string         `json:"error,omitempty"`
}

// StepRecord is the structured record appended to the agent's memory and to
// the session log stream, one per attempted step, failed steps included.
type StepRecord struct {
	SessionID    string             `json:"session_id"`
	Step         int                `json:"step"`       // Session-wide step counter.
	RoundStep    int                `json:"round_step"` // Step counter within the current round.
	AgentStep    int                `json:"agent_step"`
	Round        int                `json:"round"`
	Subtask      string             `json:"subtask"`
	Request      string             `json:"request"`
	Agent        string             `json:"agent"`
	Application  string             `json:"application"`
	FunctionCall []string           `json:"function_call"`
	Action       []ActionRecord     `json:"action"`
	ActionSuccess []ActionRecord    `json:"action_success"`
	Plan         []string           `json:"plan"`
	Status       string             `json:"status"`
	Cost         float64            `json:"cost"`
	Results      string             `json:"results"`
	Error        string             `json:"error"`
	TimeCost     map[string]float64 `json:"time_cost"` // Seconds spent per processor state.
	ControlLog   []ControlLog       `json:"control_log"`
	UserConfirm  string             `json:"user_confirm,omitempty"` // "Yes"/"No" when the step paused for confirmation.

	CleanScreenshot     string `json:"clean_screenshot,omitempty"`
	AnnotatedScreenshot string `json:"annotated_screenshot,omitempty"`
	SelectedScreenshot  string `json:"selected_screenshot,omitempty"`
}

// Project returns a shallow copy of the record restricted to the given keys,
// using the JSON names above. Unknown keys are ignored. This is how
// HISTORY_KEYS narrows what a step contributes to future prompts.
func (r *StepRecord) Project(keys []string) map[string]any {
	full := map[string]any{
		"session_id":     r.SessionID,
		"step":           r.Step,
		"round_step":     r.RoundStep,
		"agent_step":     r.AgentStep,
		"round":          r.Round,
		"subtask":        r.Subtask,
		"request":        r.Request,
		"agent":          r.Agent,
		"application":    r.Application,
		"function_call":  r.FunctionCall,
		"action":         r.Action,
		"action_success": r.ActionSuccess,
		"plan":           r.Plan,
		"status":         r.Status,
		"cost":           r.Cost,
		"results":        r.Results,
		"error":          r.Error,
		"user_confirm":   r.UserConfirm,
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := full[k]; ok {
			out[k] = v
		}
	}
	return out
}
