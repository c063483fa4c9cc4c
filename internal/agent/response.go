// File: internal/agent/response.go
// Description: Parsing and normalization of the model's structured step
// response. The model is asked for strict JSON; this layer tolerates fenced
// output and loosely-typed fields (string-or-list plan, string-or-number
// label) and normalizes them into one canonical form.

package agent

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

// Step statuses the model may return. SCREENSHOT asks for a re-annotated
// capture without advancing the step counter.
const (
	StatusContinue   = "CONTINUE"
	StatusConfirm    = "CONFIRM"
	StatusScreenshot = "SCREENSHOT"
	StatusFinish     = "FINISH"
)

// Response is the canonical parsed form of one model step decision.
type Response struct {
	Observation    string         `json:"observation"`
	Thought        string         `json:"thought"`
	ControlLabel   int            `json:"control_label"`
	ControlText    string         `json:"control_text"`
	Function       string         `json:"function"`
	Args           map[string]any `json:"args"`
	Status         string         `json:"status"`
	Plan           []string       `json:"plan"`
	Comment        string         `json:"comment"`
	Questions      []string       `json:"questions"`
	SaveScreenshot bool           `json:"save_screenshot"`
}

// HasControl reports whether the model selected an annotated control.
func (r *Response) HasControl() bool { return r.ControlLabel > 0 }

// rawResponse mirrors the wire form with the loosely-typed fields kept as
// `any` until normalization.
type rawResponse struct {
	Observation    string         `json:"observation"`
	Thought        string         `json:"thought"`
	ControlLabel   any            `json:"control_label"`
	ControlText    string         `json:"control_text"`
	Function       string         `json:"function"`
	Args           map[string]any `json:"args"`
	Status         string         `json:"status"`
	Plan           any            `json:"plan"`
	Comment        string         `json:"comment"`
	Questions      []string       `json:"questions"`
	SaveScreenshot bool           `json:"save_screenshot"`
}

// ParseResponse decodes the model's text into a normalized Response. It
// strips markdown code fences, decodes strict JSON, and normalizes the plan
// and control-label fields.
func ParseResponse(text string) (*Response, error) {
	trimmed := stripCodeFence(text)
	if trimmed == "" {
		return nil, fmt.Errorf("model response is empty")
	}

	var raw rawResponse
	if err := json.UnmarshalFromString(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}

	label, err := normalizeLabel(raw.ControlLabel)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Observation:    raw.Observation,
		Thought:        raw.Thought,
		ControlLabel:   label,
		ControlText:    raw.ControlText,
		Function:       strings.TrimSpace(raw.Function),
		Args:           raw.Args,
		Status:         strings.ToUpper(strings.TrimSpace(raw.Status)),
		Plan:           normalizePlan(raw.Plan),
		Comment:        raw.Comment,
		Questions:      raw.Questions,
		SaveScreenshot: raw.SaveScreenshot,
	}
	if resp.Args == nil {
		resp.Args = map[string]any{}
	}
	if resp.Status == "" {
		resp.Status = StatusContinue
	}
	return resp, nil
}

// stripCodeFence removes a surrounding markdown fence (``` or ```json) if
// present.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:] // Drop the language tag line.
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// normalizeLabel accepts a number, a numeric string, or an empty value
// (no control selected).
func normalizeLabel(v any) (int, error) {
	switch label := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(label), nil
	case int:
		return label, nil
	case string:
		label = strings.TrimSpace(label)
		if label == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(label)
		if err != nil {
			return 0, fmt.Errorf("control_label %q is not numeric", label)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("control_label has unsupported type %T", v)
	}
}

// normalizePlan turns a possibly-string plan into an ordered list of
// non-empty lines.
func normalizePlan(v any) []string {
	switch plan := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, line := range strings.Split(plan, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range plan {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case []string:
		return plan
	default:
		return nil
	}
}
