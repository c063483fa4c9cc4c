// File: internal/agent/processor_test.go
package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/evidence"
	"github.com/deskpilot/deskpilot-cli/internal/sheet"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

const clickResponse = `{"observation": "window ready", "thought": "press the button",
	"control_label": 1, "control_text": "Save", "function": "click_input",
	"args": {}, "status": "CONTINUE", "plan": ["verify the result"]}`

type processorFixture struct {
	processor *Processor
	driver    *fakeDriver
	native    *fakeNative
	llm       *fakeLLM
	store     *fakeStore
}

func newProcessorFixture(t *testing.T, llm *fakeLLM, confirm ConfirmFunc) *processorFixture {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.Control.Backend = "structural"
	cfg.Evidence.IncludeLastScreenshot = false
	cfg.LLM.JSONParsingRetry = 2

	win := ui.Window{ID: "w1", Process: "EXCEL.EXE", Bounds: ui.Rect{Left: 0, Top: 0, Right: 120, Bottom: 90}}
	native := &fakeNative{rect: ui.Rect{Left: 10, Top: 10, Right: 40, Bottom: 25}, text: "Save", ctype: "Button"}
	driver := &fakeDriver{window: win, controls: []ui.NativeControl{native}, alive: true}

	recorder, err := evidence.NewRecorder(t.TempDir(), "sess-test", zap.NewNop())
	require.NoError(t, err)

	photographer := evidence.NewPhotographer(driver, zap.NewNop())
	engine := sheet.NewLayoutEngine(cfg.Sheet, driver, zap.NewNop())
	resolver := sheet.NewResolver(engine, driver, cfg.Sheet.CellControlTypes, zap.NewNop())
	store := &fakeStore{}

	deps := ProcessorDeps{
		Driver:        driver,
		Structural:    ui.NewStructuralDetector(driver, cfg.Control.ControlList, zap.NewNop()),
		APIStructural: ui.NewStructuralDetector(driver, cfg.Control.APIControlList, zap.NewNop()),
		Filter:        ui.NewFilterPipeline(cfg.Control, nil, nil, photographer, zap.NewNop()),
		Photographer:  photographer,
		Recorder:      recorder,
		PromptBuilder: NewPromptBuilder(cfg.Session, nil, nil, nil, zap.NewNop()),
		LLM:           llm,
		Executor:      NewExecutor(driver, resolver, NewRegistry(), zap.NewNop()),
		Store:         store,
		Confirm:       confirm,
	}

	return &processorFixture{
		processor: NewProcessor(cfg, "sess-test", "save the workbook", win, deps, zap.NewNop()),
		driver:    driver,
		native:    native,
		llm:       llm,
		store:     store,
	}
}

func TestProcessStepHappyPath(t *testing.T) {
	f := newProcessorFixture(t, &fakeLLM{responses: []string{clickResponse}}, nil)

	outcome, err := f.processor.ProcessStep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, outcome)
	assert.Equal(t, []string{"click_input"}, f.native.invoked)

	record, ok := f.processor.Memory().Last()
	require.True(t, ok)
	assert.Equal(t, 1, record.Step)
	assert.Equal(t, []string{"click_input"}, record.FunctionCall)
	require.Len(t, record.Action, 1)
	assert.True(t, record.Action[0].Success)
	assert.Len(t, record.ActionSuccess, 1)
	assert.Equal(t, []string{"verify the result"}, record.Plan)
	assert.InDelta(t, 0.001, record.Cost, 1e-9)

	for _, state := range []string{
		stateCaptureEvidence, stateResolveControls, stateBuildPrompt,
		stateCallModel, stateParseResponse, stateExecuteAction, stateSyncMemory,
	} {
		_, ok := record.TimeCost[state]
		assert.True(t, ok, "missing time_cost for %s", state)
	}

	require.Len(t, f.store.records, 1)
	assert.Equal(t, "sess-test", f.store.records[0].SessionID)
}

func TestProcessStepExhaustsParseRetryBudget(t *testing.T) {
	llm := &fakeLLM{responses: []string{"not json at all"}}
	f := newProcessorFixture(t, llm, nil)

	outcome, err := f.processor.ProcessStep(context.Background())

	// The failure is captured into the record; the loop may continue.
	assert.Equal(t, OutcomeContinue, outcome)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(ErrCodeResponseParseFailure))
	assert.Contains(t, err.Error(), "not json at all")
	assert.Equal(t, 2, llm.calls)

	record, ok := f.processor.Memory().Last()
	require.True(t, ok)
	assert.NotEmpty(t, record.Error)
	assert.Empty(t, record.FunctionCall)
}

func TestProcessStepScreenshotDoesNotAdvanceCounter(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"status": "SCREENSHOT", "plan": []}`,
		clickResponse,
	}}
	f := newProcessorFixture(t, llm, nil)

	outcome, err := f.processor.ProcessStep(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeScreenshot, outcome)

	outcome, err = f.processor.ProcessStep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, outcome)

	// Both attempts carry the same step index: the counter only advances on
	// non-screenshot outcomes.
	records := f.processor.Memory().All()
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Step)
	assert.Equal(t, 1, records[1].Step)
}

func TestProcessStepScreenshotReannotatesFlaggedSubset(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"status": "SCREENSHOT", "args": {"control_labels": [2]}, "plan": []}`,
		`{"control_label": 2, "control_text": "Cancel", "function": "click_input",
			"args": {}, "status": "CONTINUE", "plan": []}`,
	}}
	f := newProcessorFixture(t, llm, nil)
	cancel := &fakeNative{rect: ui.Rect{Left: 50, Top: 10, Right: 80, Bottom: 25}, text: "Cancel", ctype: "Button"}
	f.driver.controls = append(f.driver.controls, cancel)

	outcome, err := f.processor.ProcessStep(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeScreenshot, outcome)

	outcome, err = f.processor.ProcessStep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, outcome)

	// The retry prompt offers only the flagged control, with its original
	// label preserved.
	require.Len(t, llm.requests, 2)
	retryPrompt := llm.requests[1].UserPrompt
	assert.Contains(t, retryPrompt, `"control_text":"Cancel"`)
	assert.NotContains(t, retryPrompt, `"control_text":"Save"`)
	assert.Contains(t, retryPrompt, `"label":2`)

	assert.Equal(t, []string{"click_input"}, cancel.invoked)
	assert.Empty(t, f.native.invoked)
}

func TestProcessStepScreenshotWithUnknownLabelsRedetects(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"status": "SCREENSHOT", "args": {"control_labels": [9]}, "plan": []}`,
		clickResponse,
	}}
	f := newProcessorFixture(t, llm, nil)

	outcome, err := f.processor.ProcessStep(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeScreenshot, outcome)

	outcome, err = f.processor.ProcessStep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, outcome)

	// The flagged subset was empty, so the retry fell back to a full
	// re-detection and could still act on the original control.
	assert.Equal(t, []string{"click_input"}, f.native.invoked)
}

func TestProcessStepFinishesWhenWindowClosesMidExecution(t *testing.T) {
	llm := &fakeLLM{responses: []string{clickResponse}}
	f := newProcessorFixture(t, llm, nil)
	f.native.onInvoke = func() { f.driver.setAlive(false) }

	outcome, err := f.processor.ProcessStep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFinish, outcome)

	record, ok := f.processor.Memory().Last()
	require.True(t, ok)
	assert.Equal(t, string(OutcomeFinish), record.Status)
	// The action itself executed before the window went away.
	assert.Len(t, record.ActionSuccess, 1)
}

func TestProcessStepDeclinedConfirmationSkipsExecution(t *testing.T) {
	confirmResponse := `{"control_label": 1, "control_text": "Save",
		"function": "click_input", "args": {}, "status": "CONFIRM", "plan": []}`
	decline := func(context.Context, string) bool { return false }
	f := newProcessorFixture(t, &fakeLLM{responses: []string{confirmResponse}}, decline)

	outcome, err := f.processor.ProcessStep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirm, outcome)
	assert.Empty(t, f.native.invoked)

	record, ok := f.processor.Memory().Last()
	require.True(t, ok)
	assert.Equal(t, "No", record.UserConfirm)
}

func TestRenderControlXMLEscapesMarkup(t *testing.T) {
	dict := ui.Annotate([]ui.Control{
		&ui.VirtualControl{
			Bounds: ui.Rect{Left: 1, Top: 2, Right: 3, Bottom: 4},
			Label:  `A<B & "C"`,
		},
	})

	out := renderControlXML(dict)

	assert.Contains(t, out, `text="A&lt;B &amp; &#34;C&#34;"`)
	assert.NotContains(t, out, `<B`)
	assert.Contains(t, out, `label="1"`)
}

func TestProcessStepModelFailureIsMemorized(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	f := newProcessorFixture(t, llm, nil)

	outcome, err := f.processor.ProcessStep(context.Background())

	assert.Equal(t, OutcomeContinue, outcome)
	require.Error(t, err)

	record, ok := f.processor.Memory().Last()
	require.True(t, ok)
	assert.Contains(t, record.Error, stateCallModel)
}
