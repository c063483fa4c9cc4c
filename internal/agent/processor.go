// File: internal/agent/processor.go
// Description: The step processor state machine. One call to ProcessStep runs
// the seven states in order - CaptureEvidence, ResolveControls, BuildPrompt,
// CallModel, ParseResponse, ExecuteAction, SyncMemory - each gated on the
// previous state's success, each individually timed, and each wrapped so a
// failure is captured into the step record instead of crashing the loop.

package agent

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/evidence"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

// Outcome is the terminal result of one processed step.
type Outcome string

const (
	// OutcomeContinue advances the session to the next step.
	OutcomeContinue Outcome = "CONTINUE"
	// OutcomeConfirm reports that the user declined a sensitive action.
	OutcomeConfirm Outcome = "CONFIRM"
	// OutcomeScreenshot asks the session to retry control selection on a
	// fresh annotated capture without advancing the step counter.
	OutcomeScreenshot Outcome = "SCREENSHOT"
	// OutcomeFinish ends the session: task complete or application closed.
	OutcomeFinish Outcome = "FINISH"
)

// State names, used as time_cost keys.
const (
	stateCaptureEvidence = "capture_evidence"
	stateResolveControls = "resolve_controls"
	stateBuildPrompt     = "build_prompt"
	stateCallModel       = "call_model"
	stateParseResponse   = "parse_response"
	stateExecuteAction   = "execute_action"
	stateSyncMemory      = "sync_memory"
)

// StepStore is the optional durable sink for step records.
type StepStore interface {
	InsertStep(ctx context.Context, record *schemas.StepRecord) error
}

// ConfirmFunc asks the user to approve a sensitive action. A nil function
// auto-approves.
type ConfirmFunc func(ctx context.Context, question string) bool

// Processor drives one agent over one application window.
type Processor struct {
	cfg           *config.Config
	driver        ui.Driver
	structural    ui.Detector
	apiStructural ui.Detector
	vision        ui.Detector
	filter        *ui.FilterPipeline
	photographer  *evidence.Photographer
	recorder      *evidence.Recorder
	promptBuilder *PromptBuilder
	llm           schemas.LLMClient
	executor      *Executor
	memory        *Memory
	blackboard    *Blackboard
	store         StepStore
	confirm       ConfirmFunc
	logger        *zap.Logger
	now           func() time.Time

	sessionID   string
	agentName   string
	request     string
	subtask     string
	win         ui.Window
	round       int
	roundStep   int
	agentStep   int
	globalStep  int
	prevPlan    []string

	// Re-annotation carry-over: the previous step's dictionary and the labels
	// the model flagged as overlapped in a SCREENSHOT response.
	lastDict   *ui.Annotation
	reannotate map[int]struct{}
}

// ProcessorDeps bundles the collaborators a processor needs.
type ProcessorDeps struct {
	Driver        ui.Driver
	Structural    ui.Detector
	APIStructural ui.Detector
	Vision        ui.Detector
	Filter        *ui.FilterPipeline
	Photographer  *evidence.Photographer
	Recorder      *evidence.Recorder
	PromptBuilder *PromptBuilder
	LLM           schemas.LLMClient
	Executor      *Executor
	Store         StepStore
	Confirm       ConfirmFunc
}

// NewProcessor builds a step processor for one session.
func NewProcessor(cfg *config.Config, sessionID, request string, win ui.Window, deps ProcessorDeps, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:           cfg,
		driver:        deps.Driver,
		structural:    deps.Structural,
		apiStructural: deps.APIStructural,
		vision:        deps.Vision,
		filter:        deps.Filter,
		photographer:  deps.Photographer,
		recorder:      deps.Recorder,
		promptBuilder: deps.PromptBuilder,
		llm:           deps.LLM,
		executor:      deps.Executor,
		memory:        NewMemory(),
		blackboard:    NewBlackboard(),
		store:         deps.Store,
		confirm:       deps.Confirm,
		logger:        logger.Named("processor").With(zap.String("session_id", sessionID)),
		now:           time.Now,
		sessionID:     sessionID,
		agentName:     "app_agent",
		request:       request,
		win:           win,
	}
}

// Memory exposes the agent's step history.
func (p *Processor) Memory() *Memory { return p.memory }

// SetSubtask updates the subtask label recorded with subsequent steps.
func (p *Processor) SetSubtask(subtask string) { p.subtask = subtask }

// stepContext is the scratch state threaded through one step's states.
type stepContext struct {
	step     int
	cleanImg image.Image

	dict         *ui.Annotation
	apiDict      *ui.Annotation
	filteredDict *ui.Annotation

	request schemas.GenerationRequest
	cost    float64
	rawText string
	parsed  *Response

	sequence  ActionSequence
	execution ExecutionResult

	outcome  Outcome
	err      error
	failedAt string
	timeCost map[string]float64
}

// ProcessStep runs one full step. The returned error mirrors the step
// record's error field; the loop may continue past it.
func (p *Processor) ProcessStep(ctx context.Context) (Outcome, error) {
	sc := &stepContext{
		step:     p.globalStep + 1,
		outcome:  OutcomeContinue,
		timeCost: make(map[string]float64),
	}

	p.runState(sc, stateCaptureEvidence, func() error { return p.captureEvidence(ctx, sc) })
	p.runState(sc, stateResolveControls, func() error { return p.resolveControls(ctx, sc) })
	p.runState(sc, stateBuildPrompt, func() error { return p.buildPrompt(ctx, sc) })
	p.runState(sc, stateCallModel, func() error { return p.callModel(ctx, sc) })
	p.runState(sc, stateParseResponse, func() error { return p.parseResponse(sc) })
	p.runState(sc, stateExecuteAction, func() error { return p.executeAction(ctx, sc) })
	p.syncMemory(ctx, sc)

	if sc.outcome != OutcomeScreenshot {
		p.globalStep++
		p.roundStep++
		p.agentStep++
	}
	return sc.outcome, sc.err
}

// runState executes one state with timing, panic isolation, and gating on
// earlier failures.
func (p *Processor) runState(sc *stepContext, name string, fn func() error) {
	if sc.err != nil {
		return
	}
	start := p.now()
	defer func() {
		sc.timeCost[name] = p.now().Sub(start).Seconds()
		if r := recover(); r != nil {
			sc.err = fmt.Errorf("state %s panicked: %v", name, r)
			sc.failedAt = name
			p.logger.Error("Step state panicked",
				zap.String("state", name), zap.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		sc.err = fmt.Errorf("state %s failed: %w", name, err)
		sc.failedAt = name
		p.logger.Warn("Step state failed", zap.String("state", name), zap.Error(err))
	}
}

// captureEvidence takes the clean screenshot, runs detection, merging, and
// annotation (full and API variants), and writes the optional evidence
// artifacts. Every optional artifact is independently toggleable.
func (p *Processor) captureEvidence(ctx context.Context, sc *stepContext) error {
	if !p.driver.Alive(p.win) {
		sc.outcome = OutcomeFinish
		return newExecutionError(ErrCodeApplicationClosed, "window disappeared before capture")
	}

	img, err := p.photographer.CaptureClean(ctx, p.win, p.recorder.CleanScreenshotPath(sc.step))
	if err != nil {
		return err
	}
	sc.cleanImg = img

	// A SCREENSHOT retry re-annotates only the controls the model flagged as
	// overlapped, keeping their labels; unknown labels fall back to a full
	// re-detection.
	if len(p.reannotate) > 0 && p.lastDict != nil {
		if subset := p.lastDict.Subset(p.reannotate); subset.Len() > 0 {
			sc.dict = subset
		}
	}
	p.reannotate = nil

	if sc.dict == nil {
		structural, err := p.structural.Detect(ctx, p.win)
		if err != nil {
			return err
		}

		var vision []ui.Control
		if p.cfg.Control.Backend != "structural" && p.vision != nil {
			if vision, err = p.vision.Detect(ctx, p.win); err != nil {
				return err
			}
		}

		merged := ui.Merge(structural, vision, p.cfg.Control.IOUThreshold)
		sc.dict = ui.Annotate(merged)
	}
	p.lastDict = sc.dict

	apiControls, err := p.apiStructural.Detect(ctx, p.win)
	if err != nil {
		return err
	}
	sc.apiDict = ui.Annotate(apiControls)

	if err := p.photographer.SaveAnnotated(img, p.win, sc.dict, p.recorder.AnnotatedScreenshotPath(sc.step)); err != nil {
		return err
	}
	if p.cfg.Evidence.ConcatScreenshot {
		if err := p.saveConcat(sc); err != nil {
			p.logger.Warn("Concatenated screenshot failed", zap.Error(err))
		}
	}
	if p.cfg.Evidence.SaveFullScreen {
		if err := p.photographer.CaptureDesktop(ctx, p.recorder.DesktopScreenshotPath(sc.step)); err != nil {
			p.logger.Warn("Desktop screenshot failed", zap.Error(err))
		}
	}
	if p.cfg.Evidence.SaveUITree {
		if err := p.recorder.WriteUITree(sc.step, sc.dict.InfoList()); err != nil {
			p.logger.Warn("UI tree dump failed", zap.Error(err))
		}
	}
	if p.cfg.Evidence.LogXML {
		if err := p.recorder.WriteControlXML(sc.step, renderControlXML(sc.dict)); err != nil {
			p.logger.Warn("Control XML dump failed", zap.Error(err))
		}
	}
	return nil
}

func (p *Processor) saveConcat(sc *stepContext) error {
	annotated, err := evidence.LoadImage(p.recorder.AnnotatedScreenshotPath(sc.step))
	if err != nil {
		return err
	}
	return p.photographer.SaveConcat(sc.cleanImg, annotated, p.recorder.ConcatScreenshotPath(sc.step))
}

// resolveControls narrows the dictionary with the filter pipeline using the
// most recent plan.
func (p *Processor) resolveControls(ctx context.Context, sc *stepContext) error {
	sc.filteredDict = p.filter.Filter(ctx, p.win, sc.dict, p.prevPlan)
	return nil
}

// buildPrompt assembles the model request from evidence, history and shared
// context.
func (p *Processor) buildPrompt(ctx context.Context, sc *stepContext) error {
	images, err := p.promptImages(sc)
	if err != nil {
		return err
	}

	sc.request = p.promptBuilder.Build(ctx, PromptInput{
		Request:     p.request,
		Subtask:     p.subtask,
		Application: p.win.Process,
		Controls:    sc.filteredDict.InfoList(),
		History:     p.memory.Projected(p.cfg.Session.HistoryKeys),
		Blackboard:  p.blackboard.ToPrompt(),
		PrevPlan:    p.prevPlan,
		Images:      images,
	})
	return nil
}

// promptImages returns the current annotated capture and, when configured,
// the previous step's evidence frame (the selected-controls shot when it
// exists, the clean shot otherwise).
func (p *Processor) promptImages(sc *stepContext) ([]string, error) {
	var images []string

	if p.cfg.Evidence.IncludeLastScreenshot && sc.step > 1 {
		prev := sc.step - 1
		last, err := evidence.EncodeFileBase64(p.recorder.SelectedControlsScreenshotPath(prev))
		if err != nil {
			last, err = evidence.EncodeFileBase64(p.recorder.CleanScreenshotPath(prev))
		}
		if err == nil {
			images = append(images, last)
		}
	}

	current, err := evidence.EncodeFileBase64(p.recorder.AnnotatedScreenshotPath(sc.step))
	if err != nil {
		return nil, err
	}
	return append(images, current), nil
}

// callModel invokes the model with a bounded blind-retry budget for
// unparseable responses. Each retry re-issues the identical request; after
// the budget is exhausted the raw text is surfaced in the error.
func (p *Processor) callModel(ctx context.Context, sc *stepContext) error {
	attempts := p.cfg.LLM.JSONParsingRetry
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := p.llm.Generate(ctx, sc.request)
		if err != nil {
			return err
		}
		sc.cost += result.Cost
		sc.rawText = result.Text

		parsed, err := ParseResponse(result.Text)
		if err == nil {
			sc.parsed = parsed
			return nil
		}
		lastErr = err
		p.logger.Warn("Model response failed to parse; re-asking",
			zap.Int("attempt", attempt), zap.Int("budget", attempts), zap.Error(err))
	}
	return newExecutionError(ErrCodeResponseParseFailure,
		fmt.Sprintf("%v; raw response: %s", lastErr, sc.rawText))
}

// parseResponse turns the parsed decision into an action sequence and
// adopts the model's updated plan.
func (p *Processor) parseResponse(sc *stepContext) error {
	resp := sc.parsed
	if len(resp.Plan) > 0 {
		p.prevPlan = resp.Plan
	}

	switch resp.Status {
	case StatusScreenshot:
		sc.outcome = OutcomeScreenshot
		p.reannotate = flaggedLabels(resp.Args)
		return nil
	case StatusFinish:
		sc.outcome = OutcomeFinish
	case StatusContinue, StatusConfirm, "":
	default:
		return fmt.Errorf("model returned unknown status %q", resp.Status)
	}

	if resp.Function != "" {
		sc.sequence = ActionSequence{{
			Function:     resp.Function,
			Args:         resp.Args,
			ControlLabel: resp.ControlLabel,
			ControlText:  resp.ControlText,
		}}
	}
	return nil
}

// flaggedLabels extracts the overlapped control labels a SCREENSHOT response
// carries in its args.
func flaggedLabels(args map[string]any) map[int]struct{} {
	list, ok := args["control_labels"].([]any)
	if !ok {
		return nil
	}
	labels := make(map[int]struct{}, len(list))
	for _, item := range list {
		if label, err := normalizeLabel(item); err == nil && label > 0 {
			labels[label] = struct{}{}
		}
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

// executeAction runs the decided actions, pausing for confirmation on
// sensitive steps and capturing the highlighted evidence screenshot.
func (p *Processor) executeAction(ctx context.Context, sc *stepContext) error {
	if sc.outcome == OutcomeScreenshot || len(sc.sequence) == 0 {
		return nil
	}

	if sc.parsed.Status == StatusConfirm {
		if !p.askConfirm(ctx, sc) {
			sc.outcome = OutcomeConfirm
			return nil
		}
	}

	sc.execution = p.executor.Execute(ctx, p.win, sc.dict, sc.apiDict, sc.sequence)

	if err := p.photographer.SaveHighlighted(sc.cleanImg, p.win, sc.execution.EvidenceRects,
		p.recorder.SelectedControlsScreenshotPath(sc.step)); err != nil {
		p.logger.Warn("Selected-controls screenshot failed", zap.Error(err))
	}

	// The application closing mid-execution ends the session regardless of
	// the model's own status.
	if !p.driver.Alive(p.win) {
		sc.outcome = OutcomeFinish
	}
	return nil
}

func (p *Processor) askConfirm(ctx context.Context, sc *stepContext) bool {
	if p.confirm == nil {
		return true
	}
	question := fmt.Sprintf("Execute %s on %q?", sc.parsed.Function, sc.parsed.ControlText)
	return p.confirm(ctx, question)
}

// syncMemory always runs, even after a failed state: failed steps are
// counted and memorized with their error populated.
func (p *Processor) syncMemory(ctx context.Context, sc *stepContext) {
	start := p.now()
	record := p.buildRecord(sc)
	sc.timeCost[stateSyncMemory] = p.now().Sub(start).Seconds()
	p.memory.Add(record)

	if err := p.recorder.AppendStep(&record); err != nil {
		p.logger.Error("Failed to append step record", zap.Error(err))
	}
	if p.store != nil {
		if err := p.store.InsertStep(ctx, &record); err != nil {
			p.logger.Error("Failed to persist step record", zap.Error(err))
		}
	}

	for _, action := range record.ActionSuccess {
		p.blackboard.AddTrajectory(p.agentName, action)
	}
	if sc.parsed != nil && sc.parsed.SaveScreenshot {
		p.blackboard.AddScreenshot(p.recorder.CleanScreenshotPath(sc.step))
	}
}

func (p *Processor) buildRecord(sc *stepContext) schemas.StepRecord {
	record := schemas.StepRecord{
		SessionID:   p.sessionID,
		Step:        sc.step,
		RoundStep:   p.roundStep + 1,
		AgentStep:   p.agentStep + 1,
		Round:       p.round,
		Subtask:     p.subtask,
		Request:     p.request,
		Agent:       p.agentName,
		Application: p.win.Process,
		Plan:        p.prevPlan,
		Status:      string(sc.outcome),
		Cost:        sc.cost,
		TimeCost:    sc.timeCost,

		CleanScreenshot:     p.recorder.CleanScreenshotPath(sc.step),
		AnnotatedScreenshot: p.recorder.AnnotatedScreenshotPath(sc.step),
	}

	if sc.parsed != nil {
		record.Results = sc.parsed.Comment
		if sc.parsed.Status == StatusConfirm {
			if sc.outcome == OutcomeConfirm {
				record.UserConfirm = "No"
			} else {
				record.UserConfirm = "Yes"
			}
		}
	}

	for _, action := range sc.execution.Records {
		record.FunctionCall = append(record.FunctionCall, action.Function)
		record.Action = append(record.Action, action)
		if action.Success {
			record.ActionSuccess = append(record.ActionSuccess, action)
		}
	}
	record.ControlLog = sc.execution.ControlLogs
	if len(sc.execution.Records) > 0 {
		record.SelectedScreenshot = p.recorder.SelectedControlsScreenshotPath(sc.step)
	}

	if sc.err != nil {
		record.Error = sc.err.Error()
	}
	return record
}

// renderControlXML renders the annotation dictionary as a flat XML fragment
// for offline inspection.
func renderControlXML(dict *ui.Annotation) string {
	var sb strings.Builder
	sb.WriteString("<controls>\n")
	dict.Each(func(label int, c ui.Control) bool {
		rect := c.Rect()
		sb.WriteString(fmt.Sprintf("  <control label=\"%d\" type=\"%s\" text=\"%s\" left=\"%d\" top=\"%d\" right=\"%d\" bottom=\"%d\"/>\n",
			label, xmlAttr(c.ControlType()), xmlAttr(c.Text()),
			int(rect.Left), int(rect.Top), int(rect.Right), int(rect.Bottom)))
		return true
	})
	sb.WriteString("</controls>\n")
	return sb.String()
}

// xmlAttr escapes a string for use inside an XML attribute value.
func xmlAttr(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
