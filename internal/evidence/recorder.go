// File: internal/evidence/recorder.go
// Description: Per-session artifact bookkeeping. The recorder owns the
// session's log directory layout - screenshot paths, UI-tree dumps, raw
// control XML, and the append-only structured step log.

package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

const stepLogName = "response.log"

// Recorder writes one session's evidence artifacts under a dedicated
// directory.
type Recorder struct {
	root   string
	logger *zap.Logger

	mu      sync.Mutex
	stepLog *os.File
}

// NewRecorder creates the session directory and opens the structured step
// log for appending.
func NewRecorder(logRoot, sessionID string, logger *zap.Logger) (*Recorder, error) {
	root := filepath.Join(logRoot, sessionID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session log directory: %w", err)
	}
	stepLog, err := os.OpenFile(filepath.Join(root, stepLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open step log: %w", err)
	}
	return &Recorder{
		root:    root,
		logger:  logger.Named("evidence.recorder"),
		stepLog: stepLog,
	}, nil
}

// Root returns the session's artifact directory.
func (r *Recorder) Root() string { return r.root }

// Screenshot artifact paths for one step.
func (r *Recorder) CleanScreenshotPath(step int) string {
	return filepath.Join(r.root, fmt.Sprintf("action_step%d.png", step))
}

func (r *Recorder) AnnotatedScreenshotPath(step int) string {
	return filepath.Join(r.root, fmt.Sprintf("action_step%d_annotated.png", step))
}

func (r *Recorder) SelectedControlsScreenshotPath(step int) string {
	return filepath.Join(r.root, fmt.Sprintf("action_step%d_selected_controls.png", step))
}

func (r *Recorder) ConcatScreenshotPath(step int) string {
	return filepath.Join(r.root, fmt.Sprintf("action_step%d_concat.png", step))
}

func (r *Recorder) DesktopScreenshotPath(step int) string {
	return filepath.Join(r.root, fmt.Sprintf("desktop_action_step%d.png", step))
}

// WriteUITree dumps the step's accessibility snapshot as JSON.
func (r *Recorder) WriteUITree(step int, tree any) error {
	payload, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ui tree: %w", err)
	}
	path := filepath.Join(r.root, fmt.Sprintf("ui_tree_step%d.json", step))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write ui tree: %w", err)
	}
	return nil
}

// WriteControlXML dumps the step's raw control description.
func (r *Recorder) WriteControlXML(step int, xml string) error {
	path := filepath.Join(r.root, fmt.Sprintf("action_step%d.xml", step))
	if err := os.WriteFile(path, []byte(xml), 0o644); err != nil {
		return fmt.Errorf("failed to write control xml: %w", err)
	}
	return nil
}

// AppendStep appends one step record to the session's structured log stream,
// one JSON object per line.
func (r *Recorder) AppendStep(record *schemas.StepRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal step record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.stepLog.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("failed to append step record: %w", err)
	}
	return nil
}

// Close flushes and closes the step log.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stepLog == nil {
		return nil
	}
	err := r.stepLog.Close()
	r.stepLog = nil
	return err
}
