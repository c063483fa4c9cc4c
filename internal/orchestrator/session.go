// File: internal/orchestrator/session.go
// Description: One session - a sequential step loop over a single application
// window. Steps run strictly one after another through the processor; the
// loop ends on FINISH, a declined confirmation, the step budget, or the
// session deadline.

package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/agent"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/evidence"
)

// maxScreenshotRetries bounds consecutive re-annotation requests before the
// step is counted anyway.
const maxScreenshotRetries = 3

// NewSessionID mints a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// StepProcessor is the per-step state machine a session drives.
type StepProcessor interface {
	ProcessStep(ctx context.Context) (agent.Outcome, error)
}

// Session owns one sequential automation run.
type Session struct {
	cfg       *config.Config
	id        string
	request   string
	processor StepProcessor
	recorder  *evidence.Recorder
	logger    *zap.Logger
}

// NewSession wires a session around an already-constructed processor.
func NewSession(cfg *config.Config, id, request string, processor StepProcessor, recorder *evidence.Recorder, logger *zap.Logger) *Session {
	return &Session{
		cfg:       cfg,
		id:        id,
		request:   request,
		processor: processor,
		recorder:  recorder,
		logger:    logger.Named("session").With(zap.String("session_id", id)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ArtifactRoot returns the session's evidence directory.
func (s *Session) ArtifactRoot() string { return s.recorder.Root() }

// Result summarizes a finished session.
type Result struct {
	SessionID string
	Steps     int
	Outcome   agent.Outcome
	Err       error
}

// Run executes steps until a terminal outcome. A step-level error is recorded
// and the loop continues; only context cancellation aborts the run itself.
func (s *Session) Run(ctx context.Context) Result {
	if s.cfg.Session.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Session.Timeout)
		defer cancel()
	}
	defer s.recorder.Close()

	result := Result{SessionID: s.id, Outcome: agent.OutcomeContinue}
	screenshotRetries := 0
	for result.Steps < s.cfg.Session.MaxSteps {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		outcome, err := s.processor.ProcessStep(ctx)
		if err != nil {
			// The error is already memorized in the step record; the loop
			// proceeds unless the context is gone.
			s.logger.Warn("Step completed with error", zap.Error(err))
		}

		switch outcome {
		case agent.OutcomeScreenshot:
			// Retry control selection on a fresh capture; the processor did
			// not advance its step counter. Capped so a model stuck asking
			// for screenshots cannot stall the session forever.
			if screenshotRetries < maxScreenshotRetries {
				screenshotRetries++
				s.logger.Info("Re-annotating on model request",
					zap.Int("retry", screenshotRetries))
				continue
			}
			result.Steps++
			screenshotRetries = 0
		case agent.OutcomeFinish, agent.OutcomeConfirm:
			result.Steps++
			result.Outcome = outcome
			return result
		default:
			result.Steps++
			screenshotRetries = 0
		}
	}

	s.logger.Info("Session reached step budget", zap.Int("steps", result.Steps))
	result.Outcome = agent.OutcomeFinish
	return result
}
