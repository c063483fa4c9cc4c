// File: internal/orchestrator/orchestrator.go
// Description: The batch runner. Independent sessions are dispatched across a
// bounded worker pool; sessions share no mutable state. Completed session
// artifact directories are handed to an export queue drained by a single
// background worker.

package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// Exporter uploads or archives one completed session's artifacts.
type Exporter interface {
	Export(ctx context.Context, sessionID, artifactRoot string) error
}

// Orchestrator runs batches of sessions.
type Orchestrator struct {
	cfg      *config.Config
	exporter Exporter
	logger   *zap.Logger
}

// New creates an orchestrator. The exporter may be nil, which disables the
// export queue.
func New(cfg *config.Config, exporter Exporter, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		exporter: exporter,
		logger:   logger.Named("orchestrator"),
	}
}

type exportJob struct {
	sessionID    string
	artifactRoot string
}

// RunBatch executes the sessions with at most cfg.Session.Concurrency in
// flight and returns one result per session, in input order.
func (o *Orchestrator) RunBatch(ctx context.Context, sessions []*Session) []Result {
	results := make([]Result, len(sessions))

	exports := make(chan exportJob, len(sessions))
	var exportWG sync.WaitGroup
	if o.exporter != nil {
		exportWG.Add(1)
		go o.drainExports(ctx, exports, &exportWG)
	}

	sem := semaphore.NewWeighted(int64(o.cfg.Session.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i, session := range sessions {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = Result{SessionID: session.ID(), Err: err}
				return nil
			}
			defer sem.Release(1)

			o.logger.Info("Session starting", zap.String("session_id", session.ID()))
			results[i] = session.Run(gctx)
			o.logger.Info("Session finished",
				zap.String("session_id", session.ID()),
				zap.Int("steps", results[i].Steps),
				zap.String("outcome", string(results[i].Outcome)))

			if o.exporter != nil {
				exports <- exportJob{sessionID: session.ID(), artifactRoot: session.ArtifactRoot()}
			}
			return nil
		})
	}
	g.Wait()

	close(exports)
	exportWG.Wait()
	return results
}

// drainExports uploads completed sessions one at a time. Export failures are
// logged, never fatal to the batch.
func (o *Orchestrator) drainExports(ctx context.Context, exports <-chan exportJob, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range exports {
		if err := o.exporter.Export(ctx, job.sessionID, job.artifactRoot); err != nil {
			o.logger.Error("Session export failed",
				zap.String("session_id", job.sessionID), zap.Error(err))
		}
	}
}
