// File: internal/orchestrator/export.go
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirExporter copies a completed session's artifact directory into a target
// directory, keyed by session ID.
type DirExporter struct {
	target string
}

// NewDirExporter builds an exporter writing under target.
func NewDirExporter(target string) *DirExporter {
	return &DirExporter{target: target}
}

// Export copies the artifact tree. Existing exports for the same session are
// not overwritten.
func (e *DirExporter) Export(_ context.Context, sessionID, artifactRoot string) error {
	dst := filepath.Join(e.target, sessionID)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("export destination %s already exists", dst)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.CopyFS(dst, os.DirFS(artifactRoot)); err != nil {
		return fmt.Errorf("failed to copy session artifacts: %w", err)
	}
	return nil
}
