// File: cmd/run.go
// Description: The run command. Wires the full engine - driver, detectors,
// filter pipeline, layout resolver, photographer, model client, processor -
// into one session per request and dispatches them through the batch runner.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/agent"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/evidence"
	"github.com/deskpilot/deskpilot-cli/internal/llmclient"
	"github.com/deskpilot/deskpilot-cli/internal/observability"
	"github.com/deskpilot/deskpilot-cli/internal/orchestrator"
	"github.com/deskpilot/deskpilot-cli/internal/sheet"
	"github.com/deskpilot/deskpilot-cli/internal/store"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

var (
	runProcess   string
	runTitle     string
	runExportDir string
	runYes       bool
)

var runCmd = &cobra.Command{
	Use:   "run [request...]",
	Short: "Execute one automation request per argument against a host window.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessions(cmd.Context(), args)
	},
}

func init() {
	runCmd.Flags().StringVar(&runProcess, "process", "", "host application process name (e.g. EXCEL.EXE)")
	runCmd.Flags().StringVar(&runTitle, "title", "", "window title substring to match")
	runCmd.Flags().StringVar(&runExportDir, "export-dir", "", "copy completed session artifacts here")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "auto-approve sensitive actions")
	runCmd.MarkFlagRequired("process")
	rootCmd.AddCommand(runCmd)
}

func runSessions(ctx context.Context, requests []string) error {
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	driver, err := ui.NewDriver()
	if err != nil {
		return fmt.Errorf("failed to initialize host driver: %w", err)
	}

	llm, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model client: %w", err)
	}
	defer llm.Close()

	var stepStore *store.Store
	if cfg.Session.StorePath != "" {
		if stepStore, err = store.Open(cfg.Session.StorePath, logger); err != nil {
			return fmt.Errorf("failed to open step store: %w", err)
		}
		defer stepStore.Close()
	}

	sessions := make([]*orchestrator.Session, 0, len(requests))
	for _, request := range requests {
		session, err := buildSession(ctx, cfg, driver, llm, stepStore, request, logger)
		if err != nil {
			return err
		}
		sessions = append(sessions, session)
	}

	var exporter orchestrator.Exporter
	if runExportDir != "" {
		exporter = orchestrator.NewDirExporter(runExportDir)
	}

	results := orchestrator.New(cfg, exporter, logger).RunBatch(ctx, sessions)
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			logger.Error("Session aborted",
				zap.String("session_id", result.SessionID), zap.Error(result.Err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions aborted", failed, len(results))
	}
	return nil
}

// buildSession assembles the full per-session component graph.
func buildSession(ctx context.Context, cfg *config.Config, driver ui.Driver, llm *llmclient.Client, stepStore *store.Store, request string, logger *zap.Logger) (*orchestrator.Session, error) {
	win, err := driver.FindWindow(ctx, runProcess, runTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to find window for %s: %w", runProcess, err)
	}

	sessionID := orchestrator.NewSessionID()
	recorder, err := evidence.NewRecorder(cfg.Session.LogRoot, sessionID, logger)
	if err != nil {
		return nil, err
	}

	photographer := evidence.NewPhotographer(driver, logger)
	layoutEngine := sheet.NewLayoutEngine(cfg.Sheet, driver, logger)
	resolver := sheet.NewResolver(layoutEngine, driver, cfg.Sheet.CellControlTypes, logger)

	var vision ui.Detector
	if cfg.Vision.Enabled {
		vision = ui.NewVisionDetector(cfg.Vision, driver.CaptureWindow, logger)
	}

	deps := agent.ProcessorDeps{
		Driver:        driver,
		Structural:    ui.NewStructuralDetector(driver, cfg.Control.ControlList, logger),
		APIStructural: ui.NewStructuralDetector(driver, cfg.Control.APIControlList, logger),
		Vision:        vision,
		Filter:        ui.NewFilterPipeline(cfg.Control, nil, nil, photographer, logger),
		Photographer:  photographer,
		Recorder:      recorder,
		PromptBuilder: agent.NewPromptBuilder(cfg.Session, nil, nil, nil, logger),
		LLM:           llm,
		Executor:      agent.NewExecutor(driver, resolver, agent.NewRegistry(), logger),
		Confirm:       confirmFromTerminal(),
	}
	if stepStore != nil {
		deps.Store = stepStore
	}

	processor := agent.NewProcessor(cfg, sessionID, request, win, deps, logger)
	return orchestrator.NewSession(cfg, sessionID, request, processor, recorder, logger), nil
}

// confirmFromTerminal prompts on stdin unless --yes was given.
func confirmFromTerminal() agent.ConfirmFunc {
	if runYes {
		return nil
	}
	reader := bufio.NewReader(os.Stdin)
	return func(_ context.Context, question string) bool {
		fmt.Printf("%s [y/N]: ", question)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
