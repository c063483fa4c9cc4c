// File: cmd/deskpilot/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/deskpilot/deskpilot-cli/cmd"
	"github.com/deskpilot/deskpilot-cli/internal/observability"
)

const panicLogFile = "panic.log"

func main() {
	defer handlePanic()

	// Graceful shutdown on SIGINT/SIGTERM: sessions observe the context and
	// finish the in-flight step before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
	observability.Sync()
}

// handlePanic writes the stack to a local file before the process dies, so a
// crash during an unattended batch leaves a trace.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	payload := fmt.Sprintf("panic: %v\n\n%s\n", r, debug.Stack())
	if err := os.WriteFile(panicLogFile, []byte(payload), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, payload)
	}
	os.Exit(2)
}
