// File: internal/agent/prompt_test.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

type stubRetriever struct {
	examples []Example
	err      error
}

func (r *stubRetriever) Retrieve(context.Context, string, int) ([]Example, error) {
	return r.examples, r.err
}

type stubKnowledge struct {
	offline, online []string
	offlineErr      error
}

func (k *stubKnowledge) OfflineDocs(context.Context, string) ([]string, error) {
	return k.offline, k.offlineErr
}

func (k *stubKnowledge) OnlineDocs(context.Context, string) ([]string, error) {
	return k.online, nil
}

func ragSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		ExperienceRAG:    true,
		DemonstrationRAG: true,
		RetrievalTopK:    3,
	}
}

func TestBuildIncludesSectionsInFixedOrder(t *testing.T) {
	builder := NewPromptBuilder(ragSessionConfig(),
		&stubRetriever{examples: []Example{{Request: "past task", Response: "past answer"}}},
		&stubRetriever{examples: []Example{{Request: "demo task", Response: "demo answer"}}},
		&stubKnowledge{offline: []string{"offline doc"}, online: []string{"online doc"}},
		zap.NewNop())

	req := builder.Build(context.Background(), PromptInput{
		Request:     "rename the sheet",
		Subtask:     "open the context menu",
		Application: "EXCEL.EXE",
		Controls:    []ui.ControlInfo{{Label: 1, Text: "Sheet1", ControlType: "TabItem"}},
		History:     []map[string]any{{"step": 1, "status": "CONTINUE"}},
		Blackboard:  "[Shared Context]\napp_agent: {}",
		PrevPlan:    []string{"rename via the tab menu"},
		Images:      []string{"aGVsbG8="},
	})

	prompt := req.UserPrompt
	sections := []string{
		"[Task]", "[Current Subtask]", "[Application]", "[Examples]",
		"[Reference Documents]", "[Available Controls]", "[Step History]",
		"[Blackboard]", "[Previous Plan]",
	}
	prev := -1
	for _, section := range sections {
		idx := strings.Index(prompt, section)
		require.GreaterOrEqual(t, idx, 0, "missing section %s", section)
		assert.Greater(t, idx, prev, "section %s out of order", section)
		prev = idx
	}

	// Experience examples precede demonstration examples, offline docs precede
	// online docs.
	assert.Less(t, strings.Index(prompt, "past task"), strings.Index(prompt, "demo task"))
	assert.Less(t, strings.Index(prompt, "offline doc"), strings.Index(prompt, "online doc"))

	assert.True(t, req.Options.ForceJSONFormat)
	assert.Equal(t, []string{"aGVsbG8="}, req.Images)
	assert.Contains(t, req.SystemPrompt, "strict JSON")
}

func TestBuildOmitsEmptySections(t *testing.T) {
	builder := NewPromptBuilder(config.SessionConfig{}, nil, nil, nil, zap.NewNop())

	req := builder.Build(context.Background(), PromptInput{Request: "close the window"})

	assert.Contains(t, req.UserPrompt, "[Task]")
	for _, absent := range []string{"[Examples]", "[Reference Documents]", "[Step History]", "[Blackboard]", "[Previous Plan]"} {
		assert.NotContains(t, req.UserPrompt, absent)
	}
}

func TestBuildDegradesOnRetrievalFailure(t *testing.T) {
	builder := NewPromptBuilder(ragSessionConfig(),
		&stubRetriever{err: fmt.Errorf("index offline")},
		&stubRetriever{examples: []Example{{Request: "demo task", Response: "demo answer"}}},
		&stubKnowledge{offlineErr: fmt.Errorf("docs missing"), online: []string{"online doc"}},
		zap.NewNop())

	req := builder.Build(context.Background(), PromptInput{Request: "rename the sheet"})

	assert.Contains(t, req.UserPrompt, "demo task")
	assert.Contains(t, req.UserPrompt, "online doc")
}

func TestBuildSkipsDisabledRetrievers(t *testing.T) {
	cfg := ragSessionConfig()
	cfg.ExperienceRAG = false
	builder := NewPromptBuilder(cfg,
		&stubRetriever{examples: []Example{{Request: "past task"}}},
		&stubRetriever{examples: []Example{{Request: "demo task"}}},
		nil, zap.NewNop())

	req := builder.Build(context.Background(), PromptInput{Request: "rename the sheet"})

	assert.NotContains(t, req.UserPrompt, "past task")
	assert.Contains(t, req.UserPrompt, "demo task")
}
