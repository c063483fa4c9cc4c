// File: internal/agent/prompt.go
// Description: Prompt assembly. A pure concatenation step - retrieval
// results, knowledge snippets, control summaries, history, and blackboard
// context are gathered and rendered into one model-ready request. The
// section order is fixed for reproducibility: experience examples precede
// demonstration examples, offline docs precede online docs.

package agent

import (
	"context"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/ui"
)

// Example is one retrieved request/response pair shown to the model.
type Example struct {
	Request  string `json:"request"`
	Response string `json:"response"`
}

// ExampleRetriever supplies few-shot examples for a request. Experience
// retrievers draw on the agent's own past sessions; demonstration retrievers
// draw on curated human demonstrations.
type ExampleRetriever interface {
	Retrieve(ctx context.Context, request string, topK int) ([]Example, error)
}

// KnowledgeProvider supplies help-document snippets for a request.
type KnowledgeProvider interface {
	OfflineDocs(ctx context.Context, request string) ([]string, error)
	OnlineDocs(ctx context.Context, request string) ([]string, error)
}

const systemPromptTemplate = `You are a desktop automation agent operating one application window.
Each turn you receive the current screenshot evidence, the annotated control list, and the task state.
Decide exactly one next action and reply with strict JSON:
{"observation": "...", "thought": "...", "control_label": <int or "">, "control_text": "...",
 "function": "...", "args": {...}, "status": "CONTINUE|CONFIRM|SCREENSHOT|FINISH",
 "plan": ["..."], "comment": "...", "save_screenshot": false}
Choose control_label only from the provided control list. Use "" when the function needs no control.`

// PromptBuilder assembles the per-step model request.
type PromptBuilder struct {
	cfg           config.SessionConfig
	experience    ExampleRetriever
	demonstration ExampleRetriever
	knowledge     KnowledgeProvider
	logger        *zap.Logger
}

// NewPromptBuilder wires the retrieval providers; any of them may be nil,
// which simply omits that section.
func NewPromptBuilder(cfg config.SessionConfig, experience, demonstration ExampleRetriever, knowledge KnowledgeProvider, logger *zap.Logger) *PromptBuilder {
	return &PromptBuilder{
		cfg:           cfg,
		experience:    experience,
		demonstration: demonstration,
		knowledge:     knowledge,
		logger:        logger.Named("prompt"),
	}
}

// PromptInput is everything one step contributes to its prompt.
type PromptInput struct {
	Request    string
	Subtask    string
	Application string
	Controls   []ui.ControlInfo
	History    []map[string]any
	Blackboard string
	PrevPlan   []string
	Images     []string
}

// Build assembles the model request. Retrieval failures degrade to an empty
// section, never an error: the step must proceed on whatever context is
// available.
func (b *PromptBuilder) Build(ctx context.Context, in PromptInput) schemas.GenerationRequest {
	var sb strings.Builder

	writeSection(&sb, "Task", in.Request)
	writeSection(&sb, "Current Subtask", in.Subtask)
	writeSection(&sb, "Application", in.Application)

	examples := b.gatherExamples(ctx, in.Request)
	if len(examples) > 0 {
		payload, _ := json.MarshalToString(examples)
		writeSection(&sb, "Examples", payload)
	}

	docs := b.gatherDocs(ctx, in.Request)
	if len(docs) > 0 {
		writeSection(&sb, "Reference Documents", strings.Join(docs, "\n---\n"))
	}

	if len(in.Controls) > 0 {
		payload, _ := json.MarshalToString(in.Controls)
		writeSection(&sb, "Available Controls", payload)
	}

	if len(in.History) > 0 {
		payload, _ := json.MarshalToString(in.History)
		writeSection(&sb, "Step History", payload)
	}

	if in.Blackboard != "" {
		writeSection(&sb, "Blackboard", in.Blackboard)
	}

	if len(in.PrevPlan) > 0 {
		writeSection(&sb, "Previous Plan", strings.Join(in.PrevPlan, "\n"))
	}

	return schemas.GenerationRequest{
		SystemPrompt: systemPromptTemplate,
		UserPrompt:   sb.String(),
		Images:       in.Images,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
		},
	}
}

// gatherExamples collects experience examples first, then demonstration
// examples. The order matters for reproducibility and must not change.
func (b *PromptBuilder) gatherExamples(ctx context.Context, request string) []Example {
	var out []Example
	for _, retriever := range []struct {
		name    string
		source  ExampleRetriever
		enabled bool
	}{
		{"experience", b.experience, b.cfg.ExperienceRAG},
		{"demonstration", b.demonstration, b.cfg.DemonstrationRAG},
	} {
		if !retriever.enabled || retriever.source == nil {
			continue
		}
		examples, err := retriever.source.Retrieve(ctx, request, b.cfg.RetrievalTopK)
		if err != nil {
			b.logger.Warn("Example retrieval failed; continuing without",
				zap.String("source", retriever.name), zap.Error(err))
			continue
		}
		out = append(out, examples...)
	}
	return out
}

// gatherDocs collects offline docs first, then online docs.
func (b *PromptBuilder) gatherDocs(ctx context.Context, request string) []string {
	if b.knowledge == nil {
		return nil
	}
	var out []string
	if docs, err := b.knowledge.OfflineDocs(ctx, request); err != nil {
		b.logger.Warn("Offline knowledge lookup failed; continuing without", zap.Error(err))
	} else {
		out = append(out, docs...)
	}
	if docs, err := b.knowledge.OnlineDocs(ctx, request); err != nil {
		b.logger.Warn("Online knowledge lookup failed; continuing without", zap.Error(err))
	} else {
		out = append(out, docs...)
	}
	return out
}

func writeSection(sb *strings.Builder, title, body string) {
	if body == "" {
		return
	}
	sb.WriteString("[")
	sb.WriteString(title)
	sb.WriteString("]\n")
	sb.WriteString(body)
	sb.WriteString("\n\n")
}
