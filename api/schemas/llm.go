// File: api/schemas/llm.go
package schemas

import "context"

// GenerationOptions carries the per-request generation parameters. Sampling
// parameters (temperature, top-p, top-k, max tokens) are client configuration,
// not per-request options.
type GenerationOptions struct {
	ForceJSONFormat bool `json:"force_json_format"` // If true, forces the model to output valid JSON.
}

// GenerationRequest encapsulates a complete structured request to the LLM: the
// system and user prompts, the base64-encoded screenshot evidence, and
// generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The assembled observation for this step.
	Images       []string          `json:"images"`        // Base64 PNG screenshot evidence, in prompt order.
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}

// GenerationResult carries the raw model output together with the usage
// accounting the step processor records into memory.
type GenerationResult struct {
	Text             string  `json:"text"`              // The raw text returned by the model.
	PromptTokens     int     `json:"prompt_tokens"`     // Tokens consumed by the request.
	CompletionTokens int     `json:"completion_tokens"` // Tokens produced by the model.
	Cost             float64 `json:"cost"`              // Estimated request cost in USD.
	ElapsedSeconds   float64 `json:"elapsed_seconds"`   // Wall-clock duration of the call.
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider. Schema
// conformance of the returned text is the provider's responsibility; callers
// re-ask on malformed output.
type LLMClient interface {
	// Generate produces a completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	// Close cleans up any resources held by the client.
	Close() error
}
