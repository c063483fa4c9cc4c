// File: internal/agent/memory.go
// Description: The agent's in-session memory - the ordered list of step
// records - and the shared blackboard that carries cross-agent context
// (latest successful actions, saved screenshots) into later prompts.

package agent

import (
	"strings"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// Memory is the agent's append-only step history for one session.
type Memory struct {
	mu      sync.RWMutex
	records []schemas.StepRecord
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Add appends one step record.
func (m *Memory) Add(record schemas.StepRecord) {
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
}

// Length returns the number of memorized steps.
func (m *Memory) Length() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Last returns the most recent record, if any.
func (m *Memory) Last() (schemas.StepRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return schemas.StepRecord{}, false
	}
	return m.records[len(m.records)-1], true
}

// All returns a copy of every record in order.
func (m *Memory) All() []schemas.StepRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schemas.StepRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Projected returns each step narrowed to the given history keys, oldest
// first. This is what past steps contribute to future prompts.
func (m *Memory) Projected(keys []string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]any, 0, len(m.records))
	for i := range m.records {
		out = append(out, m.records[i].Project(keys))
	}
	return out
}

// blackboardEntry is one shared artifact with its originating agent.
type blackboardEntry struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
}

// Blackboard is the cross-agent shared context surface. Within one session
// it accumulates trajectory notes and screenshot references that later
// prompt assemblies include verbatim.
type Blackboard struct {
	mu           sync.RWMutex
	trajectories []blackboardEntry
	screenshots  []string
}

// NewBlackboard creates an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{}
}

// AddTrajectory records a structured note (typically the latest successful
// action) from the named agent.
func (b *Blackboard) AddTrajectory(agent string, payload any) {
	content, err := json.MarshalToString(payload)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.trajectories = append(b.trajectories, blackboardEntry{Agent: agent, Content: content})
	b.mu.Unlock()
}

// AddScreenshot records a saved screenshot path for later visual context.
func (b *Blackboard) AddScreenshot(path string) {
	b.mu.Lock()
	b.screenshots = append(b.screenshots, path)
	b.mu.Unlock()
}

// Screenshots returns the recorded screenshot paths in order.
func (b *Blackboard) Screenshots() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.screenshots))
	copy(out, b.screenshots)
	return out
}

// ToPrompt renders the blackboard as a prompt fragment. An empty blackboard
// renders to the empty string.
func (b *Blackboard) ToPrompt() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.trajectories) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("[Shared Context]\n")
	for _, entry := range b.trajectories {
		sb.WriteString(entry.Agent)
		sb.WriteString(": ")
		sb.WriteString(entry.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
