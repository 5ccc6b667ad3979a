package models

import "time"

// Provider identifies one of the pluggable AI completion backends.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	// ProviderMistral is the managed-agent backend: the vendor keeps the
	// prompt/behavior definition server-side and we address it by an
	// opaque agent reference instead of a model id.
	ProviderMistral Provider = "mistral"
)

// ManagedAgentModel is the sentinel model id used when a config targets a
// provider-side managed agent rather than a raw model.
const ManagedAgentModel = "managed-agent"

// AgentConfig is the durable configuration and usage telemetry of one
// named staff agent.
type AgentConfig struct {
	AgentID     string   `json:"agent_id"`
	Name        string   `json:"name"`
	Provider    Provider `json:"provider"`
	Model       string   `json:"model"`
	AgentRef    string   `json:"agent_ref,omitempty"` // managed-agent reference, mistral only
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Enabled     bool     `json:"enabled"`

	TotalCalls    int64     `json:"total_calls"`
	AvgResponseMs float64   `json:"avg_response_ms"`
	LastError     string    `json:"last_error,omitempty"`
	LastCallAt    time.Time `json:"last_call_at,omitempty"`
}

// IsManagedAgent reports whether this config addresses a provider-side
// managed agent instead of a raw model.
func (a *AgentConfig) IsManagedAgent() bool {
	return a.Provider == ProviderMistral && a.Model == ManagedAgentModel
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleAgent ChatRole = "agent"
)

// ChatMessage is one turn in an agent's append-only conversation history.
type ChatMessage struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Provider  Provider  `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
}
