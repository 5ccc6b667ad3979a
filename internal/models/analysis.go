package models

import "time"

// AnalysisSection is one themed block of the compiled station analysis.
type AnalysisSection struct {
	Icon        string   `json:"icon"`
	Title       string   `json:"title"`
	Content     string   `json:"content,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// AgentContribution is one agent's raw status report, kept alongside the
// synthesized analysis for inspection.
type AgentContribution struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Analysis is the latest compiled station analysis. A single record is
// kept; each compilation run overwrites the previous one.
type Analysis struct {
	Timestamp          time.Time                    `json:"timestamp"`
	Summary            string                       `json:"summary"`
	Sections           []AnalysisSection            `json:"sections"`
	AgentContributions map[string]AgentContribution `json:"agent_contributions"`
}

// TelegramConfig is the singleton notifier configuration plus its send
// telemetry.
type TelegramConfig struct {
	ChatID         string    `json:"chat_id"`
	Enabled        bool      `json:"enabled"`
	SendOnComplete bool      `json:"send_on_complete"`
	SendOnApprove  bool      `json:"send_on_approve"`
	MessagesSent   int64     `json:"messages_sent"`
	LastSentAt     time.Time `json:"last_sent_at,omitempty"`
}
