// Package analysis compiles per-agent status reports into one
// synthesized station analysis: fan-out to every enabled agent, fan-in
// through the coordinating agent.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"radio-stack/internal/chat"
	"radio-stack/internal/models"
	"radio-stack/internal/registry"
	"radio-stack/shared/ai"
	"radio-stack/shared/store"
)

const analysisKey = "analysis/latest"

const reportPrompt = "Give a short status report on your area of the station: " +
	"what went well recently, what needs attention, and one concrete suggestion."

const synthesisSystemPrompt = `You are the station producer compiling staff reports into one analysis.
Respond in exactly this format:

SUMMARY: <two or three sentences on the overall station state>
SECTION: <single emoji> | <section title>
<section content>
- <suggestion>
- <suggestion>

Repeat the SECTION block for each theme you identify. Use only this structure, no other markup.`

// Notifier receives the finished analysis. Best effort.
type Notifier interface {
	AnalysisComplete(ctx context.Context, analysis *models.Analysis)
}

// Compiler runs the fan-out/fan-in compilation and keeps the latest
// analysis singleton in the store.
type Compiler struct {
	st            store.Store
	chat          *chat.Service
	reg           *registry.Registry
	completer     ai.Completer
	notifier      Notifier
	coordinator   string
	maxConcurrent int
	logger        zerolog.Logger
}

func NewCompiler(
	st store.Store,
	chatSvc *chat.Service,
	reg *registry.Registry,
	completer ai.Completer,
	notifier Notifier,
	coordinator string,
	maxConcurrent int,
	logger zerolog.Logger,
) *Compiler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Compiler{
		st:            st,
		chat:          chatSvc,
		reg:           reg,
		completer:     completer,
		notifier:      notifier,
		coordinator:   coordinator,
		maxConcurrent: maxConcurrent,
		logger:        logger.With().Str("component", "analysis").Logger(),
	}
}

// Compile gathers a report from every enabled agent except the
// coordinator, then asks the coordinator for a structured synthesis.
// A failed report becomes a placeholder contribution; only a failed
// synthesis call fails the compilation.
func (c *Compiler) Compile(ctx context.Context) (*models.Analysis, error) {
	agents, err := c.reg.List()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	var reporters []models.AgentConfig
	for _, agent := range agents {
		if agent.Enabled && agent.AgentID != c.coordinator {
			reporters = append(reporters, agent)
		}
	}

	contributions := c.collectReports(ctx, reporters)

	coordinator, err := c.reg.Get(c.coordinator)
	if err != nil {
		return nil, fmt.Errorf("load coordinator: %w", err)
	}

	result, err := c.synthesize(ctx, coordinator, contributions)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	summary, sections := parseSynthesis(result.Text)
	analysis := &models.Analysis{
		Timestamp:          time.Now().UTC(),
		Summary:            summary,
		Sections:           sections,
		AgentContributions: contributions,
	}

	if err := store.PutJSON(c.st, analysisKey, analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	c.logger.Info().Int("contributions", len(contributions)).
		Int("sections", len(sections)).Msg("analysis compiled")
	c.notifier.AnalysisComplete(ctx, analysis)
	return analysis, nil
}

// collectReports fans out report turns with bounded concurrency. Every
// reporter ends up in the result: failures as placeholder text.
func (c *Compiler) collectReports(ctx context.Context, reporters []models.AgentConfig) map[string]models.AgentContribution {
	contributions := make(map[string]models.AgentContribution, len(reporters))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxConcurrent)

	for _, agent := range reporters {
		wg.Add(1)
		go func(agent models.AgentConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text := c.requestReport(ctx, agent.AgentID)

			mu.Lock()
			contributions[agent.AgentID] = models.AgentContribution{Name: agent.Name, Text: text}
			mu.Unlock()
		}(agent)
	}
	wg.Wait()

	return contributions
}

// requestReport goes through the chat subsystem so the exchange lands in
// the agent's normal history.
func (c *Compiler) requestReport(ctx context.Context, agentID string) string {
	turn, err := c.chat.SendTurn(ctx, agentID, reportPrompt)
	if err != nil || turn.AgentMessage == nil {
		c.logger.Warn().Err(err).Str("agent", agentID).Msg("report call failed, using placeholder")
		return fmt.Sprintf("Report unavailable: %v", err)
	}
	return turn.AgentMessage.Text
}

func (c *Compiler) synthesize(ctx context.Context, coordinator models.AgentConfig, contributions map[string]models.AgentContribution) (*ai.CompletionResult, error) {
	var b strings.Builder
	b.WriteString("Staff reports:\n\n")
	for agentID, contrib := range contributions {
		fmt.Fprintf(&b, "--- %s (%s) ---\n%s\n\n", contrib.Name, agentID, contrib.Text)
	}
	b.WriteString("Compile these into the station analysis.")

	result, err := c.completer.Complete(ctx, ai.CompletionRequest{
		Provider:    coordinator.Provider,
		Model:       coordinator.Model,
		AgentRef:    coordinator.AgentRef,
		Temperature: coordinator.Temperature,
		MaxTokens:   coordinator.MaxTokens,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: synthesisSystemPrompt},
			{Role: ai.RoleUser, Content: b.String()},
		},
	})

	callResult := registry.CallResult{Success: err == nil}
	if err != nil {
		callResult.ErrorMessage = err.Error()
	} else {
		callResult.LatencyMs = result.LatencyMs
	}
	if recErr := c.reg.RecordCall(coordinator.AgentID, callResult); recErr != nil {
		c.logger.Warn().Err(recErr).Msg("record synthesis call telemetry")
	}

	return result, err
}

// parseSynthesis reads the strict SUMMARY/SECTION format. Free text from
// a model is never trusted: anything that does not parse is wrapped as a
// single section rather than discarded.
func parseSynthesis(text string) (string, []models.AnalysisSection) {
	var summary string
	var sections []models.AnalysisSection
	var current *models.AnalysisSection
	var contentLines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(contentLines, "\n"))
		sections = append(sections, *current)
		current = nil
		contentLines = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "SUMMARY:"):
			summary = strings.TrimSpace(strings.TrimPrefix(trimmed, "SUMMARY:"))
		case strings.HasPrefix(trimmed, "SECTION:"):
			flush()
			header := strings.TrimSpace(strings.TrimPrefix(trimmed, "SECTION:"))
			icon, title := "📋", header
			if idx := strings.Index(header, "|"); idx >= 0 {
				icon = strings.TrimSpace(header[:idx])
				title = strings.TrimSpace(header[idx+1:])
			}
			current = &models.AnalysisSection{Icon: icon, Title: title}
		case strings.HasPrefix(trimmed, "- ") && current != nil:
			current.Suggestions = append(current.Suggestions, strings.TrimSpace(trimmed[2:]))
		case current != nil && trimmed != "":
			contentLines = append(contentLines, trimmed)
		}
	}
	flush()

	if summary == "" || len(sections) == 0 {
		// Unparseable output degrades to a single wrapped section.
		wrapped := strings.TrimSpace(text)
		if summary == "" {
			summary = firstLine(wrapped)
		}
		if len(sections) == 0 {
			sections = []models.AnalysisSection{{Icon: "📋", Title: "Report", Content: wrapped}}
		}
	}
	return summary, sections
}

func firstLine(text string) string {
	if idx := strings.Index(text, "\n"); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// Latest returns the stored analysis, or nil if none was compiled yet.
func (c *Compiler) Latest() (*models.Analysis, error) {
	var analysis models.Analysis
	err := store.GetJSON(c.st, analysisKey, &analysis)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}
