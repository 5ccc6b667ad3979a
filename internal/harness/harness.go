// Package harness runs synchronous single-call verifications of
// provider and voice paths, recording telemetry without touching chat
// history.
package harness

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"radio-stack/internal/models"
	"radio-stack/internal/registry"
	"radio-stack/shared/ai"
)

const probePrompt = "Reply with the single word: ok"

// TestResult reports one verification call.
type TestResult struct {
	Success   bool            `json:"success"`
	Provider  models.Provider `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
	Error     string          `json:"error,omitempty"`
}

// Harness issues the test calls. No retries: a test reports the live
// behavior of the path as-is.
type Harness struct {
	reg       *registry.Registry
	completer ai.Completer
	synth     ai.Synthesizer
	logger    zerolog.Logger
}

func New(reg *registry.Registry, completer ai.Completer, synth ai.Synthesizer, logger zerolog.Logger) *Harness {
	return &Harness{
		reg:       reg,
		completer: completer,
		synth:     synth,
		logger:    logger.With().Str("component", "harness").Logger(),
	}
}

// TestAgent issues one minimal completion with the agent's live config.
// The exchange is not appended to chat history, but the call is recorded
// in the agent's telemetry like any other.
func (h *Harness) TestAgent(ctx context.Context, agentID string) (*TestResult, error) {
	cfg, err := h.reg.Get(agentID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := h.completer.Complete(ctx, ai.CompletionRequest{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		AgentRef:    cfg.AgentRef,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: probePrompt}},
	})

	test := &TestResult{Provider: cfg.Provider, Model: cfg.Model}
	call := registry.CallResult{}
	if err != nil {
		test.LatencyMs = time.Since(start).Milliseconds()
		test.Error = err.Error()
		call.ErrorMessage = err.Error()
	} else {
		test.Success = true
		test.LatencyMs = result.LatencyMs
		call.Success = true
		call.LatencyMs = result.LatencyMs
	}

	if recErr := h.reg.RecordCall(agentID, call); recErr != nil {
		h.logger.Warn().Err(recErr).Str("agent", agentID).Msg("record test call telemetry")
	}
	return test, nil
}

// TestVoice issues one minimal synthesis call and discards the audio.
func (h *Harness) TestVoice(ctx context.Context, voice models.VoiceProfile) (*TestResult, error) {
	result, err := h.synth.SynthesizeSpeech(ctx, voice, "Radio check, one two.")
	if err != nil {
		return &TestResult{Error: err.Error()}, nil
	}
	return &TestResult{Success: true, LatencyMs: result.LatencyMs}, nil
}
