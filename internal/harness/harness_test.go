package harness

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-stack/internal/models"
	"radio-stack/internal/registry"
	"radio-stack/shared/ai"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/store"
)

type probeCompleter struct {
	calls []ai.CompletionRequest
	err   error
}

func (p *probeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	return &ai.CompletionResult{Text: "ok", Provider: req.Provider, Model: req.Model, LatencyMs: 12}, nil
}

type probeSynth struct {
	calls int
	err   error
}

func (p *probeSynth) SynthesizeSpeech(_ context.Context, _ models.VoiceProfile, _ string) (*ai.SpeechResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ai.SpeechResult{Audio: []byte("mp3"), LatencyMs: 7}, nil
}

type harnessLister struct{}

func (harnessLister) ListModels() map[models.Provider][]ai.ModelInfo {
	return map[models.Provider][]ai.ModelInfo{}
}

func newTestHarness(t *testing.T, completer ai.Completer, synth ai.Synthesizer) (*Harness, *registry.Registry, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := registry.New(st, harnessLister{}, monitoring.NewMetrics(false), zerolog.Nop())
	return New(reg, completer, synth, zerolog.Nop()), reg, st
}

func TestTestAgentSuccess(t *testing.T) {
	completer := &probeCompleter{}
	h, reg, st := newTestHarness(t, completer, &probeSynth{})

	result, err := h.TestAgent(context.Background(), "dj")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.ProviderGemini, result.Provider)
	assert.Equal(t, int64(12), result.LatencyMs)
	assert.Empty(t, result.Error)

	// One probe with the agent's live config.
	require.Len(t, completer.calls, 1)
	assert.Equal(t, "gemini-2.5-flash", completer.calls[0].Model)

	// Telemetry recorded like any other call.
	cfg, err := reg.Get("dj")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.TotalCalls)

	// The probe never lands in chat history.
	_, err = st.Get("chat/dj")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTestAgentFailure(t *testing.T) {
	completer := &probeCompleter{err: ai.NewError(ai.KindAuth, models.ProviderGemini, "bad key")}
	h, reg, _ := newTestHarness(t, completer, &probeSynth{})

	result, err := h.TestAgent(context.Background(), "dj")
	require.NoError(t, err, "the failed probe is the result, not an error")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "bad key")

	cfg, err := reg.Get("dj")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.TotalCalls)
	assert.Contains(t, cfg.LastError, "bad key")

	// No retry on a failed probe.
	assert.Len(t, completer.calls, 1)
}

func TestTestAgentUnknownAgent(t *testing.T) {
	h, _, _ := newTestHarness(t, &probeCompleter{}, &probeSynth{})

	_, err := h.TestAgent(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestTestVoice(t *testing.T) {
	synth := &probeSynth{}
	h, _, _ := newTestHarness(t, &probeCompleter{}, synth)

	voice := models.VoiceProfile{ID: "v1", TTSVoiceID: "voice-abc"}
	result, err := h.TestVoice(context.Background(), voice)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(7), result.LatencyMs)
	assert.Equal(t, 1, synth.calls)

	synth.err = ai.NewError(ai.KindConfig, "elevenlabs", "voice not found")
	result, err = h.TestVoice(context.Background(), voice)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "voice not found")
}
