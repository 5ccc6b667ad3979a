// Package ai is the provider gateway: a uniform completion and speech
// synthesis contract over several interchangeable AI backends. Provider
// selection is always explicit in the call; the gateway never falls back
// to a different vendor on failure and never retries by itself.
package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"radio-stack/internal/models"
	"radio-stack/shared/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of completion context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest addresses one provider/model pair. For managed-agent
// calls Model is the "managed-agent" sentinel and AgentRef carries the
// provider-side agent id.
type CompletionRequest struct {
	Provider    models.Provider
	Model       string
	AgentRef    string
	Temperature float64
	MaxTokens   int
	Messages    []Message
}

// CompletionResult is the uniform completion response.
type CompletionResult struct {
	Text      string
	Provider  models.Provider
	Model     string
	LatencyMs int64
}

// SpeechResult is the synthesized audio for one text.
type SpeechResult struct {
	Audio     []byte
	LatencyMs int64
}

// ModelInfo describes one selectable model for configuration-time
// validation.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Completer is the completion side of the gateway, narrowed for callers
// and fakes.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// Synthesizer is the speech side of the gateway.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, voice models.VoiceProfile, text string) (*SpeechResult, error)
}

// backend is one vendor-specific completion client.
type backend interface {
	complete(ctx context.Context, req CompletionRequest) (string, error)
	modelCatalog() []ModelInfo
	credentialPresent() bool
}

// Gateway routes completion and synthesis calls to the configured
// backends. It holds no state beyond the clients; telemetry persistence
// is the caller's job.
type Gateway struct {
	backends map[models.Provider]backend
	tts      *ElevenLabsClient
	logger   zerolog.Logger
}

func NewGateway(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Gateway, error) {
	g := &Gateway{
		backends: make(map[models.Provider]backend),
		tts:      NewElevenLabsClient(&cfg.ElevenLabs),
		logger:   logger.With().Str("component", "gateway").Logger(),
	}

	g.backends[models.ProviderOpenAI] = newOpenAIClient(&cfg.Providers.OpenAI)
	g.backends[models.ProviderAnthropic] = newAnthropicClient(&cfg.Providers.Anthropic)
	g.backends[models.ProviderMistral] = newMistralClient(&cfg.Providers.Mistral)

	gemini, err := newGeminiClient(ctx, &cfg.Providers.Gemini)
	if err != nil {
		return nil, err
	}
	g.backends[models.ProviderGemini] = gemini

	return g, nil
}

// Complete issues one completion call. Request shape problems are
// rejected locally as ConfigError before any outbound traffic.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	b, ok := g.backends[req.Provider]
	if !ok {
		return nil, NewError(KindConfig, req.Provider, "unknown provider %q", req.Provider)
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !b.credentialPresent() {
		return nil, NewError(KindAuth, req.Provider, "no credential configured")
	}

	start := time.Now()
	text, err := b.complete(ctx, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		g.logger.Warn().Err(err).
			Str("provider", string(req.Provider)).
			Str("model", req.Model).
			Int64("latency_ms", latency).
			Msg("completion failed")
		return nil, err
	}

	g.logger.Debug().
		Str("provider", string(req.Provider)).
		Str("model", req.Model).
		Int64("latency_ms", latency).
		Msg("completion ok")

	return &CompletionResult{
		Text:      text,
		Provider:  req.Provider,
		Model:     req.Model,
		LatencyMs: latency,
	}, nil
}

func validateRequest(req CompletionRequest) error {
	if len(req.Messages) == 0 {
		return NewError(KindConfig, req.Provider, "no messages")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return NewError(KindConfig, req.Provider, "temperature %.2f out of range [0,2]", req.Temperature)
	}
	if req.MaxTokens < 100 || req.MaxTokens > 4096 {
		return NewError(KindConfig, req.Provider, "max tokens %d out of range [100,4096]", req.MaxTokens)
	}
	if req.Model == models.ManagedAgentModel {
		if req.Provider != models.ProviderMistral {
			return NewError(KindConfig, req.Provider, "provider does not support managed agents")
		}
		if req.AgentRef == "" {
			return NewError(KindConfig, req.Provider, "managed agent reference is required")
		}
	} else if req.Model == "" {
		return NewError(KindConfig, req.Provider, "model is required")
	}
	return nil
}

// SynthesizeSpeech renders text with the given voice profile.
func (g *Gateway) SynthesizeSpeech(ctx context.Context, voice models.VoiceProfile, text string) (*SpeechResult, error) {
	start := time.Now()
	audio, err := g.tts.Synthesize(ctx, voice, text)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		g.logger.Warn().Err(err).
			Str("voice", voice.TTSVoiceID).
			Int("chars", len(text)).
			Msg("synthesis failed")
		return nil, err
	}

	g.logger.Debug().
		Str("voice", voice.TTSVoiceID).
		Int("chars", len(text)).
		Int64("latency_ms", latency).
		Msg("synthesis ok")

	return &SpeechResult{Audio: audio, LatencyMs: latency}, nil
}

// ListModels returns the selectable models per provider, used for
// configuration-time validation only.
func (g *Gateway) ListModels() map[models.Provider][]ModelInfo {
	out := make(map[models.Provider][]ModelInfo, len(g.backends))
	for provider, b := range g.backends {
		out[provider] = b.modelCatalog()
	}
	return out
}

// ProviderStatus reports which providers have a credential configured.
func (g *Gateway) ProviderStatus() map[models.Provider]bool {
	out := make(map[models.Provider]bool, len(g.backends))
	for provider, b := range g.backends {
		out[provider] = b.credentialPresent()
	}
	return out
}
