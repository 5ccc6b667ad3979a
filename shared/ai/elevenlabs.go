package ai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"radio-stack/internal/models"
	"radio-stack/shared/config"
)

// ttsProvider tags TTS failures in the shared error taxonomy.
const ttsProvider = models.Provider("elevenlabs")

// ElevenLabsClient is the text-to-speech backend.
type ElevenLabsClient struct {
	cfg    *config.ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsClient(cfg *config.ElevenLabsConfig) *ElevenLabsClient {
	return &ElevenLabsClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// CredentialPresent reports whether the TTS backend is configured.
func (c *ElevenLabsClient) CredentialPresent() bool {
	return c.cfg.APIKey != ""
}

// Synthesize renders text with the given voice and returns the audio
// bytes. Text over the backend's per-call limit is rejected locally as
// ContentTooLong; chunking is the caller's concern.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, voice models.VoiceProfile, text string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, NewError(KindAuth, ttsProvider, "no credential configured")
	}
	if voice.TTSVoiceID == "" {
		return nil, NewError(KindConfig, ttsProvider, "voice profile %q has no TTS voice id", voice.ID)
	}
	if chars := utf8.RuneCountInString(text); chars > c.cfg.MaxChars {
		return nil, NewError(KindContentTooLong, ttsProvider, "text is %d chars, limit %d", chars, c.cfg.MaxChars)
	}

	payload := struct {
		Text          string `json:"text"`
		ModelID       string `json:"model_id"`
		VoiceSettings struct {
			Stability       float64 `json:"stability"`
			SimilarityBoost float64 `json:"similarity_boost"`
			Style           float64 `json:"style"`
		} `json:"voice_settings"`
	}{Text: text, ModelID: "eleven_multilingual_v2"}
	payload.VoiceSettings.Stability = voice.Params.Stability
	payload.VoiceSettings.SimilarityBoost = voice.Params.SimilarityBoost
	payload.VoiceSettings.Style = voice.Params.Style

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(KindConfig, ttsProvider, "marshal request: %v", err)
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/text-to-speech/"+voice.TTSVoiceID, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindConfig, ttsProvider, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(ttsProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, httpError(ttsProvider, resp.StatusCode, raw)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindUnavailable, ttsProvider, "read audio: %v", err)
	}
	if len(audio) == 0 {
		return nil, NewError(KindUnavailable, ttsProvider, "empty audio response")
	}
	return audio, nil
}
