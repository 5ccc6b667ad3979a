package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-stack/internal/models"
	"radio-stack/shared/config"
)

func testVoice() models.VoiceProfile {
	return models.VoiceProfile{
		ID:         "v1",
		HostName:   "Nova",
		TTSVoiceID: "voice-abc",
		Params:     models.SynthesisParams{Stability: 0.5, SimilarityBoost: 0.8},
		Active:     true,
	}
}

func TestSynthesizeLocalRejections(t *testing.T) {
	c := NewElevenLabsClient(&config.ElevenLabsConfig{APIKey: "key", MaxChars: 10})

	_, err := c.Synthesize(context.Background(), testVoice(), strings.Repeat("a", 11))
	require.Error(t, err)
	assert.Equal(t, KindContentTooLong, KindOf(err))

	noKey := NewElevenLabsClient(&config.ElevenLabsConfig{MaxChars: 100})
	_, err = noKey.Synthesize(context.Background(), testVoice(), "hi")
	require.Error(t, err)
	assert.Equal(t, KindAuth, KindOf(err))

	voice := testVoice()
	voice.TTSVoiceID = ""
	_, err = c.Synthesize(context.Background(), voice, "hi")
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestSynthesizeSuccess(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c := NewElevenLabsClient(&config.ElevenLabsConfig{APIKey: "key", BaseURL: srv.URL, MaxChars: 5000})

	audio, err := c.Synthesize(context.Background(), testVoice(), "Radio check")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, "/text-to-speech/voice-abc", gotPath)
	assert.Equal(t, "key", gotKey)
}

// The per-call limit counts characters, not bytes: multi-byte scripts
// within the limit must pass.
func TestSynthesizeLimitCountsRunes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c := NewElevenLabsClient(&config.ElevenLabsConfig{APIKey: "key", BaseURL: srv.URL, MaxChars: 10})

	// 10 runes but 20 bytes: accepted.
	_, err := c.Synthesize(context.Background(), testVoice(), strings.Repeat("ü", 10))
	require.NoError(t, err)

	// 11 runes: rejected.
	_, err = c.Synthesize(context.Background(), testVoice(), strings.Repeat("ü", 11))
	require.Error(t, err)
	assert.Equal(t, KindContentTooLong, KindOf(err))
}

func TestSynthesizeClassifiesVendorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewElevenLabsClient(&config.ElevenLabsConfig{APIKey: "key", BaseURL: srv.URL, MaxChars: 5000})

	_, err := c.Synthesize(context.Background(), testVoice(), "hi")
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
}
