package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-stack/internal/models"
	"radio-stack/internal/registry"
	"radio-stack/internal/schedule"
	"radio-stack/shared/ai"
	"radio-stack/shared/config"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/store"
)

type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	script   string
	failures []error // consumed one per call before succeeding
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	return &ai.CompletionResult{Text: f.script, Provider: req.Provider, Model: req.Model, LatencyMs: 10}, nil
}

type fakeSynth struct {
	mu    sync.Mutex
	calls int
	audio []byte
	err   error
}

func (f *fakeSynth) SynthesizeSpeech(_ context.Context, _ models.VoiceProfile, _ string) (*ai.SpeechResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ai.SpeechResult{Audio: f.audio, LatencyMs: 5}, nil
}

type fakeNews struct {
	mu      sync.Mutex
	queries []string
	digest  string
	err     error
}

func (f *fakeNews) Query(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return "", f.err
	}
	return f.digest, nil
}

type memDelivery struct {
	mu     sync.Mutex
	placed map[string][]byte
}

func newMemDelivery() *memDelivery {
	return &memDelivery{placed: make(map[string][]byte)}
}

func (d *memDelivery) Place(_ context.Context, slotID, targetDate string, audio []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref := targetDate + "_" + slotID + ".mp3"
	d.placed[ref] = audio
	return ref, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []models.ContentStatus
}

func (n *recordingNotifier) PipelineComplete(_ context.Context, content *models.GeneratedContent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, content.Status)
}

type pipelineLister struct{}

func (pipelineLister) ListModels() map[models.Provider][]ai.ModelInfo {
	return map[models.Provider][]ai.ModelInfo{
		models.ProviderGemini: {{ID: "gemini-2.5-flash"}},
	}
}

type fixture struct {
	pipe      *Pipeline
	sched     *schedule.Store
	reg       *registry.Registry
	completer *fakeCompleter
	synth     *fakeSynth
	news      *fakeNews
	delivery  *memDelivery
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	sched := schedule.NewStore(st)
	reg := registry.New(st, pipelineLister{}, monitoring.NewMetrics(false), zerolog.Nop())

	f := &fixture{
		sched:     sched,
		reg:       reg,
		completer: &fakeCompleter{script: "Good morning, this is your host."},
		synth:     &fakeSynth{audio: []byte("mp3")},
		news:      &fakeNews{digest: "1. Vinyl sales climb again."},
		delivery:  newMemDelivery(),
		notifier:  &recordingNotifier{},
	}
	f.pipe = New(st, sched, reg, f.completer, f.synth, f.news, f.delivery, f.notifier,
		monitoring.NewMetrics(false), testPipelineConfig(), zerolog.Nop())
	return f
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		NewsTimeout:      time.Second,
		ScriptTimeout:    time.Second,
		SynthesisTimeout: time.Second,
		MaxRetries:       1,
		RetryBackoff:     time.Millisecond,
	}
}

func (f *fixture) newsSlot(t *testing.T) models.ScheduleSlot {
	t.Helper()
	voice, err := f.sched.SaveVoice(models.VoiceProfile{
		HostName:   "Nova",
		TTSVoiceID: "voice-abc",
		Active:     true,
	})
	require.NoError(t, err)

	slot, err := f.sched.SaveSlot(models.ScheduleSlot{
		TimeOfDay:       "09:00",
		HostName:        "Nova",
		SegmentType:     models.SegmentNews,
		NewsQuery:       "music industry headlines",
		DurationMinutes: 5,
		VoiceRef:        voice.ID,
		Active:          true,
	})
	require.NoError(t, err)
	return slot
}

func TestRunNewsSlotEndToEnd(t *testing.T) {
	f := newFixture(t)
	slot := f.newsSlot(t)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)

	assert.Equal(t, models.StatusBroadcastReady, rec.Status)
	assert.Equal(t, "Good morning, this is your host.", rec.ScriptText)
	assert.NotEmpty(t, rec.AudioRef)
	assert.Empty(t, rec.ErrorMessage)

	// The news digest was fetched with the slot's query and fed into
	// the script prompt.
	require.Len(t, f.news.queries, 1)
	assert.Equal(t, "music industry headlines", f.news.queries[0])

	// Audio landed in delivery under the date_slot name.
	assert.Contains(t, f.delivery.placed, "2026-03-01_"+slot.ID+".mp3")

	// Script agent telemetry was recorded.
	cfg, err := f.reg.Get("dj")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.TotalCalls)

	// The stored record matches the returned one.
	stored, err := f.pipe.Get(slot.ID, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, rec.Status, stored.Status)
	assert.Equal(t, rec.AudioRef, stored.AudioRef)

	require.Len(t, f.notifier.statuses, 1)
	assert.Equal(t, models.StatusBroadcastReady, f.notifier.statuses[0])
}

func TestRunSkipsNewsForNonNewsSlots(t *testing.T) {
	f := newFixture(t)
	slot := f.newsSlot(t)
	slot.SegmentType = models.SegmentAffirmation
	slot.NewsQuery = ""
	slot, err := f.sched.SaveSlot(slot)
	require.NoError(t, err)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBroadcastReady, rec.Status)
	assert.Empty(t, f.news.queries)
}

// A second trigger for the same slot/date is a no-op returning the
// existing record, whatever its state.
func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	slot := f.newsSlot(t)

	first, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	require.Equal(t, models.StatusBroadcastReady, first.Status)

	callsAfterFirst := f.completer.calls
	second, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, callsAfterFirst, f.completer.calls, "no provider work on the duplicate trigger")
	assert.Len(t, f.delivery.placed, 1)

	// A different date is a fresh run.
	third, err := f.pipe.Run(context.Background(), slot, "2026-03-02")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, models.StatusBroadcastReady, third.Status)
}

// Concurrent double trigger: exactly one run does the work.
func TestRunConcurrentDoubleTrigger(t *testing.T) {
	f := newFixture(t)
	slot := f.newsSlot(t)

	const workers = 8
	var wg sync.WaitGroup
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
			assert.NoError(t, err)
			if rec != nil {
				ids <- rec.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1, "every caller must observe the same record")
	assert.Len(t, f.delivery.placed, 1)
}

func TestRunFailureIsDurable(t *testing.T) {
	f := newFixture(t)
	f.synth.err = ai.NewError(ai.KindAuth, "elevenlabs", "bad key")
	slot := f.newsSlot(t)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err, "stage failures surface on the record, not as errors")

	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "voice synthesis")
	assert.Contains(t, rec.ErrorMessage, "bad key")
	// The script survived the failed synthesis for inspection.
	assert.NotEmpty(t, rec.ScriptText)

	stored, err := f.pipe.Get(slot.ID, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, rec.ErrorMessage, stored.ErrorMessage)

	// Failed records are terminal for the trigger path.
	again, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, again.Status)
	assert.Equal(t, rec.ID, again.ID)
}

func TestRunRetriesRateLimitedOnce(t *testing.T) {
	f := newFixture(t)
	f.completer.failures = []error{ai.NewError(ai.KindRateLimited, models.ProviderGemini, "slow down")}
	slot := f.newsSlot(t)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBroadcastReady, rec.Status)
	assert.Equal(t, 2, f.completer.calls, "one retry after the rate limit")
}

func TestRunDoesNotRetryNonRetryable(t *testing.T) {
	f := newFixture(t)
	f.completer.failures = []error{ai.NewError(ai.KindAuth, models.ProviderGemini, "bad key")}
	slot := f.newsSlot(t)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, 1, f.completer.calls)
	assert.Zero(t, f.synth.calls, "synthesis never starts after a script failure")
}

func TestRunFailsOnMissingVoice(t *testing.T) {
	f := newFixture(t)
	slot := f.newsSlot(t)
	slot.VoiceRef = "missing"
	slot, err := f.sched.SaveSlot(slot)
	require.NoError(t, err)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "voice profile")
}

func TestRetryRerunsFailedRecord(t *testing.T) {
	f := newFixture(t)
	f.synth.err = ai.NewError(ai.KindAuth, "elevenlabs", "bad key")
	slot := f.newsSlot(t)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, rec.Status)

	// Retrying a non-failed record is rejected.
	_, err = f.pipe.Retry(context.Background(), slot.ID, "2026-03-02")
	assert.Error(t, err, "no record for that date yet")

	// Fix the cause, then retry.
	f.synth.err = nil
	retried, err := f.pipe.Retry(context.Background(), slot.ID, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBroadcastReady, retried.Status)
	assert.NotEqual(t, rec.ID, retried.ID, "retry starts a fresh record")

	// Done records cannot be retried.
	_, err = f.pipe.Retry(context.Background(), slot.ID, "2026-03-01")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "only failed"))
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t)
	slot := f.newsSlot(t)

	rec, err := f.pipe.Run(context.Background(), slot, "2026-03-01")
	require.NoError(t, err)
	require.Equal(t, models.StatusBroadcastReady, rec.Status)

	// Only generating records can be marked failed.
	_, err = f.pipe.MarkFailed(slot.ID, "2026-03-01", "stuck")
	assert.Error(t, err)

	// Simulate a stuck generating record.
	stuck := &models.GeneratedContent{
		ID:             "stuck-1",
		ScheduleSlotID: slot.ID,
		TargetDate:     "2026-03-05",
		Status:         models.StatusGenerating,
	}
	require.NoError(t, store.PutJSON(f.pipe.st, models.ContentKey(slot.ID, "2026-03-05"), stuck))

	failed, err := f.pipe.MarkFailed(slot.ID, "2026-03-05", "operator override")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "operator override", failed.ErrorMessage)
}

func TestBuildScriptPrompt(t *testing.T) {
	slot := models.ScheduleSlot{
		SegmentType:     models.SegmentNews,
		HostName:        "Nova",
		DurationMinutes: 5,
		Topic:           "music industry",
		IntroText:       "Good morning!",
		OutroText:       "Stay tuned.",
	}

	prompt := buildScriptPrompt(slot, "1. Vinyl sales climb again.")
	assert.Contains(t, prompt, "Nova")
	assert.Contains(t, prompt, "5 minutes")
	assert.Contains(t, prompt, "Good morning!")
	assert.Contains(t, prompt, "Stay tuned.")
	assert.Contains(t, prompt, "Vinyl sales")

	bare := buildScriptPrompt(models.ScheduleSlot{SegmentType: models.SegmentBreathing, HostName: "Nova", DurationMinutes: 3}, "")
	assert.NotContains(t, bare, "headlines")
	assert.NotContains(t, bare, "Open with")
}
