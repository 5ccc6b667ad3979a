// Package pipeline turns a schedule slot and a target date into a
// broadcast-ready audio segment: news retrieval (for news slots), script
// generation, voice synthesis and delivery, tracked as a durable state
// machine keyed by (slot, date).
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"radio-stack/internal/models"
	"radio-stack/internal/registry"
	"radio-stack/internal/schedule"
	"radio-stack/shared/ai"
	"radio-stack/shared/config"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/news"
	"radio-stack/shared/store"
)

// scriptAgentID is the staff agent whose provider configuration writes
// segment scripts. Its usage counters see every script call.
const scriptAgentID = "dj"

const scriptSystemPrompt = "You are a radio script writer for an internet radio station. " +
	"Write warm, natural spoken-word scripts ready to be read aloud. " +
	"Output only the script text with no stage directions or markup."

// Notifier receives pipeline outcomes. Failures inside it never affect
// pipeline state.
type Notifier interface {
	PipelineComplete(ctx context.Context, content *models.GeneratedContent)
}

// Pipeline executes generation runs. Runs for distinct (slot, date)
// pairs may proceed concurrently; the atomic create of the content
// record is the only guard against double generation.
type Pipeline struct {
	st        store.Store
	sched     *schedule.Store
	reg       *registry.Registry
	completer ai.Completer
	synth     ai.Synthesizer
	news      news.Source
	delivery  Delivery
	notifier  Notifier
	metrics   monitoring.Metrics
	cfg       config.PipelineConfig
	logger    zerolog.Logger
}

func New(
	st store.Store,
	sched *schedule.Store,
	reg *registry.Registry,
	completer ai.Completer,
	synth ai.Synthesizer,
	newsSource news.Source,
	delivery Delivery,
	notifier Notifier,
	metrics monitoring.Metrics,
	cfg config.PipelineConfig,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		st:        st,
		sched:     sched,
		reg:       reg,
		completer: completer,
		synth:     synth,
		news:      newsSource,
		delivery:  delivery,
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the pipeline for one slot and date. If a record already
// exists for the pair the call is a no-op returning that record: failed
// records are terminal until an explicit Retry. The returned record
// carries the failure state; Run only errors on store problems.
func (p *Pipeline) Run(ctx context.Context, slot models.ScheduleSlot, targetDate string) (*models.GeneratedContent, error) {
	key := models.ContentKey(slot.ID, targetDate)

	now := time.Now().UTC()
	fresh := &models.GeneratedContent{
		ID:             uuid.NewString(),
		ScheduleSlotID: slot.ID,
		TargetDate:     targetDate,
		SegmentType:    slot.SegmentType,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := store.CreateJSONIfAbsent(p.st, key, fresh)
	if err != nil {
		return nil, fmt.Errorf("create content record: %w", err)
	}
	if !created {
		existing, err := p.Get(slot.ID, targetDate)
		if err != nil {
			return nil, err
		}
		p.logger.Debug().Str("slot", slot.ID).Str("date", targetDate).
			Str("status", string(existing.Status)).Msg("record exists, skipping")
		return existing, nil
	}

	p.logger.Info().Str("slot", slot.ID).Str("date", targetDate).
		Str("segment", string(slot.SegmentType)).Msg("pipeline run started")

	rec := fresh
	if err := p.advance(rec, models.StatusGenerating); err != nil {
		return nil, err
	}

	if err := p.execute(ctx, slot, rec); err != nil {
		if failErr := rec.Fail(err.Error()); failErr != nil {
			return nil, failErr
		}
		if saveErr := p.save(rec); saveErr != nil {
			return nil, saveErr
		}
		p.metrics.IncPipelineRun(string(models.StatusFailed))
		p.logger.Error().Err(err).Str("slot", slot.ID).Str("date", targetDate).Msg("pipeline run failed")
		p.notifier.PipelineComplete(ctx, rec)
		return rec, nil
	}

	p.metrics.IncPipelineRun(string(rec.Status))
	p.logger.Info().Str("slot", slot.ID).Str("date", targetDate).
		Str("audio", rec.AudioRef).Msg("pipeline run complete")
	p.notifier.PipelineComplete(ctx, rec)
	return rec, nil
}

// execute drives the sequential stages. Any stage error fails the run.
func (p *Pipeline) execute(ctx context.Context, slot models.ScheduleSlot, rec *models.GeneratedContent) error {
	var newsContext string
	if slot.SegmentType == models.SegmentNews {
		digest, err := p.fetchNews(ctx, slot.NewsQuery)
		if err != nil {
			return fmt.Errorf("news retrieval: %w", err)
		}
		newsContext = digest
	}

	script, err := p.generateScript(ctx, slot, newsContext)
	if err != nil {
		return fmt.Errorf("script generation: %w", err)
	}
	rec.ScriptText = script
	if err := p.save(rec); err != nil {
		return err
	}

	voice, err := p.sched.GetVoice(slot.VoiceRef)
	if err != nil {
		return fmt.Errorf("load voice profile %q: %w", slot.VoiceRef, err)
	}

	audio, err := p.synthesize(ctx, voice, script)
	if err != nil {
		return fmt.Errorf("voice synthesis: %w", err)
	}

	ref, err := p.delivery.Place(ctx, slot.ID, rec.TargetDate, audio)
	if err != nil {
		return fmt.Errorf("audio delivery: %w", err)
	}
	rec.AudioRef = ref

	if err := p.advance(rec, models.StatusGenerated); err != nil {
		return err
	}
	// Placement succeeded above, which is the delivery confirmation.
	return p.advance(rec, models.StatusBroadcastReady)
}

func (p *Pipeline) fetchNews(ctx context.Context, query string) (string, error) {
	newsCtx, cancel := context.WithTimeout(ctx, p.cfg.NewsTimeout)
	defer cancel()
	return p.news.Query(newsCtx, query)
}

func (p *Pipeline) generateScript(ctx context.Context, slot models.ScheduleSlot, newsContext string) (string, error) {
	agent, err := p.reg.Get(scriptAgentID)
	if err != nil {
		return "", err
	}

	req := ai.CompletionRequest{
		Provider:    agent.Provider,
		Model:       agent.Model,
		AgentRef:    agent.AgentRef,
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: scriptSystemPrompt},
			{Role: ai.RoleUser, Content: buildScriptPrompt(slot, newsContext)},
		},
	}

	var result *ai.CompletionResult
	err = p.withRetry(ctx, p.cfg.ScriptTimeout, func(callCtx context.Context) error {
		var callErr error
		result, callErr = p.completer.Complete(callCtx, req)
		return callErr
	})

	callResult := registry.CallResult{Success: err == nil}
	if err != nil {
		callResult.ErrorMessage = err.Error()
	} else {
		callResult.LatencyMs = result.LatencyMs
	}
	if recErr := p.reg.RecordCall(scriptAgentID, callResult); recErr != nil {
		p.logger.Warn().Err(recErr).Msg("record script call telemetry")
	}

	if err != nil {
		return "", err
	}
	script := strings.TrimSpace(result.Text)
	if script == "" {
		return "", fmt.Errorf("provider returned an empty script")
	}
	return script, nil
}

func (p *Pipeline) synthesize(ctx context.Context, voice models.VoiceProfile, script string) ([]byte, error) {
	var audio []byte
	err := p.withRetry(ctx, p.cfg.SynthesisTimeout, func(callCtx context.Context) error {
		result, callErr := p.synth.SynthesizeSpeech(callCtx, voice, script)
		if callErr != nil {
			return callErr
		}
		audio = result.Audio
		return nil
	})
	return audio, err
}

// withRetry applies a per-call timeout and, for RateLimited/Timeout
// failures only, up to MaxRetries backoff retries. This is the single
// place the engine retries provider calls; chat and test-harness paths
// never do.
func (p *Pipeline) withRetry(ctx context.Context, timeout time.Duration, call func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt >= p.cfg.MaxRetries || !ai.Retryable(err) {
			return err
		}
		p.logger.Warn().Err(err).Int("attempt", attempt+1).
			Dur("backoff", p.cfg.RetryBackoff).Msg("retrying provider call")
		select {
		case <-time.After(p.cfg.RetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func buildScriptPrompt(slot models.ScheduleSlot, newsContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s radio segment hosted by %s, roughly %d minutes of spoken audio.\n\n",
		slot.SegmentType, slot.HostName, slot.DurationMinutes)
	if slot.IntroText != "" {
		fmt.Fprintf(&b, "Open with: %s\n", slot.IntroText)
	}
	if slot.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", slot.Topic)
	}
	if newsContext != "" {
		fmt.Fprintf(&b, "\nCover these headlines in your own words:\n%s\n", newsContext)
	}
	if slot.OutroText != "" {
		fmt.Fprintf(&b, "Close with: %s\n", slot.OutroText)
	}
	return b.String()
}

// Get loads the content record for a slot/date pair.
func (p *Pipeline) Get(slotID, targetDate string) (*models.GeneratedContent, error) {
	var rec models.GeneratedContent
	if err := store.GetJSON(p.st, models.ContentKey(slotID, targetDate), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all content records, newest first.
func (p *Pipeline) List() ([]models.GeneratedContent, error) {
	entries, err := p.st.ListByPrefix("content/")
	if err != nil {
		return nil, err
	}
	recs := make([]models.GeneratedContent, 0, len(entries))
	for _, e := range entries {
		var rec models.GeneratedContent
		if err := store.GetJSON(p.st, e.Key, &rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Retry starts a fresh run for a failed record. Only failed records may
// be retried; everything else is already live or done.
func (p *Pipeline) Retry(ctx context.Context, slotID, targetDate string) (*models.GeneratedContent, error) {
	rec, err := p.Get(slotID, targetDate)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusFailed {
		return nil, fmt.Errorf("record for slot %s on %s is %s, only failed records can be retried",
			slotID, targetDate, rec.Status)
	}

	slot, err := p.sched.GetSlot(slotID)
	if err != nil {
		return nil, err
	}
	if err := p.st.Delete(models.ContentKey(slotID, targetDate)); err != nil {
		return nil, err
	}
	return p.Run(ctx, slot, targetDate)
}

// MarkFailed is the administrative override for a stuck generating
// record; there is no automatic staleness detection beyond the stage
// timeouts.
func (p *Pipeline) MarkFailed(slotID, targetDate, reason string) (*models.GeneratedContent, error) {
	rec, err := p.Get(slotID, targetDate)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusGenerating {
		return nil, fmt.Errorf("record for slot %s on %s is %s, only generating records can be marked failed",
			slotID, targetDate, rec.Status)
	}
	if err := rec.Fail(reason); err != nil {
		return nil, err
	}
	if err := p.save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *Pipeline) advance(rec *models.GeneratedContent, to models.ContentStatus) error {
	if err := rec.Transition(to); err != nil {
		return err
	}
	return p.save(rec)
}

func (p *Pipeline) save(rec *models.GeneratedContent) error {
	return store.PutJSON(p.st, models.ContentKey(rec.ScheduleSlotID, rec.TargetDate), rec)
}
