// Package notify pushes pipeline and analysis outcomes to a Telegram
// chat. Notification is a side channel: every failure here is logged and
// swallowed, never propagated into pipeline state.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"radio-stack/internal/models"
	"radio-stack/shared/config"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/store"
)

const configKey = "config/telegram"

// Notifier sends best-effort messages through the Telegram Bot API and
// keeps the singleton TelegramConfig (chat id, toggles, send telemetry)
// in the store.
type Notifier struct {
	cfg     *config.TelegramConfig
	st      store.Store
	client  *http.Client
	metrics monitoring.Metrics
	logger  zerolog.Logger
}

func NewNotifier(cfg *config.TelegramConfig, st store.Store, metrics monitoring.Metrics, logger zerolog.Logger) *Notifier {
	return &Notifier{
		cfg:     cfg,
		st:      st,
		client:  &http.Client{Timeout: 15 * time.Second},
		metrics: metrics,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Config returns the stored notifier configuration, zero-valued if none
// was saved yet.
func (n *Notifier) Config() (models.TelegramConfig, error) {
	var cfg models.TelegramConfig
	err := store.GetJSON(n.st, configKey, &cfg)
	if err == store.ErrNotFound {
		return models.TelegramConfig{}, nil
	}
	if err != nil {
		return models.TelegramConfig{}, err
	}
	return cfg, nil
}

// SaveConfig stores chat id and toggles, preserving send telemetry.
func (n *Notifier) SaveConfig(update models.TelegramConfig) (models.TelegramConfig, error) {
	current, err := n.Config()
	if err != nil {
		return models.TelegramConfig{}, err
	}
	update.MessagesSent = current.MessagesSent
	update.LastSentAt = current.LastSentAt
	if err := store.PutJSON(n.st, configKey, &update); err != nil {
		return models.TelegramConfig{}, err
	}
	return update, nil
}

// PipelineComplete announces a finished pipeline run. Best effort.
func (n *Notifier) PipelineComplete(ctx context.Context, content *models.GeneratedContent) {
	cfg, err := n.Config()
	if err != nil {
		n.logger.Warn().Err(err).Msg("load notifier config")
		return
	}
	if !cfg.Enabled || !cfg.SendOnComplete {
		return
	}

	msg := fmt.Sprintf("🎙 Segment ready: %s for %s (%s)",
		content.SegmentType, content.TargetDate, content.Status)
	if content.Status == models.StatusFailed {
		msg = fmt.Sprintf("⚠️ Segment failed: %s for %s — %s",
			content.SegmentType, content.TargetDate, content.ErrorMessage)
	}
	if err := n.Send(ctx, msg); err != nil {
		n.logger.Warn().Err(err).Str("content", content.ID).Msg("pipeline notification failed")
	}
}

// AnalysisComplete announces a finished analysis compilation. Best effort.
func (n *Notifier) AnalysisComplete(ctx context.Context, analysis *models.Analysis) {
	cfg, err := n.Config()
	if err != nil {
		n.logger.Warn().Err(err).Msg("load notifier config")
		return
	}
	if !cfg.Enabled || !cfg.SendOnComplete {
		return
	}

	msg := fmt.Sprintf("📊 Station analysis compiled (%d contributions): %s",
		len(analysis.AgentContributions), truncate(analysis.Summary, 300))
	if err := n.Send(ctx, msg); err != nil {
		n.logger.Warn().Err(err).Msg("analysis notification failed")
	}
}

// Send delivers one message to the configured chat and bumps the send
// telemetry. Used directly by the test harness; notification paths wrap
// it and swallow the error.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if err := n.send(ctx, text); err != nil {
		n.metrics.IncNotification("error")
		return err
	}
	n.metrics.IncNotification("ok")
	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	cfg, err := n.Config()
	if err != nil {
		return err
	}
	if n.cfg.BotToken == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	if cfg.ChatID == "" {
		return fmt.Errorf("telegram chat id not configured")
	}

	payload, err := json.Marshal(struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: cfg.ChatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	baseURL := n.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	reqURL := fmt.Sprintf("%s/bot%s/sendMessage", baseURL, n.cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	cfg.MessagesSent++
	cfg.LastSentAt = time.Now().UTC()
	if err := store.PutJSON(n.st, configKey, &cfg); err != nil {
		n.logger.Warn().Err(err).Msg("failed to persist send telemetry")
	}
	return nil
}

// truncate caps s at max runes so multi-byte text is never split
// mid-sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
