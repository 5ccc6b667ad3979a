package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"radio-stack/internal/models"
)

// Runner executes the generation pipeline for one slot and date.
// Satisfied by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, slot models.ScheduleSlot, targetDate string) (*models.GeneratedContent, error)
}

// Report aggregates the outcome of a multi-slot trigger. Per-slot
// failures never abort the batch.
type Report struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// EvaluateDue returns the active slots whose time of day falls inside
// (now-window, now]. Pure: callers own the clock, so the decision is
// unit-testable without timers. Duplicate triggering of an already
// generated slot is harmless; the pipeline's idempotency key absorbs it.
func EvaluateDue(now time.Time, slots []models.ScheduleSlot, window time.Duration) []models.ScheduleSlot {
	var due []models.ScheduleSlot
	for _, slot := range slots {
		if !slot.Active {
			continue
		}
		tod, err := time.Parse("15:04", slot.TimeOfDay)
		if err != nil {
			continue
		}
		slotTime := time.Date(now.Year(), now.Month(), now.Day(),
			tod.Hour(), tod.Minute(), 0, 0, now.Location())
		if slotTime.After(now) {
			continue
		}
		if now.Sub(slotTime) > window {
			continue
		}
		due = append(due, slot)
	}
	return due
}

// Trigger drives pipeline runs from schedule state. It is stateless
// between invocations; all dedup lives in the content records.
type Trigger struct {
	sched  *Store
	runner Runner
	window time.Duration
	logger zerolog.Logger
}

func NewTrigger(sched *Store, runner Runner, window time.Duration, logger zerolog.Logger) *Trigger {
	return &Trigger{
		sched:  sched,
		runner: runner,
		window: window,
		logger: logger.With().Str("component", "trigger").Logger(),
	}
}

// CheckNow evaluates the schedule against now and runs every due slot
// for today's date.
func (t *Trigger) CheckNow(ctx context.Context, now time.Time) (*Report, error) {
	slots, err := t.sched.ListSlots()
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	due := EvaluateDue(now, slots, t.window)
	t.logger.Debug().Int("slots", len(slots)).Int("due", len(due)).Msg("schedule check")

	return t.runAll(ctx, due, now.Format("2006-01-02")), nil
}

// GenerateAllForDate runs the pipeline for every active slot against the
// given date, regardless of time of day.
func (t *Trigger) GenerateAllForDate(ctx context.Context, date string) (*Report, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}

	slots, err := t.sched.ListSlots()
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	var active []models.ScheduleSlot
	for _, slot := range slots {
		if slot.Active {
			active = append(active, slot)
		}
	}
	return t.runAll(ctx, active, date), nil
}

func (t *Trigger) runAll(ctx context.Context, slots []models.ScheduleSlot, date string) *Report {
	report := &Report{Total: len(slots)}
	for _, slot := range slots {
		content, err := t.runner.Run(ctx, slot, date)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("slot %s (%s): %v", slot.ID, slot.TimeOfDay, err))
			t.logger.Warn().Err(err).Str("slot", slot.ID).Str("date", date).Msg("pipeline run failed")
			continue
		}
		if content.Status == models.StatusFailed {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("slot %s (%s): %s", slot.ID, slot.TimeOfDay, content.ErrorMessage))
			continue
		}
		report.Succeeded++
	}
	return report
}
