package models

import (
	"fmt"
	"time"
)

// ContentStatus is the lifecycle state of one pipeline execution record.
type ContentStatus string

const (
	StatusPending        ContentStatus = "pending"
	StatusGenerating     ContentStatus = "generating"
	StatusGenerated      ContentStatus = "generated"
	StatusBroadcastReady ContentStatus = "broadcastReady"
	StatusFailed         ContentStatus = "failed"
)

// rank orders the forward-only states. failed sits outside the ordering
// and is handled explicitly by CanTransition.
var statusRank = map[ContentStatus]int{
	StatusPending:        0,
	StatusGenerating:     1,
	StatusGenerated:      2,
	StatusBroadcastReady: 3,
}

// CanTransition reports whether moving from -> to is a legal state change.
// Records never move backward, failed is only reachable from generating,
// and failed is terminal for the run.
func CanTransition(from, to ContentStatus) bool {
	if from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return from == StatusGenerating
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}

// GeneratedContent is the durable record of one pipeline run for a
// (schedule slot, target date) pair. That pair is the idempotency key:
// at most one non-failed record exists per pair.
type GeneratedContent struct {
	ID             string        `json:"id"`
	ScheduleSlotID string        `json:"schedule_slot_id"`
	TargetDate     string        `json:"target_date"` // "2006-01-02"
	SegmentType    SegmentType   `json:"segment_type"`
	Status         ContentStatus `json:"status"`
	ScriptText     string        `json:"script_text,omitempty"`
	AudioRef       string        `json:"audio_ref,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ContentKey builds the store key for a slot/date pair.
func ContentKey(slotID, targetDate string) string {
	return fmt.Sprintf("content/%s/%s", slotID, targetDate)
}

// Transition moves the record to the given status, enforcing the forward-only
// state machine. UpdatedAt is touched on success.
func (c *GeneratedContent) Transition(to ContentStatus) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("illegal content transition %s -> %s for %s", c.Status, to, c.ID)
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the record to failed and records why.
func (c *GeneratedContent) Fail(reason string) error {
	if err := c.Transition(StatusFailed); err != nil {
		return err
	}
	c.ErrorMessage = reason
	return nil
}
