// Package schedule owns the daily broadcast slots and voice profiles,
// and decides which slots are due for generation.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"radio-stack/internal/models"
	"radio-stack/shared/store"
)

// Store persists schedule slots and voice profiles.
type Store struct {
	st store.Store
}

func NewStore(st store.Store) *Store {
	return &Store{st: st}
}

func slotKey(id string) string  { return "slot/" + id }
func voiceKey(id string) string { return "voice/" + id }

// SaveSlot creates or updates a slot. Time-of-day must be a valid HH:MM
// and unique among active slots, since it is the daily dedup key.
func (s *Store) SaveSlot(slot models.ScheduleSlot) (models.ScheduleSlot, error) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if _, err := time.Parse("15:04", slot.TimeOfDay); err != nil {
		return models.ScheduleSlot{}, fmt.Errorf("invalid time of day %q: want HH:MM", slot.TimeOfDay)
	}
	if !models.ValidSegmentType(slot.SegmentType) {
		return models.ScheduleSlot{}, fmt.Errorf("invalid segment type %q", slot.SegmentType)
	}
	if slot.DurationMinutes <= 0 {
		return models.ScheduleSlot{}, fmt.Errorf("duration must be positive")
	}

	existing, err := s.ListSlots()
	if err != nil {
		return models.ScheduleSlot{}, err
	}
	for _, other := range existing {
		if other.ID != slot.ID && other.Active && slot.Active && other.TimeOfDay == slot.TimeOfDay {
			return models.ScheduleSlot{}, fmt.Errorf("time of day %s already taken by slot %s", slot.TimeOfDay, other.ID)
		}
	}

	if err := store.PutJSON(s.st, slotKey(slot.ID), &slot); err != nil {
		return models.ScheduleSlot{}, err
	}
	return slot, nil
}

func (s *Store) GetSlot(id string) (models.ScheduleSlot, error) {
	var slot models.ScheduleSlot
	if err := store.GetJSON(s.st, slotKey(id), &slot); err != nil {
		return models.ScheduleSlot{}, err
	}
	return slot, nil
}

// ListSlots returns all slots ordered by time of day.
func (s *Store) ListSlots() ([]models.ScheduleSlot, error) {
	entries, err := s.st.ListByPrefix("slot/")
	if err != nil {
		return nil, err
	}
	slots := make([]models.ScheduleSlot, 0, len(entries))
	for _, e := range entries {
		var slot models.ScheduleSlot
		if err := store.GetJSON(s.st, e.Key, &slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].TimeOfDay < slots[j].TimeOfDay })
	return slots, nil
}

func (s *Store) DeleteSlot(id string) error {
	return s.st.Delete(slotKey(id))
}

func (s *Store) SaveVoice(voice models.VoiceProfile) (models.VoiceProfile, error) {
	if voice.ID == "" {
		voice.ID = uuid.NewString()
	}
	if voice.TTSVoiceID == "" {
		return models.VoiceProfile{}, fmt.Errorf("voice profile needs a TTS voice id")
	}
	if err := store.PutJSON(s.st, voiceKey(voice.ID), &voice); err != nil {
		return models.VoiceProfile{}, err
	}
	return voice, nil
}

func (s *Store) GetVoice(id string) (models.VoiceProfile, error) {
	var voice models.VoiceProfile
	if err := store.GetJSON(s.st, voiceKey(id), &voice); err != nil {
		return models.VoiceProfile{}, err
	}
	return voice, nil
}

func (s *Store) ListVoices() ([]models.VoiceProfile, error) {
	entries, err := s.st.ListByPrefix("voice/")
	if err != nil {
		return nil, err
	}
	voices := make([]models.VoiceProfile, 0, len(entries))
	for _, e := range entries {
		var voice models.VoiceProfile
		if err := store.GetJSON(s.st, e.Key, &voice); err != nil {
			return nil, err
		}
		voices = append(voices, voice)
	}
	return voices, nil
}

func (s *Store) DeleteVoice(id string) error {
	return s.st.Delete(voiceKey(id))
}
