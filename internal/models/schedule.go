package models

// SegmentType describes what kind of segment a schedule slot produces.
type SegmentType string

const (
	SegmentAffirmation SegmentType = "affirmation"
	SegmentNews        SegmentType = "news"
	SegmentBreathing   SegmentType = "breathing"
	SegmentCustom      SegmentType = "custom"
)

// ValidSegmentType reports whether s is one of the known segment types.
func ValidSegmentType(s SegmentType) bool {
	switch s {
	case SegmentAffirmation, SegmentNews, SegmentBreathing, SegmentCustom:
		return true
	}
	return false
}

// ScheduleSlot is a daily broadcast time paired with a content recipe.
// Slots are created and edited by the schedule editor; the trigger
// evaluator and generation pipeline consume them read-only.
type ScheduleSlot struct {
	ID              string      `json:"id"`
	TimeOfDay       string      `json:"time_of_day"` // "HH:MM", unique per day
	HostName        string      `json:"host_name"`
	SegmentType     SegmentType `json:"segment_type"`
	Topic           string      `json:"topic,omitempty"`
	IntroText       string      `json:"intro_text"`
	OutroText       string      `json:"outro_text"`
	DurationMinutes int         `json:"duration_minutes"`
	VoiceRef        string      `json:"voice_ref"`
	NewsQuery       string      `json:"news_query,omitempty"`
	Active          bool        `json:"active"`
}

// SynthesisParams tune the TTS rendering of a voice.
type SynthesisParams struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

// VoiceProfile binds a host persona to a TTS voice. Profiles are read as
// a snapshot at synthesis time and never mutated mid-run.
type VoiceProfile struct {
	ID                 string          `json:"id"`
	HostName           string          `json:"host_name"`
	TTSVoiceID         string          `json:"tts_voice_id"`
	Params             SynthesisParams `json:"params"`
	BackgroundTrackRef string          `json:"background_track_ref,omitempty"`
	Active             bool            `json:"active"`
}
