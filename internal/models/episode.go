package models

// Episode is the subset of episode metadata the player needs to start
// playback. The full catalog lives on the backend; the control API passes
// these through in play requests.
type Episode struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	AudioURL        string  `json:"audio_url"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}
