package models

// DeviceType classifies the device a position record was written on.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// PositionRecord is the locally persisted playback position for one episode.
// At most one row exists per episode; writes overwrite by key.
type PositionRecord struct {
	EpisodeID    int64      `db:"episode_id" json:"episode_id"`
	Position     float64    `db:"position" json:"position"`
	IsFinished   bool       `db:"is_finished" json:"is_finished"`
	Timestamp    int64      `db:"timestamp" json:"timestamp"` // local wall clock, unix milliseconds
	DeviceID     string     `db:"device_id" json:"device_id"`
	DeviceType   DeviceType `db:"device_type" json:"device_type"`
	PlaybackRate float64    `db:"playback_rate" json:"playback_rate"`
}

// ResolvedPosition is the outcome of conflict resolution: the position
// playback should resume from. ServerTimestamp is set only when the server's
// resolve endpoint made the call.
type ResolvedPosition struct {
	Position        float64
	IsFinished      bool
	ServerTimestamp int64
}
