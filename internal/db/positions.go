package db

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"podplayer/internal/models"
)

// UpsertPosition writes the current playback position for an episode,
// overwriting any previous row for the same episode. The timestamp is the
// local wall clock in milliseconds; it is only ever compared against other
// timestamps from this same device.
//
// Storage failures are logged and swallowed: a broken local store must never
// interrupt playback, the caller just loses crash-resume granularity.
func UpsertPosition(episodeID int64, position float64, playbackRate float64, isFinished bool, deviceID string, deviceType models.DeviceType) *models.PositionRecord {
	record := &models.PositionRecord{
		EpisodeID:    episodeID,
		Position:     position,
		IsFinished:   isFinished,
		Timestamp:    time.Now().UnixMilli(),
		DeviceID:     deviceID,
		DeviceType:   deviceType,
		PlaybackRate: playbackRate,
	}

	_, err := DB.Exec(`
		INSERT INTO positions (episode_id, position, is_finished, timestamp, device_id, device_type, playback_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (episode_id) DO UPDATE SET
			position = excluded.position,
			is_finished = excluded.is_finished,
			timestamp = excluded.timestamp,
			device_id = excluded.device_id,
			device_type = excluded.device_type,
			playback_rate = excluded.playback_rate`,
		record.EpisodeID, record.Position, record.IsFinished, record.Timestamp,
		record.DeviceID, record.DeviceType, record.PlaybackRate)
	if err != nil {
		log.Printf("Warning: failed to save position for episode %d: %v", episodeID, err)
		return nil
	}
	return record
}

// GetPosition returns the stored record for an episode, or nil if the episode
// was never played locally. Read failures are logged and reported as absent.
func GetPosition(episodeID int64) *models.PositionRecord {
	record := models.PositionRecord{}
	err := DB.Get(&record, "SELECT * FROM positions WHERE episode_id = ?", episodeID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("Warning: failed to read position for episode %d: %v", episodeID, err)
		}
		return nil
	}
	return &record
}

// ListPositions returns all locally known positions, most recent first.
func ListPositions() ([]models.PositionRecord, error) {
	var records []models.PositionRecord
	err := DB.Select(&records, "SELECT * FROM positions ORDER BY timestamp DESC")
	if err != nil {
		log.Printf("Error listing positions: %v", err)
		return nil, err
	}
	return records, nil
}

// ClearPositions drops every stored position. This is the only delete path;
// individual rows are never removed.
func ClearPositions() error {
	_, err := DB.Exec("DELETE FROM positions")
	if err != nil {
		log.Printf("Error clearing positions: %v", err)
	}
	return err
}
