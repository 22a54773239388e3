// Package resolver decides where playback should resume for an episode,
// reconciling the local store with the backend's last known position.
package resolver

import (
	"context"
	"log"

	"podplayer/internal/api"
	"podplayer/internal/db"
	"podplayer/internal/models"
)

// Resolver arbitrates between local and server positions.
type Resolver struct {
	api *api.Client
}

func New(client *api.Client) *Resolver {
	return &Resolver{api: client}
}

// Latest returns the position playback should resume from. It never fails:
// every error path degrades to the best locally known value so playback
// start is never blocked on storage or network.
//
// When only one side has a record that side wins verbatim, saving a
// round-trip. Only a genuine two-sided conflict is delegated to the
// backend's resolve endpoint.
func (r *Resolver) Latest(ctx context.Context, episodeID int64) models.ResolvedPosition {
	local := db.GetPosition(episodeID)

	server, err := r.api.GetPosition(ctx, episodeID)
	if err != nil {
		// Offline or flaky backend: the local record (if any) carries on.
		log.Printf("Fetching server position for episode %d failed: %v", episodeID, err)
		server = nil
	}

	switch {
	case local == nil && server == nil:
		return models.ResolvedPosition{Position: 0, IsFinished: false}
	case local == nil:
		return models.ResolvedPosition{Position: server.PositionSeconds, IsFinished: server.IsFinished}
	case server == nil:
		return models.ResolvedPosition{Position: local.Position, IsFinished: local.IsFinished}
	}

	resolved, err := r.api.ResolvePosition(ctx, episodeID, api.ResolveRequest{
		Position:     local.Position,
		Timestamp:    local.Timestamp,
		DeviceID:     local.DeviceID,
		DeviceType:   local.DeviceType,
		PlaybackRate: local.PlaybackRate,
	})
	if err != nil {
		// Fall back to the local record, never to zero.
		log.Printf("Resolve for episode %d failed, using local position: %v", episodeID, err)
		return models.ResolvedPosition{Position: local.Position, IsFinished: local.IsFinished}
	}

	// A local "finished" observation is never discarded: the near-end
	// heuristic may have fired here before the server learned about it.
	return models.ResolvedPosition{
		Position:        resolved.Position,
		IsFinished:      resolved.IsFinished || local.IsFinished,
		ServerTimestamp: resolved.ServerTimestamp,
	}
}
