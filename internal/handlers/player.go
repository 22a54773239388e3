package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"podplayer/internal/db"
	"podplayer/internal/models"
)

// PlayRequest starts playback of one episode or an ordered queue. When
// queue is set it takes precedence and playback starts at its first entry.
type PlayRequest struct {
	Episode       *models.Episode  `json:"episode,omitempty"`
	Queue         []models.Episode `json:"queue,omitempty"`
	StartPosition *float64         `json:"start_position,omitempty"`
}

func (h *Handlers) PostPlay(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	switch {
	case len(req.Queue) > 0:
		h.controller.PlayQueue(r.Context(), req.Queue)
	case req.Episode != nil && req.Episode.AudioURL != "":
		h.controller.PlayEpisode(r.Context(), *req.Episode, req.StartPosition)
	default:
		http.Error(w, "episode or queue is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, h.controller.CurrentStatus())
}

func (h *Handlers) PostPause(w http.ResponseWriter, r *http.Request) {
	h.controller.Pause()
	writeJSON(w, http.StatusOK, h.controller.CurrentStatus())
}

func (h *Handlers) PostResume(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Resume(); err != nil {
		http.Error(w, "Failed to resume playback", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.CurrentStatus())
}

func (h *Handlers) PostSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position < 0 {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	h.controller.Seek(req.Position)
	writeJSON(w, http.StatusOK, h.controller.CurrentStatus())
}

func (h *Handlers) PostRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rate <= 0 {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	h.controller.SetRate(req.Rate)
	writeJSON(w, http.StatusOK, h.controller.CurrentStatus())
}

func (h *Handlers) PostStop(w http.ResponseWriter, r *http.Request) {
	h.controller.Stop()
	writeJSON(w, http.StatusOK, h.controller.CurrentStatus())
}

func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.CurrentStatus())
}

// GetPositions lists locally stored positions, most recent first.
func (h *Handlers) GetPositions(w http.ResponseWriter, r *http.Request) {
	records, err := db.ListPositions()
	if err != nil {
		log.Printf("Error listing positions: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.PositionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// DeletePositions wipes the local position cache. This is the only way
// stored positions are ever deleted.
func (h *Handlers) DeletePositions(w http.ResponseWriter, r *http.Request) {
	if err := db.ClearPositions(); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
