package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"podplayer/internal/player"
)

// Handlers exposes the playback controller over the local control API.
type Handlers struct {
	controller *player.Controller
}

func New(controller *player.Controller) *Handlers {
	return &Handlers{controller: controller}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
