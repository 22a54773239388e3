// Package api is the HTTP client for the position/session backend. Every
// call here is best-effort from the player's point of view: callers log
// failures and keep playing. Timeouts are deliberately short so a dead
// network can never stall the 5-second sync cadence.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"podplayer/internal/models"
)

// requestTimeout bounds every backend round-trip. Sync calls fire every 5s;
// anything slower than this is treated as a failed cycle and skipped.
const requestTimeout = 3 * time.Second

// beaconTimeout bounds the shutdown beacon. It runs on a detached context so
// process teardown cannot cancel it mid-flight.
const beaconTimeout = 2 * time.Second

// Client talks to the backend session and position endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a backend client. token may be empty; when set it is
// attached as a bearer token on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// ServerPosition is the backend's last known position for an episode.
type ServerPosition struct {
	PositionSeconds float64 `json:"position_seconds"`
	IsFinished      bool    `json:"is_finished"`
}

// SessionUpdate carries listened-time analytics for an open session. The
// listened-seconds counter is engagement signal, distinct from the resume
// position.
type SessionUpdate struct {
	SessionID            string  `json:"session_id"`
	TotalListenedSeconds int     `json:"total_listened_seconds"`
	LastPositionSeconds  float64 `json:"last_position_seconds"`
	IsFinished           bool    `json:"is_finished"`
}

// SyncRequest pushes the local position plus device metadata to the backend.
type SyncRequest struct {
	Position     float64           `json:"position"`
	IsFinished   bool              `json:"is_finished"`
	Duration     float64           `json:"duration"`
	Timestamp    int64             `json:"timestamp"`
	DeviceID     string            `json:"device_id"`
	DeviceType   models.DeviceType `json:"device_type"`
	PlaybackRate float64           `json:"playback_rate"`
}

// ResolveRequest asks the backend to arbitrate between the local record and
// its own last known position.
type ResolveRequest struct {
	Position     float64           `json:"position"`
	Timestamp    int64             `json:"timestamp"`
	DeviceID     string            `json:"device_id"`
	DeviceType   models.DeviceType `json:"device_type"`
	PlaybackRate float64           `json:"playback_rate"`
}

// ResolveResponse is the backend's authoritative answer.
type ResolveResponse struct {
	Position        float64 `json:"position"`
	IsFinished      bool    `json:"is_finished"`
	ServerTimestamp int64   `json:"server_timestamp"`
}

// BeaconPayload is the final fire-and-forget checkpoint sent on shutdown.
type BeaconPayload struct {
	SessionID       string  `json:"session_id"`
	ActiveSeconds   int     `json:"active_seconds"`
	PositionSeconds float64 `json:"position_seconds"`
	IsFinished      bool    `json:"is_finished"`
}

// StartSession opens a server-tracked listening session for an episode and
// returns its id.
func (c *Client) StartSession(ctx context.Context, episodeID int64) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	body := map[string]int64{"episode_id": episodeID}
	if err := c.postJSON(ctx, "/session/start", body, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// UpdateSession pushes accumulated listened-seconds for an open session.
func (c *Client) UpdateSession(ctx context.Context, update SessionUpdate) error {
	return c.postJSON(ctx, "/session/update", update, nil)
}

// EndSession closes a session with its final counters.
func (c *Client) EndSession(ctx context.Context, update SessionUpdate) error {
	return c.postJSON(ctx, "/session/end", update, nil)
}

// GetPosition fetches the backend's simple last known position for an
// episode. A 404 means the backend has never seen this episode and is
// reported as (nil, nil).
func (c *Client) GetPosition(ctx context.Context, episodeID int64) (*ServerPosition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/episode/%d/position", c.baseURL, episodeID), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get position: unexpected status %d", res.StatusCode)
	}

	var pos ServerPosition
	if err := json.NewDecoder(res.Body).Decode(&pos); err != nil {
		return nil, fmt.Errorf("get position: decode response: %w", err)
	}
	return &pos, nil
}

// SyncPosition pushes the full local record for an episode to the backend.
func (c *Client) SyncPosition(ctx context.Context, episodeID int64, sync SyncRequest) error {
	return c.postJSON(ctx, fmt.Sprintf("/episode/%d/position/sync", episodeID), sync, nil)
}

// ResolvePosition delegates conflict arbitration to the backend.
func (c *Client) ResolvePosition(ctx context.Context, episodeID int64, req ResolveRequest) (*ResolveResponse, error) {
	var resp ResolveResponse
	if err := c.postJSON(ctx, fmt.Sprintf("/episode/%d/position/resolve", episodeID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendBeacon fires the final shutdown checkpoint. It deliberately ignores
// the caller's context: by the time the beacon fires the process is tearing
// down and every other context is already cancelled.
func (c *Client) SendBeacon(payload BeaconPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
	defer cancel()

	if err := c.postJSON(ctx, "/session/update-beacon", payload, nil); err != nil {
		log.Printf("Beacon send failed: %v", err)
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("POST %s: unexpected status %d", path, res.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("POST %s: decode response: %w", path, err)
		}
	} else {
		io.Copy(io.Discard, res.Body)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
