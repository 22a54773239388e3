package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"podplayer/internal/api"
	"podplayer/internal/db"
	"podplayer/internal/handlers"
	"podplayer/internal/models"
	"podplayer/internal/player"
	"podplayer/internal/resolver"
	"podplayer/internal/test"
)

// stubMedia is the minimal media element the handler tests need: it loads
// instantly and plays on request.
type stubMedia struct {
	mu       sync.Mutex
	handlers player.Handlers
	position float64
	seeks    []float64
}

func (m *stubMedia) SetHandlers(h player.Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

func (m *stubMedia) Load(url string) {
	m.mu.Lock()
	m.position = 0
	h := m.handlers
	m.mu.Unlock()
	if h.OnLoaded != nil {
		h.OnLoaded(1800)
	}
}

func (m *stubMedia) Play() error { return nil }

func (m *stubMedia) Pause() {
	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	if h.OnPause != nil {
		h.OnPause()
	}
}

func (m *stubMedia) Stop() {}

func (m *stubMedia) Seek(position float64) {
	m.mu.Lock()
	m.position = position
	m.seeks = append(m.seeks, position)
	m.mu.Unlock()
}

func (m *stubMedia) SetRate(rate float64) {}

func (m *stubMedia) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *stubMedia) Duration() float64 { return 1800 }

func newHandlers(t *testing.T) (*handlers.Handlers, *stubMedia) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/start" {
			json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/position") && r.Method == http.MethodGet {
			http.Error(w, "no position", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	client := api.NewClient(backend.URL, "")
	media := &stubMedia{}
	controller := player.NewController(client, resolver.New(client), media, player.Config{
		DeviceID:   "test-device",
		DeviceType: models.DeviceDesktop,
	})
	t.Cleanup(controller.Stop)

	return handlers.New(controller), media
}

func TestPostPlayRequiresEpisodeOrQueue(t *testing.T) {
	test.NewTestDB(t)
	h, _ := newHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/play", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h.PostPlay(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/play", strings.NewReader(`not json`))
	rr = httptest.NewRecorder()
	h.PostPlay(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPostPlayStartsEpisode(t *testing.T) {
	test.NewTestDB(t)
	h, _ := newHandlers(t)

	body := `{"episode":{"id":5,"title":"Ep 5","audio_url":"https://cdn.example.com/5.mp3"}}`
	req := httptest.NewRequest(http.MethodPost, "/play", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.PostPlay(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var status player.Status
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, player.StatePlaying, status.State)
	assert.NotNil(t, status.Episode)
	assert.Equal(t, int64(5), status.Episode.ID)
}

func TestPostPlayQueueTakesPrecedence(t *testing.T) {
	test.NewTestDB(t)
	h, _ := newHandlers(t)

	body := `{
		"episode":{"id":9,"audio_url":"https://cdn.example.com/9.mp3"},
		"queue":[
			{"id":1,"audio_url":"https://cdn.example.com/1.mp3"},
			{"id":2,"audio_url":"https://cdn.example.com/2.mp3"}
		]}`
	req := httptest.NewRequest(http.MethodPost, "/play", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.PostPlay(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var status player.Status
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, 2, status.QueueLength)
	assert.Equal(t, int64(1), status.Episode.ID, "queue wins over a single episode")
}

func TestPostSeekValidation(t *testing.T) {
	test.NewTestDB(t)
	h, media := newHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/seek", strings.NewReader(`{"position":-5}`))
	rr := httptest.NewRecorder()
	h.PostSeek(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/seek", strings.NewReader(`{"position":90.5}`))
	rr = httptest.NewRecorder()
	h.PostSeek(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []float64{90.5}, media.seeks)
}

func TestPostRateValidation(t *testing.T) {
	test.NewTestDB(t)
	h, _ := newHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/rate", strings.NewReader(`{"rate":0}`))
	rr := httptest.NewRecorder()
	h.PostRate(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/rate", strings.NewReader(`{"rate":1.5}`))
	rr = httptest.NewRecorder()
	h.PostRate(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	var status player.Status
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, 1.5, status.Rate)
}

func TestGetStatusIdle(t *testing.T) {
	test.NewTestDB(t)
	h, _ := newHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	h.GetStatus(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var status player.Status
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, player.StateIdle, status.State)
	assert.Nil(t, status.Episode)
}

func TestGetPositionsEmptyIsList(t *testing.T) {
	test.NewTestDB(t)
	h, _ := newHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	rr := httptest.NewRecorder()
	h.GetPositions(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String(), "an empty store serializes as a list, not null")
}

func TestPositionsListAndClear(t *testing.T) {
	test.NewTestDB(t)
	h, _ := newHandlers(t)

	db.UpsertPosition(1, 10, 1.0, false, "dev", models.DeviceDesktop)
	db.UpsertPosition(2, 20, 1.0, true, "dev", models.DeviceDesktop)

	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	rr := httptest.NewRecorder()
	h.GetPositions(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	var records []models.PositionRecord
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	req = httptest.NewRequest(http.MethodDelete, "/positions", nil)
	rr = httptest.NewRecorder()
	h.DeletePositions(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/positions", nil)
	rr = httptest.NewRecorder()
	h.GetPositions(rr, req)
	records = nil
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Empty(t, records)
}
