package resolver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"podplayer/internal/api"
	"podplayer/internal/db"
	"podplayer/internal/models"
	"podplayer/internal/resolver"
	"podplayer/internal/test"
)

// backend is a scriptable stand-in for the position endpoints.
type backend struct {
	positionStatus int
	position       api.ServerPosition
	resolveStatus  int
	resolve        api.ResolveResponse

	resolveCalls int
	lastResolve  api.ResolveRequest
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/episode/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost { // .../position/resolve
			b.resolveCalls++
			json.NewDecoder(r.Body).Decode(&b.lastResolve)
			if b.resolveStatus != http.StatusOK {
				http.Error(w, "resolve failed", b.resolveStatus)
				return
			}
			json.NewEncoder(w).Encode(b.resolve)
			return
		}
		if b.positionStatus != http.StatusOK {
			http.Error(w, "no position", b.positionStatus)
			return
		}
		json.NewEncoder(w).Encode(b.position)
	})
	return mux
}

func newResolver(t *testing.T, b *backend) *resolver.Resolver {
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return resolver.New(api.NewClient(srv.URL, ""))
}

func TestLatestNeitherSide(t *testing.T) {
	test.NewTestDB(t)
	r := newResolver(t, &backend{positionStatus: http.StatusNotFound})

	got := r.Latest(context.Background(), 1)

	assert.Equal(t, 0.0, got.Position)
	assert.False(t, got.IsFinished)
}

func TestLatestLocalOnly(t *testing.T) {
	test.NewTestDB(t)
	db.UpsertPosition(1, 42.0, 1.0, false, "dev", models.DeviceDesktop)
	b := &backend{positionStatus: http.StatusNotFound}
	r := newResolver(t, b)

	got := r.Latest(context.Background(), 1)

	assert.Equal(t, 42.0, got.Position)
	assert.False(t, got.IsFinished)
	assert.Zero(t, b.resolveCalls, "one-sided result must not hit the resolve endpoint")
}

func TestLatestServerOnly(t *testing.T) {
	test.NewTestDB(t)
	b := &backend{
		positionStatus: http.StatusOK,
		position:       api.ServerPosition{PositionSeconds: 17.5, IsFinished: false},
	}
	r := newResolver(t, b)

	got := r.Latest(context.Background(), 1)

	assert.Equal(t, 17.5, got.Position)
	assert.False(t, got.IsFinished)
	assert.Zero(t, b.resolveCalls)
}

func TestLatestBothSidesDelegatesToResolve(t *testing.T) {
	test.NewTestDB(t)
	db.UpsertPosition(1, 42.0, 1.5, false, "dev-a", models.DeviceTablet)
	b := &backend{
		positionStatus: http.StatusOK,
		position:       api.ServerPosition{PositionSeconds: 17.5},
		resolveStatus:  http.StatusOK,
		resolve:        api.ResolveResponse{Position: 42.0, IsFinished: false, ServerTimestamp: 1700000000000},
	}
	r := newResolver(t, b)

	got := r.Latest(context.Background(), 1)

	assert.Equal(t, 1, b.resolveCalls)
	assert.Equal(t, 42.0, got.Position)
	assert.Equal(t, int64(1700000000000), got.ServerTimestamp)
	// The resolve request carries the full local record.
	assert.Equal(t, 42.0, b.lastResolve.Position)
	assert.Equal(t, "dev-a", b.lastResolve.DeviceID)
	assert.Equal(t, models.DeviceTablet, b.lastResolve.DeviceType)
	assert.Equal(t, 1.5, b.lastResolve.PlaybackRate)
	assert.NotZero(t, b.lastResolve.Timestamp)
}

func TestLatestResolveFailureFallsBackToLocal(t *testing.T) {
	test.NewTestDB(t)
	db.UpsertPosition(1, 42.0, 1.0, false, "dev", models.DeviceDesktop)
	b := &backend{
		positionStatus: http.StatusOK,
		position:       api.ServerPosition{PositionSeconds: 17.5},
		resolveStatus:  http.StatusInternalServerError,
	}
	r := newResolver(t, b)

	got := r.Latest(context.Background(), 1)

	assert.Equal(t, 42.0, got.Position, "fallback must be the local record, not zero")
	assert.False(t, got.IsFinished)
}

func TestLatestLocalFinishedSurvivesResolve(t *testing.T) {
	test.NewTestDB(t)
	db.UpsertPosition(1, 99.0, 1.0, true, "dev", models.DeviceDesktop)
	b := &backend{
		positionStatus: http.StatusOK,
		position:       api.ServerPosition{PositionSeconds: 17.5},
		resolveStatus:  http.StatusOK,
		// The server hasn't heard about the local completion yet.
		resolve: api.ResolveResponse{Position: 17.5, IsFinished: false},
	}
	r := newResolver(t, b)

	got := r.Latest(context.Background(), 1)

	assert.True(t, got.IsFinished, "a local finished observation is never discarded")
}

func TestLatestNetworkFailureUsesLocal(t *testing.T) {
	test.NewTestDB(t)
	db.UpsertPosition(1, 42.0, 1.0, false, "dev", models.DeviceDesktop)

	// Point at a closed server to simulate the network being gone.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	r := resolver.New(api.NewClient(srv.URL, ""))

	got := r.Latest(context.Background(), 1)

	assert.Equal(t, 42.0, got.Position)
}
