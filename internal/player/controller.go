// Package player owns the playback session lifecycle: the media element,
// the server-tracked listening session, the dual-cadence persistence of the
// playback position, and idempotent finalization when an episode completes.
package player

import (
	"context"
	"log"
	"sync"
	"time"

	"podplayer/internal/api"
	"podplayer/internal/db"
	"podplayer/internal/models"
	"podplayer/internal/resolver"
)

// State is the per-play-through lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StatePlaying    State = "playing"
	StatePaused     State = "paused"
	StateFinalizing State = "finalizing"
)

const (
	// DefaultLocalSaveInterval is the local store write cadence while playing.
	// Local writes are cheap, so they run often enough that a crash loses at
	// most a second of resume position.
	DefaultLocalSaveInterval = time.Second
	// DefaultCloudSyncInterval is the server push cadence. Server writes cost
	// a round-trip, so they are batched.
	DefaultCloudSyncInterval = 5 * time.Second
	// DefaultNearEndThreshold is how close to the end (in seconds) playback
	// must get before the episode counts as complete even if the element
	// never reports an ended event. See DESIGN.md for the tradeoff.
	DefaultNearEndThreshold = 0.5

	// listenedIncrement is the media-time granularity of the listened-seconds
	// counter. It counts elapsed media time, not wall clock, so pausing does
	// not inflate it.
	listenedIncrement = 5.0
)

// Config carries the device identity stamped onto every saved position and
// the persistence cadences. Zero interval values fall back to the defaults;
// tests shrink them to keep runs fast.
type Config struct {
	DeviceID          string
	DeviceType        models.DeviceType
	LocalSaveInterval time.Duration
	CloudSyncInterval time.Duration
	NearEndThreshold  float64
}

// Controller is the playback session controller. It is the only component
// that touches the media element. All media callbacks and control calls may
// interleave arbitrarily; the mutex serializes state transitions, and media
// and network calls happen outside it.
type Controller struct {
	api      *api.Client
	resolver *resolver.Resolver
	media    Media
	cfg      Config

	mu              sync.Mutex
	state           State
	episode         *models.Episode
	sessionID       string
	rate            float64
	duration        float64
	pendingSeek     float64
	finalized       bool
	listenedSeconds int
	listenedMark    float64
	queue           []models.Episode
	queueIndex      int
	stopTimers      context.CancelFunc
}

// NewController wires the controller to its media element. Event handlers
// are registered here, before any Load can happen, so a source that loads
// instantly can never fire its loaded event before the seek handler exists.
func NewController(client *api.Client, res *resolver.Resolver, media Media, cfg Config) *Controller {
	if cfg.LocalSaveInterval <= 0 {
		cfg.LocalSaveInterval = DefaultLocalSaveInterval
	}
	if cfg.CloudSyncInterval <= 0 {
		cfg.CloudSyncInterval = DefaultCloudSyncInterval
	}
	if cfg.NearEndThreshold <= 0 {
		cfg.NearEndThreshold = DefaultNearEndThreshold
	}

	c := &Controller{
		api:         client,
		resolver:    res,
		media:       media,
		cfg:         cfg,
		state:       StateIdle,
		rate:        1.0,
		pendingSeek: -1,
	}

	media.SetHandlers(Handlers{
		OnLoaded:     c.onLoaded,
		OnTimeUpdate: c.onTimeUpdate,
		OnPause:      c.onPause,
		OnEnded:      c.onEnded,
		OnError:      c.onError,
	})

	return c
}

// PlayEpisode starts a play-through of a single episode. When startPosition
// is nil the resume position is resolved against the local store and the
// backend; a non-nil value pins the start (the "resume from here" path).
func (c *Controller) PlayEpisode(ctx context.Context, ep models.Episode, startPosition *float64) {
	c.mu.Lock()
	c.queue = nil
	c.queueIndex = 0
	c.mu.Unlock()
	c.startPlayback(ctx, ep, startPosition)
}

// PlayQueue starts an ordered queue. Natural completion of each entry
// auto-advances to the next, from position zero.
func (c *Controller) PlayQueue(ctx context.Context, episodes []models.Episode) {
	if len(episodes) == 0 {
		return
	}
	c.mu.Lock()
	c.queue = episodes
	c.queueIndex = 0
	c.mu.Unlock()
	c.startPlayback(ctx, episodes[0], nil)
}

func (c *Controller) startPlayback(ctx context.Context, ep models.Episode, startPosition *float64) {
	var priorPosition float64
	if c.currentState() == StatePlaying || c.currentState() == StatePaused {
		priorPosition = c.media.Position()
	}

	c.mu.Lock()
	// End any prior session without waiting for the round-trip: the new
	// episode must not block on the old one's network call.
	if c.sessionID != "" {
		c.endSessionAsync(c.sessionID, c.listenedSeconds, priorPosition, false)
	}
	if c.stopTimers != nil {
		c.stopTimers()
		c.stopTimers = nil
	}
	c.state = StateLoading
	c.episode = &ep
	c.sessionID = ""
	c.finalized = false
	c.duration = 0
	c.listenedSeconds = 0
	c.listenedMark = 0
	rate := c.rate
	c.mu.Unlock()

	var start float64
	if startPosition != nil {
		start = *startPosition
	} else {
		resolved := c.resolver.Latest(ctx, ep.ID)
		if !resolved.IsFinished {
			start = resolved.Position
		}
		// finished episodes restart from the top
	}

	c.mu.Lock()
	c.pendingSeek = start
	c.mu.Unlock()

	c.media.Load(ep.AudioURL)

	sessionID, err := c.api.StartSession(ctx, ep.ID)
	if err != nil {
		log.Printf("Failed to start session for episode %d: %v", ep.ID, err)
	} else {
		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()
	}

	c.media.SetRate(rate)
	playErr := c.media.Play()
	if playErr != nil {
		log.Printf("Play failed for episode %d: %v", ep.ID, playErr)
	}

	// Loading clears whether or not the play call succeeded.
	c.mu.Lock()
	if c.episode == nil || c.episode.ID != ep.ID {
		// A newer playback replaced this one while we were starting up.
		c.mu.Unlock()
		return
	}
	if playErr != nil {
		c.state = StatePaused
	} else {
		c.state = StatePlaying
	}
	timerCtx, cancel := context.WithCancel(context.Background())
	c.stopTimers = cancel
	c.mu.Unlock()

	go c.runTimers(timerCtx)
}

// Pause pauses playback. The immediate checkpoint happens in the pause
// event handler so that pauses originating inside the element checkpoint
// the same way.
func (c *Controller) Pause() {
	c.media.Pause()
}

// Resume continues a paused play-through.
func (c *Controller) Resume() error {
	err := c.media.Play()
	if err != nil {
		log.Printf("Resume failed: %v", err)
		return err
	}
	c.mu.Lock()
	if c.state == StatePaused {
		c.state = StatePlaying
	}
	c.mu.Unlock()
	return nil
}

// Seek moves playback to an absolute position in seconds.
func (c *Controller) Seek(position float64) {
	c.media.Seek(position)
}

// SetRate changes the playback rate. The element is updated immediately;
// the new rate reaches the local store and the backend on the next write
// cycle rather than synchronously.
func (c *Controller) SetRate(rate float64) {
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
	c.media.SetRate(rate)
}

// Stop ends the current play-through: flushes the position, ends the server
// session, cancels the timers and clears the queue.
func (c *Controller) Stop() {
	c.mu.Lock()
	ep := c.episode
	sessionID := c.sessionID
	listened := c.listenedSeconds
	rate := c.rate
	finalized := c.finalized
	c.sessionID = ""
	c.episode = nil
	c.queue = nil
	c.queueIndex = 0
	c.state = StateIdle
	if c.stopTimers != nil {
		c.stopTimers()
		c.stopTimers = nil
	}
	c.mu.Unlock()

	if ep == nil {
		return
	}

	position := c.media.Position()
	c.media.Stop()

	if !finalized {
		db.UpsertPosition(ep.ID, position, rate, false, c.cfg.DeviceID, c.cfg.DeviceType)
	}
	if sessionID != "" {
		if err := c.api.EndSession(context.Background(), api.SessionUpdate{
			SessionID:            sessionID,
			TotalListenedSeconds: listened,
			LastPositionSeconds:  position,
			IsFinished:           finalized,
		}); err != nil {
			log.Printf("Failed to end session %s: %v", sessionID, err)
		}
	}
}

// Shutdown is the process-teardown checkpoint, the analog of a page close.
// It fires one beacon-style request that survives context cancellation and
// writes a final local position. Playback is not resumed after this.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	ep := c.episode
	sessionID := c.sessionID
	listened := c.listenedSeconds
	rate := c.rate
	finalized := c.finalized
	if c.stopTimers != nil {
		c.stopTimers()
		c.stopTimers = nil
	}
	c.mu.Unlock()

	if ep == nil {
		return
	}

	position := c.media.Position()
	if !finalized {
		db.UpsertPosition(ep.ID, position, rate, false, c.cfg.DeviceID, c.cfg.DeviceType)
	}
	if sessionID != "" {
		c.api.SendBeacon(api.BeaconPayload{
			SessionID:       sessionID,
			ActiveSeconds:   listened,
			PositionSeconds: position,
			IsFinished:      finalized,
		})
	}
}

// Status is a snapshot of the controller for the control API.
type Status struct {
	State           State           `json:"state"`
	Episode         *models.Episode `json:"episode,omitempty"`
	Position        float64         `json:"position"`
	Duration        float64         `json:"duration"`
	Rate            float64         `json:"rate"`
	ListenedSeconds int             `json:"listened_seconds"`
	QueueLength     int             `json:"queue_length"`
	QueueIndex      int             `json:"queue_index"`
}

// CurrentStatus reports the controller state and live element position.
func (c *Controller) CurrentStatus() Status {
	c.mu.Lock()
	s := Status{
		State:           c.state,
		Episode:         c.episode,
		Duration:        c.duration,
		Rate:            c.rate,
		ListenedSeconds: c.listenedSeconds,
		QueueLength:     len(c.queue),
		QueueIndex:      c.queueIndex,
	}
	c.mu.Unlock()
	if s.State == StatePlaying || s.State == StatePaused {
		s.Position = c.media.Position()
	}
	return s
}

// --- media event handlers ---

// onLoaded performs the one-shot seek to the resolved start position.
func (c *Controller) onLoaded(duration float64) {
	c.mu.Lock()
	c.duration = duration
	seek := c.pendingSeek
	c.pendingSeek = -1
	c.mu.Unlock()

	if seek > 0 {
		c.media.Seek(seek)
	}
}

func (c *Controller) onTimeUpdate(position float64) {
	c.mu.Lock()
	if c.episode == nil || c.finalized {
		c.mu.Unlock()
		return
	}
	// Listened time counts elapsed media time in fixed increments. A
	// backwards seek moves the mark back; a forward seek credits at most
	// one increment.
	if position < c.listenedMark {
		c.listenedMark = position
	}
	if position-c.listenedMark >= listenedIncrement {
		c.listenedSeconds += int(listenedIncrement)
		c.listenedMark = position
	}
	duration := c.duration
	threshold := c.cfg.NearEndThreshold
	c.mu.Unlock()

	// Near-end heuristic: some sources never deliver a clean ended event.
	if duration > 0 && duration-position <= threshold {
		c.finalize()
	}
}

// onPause checkpoints immediately: pause is the most common natural stopping
// point and must not depend on the tickers having fired recently.
func (c *Controller) onPause() {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	c.state = StatePaused
	c.mu.Unlock()

	c.saveLocal()
	c.syncRemote(context.Background())
}

func (c *Controller) onEnded() {
	c.finalize()
	c.advanceQueue()
}

func (c *Controller) onError(err error) {
	log.Printf("Media element error: %v", err)
}

// --- persistence cycles ---

// runTimers owns the two persistence tickers for one play-through. The
// context is cancelled on stop, episode switch and teardown, so timers never
// leak across sessions.
func (c *Controller) runTimers(ctx context.Context) {
	local := time.NewTicker(c.cfg.LocalSaveInterval)
	defer local.Stop()
	cloud := time.NewTicker(c.cfg.CloudSyncInterval)
	defer cloud.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-local.C:
			if c.currentState() == StatePlaying {
				c.saveLocal()
			}
		case <-cloud.C:
			if c.currentState() == StatePlaying {
				c.syncRemote(ctx)
			}
		}
	}
}

func (c *Controller) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) saveLocal() {
	c.mu.Lock()
	ep := c.episode
	rate := c.rate
	finalized := c.finalized
	c.mu.Unlock()

	if ep == nil || finalized {
		return
	}
	position := c.media.Position()
	db.UpsertPosition(ep.ID, position, rate, false, c.cfg.DeviceID, c.cfg.DeviceType)
}

func (c *Controller) syncRemote(ctx context.Context) {
	c.mu.Lock()
	ep := c.episode
	sessionID := c.sessionID
	listened := c.listenedSeconds
	rate := c.rate
	duration := c.duration
	finalized := c.finalized
	c.mu.Unlock()

	if ep == nil || finalized {
		return
	}
	position := c.media.Position()

	if err := c.api.SyncPosition(ctx, ep.ID, api.SyncRequest{
		Position:     position,
		IsFinished:   false,
		Duration:     duration,
		Timestamp:    time.Now().UnixMilli(),
		DeviceID:     c.cfg.DeviceID,
		DeviceType:   c.cfg.DeviceType,
		PlaybackRate: rate,
	}); err != nil {
		log.Printf("Position sync for episode %d failed: %v", ep.ID, err)
	}

	if sessionID != "" {
		if err := c.api.UpdateSession(ctx, api.SessionUpdate{
			SessionID:            sessionID,
			TotalListenedSeconds: listened,
			LastPositionSeconds:  position,
			IsFinished:           false,
		}); err != nil {
			log.Printf("Session update %s failed: %v", sessionID, err)
		}
	}
}

// --- finalization ---

// finalize runs the one-time completion sequence. Both the near-end
// heuristic and the ended event funnel here, possibly in the same instant;
// the guard is checked and set under the mutex so the second caller is a
// no-op. Every step is independently best-effort.
func (c *Controller) finalize() {
	c.mu.Lock()
	if c.finalized || c.episode == nil {
		c.mu.Unlock()
		return
	}
	c.finalized = true
	c.state = StateFinalizing
	ep := *c.episode
	sessionID := c.sessionID
	c.sessionID = ""
	listened := c.listenedSeconds
	rate := c.rate
	knownDuration := c.duration
	if c.stopTimers != nil {
		c.stopTimers()
		c.stopTimers = nil
	}
	c.mu.Unlock()

	// The element's duration is what was actually played; feed metadata is
	// routinely wrong, so this value corrects server-side drift on re-sync.
	duration := c.media.Duration()
	if duration <= 0 {
		duration = knownDuration
	}

	db.UpsertPosition(ep.ID, duration, rate, true, c.cfg.DeviceID, c.cfg.DeviceType)

	if sessionID != "" {
		if err := c.api.EndSession(context.Background(), api.SessionUpdate{
			SessionID:            sessionID,
			TotalListenedSeconds: listened,
			LastPositionSeconds:  duration,
			IsFinished:           true,
		}); err != nil {
			log.Printf("Failed to end session %s: %v", sessionID, err)
		}
	}

	if err := c.api.SyncPosition(context.Background(), ep.ID, api.SyncRequest{
		Position:     duration,
		IsFinished:   true,
		Duration:     duration,
		Timestamp:    time.Now().UnixMilli(),
		DeviceID:     c.cfg.DeviceID,
		DeviceType:   c.cfg.DeviceType,
		PlaybackRate: rate,
	}); err != nil {
		log.Printf("Final position sync for episode %d failed: %v", ep.ID, err)
	}

	c.mu.Lock()
	if c.state == StateFinalizing {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// advanceQueue starts the next queue entry after a natural completion.
func (c *Controller) advanceQueue() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	c.queueIndex++
	if c.queueIndex >= len(c.queue) {
		c.queue = nil
		c.queueIndex = 0
		c.mu.Unlock()
		return
	}
	next := c.queue[c.queueIndex]
	c.mu.Unlock()

	zero := 0.0
	c.startPlayback(context.Background(), next, &zero)
}

// endSessionAsync fires the session-end call for a superseded play-through
// without joining it. Caller holds the mutex.
func (c *Controller) endSessionAsync(sessionID string, listened int, position float64, finished bool) {
	update := api.SessionUpdate{
		SessionID:            sessionID,
		TotalListenedSeconds: listened,
		LastPositionSeconds:  position,
		IsFinished:           finished,
	}
	go func() {
		if err := c.api.EndSession(context.Background(), update); err != nil {
			log.Printf("Failed to end superseded session %s: %v", update.SessionID, err)
		}
	}()
}
