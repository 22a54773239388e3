package player

// Media is the single audio element a Controller owns. Nothing else in the
// process touches it. Implementations deliver events through Handlers
// registered once, before any Load call, so a fast-loading source can never
// fire its loaded event into the void.
type Media interface {
	// SetHandlers registers the event callbacks. Must be called before Load.
	SetHandlers(h Handlers)
	// Load assigns a new source. Any previous playback is discarded.
	Load(url string)
	Play() error
	Pause()
	Stop()
	// Seek moves playback to an absolute position in seconds.
	Seek(position float64)
	SetRate(rate float64)
	Position() float64
	// Duration returns the media duration in seconds, or 0 while unknown.
	Duration() float64
}

// Handlers are the media event callbacks a Controller wires up. Callbacks
// may fire from the element's own goroutine in any interleaving; the
// Controller serializes them internally.
type Handlers struct {
	// OnLoaded fires once per Load when the media duration is known.
	OnLoaded func(duration float64)
	// OnTimeUpdate fires periodically with the current position while playing.
	OnTimeUpdate func(position float64)
	// OnPause fires when playback pauses, whatever the cause.
	OnPause func()
	// OnEnded fires when playback reaches the natural end of the media.
	OnEnded func()
	// OnError fires on unrecoverable element errors.
	OnError func(err error)
}
