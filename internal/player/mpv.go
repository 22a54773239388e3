package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

var execCommand = exec.Command

// pollInterval is how often the mpv poller samples position and state.
// Half a second keeps timeupdate granularity well under the 1s local-save
// cadence without hammering the IPC socket.
const pollInterval = 500 * time.Millisecond

// MPVMedia drives a headless mpv process over its JSON IPC socket and
// implements the Media interface. mpv itself has no push notifications we
// rely on; a poller samples position, duration, pause and end-of-file state
// and synthesizes the Handlers events from observed transitions.
type MPVMedia struct {
	socketPath string
	cmd        *exec.Cmd
	conn       net.Conn

	mu       sync.Mutex
	handlers Handlers
	pending  map[int64]chan json.RawMessage
	nextID   int64

	// state observed by the poller, used to detect transitions
	lastPosition float64
	lastPaused   bool
	loadedFired  bool
	endedFired   bool

	done chan struct{}
}

// NewMPVMedia launches mpv in idle mode and connects to its IPC socket.
func NewMPVMedia() (*MPVMedia, error) {
	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("podplayer-mpv-%d.sock", os.Getpid()))

	cmd := execCommand("mpv",
		"--idle=yes",
		"--no-video",
		"--really-quiet",
		"--input-ipc-server="+socketPath,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}

	m := &MPVMedia{
		socketPath: socketPath,
		cmd:        cmd,
		pending:    make(map[int64]chan json.RawMessage),
		done:       make(chan struct{}),
	}

	conn, err := m.dialWithRetry(5 * time.Second)
	if err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("failed to connect to mpv ipc socket: %w", err)
	}
	m.conn = conn

	go m.readLoop()
	go m.pollLoop()

	return m, nil
}

func (m *MPVMedia) dialWithRetry(timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// SetHandlers registers event callbacks. Must be called before Load.
func (m *MPVMedia) SetHandlers(h Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

func (m *MPVMedia) Load(url string) {
	m.mu.Lock()
	m.loadedFired = false
	m.endedFired = false
	m.lastPosition = 0
	m.mu.Unlock()
	// loadfile starts paused so the controller can seek before playing.
	m.command("loadfile", url)
	m.command("set_property", "pause", true)
}

func (m *MPVMedia) Play() error {
	_, err := m.command("set_property", "pause", false)
	return err
}

func (m *MPVMedia) Pause() {
	m.command("set_property", "pause", true)
}

func (m *MPVMedia) Stop() {
	m.command("stop")
}

func (m *MPVMedia) Seek(position float64) {
	m.command("seek", position, "absolute")
}

func (m *MPVMedia) SetRate(rate float64) {
	m.command("set_property", "speed", rate)
}

func (m *MPVMedia) Position() float64 {
	var pos float64
	m.getProperty("time-pos", &pos)
	return pos
}

func (m *MPVMedia) Duration() float64 {
	var dur float64
	m.getProperty("duration", &dur)
	return dur
}

// Close shuts down the mpv process and the poller.
func (m *MPVMedia) Close() {
	close(m.done)
	m.command("quit")
	m.conn.Close()
	m.cmd.Wait()
	os.Remove(m.socketPath)
}

// pollLoop samples playback state and turns observed transitions into
// Handlers events.
func (m *MPVMedia) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		var position, duration float64
		var paused, eof bool
		m.getProperty("time-pos", &position)
		m.getProperty("duration", &duration)
		m.getProperty("pause", &paused)
		m.getProperty("eof-reached", &eof)

		m.mu.Lock()
		h := m.handlers
		fireLoaded := duration > 0 && !m.loadedFired
		if fireLoaded {
			m.loadedFired = true
		}
		firePause := paused && !m.lastPaused
		fireTime := !paused && position != m.lastPosition
		fireEnded := eof && !m.endedFired
		if fireEnded {
			m.endedFired = true
		}
		m.lastPaused = paused
		m.lastPosition = position
		m.mu.Unlock()

		if fireLoaded && h.OnLoaded != nil {
			h.OnLoaded(duration)
		}
		if fireTime && h.OnTimeUpdate != nil {
			h.OnTimeUpdate(position)
		}
		if firePause && h.OnPause != nil {
			h.OnPause()
		}
		if fireEnded && h.OnEnded != nil {
			h.OnEnded()
		}
	}
}

// readLoop reads newline-delimited JSON from the IPC socket and routes
// command replies to their waiters. Asynchronous mpv events are ignored;
// state is sampled by the poller instead.
func (m *MPVMedia) readLoop() {
	scanner := bufio.NewScanner(m.conn)
	for scanner.Scan() {
		var msg struct {
			RequestID int64           `json:"request_id"`
			Error     string          `json:"error"`
			Data      json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.RequestID == 0 {
			continue
		}

		m.mu.Lock()
		ch, ok := m.pending[msg.RequestID]
		delete(m.pending, msg.RequestID)
		m.mu.Unlock()

		if ok {
			if msg.Error != "" && msg.Error != "success" {
				ch <- nil
			} else {
				ch <- msg.Data
			}
		}
	}

	select {
	case <-m.done:
	default:
		m.mu.Lock()
		h := m.handlers
		m.mu.Unlock()
		if h.OnError != nil {
			h.OnError(fmt.Errorf("mpv ipc connection lost"))
		}
	}
}

func (m *MPVMedia) command(args ...interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	ch := make(chan json.RawMessage, 1)
	m.pending[id] = ch
	m.mu.Unlock()

	payload, err := json.Marshal(map[string]interface{}{
		"command":    args,
		"request_id": id,
	})
	if err != nil {
		return nil, err
	}

	if _, err := m.conn.Write(append(payload, '\n')); err != nil {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		log.Printf("mpv command %v failed: %v", args, err)
		return nil, err
	}

	select {
	case data := <-ch:
		return data, nil
	case <-time.After(2 * time.Second):
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("mpv command %v timed out", args)
	case <-m.done:
		return nil, fmt.Errorf("mpv shutting down")
	}
}

func (m *MPVMedia) getProperty(name string, out interface{}) {
	data, err := m.command("get_property", name)
	if err != nil || data == nil {
		return
	}
	json.Unmarshal(data, out)
}
