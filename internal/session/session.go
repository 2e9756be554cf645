// Package session is a small in-process model of a music host: a song with
// tracks, clip slots, scenes and a device browser, exposed as a command
// catalogue.
//
// Mutating and long-running handlers run on the host main loop and are the
// only code that touches the song. Each successful mutation publishes an
// immutable Snapshot through an atomic pointer; read-only handlers, which
// run on network goroutines, read that snapshot and nothing else.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/host"
	"github.com/mattjoyce/livebridge/internal/log"
)

const (
	defaultTracks = 2
	defaultScenes = 8
)

var (
	errTrackRange = command.Invalid("Track index out of range")
	errClipRange  = command.Invalid("Clip index out of range")
	errSceneRange = command.Invalid("Scene index out of range")
	errNoClip     = command.Invalid("No clip in slot")

	// ErrOffMainLoop is returned when a mutating handler is reached from a
	// goroutine other than the main loop.
	ErrOffMainLoop = errors.New("session: mutation attempted off the main loop")
)

// Options configures the initial song.
type Options struct {
	Tracks int
	Scenes int
	// BrowserDelay simulates the cost of walking a large device library.
	BrowserDelay time.Duration
}

// Session owns the song.
type Session struct {
	opts    Options
	song    *song
	browser []browserCategory
	logger  *slog.Logger

	version  atomic.Uint64
	snap     atomic.Pointer[Snapshot]
	lastTick time.Time
	started  time.Time
}

// New creates a session with a fresh song.
func New(opts Options) *Session {
	if opts.Tracks <= 0 {
		opts.Tracks = defaultTracks
	}
	if opts.Scenes <= 0 {
		opts.Scenes = defaultScenes
	}
	s := &Session{
		opts:    opts,
		song:    newSong(opts.Tracks, opts.Scenes),
		browser: defaultBrowser(),
		logger:  log.WithComponent("session"),
		started: time.Now(),
	}
	s.publish()
	return s
}

// Snapshot returns the latest published state.
func (s *Session) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Uptime reports how long the session has existed.
func (s *Session) Uptime() time.Duration {
	return time.Since(s.started)
}

// Tick is the host's periodic work: it advances song time while playing.
// It must run on the main loop.
func (s *Session) Tick(ctx context.Context) {
	if !host.OnMainThread(ctx) {
		s.logger.Error("tick called off the main loop")
		return
	}
	now := time.Now()
	last := s.lastTick
	s.lastTick = now
	if !s.song.playing || last.IsZero() {
		return
	}
	beats := now.Sub(last).Minutes() * s.song.tempo
	s.song.time += beats
	s.publish()
}

func (s *Session) publish() {
	s.snap.Store(s.song.snapshot(s.version.Add(1)))
}

// mutate runs fn against the live song and publishes a snapshot when fn
// succeeds.
func (s *Session) mutate(ctx context.Context, fn func(sg *song) (any, error)) (any, error) {
	if !host.OnMainThread(ctx) {
		return nil, ErrOffMainLoop
	}
	out, err := fn(s.song)
	if err != nil {
		return nil, err
	}
	s.publish()
	return out, nil
}
