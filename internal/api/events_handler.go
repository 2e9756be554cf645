package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/livebridge/internal/events"
)

// sseRetry is the reconnect delay suggested to clients.
const sseRetry = 3 * time.Second

// sseStream writes Server-Sent Events and flushes after each one.
type sseStream struct {
	w     http.ResponseWriter
	flush http.Flusher
	// only, when set, drops events of other types.
	only string
}

func (s *sseStream) event(ev events.Event) error {
	if s.only != "" && ev.Type != s.only {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
		return err
	}
	s.flush.Flush()
	return nil
}

func (s *sseStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flush.Flush()
	return nil
}

// handleEventStream serves GET /events/stream. Events buffered after
// Last-Event-ID are replayed before live ones; ?type= narrows the stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		s.writeError(w, http.StatusNotFound, "events disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := &sseStream{w: w, flush: flusher, only: r.URL.Query().Get("type")}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds()); err != nil {
		return
	}

	// Subscribe before replaying so nothing published in between is lost;
	// live events already covered by the backlog are skipped by ID.
	ch, unsubscribe := s.deps.Events.Subscribe()
	defer unsubscribe()

	last := parseLastEventID(r.Header.Get("Last-Event-ID"))
	for _, ev := range s.deps.Events.SnapshotSince(last) {
		if err := stream.event(ev); err != nil {
			return
		}
		last = ev.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(s.config.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if ev.ID <= last {
				continue
			}
			if err := stream.event(ev); err != nil {
				return
			}
			last = ev.ID
		case <-keepAlive.C:
			if err := stream.comment("keep-alive"); err != nil {
				return
			}
		}
	}
}

// parseLastEventID returns 0 for a missing, malformed or negative header.
func parseLastEventID(v string) int64 {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
