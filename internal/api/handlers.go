package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/livebridge/internal/events"
	"github.com/mattjoyce/livebridge/internal/journal"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		JournalEnabled: s.deps.Journal != nil,
	}
	if s.deps.Commands != nil {
		resp.CommandsRegistered = len(s.deps.Commands.Entries())
	}
	if s.deps.Connections != nil {
		resp.Connections = s.deps.Connections.Connections()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCommands handles GET /commands: every registered name with its class.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	resp := CommandsResponse{Commands: []CommandInfo{}}
	if s.deps.Commands != nil {
		for _, e := range s.deps.Commands.Entries() {
			resp.Commands = append(resp.Commands, CommandInfo{Name: e.Name, Class: e.Class.String()})
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		s.writeError(w, http.StatusNotFound, "no session attached")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

// handleJournal handles GET /journal?limit=N, newest first.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := s.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// handleEvents handles GET /events?since=ID: buffered events after ID.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	resp := EventsResponse{Events: []events.Event{}}
	if s.deps.Events != nil {
		since := parseLastEventID(r.URL.Query().Get("since"))
		resp.Events = append(resp.Events, s.deps.Events.SnapshotSince(since)...)
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
