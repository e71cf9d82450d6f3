package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "github.com/sebas/relaycall/api/types/v1"
	"github.com/sebas/relaycall/internal/callengine/call"
)

// Server provides the HTTP status API for the call engine (headless,
// read-only).
type Server struct {
	addr       string
	httpServer *http.Server
	engine     *call.Engine
	startTime  time.Time
}

// NewServer creates a new status API server
func NewServer(addr string, engine *call.Engine) *Server {
	s := &Server{
		addr:      addr,
		engine:    engine,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/calls", s.handleCalls)
	mux.HandleFunc("/api/v1/calls/", s.handleCallByID)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	slog.Info("[API] Starting HTTP API server", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[API] Server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts down the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()
	s.writeJSON(w, v1.HealthResponse{
		Status: "ok",
		Uptime: int64(uptime),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	calls := s.engine.Registry().Calls()

	stats := v1.StatsResponse{
		ActiveCalls:    len(calls),
		EventQueueSize: len(s.engine.Events().C()),
	}
	for _, c := range calls {
		stats.ActivePeers += c.PeerCount()
		if c.RelayMediated() {
			stats.RelayedCalls++
		}
		if conf := c.ConferenceSnapshot(); conf != nil {
			for _, content := range conf.Contents {
				stats.TotalChannels += content.ChannelCount()
			}
		}
	}

	s.writeJSON(w, stats)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	calls := s.engine.Registry().Calls()
	response := make([]v1.Call, 0, len(calls))
	for _, c := range calls {
		response = append(response, callSnapshot(c))
	}
	s.writeJSON(w, response)
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract call ID from path: /api/v1/calls/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/calls/")
	if path == "" {
		http.Error(w, "Call ID required", http.StatusBadRequest)
		return
	}
	callID, err := url.PathUnescape(path)
	if err != nil {
		http.Error(w, "Invalid call ID encoding", http.StatusBadRequest)
		return
	}

	c, ok := s.engine.Registry().Find(callID)
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, callSnapshot(c))
}

func callSnapshot(c *call.Call) v1.Call {
	snapshot := v1.Call{
		CallID:        c.ID(),
		RelayMediated: c.RelayMediated(),
		Focus:         c.IsConferenceFocus(),
		VideoAllowed:  c.LocalVideoAllowed(),
		Peers:         make([]v1.Peer, 0, c.PeerCount()),
	}

	for _, p := range c.Peers() {
		snapshot.Peers = append(snapshot.Peers, v1.Peer{
			SID:            p.SID(),
			Address:        p.Address(),
			State:          p.State().String(),
			StateReason:    p.StateReason(),
			Inbound:        p.Inbound(),
			Focus:          p.IsConferenceFocus(),
			RemoteChannels: p.RemoteChannelCount(),
		})
	}

	if conf := c.ConferenceSnapshot(); conf != nil {
		snapshot.Conference = &v1.Conference{
			ID:       conf.ID,
			Relay:    conf.From,
			Contents: make([]v1.Content, 0, len(conf.Contents)),
		}
		for _, content := range conf.Contents {
			out := v1.Content{Name: content.Name, Channels: make([]v1.Channel, 0, content.ChannelCount())}
			for _, ch := range content.Channels {
				out.Channels = append(out.Channels, v1.Channel{ID: ch.ID, Expire: ch.Expire})
			}
			snapshot.Conference.Contents = append(snapshot.Conference.Contents, out)
		}
	}

	return snapshot
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode JSON", "error", err)
	}
}
