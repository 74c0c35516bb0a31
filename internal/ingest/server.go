// Package ingest is the client-facing transport: game servers post command
// batches over HTTP or hold a WebSocket stream whose lifetime is the
// session lifetime.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/protocol"
	"github.com/dokzlo13/telemetryd/internal/session"
	"github.com/dokzlo13/telemetryd/internal/telemetry"
)

// ConfigSource serves remote-config lookups. Implemented by
// remoteconfig.Client; nil disables the lookup route.
type ConfigSource interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Server exposes the ingest endpoints.
type Server struct {
	addr           string
	dispatcher     *protocol.Dispatcher
	tracker        *session.Tracker
	telemetry      *telemetry.Service
	remoteConfig   ConfigSource
	allowedOrigins map[string]bool
	httpServer     *http.Server
}

// NewServer creates the ingest server. An empty origins list allows any
// origin (server-to-server deployments).
func NewServer(host string, port int, dispatcher *protocol.Dispatcher, tracker *session.Tracker, svc *telemetry.Service, remoteConfig ConfigSource, allowedOrigins []string) *Server {
	s := &Server{
		addr:           fmt.Sprintf("%s:%d", host, port),
		dispatcher:     dispatcher,
		tracker:        tracker,
		telemetry:      svc,
		remoteConfig:   remoteConfig,
		allowedOrigins: make(map[string]bool),
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			s.allowedOrigins[trimmed] = true
		}
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.HandleFunc("/v1/remoteconfig/", s.handleRemoteConfig)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	return mux
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", s.addr).Msg("Starting ingest server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ingest server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleSessionRoutes parses /v1/sessions/{key}/commands and
// /v1/sessions/{key}/end.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	key, err := url.PathUnescape(parts[0])
	if err != nil || key == "" {
		http.Error(w, "invalid session key", http.StatusBadRequest)
		return
	}

	switch parts[1] {
	case "commands":
		s.handleCommands(w, r, key)
	case "end":
		s.handleEnd(w, r, key)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// rejection reports one refused command in a batch response.
type rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// handleCommands accepts a JSON array of command envelopes. Session start
// is implicit: the first batch for an unknown key registers the session.
// Gate rejections are reported per command, not as an HTTP failure.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		http.Error(w, "body must be a JSON array of commands", http.StatusBadRequest)
		return
	}

	if _, known := s.tracker.Get(key); !known {
		s.tracker.Join(key, r.Header.Get("X-Platform"))
	}

	accepted := 0
	var rejected []rejection
	for i, raw := range raws {
		cmd, err := protocol.Decode(key, raw)
		if err == nil {
			// A player override buffers under its own key; the tracker
			// must know that key or teardown can never flush it.
			if sk := cmd.SessionKey(); sk != key {
				s.tracker.Join(sk, r.Header.Get("X-Platform"))
			}
			err = s.dispatcher.Dispatch(cmd)
		}
		if err != nil {
			rejected = append(rejected, rejection{Index: i, Reason: err.Error()})
			continue
		}
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accepted": accepted,
		"rejected": rejected,
	})
}

// handleEnd is the explicit session-ending notification for HTTP clients.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.tracker.Leave(key) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades to WebSocket. The connection is the session: the
// disconnect is the session-ending notification.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Stream upgrade failed")
		return
	}

	info := s.tracker.Join(r.URL.Query().Get("session"), r.URL.Query().Get("platform"))
	log.Debug().Str("session", info.Key).Str("remote", r.RemoteAddr).Msg("Stream connected")

	conn.WriteJSON(map[string]string{"session": info.Key})

	go func() {
		defer func() {
			conn.Close()
			s.tracker.Leave(info.Key)
			log.Debug().Str("session", info.Key).Msg("Stream disconnected")
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd, err := protocol.Decode(info.Key, raw)
			if err == nil {
				if sk := cmd.SessionKey(); sk != info.Key {
					s.tracker.Join(sk, info.Platform)
				}
				err = s.dispatcher.Dispatch(cmd)
			}
			if err != nil {
				conn.WriteJSON(map[string]string{"error": err.Error()})
			}
		}
	}()
}

// handleRemoteConfig serves GET /v1/remoteconfig/{key} lookups so game
// code can read tuning values through the daemon's cache.
func (s *Server) handleRemoteConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.remoteConfig == nil {
		http.Error(w, "remote config disabled", http.StatusNotFound)
		return
	}

	key, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/v1/remoteconfig/"))
	if err != nil || key == "" {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}

	value, ok, err := s.remoteConfig.Get(r.Context(), key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Remote-config lookup failed")
		http.Error(w, "config backend unavailable", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "unknown key", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"key": key, "value": value})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// handleReady reflects the telemetry readiness flag.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.telemetry.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"starting"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	return s.allowedOrigins[origin]
}
