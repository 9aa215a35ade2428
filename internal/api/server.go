package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/1sec-project/guildshield/internal/authz"
	"github.com/1sec-project/guildshield/internal/commands"
	"github.com/1sec-project/guildshield/internal/core"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps command request bodies.
const maxBodyBytes = 64 << 10

// Server is the guildshield operator API.
type Server struct {
	engine   *core.Engine
	commands *commands.Service
	handler  http.Handler
	server   *http.Server
	logger   zerolog.Logger
}

// NewServer creates the API server. cmds may be nil, in which case the
// command endpoint answers 503.
func NewServer(engine *core.Engine, cmds *commands.Service) *Server {
	s := &Server{
		engine:   engine,
		commands: cmds,
		logger:   engine.Logger.With().Str("component", "api_server").Logger(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(engine.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/responses", s.handleResponses).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	api.HandleFunc("/guilds/{guild}/commands/{command}", s.handleCommand).Methods(http.MethodPost)

	// mux applies middleware per matched request, so the limiter state lives
	// outside the closure.
	limiter := newIPLimiter(engine.Config.Server.RateLimit, engine.Config.Server.Burst)
	router.Use(func(next http.Handler) http.Handler { return loggingMiddleware(next, s.logger) })
	router.Use(func(next http.Handler) http.Handler { return rateLimitMiddleware(next, limiter) })
	router.Use(func(next http.Handler) http.Handler { return authMiddleware(next, engine, s.logger) })

	s.handler = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", engine.Config.Server.Host, engine.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins serving the API.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("API server starting")
	if s.engine.AuthEnabled() {
		s.logger.Info().Msg("API authentication enabled")
	} else {
		s.logger.Warn().Msg("API authentication disabled, set server.api_keys or GUILDSHIELD_API_KEY")
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	modules := make([]map[string]interface{}, 0)
	for _, mod := range s.engine.Registry.All() {
		modules = append(modules, map[string]interface{}{
			"name":        mod.Name(),
			"description": mod.Description(),
			"running":     s.engine.Registry.IsStarted(mod.Name()),
		})
	}

	status := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int64(s.engine.Uptime().Seconds()),
		"modules":        modules,
		"store":          s.engine.Config.Store.Backend,
		"responses":      s.engine.Responses.Count(),
		"bus_connected":  s.engine.Bus != nil && s.engine.Bus.IsConnected(),
	}
	if s.engine.Bus != nil {
		status["bus"] = s.engine.Bus.GetMetrics()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	guild := r.URL.Query().Get("guild")

	records := s.engine.Responses.Recent(0)
	out := make([]*core.ResponseRecord, 0, limit)
	for _, rec := range records {
		if guild != "" && rec.GuildID != guild {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"responses": out,
		"total":     len(out),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if s.engine.LogBuffer == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"logs": []core.LogEntry{}, "total": 0})
		return
	}
	entries := s.engine.LogBuffer.Entries(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  entries,
		"total": len(entries),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	changes, err := core.ReloadConfig(s.engine, s.engine.ConfigPath)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"changes": changes})
}

// commandRequest is the body of a command invocation. The adapter fills it
// from the platform interaction.
type commandRequest struct {
	OwnerID string            `json:"owner_id"`
	Actor   authz.Actor       `json:"actor"`
	Args    map[string]string `json:"args"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "command service not ready"})
		return
	}
	vars := mux.Vars(r)
	guild, command := vars["guild"], strings.ToLower(vars["command"])

	var req commandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}

	inv := commands.Invocation{GuildID: guild, OwnerID: req.OwnerID, Actor: req.Actor}

	res := s.commands.Execute(r.Context(), inv, command, req.Args)

	label := command
	if errors.Is(res.Err, commands.ErrUnknownCommand) {
		label = "unknown"
	}
	s.engine.Metrics.Commands.WithLabelValues(label, string(res.Outcome)).Inc()

	writeJSON(w, statusFor(res), res)
}

// statusFor maps a command outcome to an HTTP status.
func statusFor(res commands.Result) int {
	switch {
	case res.OK():
		return http.StatusOK
	case errors.Is(res.Err, commands.ErrUnknownCommand):
		return http.StatusNotFound
	case res.Outcome == commands.OutcomeUnauthorized:
		return http.StatusForbidden
	case res.Outcome == commands.OutcomeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > 1000 {
		return 1000
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
