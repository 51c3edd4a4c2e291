// Package server exposes one owner's tool-call surface over HTTP so remote
// agents can drive the negotiation protocol. Transport failures aside, every
// tool response is a well-formed JSON document: domain failures ride in the
// body as {"error": {"kind", "message"}}, never as a bare 5xx.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hupe1980/agentcal/logging"
	"github.com/hupe1980/agentcal/tool"
	"github.com/rs/zerolog"
)

// callerHeader carries the identity the transport asserts for the invoking
// agent. The engine uses it to distinguish local from remote proposals.
const callerHeader = "X-Agent-ID"

// Server serves a registry of tools over HTTP.
type Server struct {
	Server   *http.Server
	log      *zerolog.Logger
	registry map[string]tool.Tool
	names    []string
}

// New constructs a Server for the given address and tool set.
func New(addr string, tools []tool.Tool, log *zerolog.Logger) *Server {
	registry := make(map[string]tool.Tool, len(tools))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		registry[t.Name()] = t
		names = append(names, t.Name())
	}

	s := &Server{
		Server: &http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:      log,
		registry: registry,
		names:    names,
	}

	r := mux.NewRouter()
	s.setupRoutes(r)
	s.Server.Handler = r

	return s
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.healthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tools", s.listTools).Methods("GET")
	api.HandleFunc("/tools/{name}", s.callTool).Methods("POST")
}

// Start begins serving; it blocks until the listener closes.
func (s *Server) Start() error {
	return s.Server.ListenAndServe()
}

// Stop attempts a graceful shutdown bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("caller", r.Header.Get(callerHeader)).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// toolInfo is the discovery document for one tool.
type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	infos := make([]toolInfo, 0, len(s.names))
	for _, name := range s.names {
		t := s.registry[name]
		infos = append(infos, toolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": infos})
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	t, ok := s.registry[name]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"kind": "not_found", "message": "unknown tool " + name},
		})
		return
	}

	args := map[string]any{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			s.log.Warn().Err(err).Str("tool", name).Msg("Failed to decode tool arguments")
			s.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]string{"kind": "invalid_input", "message": "request body must be a JSON object"},
			})
			return
		}
	}

	logger := logging.NewZerologAdapter(s.log)
	toolCtx := tool.NewContext(r.Context(), uuid.NewString(), r.Header.Get(callerHeader), logger)

	result, err := t.Call(toolCtx, args)
	if err != nil {
		// Schema-level rejection (or recovered panic): still data, still JSON.
		kind := "invalid_input"
		status := http.StatusBadRequest
		if toolErr, ok := err.(*tool.ToolError); ok && toolErr.Code == "PANIC" {
			kind = "internal"
			status = http.StatusInternalServerError
		}
		s.writeJSON(w, status, map[string]any{
			"error": map[string]string{"kind": kind, "message": err.Error()},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}
