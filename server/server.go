// Package server exposes the tool catalog over HTTP: one POST route per
// tool matching the exported OpenAPI paths, plus health and catalog
// endpoints. It is the surface a watsonx Orchestrate skill import points at.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/watsonhub/ibmcloudkit/history"
	"github.com/watsonhub/ibmcloudkit/registry"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Registry   *registry.Registry
	Dispatcher *registry.Dispatcher
	// History enables GET /history when set.
	History HistorySource
	MaxBody int64
	Logger  *slog.Logger
}

// HistorySource lists recent invocations for the history endpoint.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Server is the toolkit HTTP dispatch surface.
type Server struct {
	registry   *registry.Registry
	dispatcher *registry.Dispatcher
	historySrc HistorySource
	maxBody    int64
	logger     *slog.Logger
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	return &Server{
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		historySrc: cfg.History,
		maxBody:    maxBody,
		logger:     logger,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleListTools)
	if s.historySrc != nil {
		mux.HandleFunc("GET /history", s.handleHistory)
	} else {
		// Without an explicit route the request would fall through to the
		// POST /{tool} pattern and answer 405 instead of 404.
		mux.HandleFunc("GET /history", func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound,
				tool.Errorf(tool.KindNotFound, "invocation history is not enabled"))
		})
	}
	mux.HandleFunc("POST /{tool}", s.handleCall)

	var handler http.Handler = mux
	handler = s.maxBodyMiddleware(handler)
	return handler
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"tool_count": s.registry.Len(),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	type toolEntry struct {
		Name        string           `json:"name"`
		Module      string           `json:"module"`
		Description string           `json:"description"`
		Params      []tool.ParamSpec `json:"params,omitempty"`
	}
	entries := make([]toolEntry, 0, s.registry.Len())
	for _, def := range s.registry.All() {
		entries = append(entries, toolEntry{
			Name:        def.Name,
			Module:      s.registry.ModuleOf(def.Name),
			Description: def.Description,
			Params:      def.Params,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": entries,
		"count": len(entries),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest,
				tool.Errorf(tool.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	recs, err := s.historySrc.Recent(r.Context(), limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "history query failed", "error", err)
		writeError(w, http.StatusInternalServerError,
			tool.Errorf(tool.KindConfig, "history store unavailable"))
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invocations": recs,
		"count":       len(recs),
	})
}

// handleCall dispatches POST /{tool} with a JSON argument object, matching
// the paths the OpenAPI export declares.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("tool")

	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge,
					tool.Errorf(tool.KindValidation, "request body exceeds %d bytes", maxErr.Limit))
				return
			}
			writeError(w, http.StatusBadRequest,
				tool.Errorf(tool.KindValidation, "request body is not a JSON object"))
			return
		}
	}

	result, err := s.dispatcher.Call(r.Context(), name, args)
	if err != nil {
		writeError(w, statusForKind(tool.KindOf(err)), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusForKind maps the error taxonomy onto HTTP statuses.
func statusForKind(kind tool.Kind) int {
	switch kind {
	case tool.KindValidation:
		return http.StatusBadRequest
	case tool.KindAuth:
		return http.StatusUnauthorized
	case tool.KindNotFound:
		return http.StatusNotFound
	case tool.KindTransient:
		return http.StatusServiceUnavailable
	case tool.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, tool.ErrorPayload(err))
}
