package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/nablmesh/agent"
	"github.com/hupe1980/nablmesh/core"
	"github.com/hupe1980/nablmesh/logging"
)

// DefaultRequestTimeout bounds a single /chat request.
const DefaultRequestTimeout = 5 * time.Minute

const maxBodyBytes = 1 << 20

// Submitter runs one user message to completion.
type Submitter interface {
	Submit(ctx context.Context, userMessage string) (*agent.Result, error)
}

// Options configures a Server.
type Options struct {
	// Framework is reported by /health.
	Framework string
	// IncludeToolResults adds tool_results to /chat responses.
	IncludeToolResults bool
	RequestTimeout     time.Duration
	CORSOrigins        []string
	Logger             logging.Logger
}

// Server routes HTTP requests to a Submitter.
type Server struct {
	submitter Submitter
	router    *mux.Router
	handler   http.Handler
	opts      Options
}

// New creates a Server. Options are applied over the defaults.
func New(submitter Submitter, optFns ...func(o *Options)) *Server {
	opts := Options{
		Framework:          "agent",
		IncludeToolResults: true,
		RequestTimeout:     DefaultRequestTimeout,
		CORSOrigins:        []string{"*"},
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		submitter: submitter,
		router:    mux.NewRouter(),
		opts:      opts,
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type", requestIDHeader},
	})

	s.router.Use(requestID, s.accessLog, c.Handler)
	s.registerRoutes()

	s.handler = otelhttp.NewHandler(s.router, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

type chatResponse struct {
	Response    string            `json:"response"`
	ToolResults []core.ToolResult `json:"tool_results"`
}

type textResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Framework string `json:"framework"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := logging.With(s.opts.Logger, "request_id", RequestIDFromContext(r.Context()))

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	logger.Debug("server.chat.start", "user_id", req.UserID, "message_len", len(req.Message))

	res, err := s.submitter.Submit(ctx, req.Message)
	if err != nil {
		status, msg := classify(err)
		logger.Error("server.chat.error", "status", status, "error", err.Error())
		s.writeError(w, status, msg)
		return
	}

	if !s.opts.IncludeToolResults {
		s.writeJSON(w, http.StatusOK, textResponse{Response: res.FinalText})
		return
	}

	results := res.ToolResults
	if results == nil {
		results = []core.ToolResult{}
	}

	s.writeJSON(w, http.StatusOK, chatResponse{Response: res.FinalText, ToolResults: results})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Framework: s.opts.Framework})
}

// classify maps a Submit error onto a status code and client message. A
// model timeout is a *agent.ModelError wrapping context.DeadlineExceeded, so
// ModelError is checked before the context errors.
func classify(err error) (int, string) {
	var modelErr *agent.ModelError
	if errors.As(err, &modelErr) {
		return http.StatusBadGateway, modelErr.Error()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "request cancelled"
	}

	var loopErr *agent.LoopExceededError
	if errors.As(err, &loopErr) {
		return http.StatusInternalServerError, loopErr.Error()
	}

	return http.StatusInternalServerError, "internal server error"
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.opts.Logger.Warn("server.write.error", "error", err.Error())
	}
}
