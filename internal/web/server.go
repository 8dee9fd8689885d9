// Package web exposes the trigger and poll API over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lucasnoah/ideaforge/internal/canvas"
	"github.com/lucasnoah/ideaforge/internal/db"
	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/orchestrator"
	"github.com/lucasnoah/ideaforge/internal/publish"
	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/stage"
	"github.com/lucasnoah/ideaforge/internal/worker"
)

// EventLog reads and writes the audit log. *db.DB satisfies it.
type EventLog interface {
	LogPipelineEvent(subject, event, item, detail string) error
	ListPipelineEvents(subject string, limit int) ([]db.PipelineEvent, error)
}

// Config wires the API to the core. Canvas, Publisher, Runner and Events may
// be nil; their endpoints then answer 503.
type Config struct {
	Repo      *repo.Repo
	Scheduler *orchestrator.Scheduler
	Queue     *worker.Queue
	Canvas    *canvas.Engine
	Publisher *publish.Publisher
	Runner    *stage.Runner
	Events    EventLog
	BasePath  string
	// ChatTurns caps the stored document chat history.
	ChatTurns int
	Version   string
}

// errNotConfigured is answered with 503.
var errNotConfigured = errors.New("not configured")

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"idea i1: not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns the HTTP handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Repo == nil || cfg.Scheduler == nil || cfg.Queue == nil {
		return nil, errors.New("web: repo, scheduler and queue are required")
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/v1"
	}
	if !strings.HasPrefix(cfg.BasePath, "/") {
		cfg.BasePath = "/" + cfg.BasePath
	}
	if cfg.ChatTurns <= 0 {
		cfg.ChatTurns = 40
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	hcfg := huma.DefaultConfig("ideaforge API", cfg.Version)
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, cfg.BasePath)

	h := &handlers{cfg: cfg}
	registerHealth(group, cfg.Version)
	h.registerPipelines(group)
	h.registerIdeas(group)
	h.registerCanvas(group)
	h.registerPublish(group)
	h.registerEvents(group)
	router.Post(cfg.BasePath+"/ideas/{idea_id}/documents/{kind}/chat", h.handleDocumentChat)

	return router, nil
}

type handlers struct {
	cfg Config
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	msg := err.Error()
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, kv.ErrNotConfigured),
		errors.Is(err, llm.ErrNotConfigured),
		errors.Is(err, publish.ErrNotConfigured),
		errors.Is(err, errNotConfigured):
		return newAPIError(http.StatusServiceUnavailable, "not_configured", msg, nil)
	case errors.Is(err, orchestrator.ErrRunning):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, canvas.ErrCanvasKilled):
		return newAPIError(http.StatusConflict, "canvas_killed", msg, nil)
	case errors.Is(err, publish.ErrNotReady):
		return newAPIError(http.StatusConflict, "not_ready", msg, nil)
	case errors.Is(err, orchestrator.ErrUnknownItem),
		errors.Is(err, foundation.ErrUnknownKind),
		errors.Is(err, canvas.ErrUnknownAssumption),
		errors.Is(err, canvas.ErrPivotOutOfRange):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "not_configured"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API, version string) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok", "version": version}}, nil
	})
}

// Serve runs h on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
