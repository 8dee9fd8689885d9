package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/orchestrator"
	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

type chatRequest struct {
	Message string `json:"message"`
}

// handleDocumentChat serves a Server-Sent Events stream for one document
// editing turn. Chat text arrives as "chat" events; the turn ends with a
// "document" event carrying the new stored version, a "done" event when the
// document was not changed, or an "error" event. An interrupted reply never
// touches the stored document. While the idea's foundation run is queued or
// running the request is refused with 409.
func (h *handlers) handleDocumentChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ideaID := chi.URLParam(r, "idea_id")
	k, err := foundation.Parse(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, handleError(err))
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil))
		return
	}
	if h.cfg.Runner == nil {
		writeError(w, handleError(errNotConfigured))
		return
	}
	if _, err := h.cfg.Repo.GetIdea(ctx, ideaID); err != nil {
		writeError(w, handleError(err))
		return
	}
	if err := h.foundationIdle(ctx, ideaID); err != nil {
		writeError(w, handleError(err))
		return
	}

	var current string
	doc, err := h.cfg.Repo.GetDocument(ctx, ideaID, k)
	switch {
	case err == nil:
		current = doc.Content
	case !errors.Is(err, kv.ErrNotFound):
		writeError(w, handleError(err))
		return
	}
	history, err := h.cfg.Repo.GetChat(ctx, ideaID, k)
	if err != nil {
		writeError(w, handleError(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present
	w.WriteHeader(http.StatusOK)

	send := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	res, err := h.cfg.Runner.Chat(ctx, stage.ChatRequest{
		DocumentKind: string(k),
		Document:     current,
		History:      formatHistory(history),
		Message:      req.Message,
	}, func(text string) error {
		return send("chat", map[string]string{"text": text})
	})
	if err != nil {
		_ = send("error", map[string]string{"message": err.Error()})
		return
	}

	turns := []repo.ChatTurn{{Role: "user", Text: req.Message}, {Role: "assistant", Text: res.Chat}}
	if err := h.cfg.Repo.AppendChat(ctx, ideaID, k, h.cfg.ChatTurns, turns...); err != nil {
		_ = send("error", map[string]string{"message": err.Error()})
		return
	}
	if !res.HasDocument {
		_ = send("done", map[string]string{})
		return
	}
	// A foundation run may have started while the reply streamed.
	if err := h.foundationIdle(ctx, ideaID); err != nil {
		_ = send("error", map[string]string{"message": err.Error()})
		return
	}
	saved, err := h.cfg.Repo.SaveDocumentVersion(ctx, ideaID, k, res.Document)
	if err != nil {
		_ = send("error", map[string]string{"message": err.Error()})
		return
	}
	if h.cfg.Events != nil {
		_ = h.cfg.Events.LogPipelineEvent("foundation:"+ideaID, "document_edited", string(k), fmt.Sprintf("v%d", saved.Version))
	}
	_ = send("document", saved)
}

// foundationIdle returns an orchestrator.ErrRunning error while the idea's
// foundation run is queued or holds its lease.
func (h *handlers) foundationIdle(ctx context.Context, ideaID string) error {
	subject := orchestrator.Subject(orchestrator.KindFoundation, ideaID)
	busy := h.cfg.Queue != nil && h.cfg.Queue.Busy(subject)
	if !busy && h.cfg.Scheduler != nil {
		leased, err := h.cfg.Scheduler.Store().Leased(ctx, subject)
		if err != nil {
			return err
		}
		busy = leased
	}
	if busy {
		return fmt.Errorf("%s: %w", subject, orchestrator.ErrRunning)
	}
	return nil
}

func formatHistory(turns []repo.ChatTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
	}
	return strings.TrimSpace(sb.String())
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var se interface{ GetStatus() int }
	if errors.As(err, &se) {
		status = se.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
