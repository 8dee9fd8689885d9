package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/orchestrator"
	"github.com/lucasnoah/ideaforge/internal/pipeline"
	"github.com/lucasnoah/ideaforge/internal/worker"
)

// TriggerResponse is returned by every run trigger. A trigger for a subject
// that is already queued or running is accepted as a no-op.
type TriggerResponse struct {
	Subject        string             `json:"subject"`
	Accepted       bool               `json:"accepted"`
	AlreadyRunning bool               `json:"already_running"`
	Progress       *pipeline.Progress `json:"progress"`
}

type subjectPath struct {
	Kind string `path:"kind" enum:"foundation,content,research"`
	ID   string `path:"id"`
}

func (p subjectPath) subject() string { return orchestrator.Subject(p.Kind, p.ID) }

var triggerErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusServiceUnavailable,
	http.StatusInternalServerError,
}

func (h *handlers) registerPipelines(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "run-foundation",
		Method:        http.MethodPost,
		Path:          "/ideas/{idea_id}/foundation/runs",
		Summary:       "Generate foundation documents",
		DefaultStatus: http.StatusAccepted,
		Errors:        triggerErrors,
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
		Body   struct {
			Kinds []string `json:"kinds,omitempty" doc:"Document kinds; empty means all"`
			Fresh bool     `json:"fresh,omitempty" doc:"Reset progress before running"`
		} `required:"false"`
	}) (*struct {
		Body TriggerResponse `json:"body"`
	}, error) {
		if _, err := h.cfg.Repo.GetIdea(ctx, input.IdeaID); err != nil {
			return nil, handleError(err)
		}
		kinds, err := foundation.ParseList(input.Body.Kinds)
		if err != nil {
			return nil, handleError(err)
		}
		ideaID := input.IdeaID
		resp, err := h.trigger(ctx, orchestrator.Subject(orchestrator.KindFoundation, ideaID), input.Body.Fresh,
			func(ctx context.Context) error {
				_, err := h.cfg.Scheduler.RunFoundation(ctx, ideaID, kinds)
				return err
			})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TriggerResponse `json:"body"`
		}{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "run-content",
		Method:        http.MethodPost,
		Path:          "/calendars/{calendar_id}/runs",
		Summary:       "Generate content pieces",
		DefaultStatus: http.StatusAccepted,
		Errors:        triggerErrors,
	}, func(ctx context.Context, input *struct {
		CalendarID string `path:"calendar_id"`
		Body       struct {
			PieceIDs []string `json:"piece_ids,omitempty" doc:"Pieces to generate; empty means every unfinished piece"`
			Fresh    bool     `json:"fresh,omitempty"`
		} `required:"false"`
	}) (*struct {
		Body TriggerResponse `json:"body"`
	}, error) {
		cal, err := h.cfg.Repo.GetCalendar(ctx, input.CalendarID)
		if err != nil {
			return nil, handleError(err)
		}
		for _, id := range input.Body.PieceIDs {
			if cal.Piece(id) == nil {
				return nil, handleError(fmt.Errorf("%w: piece %q", orchestrator.ErrUnknownItem, id))
			}
		}
		calID, pieces := input.CalendarID, input.Body.PieceIDs
		resp, err := h.trigger(ctx, orchestrator.Subject(orchestrator.KindContent, calID), input.Body.Fresh,
			func(ctx context.Context) error {
				_, err := h.cfg.Scheduler.RunContent(ctx, calID, pieces)
				return err
			})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TriggerResponse `json:"body"`
		}{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "run-research",
		Method:        http.MethodPost,
		Path:          "/ideas/{idea_id}/research/runs",
		Summary:       "Run the research pipeline",
		DefaultStatus: http.StatusAccepted,
		Errors:        triggerErrors,
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
		Body   struct {
			Fresh bool `json:"fresh,omitempty"`
		} `required:"false"`
	}) (*struct {
		Body TriggerResponse `json:"body"`
	}, error) {
		if _, err := h.cfg.Repo.GetIdea(ctx, input.IdeaID); err != nil {
			return nil, handleError(err)
		}
		ideaID := input.IdeaID
		resp, err := h.trigger(ctx, orchestrator.Subject(orchestrator.KindResearch, ideaID), input.Body.Fresh,
			func(ctx context.Context) error {
				_, err := h.cfg.Scheduler.RunResearch(ctx, ideaID)
				return err
			})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TriggerResponse `json:"body"`
		}{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/pipelines/{kind}/{id}",
		Summary:     "Poll pipeline progress",
		Description: "Never 404s: a subject with no record reports status not_started.",
	}, func(ctx context.Context, input *subjectPath) (*struct {
		Body *pipeline.Progress `json:"body"`
	}, error) {
		p, err := h.cfg.Scheduler.Status(ctx, input.subject())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *pipeline.Progress `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pipelines",
		Method:      http.MethodGet,
		Path:        "/pipelines",
		Summary:     "List pipeline runs",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"Filter by status, e.g. paused"`
	}) (*struct {
		Body []pipeline.Progress `json:"body"`
	}, error) {
		list, err := h.cfg.Scheduler.Store().List(ctx, pipeline.Status(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		if list == nil {
			list = []pipeline.Progress{}
		}
		return &struct {
			Body []pipeline.Progress `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resume-pipeline",
		Method:        http.MethodPost,
		Path:          "/pipelines/{kind}/{id}/resume",
		Summary:       "Resume a paused pipeline",
		DefaultStatus: http.StatusAccepted,
		Errors:        triggerErrors,
	}, func(ctx context.Context, input *subjectPath) (*struct {
		Body TriggerResponse `json:"body"`
	}, error) {
		subject := input.subject()
		if _, err := h.cfg.Scheduler.Store().Get(ctx, subject); err != nil {
			return nil, handleError(err)
		}
		resp, err := h.trigger(ctx, subject, false, func(ctx context.Context) error {
			_, err := h.cfg.Scheduler.Resume(ctx, subject)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TriggerResponse `json:"body"`
		}{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reset-pipeline",
		Method:        http.MethodDelete,
		Path:          "/pipelines/{kind}/{id}",
		Summary:       "Clear progress so the next run starts fresh",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusConflict},
	}, func(ctx context.Context, input *subjectPath) (*struct{}, error) {
		subject := input.subject()
		if h.cfg.Queue.Busy(subject) {
			return nil, newAPIError(http.StatusConflict, "conflict", subject+" is running", nil)
		}
		if err := h.cfg.Scheduler.Reset(ctx, subject); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// trigger queues run for subject and answers with the current progress.
func (h *handlers) trigger(ctx context.Context, subject string, fresh bool, run func(context.Context) error) (*TriggerResponse, error) {
	if fresh && !h.cfg.Queue.Busy(subject) {
		// Another process holding the lease makes this trigger a no-op.
		if err := h.cfg.Scheduler.Reset(ctx, subject); err != nil && !errors.Is(err, orchestrator.ErrRunning) {
			return nil, err
		}
	}
	accepted, err := h.cfg.Queue.Submit(worker.Task{Subject: subject, Run: run})
	if err != nil {
		return nil, err
	}
	p, err := h.cfg.Scheduler.Status(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &TriggerResponse{
		Subject:        subject,
		Accepted:       accepted,
		AlreadyRunning: !accepted,
		Progress:       p,
	}, nil
}
