package web

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lucasnoah/ideaforge/internal/publish"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

// PublishResponse reports what a publish call did. Record is nil when
// nothing was ready.
type PublishResponse struct {
	Published        bool                `json:"published"`
	AlreadyPublished bool                `json:"already_published"`
	Record           *repo.PublishRecord `json:"record,omitempty"`
}

func publishResponse(r *publish.Result) PublishResponse {
	if r == nil {
		return PublishResponse{}
	}
	return PublishResponse{
		Published:        !r.AlreadyPublished,
		AlreadyPublished: r.AlreadyPublished,
		Record:           r.Record,
	}
}

func (h *handlers) registerPublish(api huma.API) {
	errs := []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable}

	huma.Register(api, huma.Operation{
		OperationID: "publish-next",
		Method:      http.MethodPost,
		Path:        "/publish/next",
		Summary:     "Publish the next finished piece",
		Errors:      errs,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PublishResponse `json:"body"`
	}, error) {
		if h.cfg.Publisher == nil {
			return nil, handleError(publish.ErrNotConfigured)
		}
		res, err := h.cfg.Publisher.PublishNext(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PublishResponse `json:"body"`
		}{Body: publishResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-piece",
		Method:      http.MethodPost,
		Path:        "/calendars/{calendar_id}/pieces/{piece_id}/publish",
		Summary:     "Publish one piece; a no-op when it is already published",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		CalendarID string `path:"calendar_id"`
		PieceID    string `path:"piece_id"`
	}) (*struct {
		Body PublishResponse `json:"body"`
	}, error) {
		if h.cfg.Publisher == nil {
			return nil, handleError(publish.ErrNotConfigured)
		}
		res, err := h.cfg.Publisher.Publish(ctx, input.CalendarID, input.PieceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PublishResponse `json:"body"`
		}{Body: publishResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-publish-records",
		Method:      http.MethodGet,
		Path:        "/publish/records",
		Summary:     "List publish records, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []repo.PublishRecord `json:"body"`
	}, error) {
		recs, err := h.cfg.Repo.ListPublishRecords(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if recs == nil {
			recs = []repo.PublishRecord{}
		}
		return &struct {
			Body []repo.PublishRecord `json:"body"`
		}{Body: recs}, nil
	})
}

func (h *handlers) registerEvents(api huma.API) {
	type event struct {
		ID        int    `json:"id"`
		Subject   string `json:"subject"`
		Event     string `json:"event"`
		Item      string `json:"item,omitempty"`
		Detail    string `json:"detail,omitempty"`
		Timestamp string `json:"timestamp"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List pipeline events, newest first",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Subject string `query:"subject"`
		Limit   int    `query:"limit" default:"50" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body []event `json:"body"`
	}, error) {
		if h.cfg.Events == nil {
			return nil, handleError(errNotConfigured)
		}
		rows, err := h.cfg.Events.ListPipelineEvents(input.Subject, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]event, len(rows))
		for i, r := range rows {
			out[i] = event{ID: r.ID, Subject: r.Subject, Event: r.Event, Item: r.Item, Detail: r.Detail, Timestamp: r.Timestamp}
		}
		return &struct {
			Body []event `json:"body"`
		}{Body: out}, nil
	})
}
