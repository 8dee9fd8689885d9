package web

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

type ideaPath struct {
	IdeaID string `path:"idea_id"`
}

func (h *handlers) registerIdeas(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-idea",
		Method:        http.MethodPost,
		Path:          "/ideas",
		Summary:       "Create idea",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID       string `json:"id,omitempty"`
			Title    string `json:"title"`
			Summary  string `json:"summary"`
			Audience string `json:"audience,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body *repo.Idea `json:"body"`
	}, error) {
		idea, err := h.cfg.Repo.CreateIdea(ctx, repo.Idea{
			ID:       input.Body.ID,
			Title:    input.Body.Title,
			Summary:  input.Body.Summary,
			Audience: input.Body.Audience,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *repo.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}",
		Summary:     "Get idea",
	}, func(ctx context.Context, input *ideaPath) (*struct {
		Body *repo.Idea `json:"body"`
	}, error) {
		idea, err := h.cfg.Repo.GetIdea(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *repo.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}/documents",
		Summary:     "List foundation documents",
	}, func(ctx context.Context, input *ideaPath) (*struct {
		Body []repo.Document `json:"body"`
	}, error) {
		docs, err := h.cfg.Repo.ListDocuments(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		if docs == nil {
			docs = []repo.Document{}
		}
		return &struct {
			Body []repo.Document `json:"body"`
		}{Body: docs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}/documents/{kind}",
		Summary:     "Get a foundation document",
	}, func(ctx context.Context, input *documentPath) (*struct {
		Body *repo.Document `json:"body"`
	}, error) {
		k, err := foundation.Parse(input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		d, err := h.cfg.Repo.GetDocument(ctx, input.IdeaID, k)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *repo.Document `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-document-chat",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}/documents/{kind}/chat",
		Summary:     "Get the editing chat history of a document",
	}, func(ctx context.Context, input *documentPath) (*struct {
		Body []repo.ChatTurn `json:"body"`
	}, error) {
		k, err := foundation.Parse(input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		turns, err := h.cfg.Repo.GetChat(ctx, input.IdeaID, k)
		if err != nil {
			return nil, handleError(err)
		}
		if turns == nil {
			turns = []repo.ChatTurn{}
		}
		return &struct {
			Body []repo.ChatTurn `json:"body"`
		}{Body: turns}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-document-chat",
		Method:        http.MethodDelete,
		Path:          "/ideas/{idea_id}/documents/{kind}/chat",
		Summary:       "Forget the editing chat history of a document",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *documentPath) (*struct{}, error) {
		k, err := foundation.Parse(input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		if err := h.cfg.Repo.ClearChat(ctx, input.IdeaID, k); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-calendar",
		Method:      http.MethodGet,
		Path:        "/calendars/{calendar_id}",
		Summary:     "Get a content calendar",
	}, func(ctx context.Context, input *struct {
		CalendarID string `path:"calendar_id"`
	}) (*struct {
		Body *repo.Calendar `json:"body"`
	}, error) {
		c, err := h.cfg.Repo.GetCalendar(ctx, input.CalendarID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *repo.Calendar `json:"body"`
		}{Body: c}, nil
	})
}

type documentPath struct {
	IdeaID string `path:"idea_id"`
	Kind   string `path:"kind"`
}
