package web

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lucasnoah/ideaforge/internal/canvas"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

type canvasBody struct {
	Body *repo.Canvas `json:"body"`
}

type assumptionPath struct {
	IdeaID string `path:"idea_id"`
	Type   string `path:"type" enum:"demand,reachability,engagement,willingness-to-pay,differentiation"`
}

var canvasErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusServiceUnavailable,
}

func (h *handlers) engine() (*canvas.Engine, error) {
	if h.cfg.Canvas == nil {
		return nil, handleError(errNotConfigured)
	}
	return h.cfg.Canvas, nil
}

func (h *handlers) registerCanvas(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-canvas",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}/canvas",
		Summary:     "Get the validation canvas",
		Errors:      canvasErrors,
	}, func(ctx context.Context, input *ideaPath) (*canvasBody, error) {
		e, err := h.engine()
		if err != nil {
			return nil, err
		}
		c, err := e.Get(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &canvasBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-canvas",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/canvas",
		Summary:     "Generate the validation canvas from the idea's analysis",
		Errors:      canvasErrors,
	}, func(ctx context.Context, input *ideaPath) (*canvasBody, error) {
		e, err := h.engine()
		if err != nil {
			return nil, err
		}
		c, err := e.Generate(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &canvasBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-pivots",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/canvas/assumptions/{type}/pivots",
		Summary:     "Suggest ranked pivots for an assumption",
		Errors:      canvasErrors,
	}, func(ctx context.Context, input *assumptionPath) (*struct {
		Body []repo.PivotSuggestion `json:"body"`
	}, error) {
		e, err := h.engine()
		if err != nil {
			return nil, err
		}
		s, err := e.SuggestPivots(ctx, input.IdeaID, repo.AssumptionType(input.Type))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []repo.PivotSuggestion `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-pivot",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/canvas/assumptions/{type}/pivots/{index}",
		Summary:     "Apply a suggested pivot",
		Errors:      canvasErrors,
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
		Type   string `path:"type" enum:"demand,reachability,engagement,willingness-to-pay,differentiation"`
		Index  int    `path:"index"`
	}) (*canvasBody, error) {
		e, err := h.engine()
		if err != nil {
			return nil, err
		}
		c, err := e.ApplyPivot(ctx, input.IdeaID, repo.AssumptionType(input.Type), input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		return &canvasBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-evidence",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/canvas/assumptions/{type}/evidence",
		Summary:     "Record evidence against an assumption",
		Errors:      canvasErrors,
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
		Type   string `path:"type" enum:"demand,reachability,engagement,willingness-to-pay,differentiation"`
		Body   struct {
			Note   string  `json:"note"`
			Metric string  `json:"metric,omitempty"`
			Value  float64 `json:"value,omitempty"`
		} `json:"body"`
	}) (*canvasBody, error) {
		e, err := h.engine()
		if err != nil {
			return nil, err
		}
		c, err := e.AddEvidence(ctx, input.IdeaID, repo.AssumptionType(input.Type), repo.Evidence{
			Note:   input.Body.Note,
			Metric: input.Body.Metric,
			Value:  input.Body.Value,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &canvasBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-canvas",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/canvas/evaluate",
		Summary:     "Evaluate assumptions against fresh metrics",
		Errors:      canvasErrors,
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
		Body   struct {
			Metrics map[string]float64 `json:"metrics"`
		} `json:"body"`
	}) (*struct {
		Body []canvas.Change `json:"body"`
	}, error) {
		e, err := h.engine()
		if err != nil {
			return nil, err
		}
		changes, err := e.Evaluate(ctx, input.IdeaID, input.Body.Metrics)
		if err != nil {
			return nil, handleError(err)
		}
		if changes == nil {
			changes = []canvas.Change{}
		}
		return &struct {
			Body []canvas.Change `json:"body"`
		}{Body: changes}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "kill-canvas",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/canvas/kill",
		Summary:     "Kill the idea",
		Errors:      canvasErrors,
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
		Body   struct {
			Reason string `json:"reason" minLength:"1"`
		} `json:"body"`
	}) (*canvasBody, error) {
		e, err := h.engine()
		if err != nil {
			return nil, err
		}
		c, err := e.Kill(ctx, input.IdeaID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &canvasBody{Body: c}, nil
	})
}
