package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucasnoah/ideaforge/internal/config"
	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/prompt"
)

const reviewerSystem = "You are a demanding reviewer on a product launch team. Reply with JSON only."

// Reviewer runs the advisor panel over a draft.
type Reviewer struct {
	llm          llm.Completer
	advisors     []config.Advisor
	prompts      *PromptCache
	templatesDir string
}

// NewReviewer creates a Reviewer for the given advisors.
func NewReviewer(c llm.Completer, advisors []config.Advisor, prompts *PromptCache, templatesDir string) *Reviewer {
	if prompts == nil {
		prompts = NewPromptCache("")
	}
	return &Reviewer{llm: c, advisors: advisors, prompts: prompts, templatesDir: templatesDir}
}

// Advisors returns the configured panel.
func (r *Reviewer) Advisors() []config.Advisor {
	return r.advisors
}

// Review asks every advisor to critique draft, in panel order. A completion
// service error aborts the round; an unreadable reply does not.
func (r *Reviewer) Review(ctx context.Context, kind, draft string) ([]Critique, error) {
	critiques := make([]Critique, 0, len(r.advisors))
	for _, a := range r.advisors {
		persona, err := r.prompts.GetOrLoad(a.ID)
		if err != nil {
			return nil, err
		}
		name := a.Name
		if name == "" {
			name = a.ID
		}
		text, err := prompt.LoadAndRender(prompt.AdvisorReview, r.templatesDir, prompt.Vars{
			"advisor_name":   name,
			"advisor_focus":  a.Focus,
			"advisor_prompt": persona,
			"document_kind":  kind,
			"draft":          draft,
		})
		if err != nil {
			return nil, err
		}

		reply, err := r.llm.Stream(ctx, llm.Request{System: reviewerSystem, Prompt: text}, nil)
		if err != nil {
			return nil, fmt.Errorf("advisor %s: %w", a.ID, err)
		}
		critiques = append(critiques, ParseCritique(a.ID, name, reply))
	}
	return critiques, nil
}

type critiqueReply struct {
	Score  *float64 `json:"score"`
	Issues []Issue  `json:"issues"`
}

// ParseCritique extracts the JSON critique from an advisor reply. Replies
// that cannot be read become a zero score with one medium issue, so a broken
// advisor slows approval down without blocking it forever.
func ParseCritique(advisorID, name, reply string) Critique {
	c := Critique{AdvisorID: advisorID, Name: name}

	var parsed critiqueReply
	body := extractObject(reply)
	if body == "" {
		c.Issues = []Issue{{Severity: SeverityMedium, Description: "review reply contained no JSON object"}}
		return c
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || parsed.Score == nil {
		c.Issues = []Issue{{Severity: SeverityMedium, Description: "review reply could not be parsed"}}
		return c
	}

	c.Score = clamp(*parsed.Score, 0, 10)
	for _, is := range parsed.Issues {
		desc := strings.TrimSpace(is.Description)
		if desc == "" {
			continue
		}
		c.Issues = append(c.Issues, Issue{Severity: normalizeSeverity(is.Severity), Description: desc})
	}
	return c
}

// extractObject returns the outermost {...} span, tolerating code fences and
// chatter around the JSON.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func normalizeSeverity(s Severity) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(string(s)))) {
	case SeverityHigh, "critical", "blocker":
		return SeverityHigh
	case SeverityLow, "minor", "nit":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
