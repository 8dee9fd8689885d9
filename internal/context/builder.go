package context

import (
	stdctx "context"
	"errors"
	"fmt"
	"strings"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/prompt"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

// FidelityMode controls how much prerequisite material is included.
type FidelityMode string

const (
	// ModeFull includes every transitive prerequisite document.
	ModeFull FidelityMode = "full"
	// ModeDirect includes only the direct prerequisites.
	ModeDirect FidelityMode = "direct"
	// ModeMinimal includes the idea and analysis only.
	ModeMinimal FidelityMode = "minimal"
)

// ValidModes lists all valid fidelity modes.
var ValidModes = []FidelityMode{ModeFull, ModeDirect, ModeMinimal}

// IsValidMode checks whether a string is a valid fidelity mode.
func IsValidMode(s string) bool {
	for _, m := range ValidModes {
		if string(m) == s {
			return true
		}
	}
	return false
}

// maxDocChars caps each document pasted into a prompt.
const maxDocChars = 12000

// Builder assembles template variables for generation steps from persisted
// ideas, analyses and documents.
type Builder struct {
	repo *repo.Repo
	mode FidelityMode
}

// NewBuilder creates a Builder. An invalid mode falls back to ModeDirect.
func NewBuilder(r *repo.Repo, mode FidelityMode) *Builder {
	if !IsValidMode(string(mode)) {
		mode = ModeDirect
	}
	return &Builder{repo: r, mode: mode}
}

// BuildResult holds the assembled context.
type BuildResult struct {
	Vars     prompt.Vars
	Template string
	// Missing lists prerequisites that have no complete version.
	Missing []foundation.Kind
}

// Foundation builds the context for generating document kind k. Missing
// direct prerequisites are reported in Missing, never silently skipped.
func (b *Builder) Foundation(ctx stdctx.Context, ideaID string, k foundation.Kind) (*BuildResult, error) {
	vars, err := b.ideaVars(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{Vars: vars, Template: prompt.Foundation(string(k))}
	for _, p := range foundation.Prerequisites(k) {
		d, err := b.repo.GetDocument(ctx, ideaID, p)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return nil, err
		}
		if !d.Available() {
			res.Missing = append(res.Missing, p)
		}
	}

	var include []foundation.Kind
	switch b.mode {
	case ModeFull:
		include = foundation.Closure(k)
	case ModeDirect:
		include = foundation.Prerequisites(k)
	}
	if docs, err := b.documentSections(ctx, ideaID, include); err != nil {
		return nil, err
	} else if docs != "" {
		vars["prerequisites"] = docs
	}
	return res, nil
}

// Piece builds the context for generating a content piece. Brand voice and
// positioning are included when they exist.
func (b *Builder) Piece(ctx stdctx.Context, cal *repo.Calendar, piece *repo.Piece) (*BuildResult, error) {
	vars, err := b.ideaVars(ctx, cal.IdeaID)
	if err != nil {
		return nil, err
	}
	vars["piece_title"] = piece.Title
	vars["piece_type"] = piece.Type
	if piece.Type == "" {
		vars["piece_type"] = "article"
	}
	if piece.Brief != "" {
		vars["piece_brief"] = piece.Brief
	}
	for k, name := range map[foundation.Kind]string{foundation.BrandVoice: "brand_voice", foundation.Positioning: "positioning"} {
		d, err := b.repo.GetDocument(ctx, cal.IdeaID, k)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return nil, err
		}
		if d.Available() {
			vars[name] = truncate(d.Content)
		}
	}
	return &BuildResult{Vars: vars, Template: prompt.ContentPiece}, nil
}

// Finding is the output of one completed research step.
type Finding struct {
	Step string `json:"step"`
	Text string `json:"text"`
}

// Research builds the context for research step, with earlier findings.
func (b *Builder) Research(ctx stdctx.Context, ideaID, step string, findings []Finding) (*BuildResult, error) {
	idea, err := b.repo.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	vars := prompt.Vars{"idea_title": idea.Title, "idea_summary": ideaSummary(idea)}
	if len(findings) > 0 {
		var sb strings.Builder
		for _, f := range findings {
			fmt.Fprintf(&sb, "### %s\n%s\n\n", f.Step, truncate(f.Text))
		}
		vars["findings"] = strings.TrimSpace(sb.String())
	}
	return &BuildResult{Vars: vars, Template: prompt.Research(step)}, nil
}

// WithRevision returns a copy of vars carrying the editor brief and the
// draft it applies to.
func WithRevision(vars prompt.Vars, brief, previousDraft string) prompt.Vars {
	out := make(prompt.Vars, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	out["revision_feedback"] = brief
	if previousDraft != "" {
		out["previous_draft"] = truncate(previousDraft)
	}
	return out
}

// FormatAnalysis renders an analysis as Markdown for prompts.
func FormatAnalysis(a *repo.Analysis) string {
	if a == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(a.Summary)
	sb.WriteString("\n")
	if a.Market != "" {
		fmt.Fprintf(&sb, "\nMarket: %s\n", a.Market)
	}
	if a.Audience != "" {
		fmt.Fprintf(&sb, "Audience: %s\n", a.Audience)
	}
	list := func(label string, items []string) {
		if len(items) > 0 {
			fmt.Fprintf(&sb, "%s: %s\n", label, strings.Join(items, "; "))
		}
	}
	list("Competitors", a.Competitors)
	list("Channels", a.Channels)
	list("Price points", a.PricePoints)
	list("Differentiators", a.Differentiators)
	list("Risks", a.Risks)
	return strings.TrimSpace(sb.String())
}

func (b *Builder) ideaVars(ctx stdctx.Context, ideaID string) (prompt.Vars, error) {
	idea, err := b.repo.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	vars := prompt.Vars{
		"idea_title":   idea.Title,
		"idea_summary": ideaSummary(idea),
	}
	a, err := b.repo.GetAnalysis(ctx, ideaID)
	switch {
	case err == nil:
		vars["analysis"] = FormatAnalysis(a)
	case !errors.Is(err, kv.ErrNotFound):
		return nil, err
	}
	return vars, nil
}

func (b *Builder) documentSections(ctx stdctx.Context, ideaID string, kinds []foundation.Kind) (string, error) {
	var sb strings.Builder
	for _, k := range kinds {
		d, err := b.repo.GetDocument(ctx, ideaID, k)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if !d.Available() {
			continue
		}
		fmt.Fprintf(&sb, "### %s (v%d)\n%s\n\n", k, d.Version, truncate(d.Content))
	}
	return strings.TrimSpace(sb.String()), nil
}

func ideaSummary(idea *repo.Idea) string {
	s := idea.Summary
	if idea.Audience != "" {
		s += "\n\nTarget audience: " + idea.Audience
	}
	return s
}

func truncate(s string) string {
	if len(s) <= maxDocChars {
		return s
	}
	return s[:maxDocChars] + "\n\n[truncated]"
}
