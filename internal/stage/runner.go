// Package stage runs single generative steps: one completion call, parsed and
// classified as completed, paused or failed.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/prompt"
	"github.com/lucasnoah/ideaforge/internal/stream"
)

// ErrNoDocument is returned when a reply that must carry a document has none.
var ErrNoDocument = errors.New("reply contained no document")

// SystemPrompt frames every generation call.
const SystemPrompt = "You are a senior product strategist and marketer helping a founder take an idea to launch. " +
	"Be concrete, specific to the idea, and never pad."

// OutcomeKind classifies a step result.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomePaused    OutcomeKind = "paused"
	OutcomeFailed    OutcomeKind = "failed"
)

// Step describes one generation call.
type Step struct {
	Subject        string
	ItemID         string
	Template       string
	Vars           prompt.Vars
	ExpectDocument bool // reply must carry an <updated_document> block
}

// Outcome is the typed result of Run. Pause is a normal result, not an error.
type Outcome struct {
	Kind     OutcomeKind
	Content  string // document (or whole reply when no document is expected)
	Chat     string // conversational text around the document
	Err      error  // set when Kind is OutcomeFailed
	Duration time.Duration
}

// Runner executes steps against the completion service.
type Runner struct {
	llm          llm.Completer
	templatesDir string
	budget       *Budget
	progress     io.Writer // live progress output; nil = silent
}

// NewRunner creates a runner. templatesDir may be empty to use built-in
// templates only.
func NewRunner(c llm.Completer, templatesDir string) *Runner {
	return &Runner{llm: c, templatesDir: templatesDir}
}

// SetBudget installs the invocation budget checked before every step.
func (r *Runner) SetBudget(b *Budget) {
	r.budget = b
}

// Budget returns the installed budget, possibly nil.
func (r *Runner) Budget() *Budget {
	return r.budget
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.progress != nil {
		fmt.Fprintf(r.progress, "  → "+format+"\n", args...)
	}
}

// ShouldPause reports whether the budget or the context says to stop before
// starting another step.
func (r *Runner) ShouldPause(ctx context.Context) bool {
	return ctx.Err() != nil || r.budget.ShouldPause()
}

// Run renders the step's prompt, makes one completion call and parses the
// reply. It checks the budget first; a step that has started always runs to
// completion or failure.
func (r *Runner) Run(ctx context.Context, step Step) Outcome {
	if r.ShouldPause(ctx) {
		r.logf("%s: pausing before %s (budget)", step.Subject, step.ItemID)
		return Outcome{Kind: OutcomePaused}
	}

	start := time.Now()
	rendered, err := prompt.LoadAndRender(step.Template, r.templatesDir, step.Vars)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("render %s: %w", step.Template, err)}
	}
	r.logf("%s: generating %s (%d byte prompt)", step.Subject, step.ItemID, len(rendered))

	req := llm.Request{System: SystemPrompt, Prompt: rendered}
	if !step.ExpectDocument {
		reply, err := r.llm.Stream(ctx, req, nil)
		if err != nil {
			return r.callFailed(ctx, step, err)
		}
		return Outcome{Kind: OutcomeCompleted, Content: strings.TrimSpace(reply), Duration: time.Since(start)}
	}

	p := stream.NewParser()
	var chat strings.Builder
	var doc string
	var hasDoc bool
	_, err = r.llm.Stream(ctx, req, func(chunk string) error {
		out := p.Feed(chunk)
		chat.WriteString(out.Chat)
		if out.HasDocument {
			doc, hasDoc = out.Document, true
		}
		return nil
	})
	if err != nil {
		return r.callFailed(ctx, step, err)
	}
	if err := p.Finish(); err != nil {
		return Outcome{Kind: OutcomeFailed, Chat: chat.String(), Err: err, Duration: time.Since(start)}
	}
	if !hasDoc || strings.TrimSpace(doc) == "" {
		return Outcome{Kind: OutcomeFailed, Chat: chat.String(), Err: ErrNoDocument, Duration: time.Since(start)}
	}

	d := time.Since(start)
	r.logf("%s: %s done (%s, %d bytes)", step.Subject, step.ItemID, d.Round(time.Millisecond), len(doc))
	return Outcome{Kind: OutcomeCompleted, Content: strings.TrimSpace(doc), Chat: chat.String(), Duration: d}
}

// callFailed classifies a completion error. A cancelled context means the
// worker is shutting down, so the item is left for the next invocation.
func (r *Runner) callFailed(ctx context.Context, step Step, err error) Outcome {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		r.logf("%s: %s interrupted by shutdown", step.Subject, step.ItemID)
		return Outcome{Kind: OutcomePaused}
	}
	return Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("generate %s: %w", step.ItemID, err)}
}
