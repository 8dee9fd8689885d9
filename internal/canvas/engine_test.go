package canvas

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Stream(_ context.Context, req llm.Request, _ func(string) error) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	return f.reply, f.err
}

type fakeEvents struct{ events []string }

func (f *fakeEvents) LogPipelineEvent(_, event, item, _ string) error {
	f.events = append(f.events, event+":"+item)
	return nil
}

type testEnv struct {
	repo   *repo.Repo
	llm    *fakeLLM
	events *fakeEvents
	engine *Engine
	clock  *time.Time
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	r := repo.New(kv.NewMemoryStore())
	if _, err := r.CreateIdea(ctx, repo.Idea{ID: "i1", Title: "Invoice Ninja", Summary: "Freelancers lose money on late invoices. It chases them."}); err != nil {
		t.Fatal(err)
	}
	if err := r.PutAnalysis(ctx, repo.Analysis{
		IdeaID:      "i1",
		Summary:     "Freelancers lose money on late invoices.",
		Audience:    "Freelance designers",
		Channels:    []string{"Dribbble", "newsletters"},
		PricePoints: []string{"$12/mo"},
		Competitors: []string{"FreshBooks"},
	}); err != nil {
		t.Fatal(err)
	}
	f := &fakeLLM{}
	ev := &fakeEvents{}
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine(r, f, "", ev)
	e.SetClock(func() time.Time { return clock })
	return &testEnv{repo: r, llm: f, events: ev, engine: e, clock: &clock}
}

func (env *testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	c, err := env.engine.Generate(ctx, "i1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Status != repo.CanvasActive {
		t.Errorf("Status = %s", c.Status)
	}
	if len(c.Assumptions) != 5 {
		t.Fatalf("got %d assumptions, want 5", len(c.Assumptions))
	}
	for i, a := range c.Assumptions {
		if a.Type != repo.AssumptionTypes[i] {
			t.Errorf("assumption %d type = %s", i, a.Type)
		}
		if a.Status != repo.AssumptionUntested || a.Statement == "" || a.Threshold.Metric == "" || a.LinkedStage == "" {
			t.Errorf("assumption %s = %+v", a.Type, a)
		}
	}
	if s := c.Assumption(repo.WillingnessToPay).Statement; !strings.Contains(s, "$12/mo") {
		t.Errorf("willingness-to-pay statement = %q", s)
	}

	// Existing canvas is returned untouched.
	if _, err := env.engine.Kill(ctx, "i1", "no market"); err != nil {
		t.Fatal(err)
	}
	again, err := env.engine.Generate(ctx, "i1")
	if err != nil || again.Status != repo.CanvasKilled {
		t.Errorf("second Generate = %+v, %v", again, err)
	}
}

func TestGenerateRequiresAnalysis(t *testing.T) {
	env := newEnv(t)
	if _, err := env.engine.Generate(context.Background(), "other"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSuggestAndApplyPivot(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	if _, err := env.engine.Generate(ctx, "i1"); err != nil {
		t.Fatal(err)
	}

	env.llm.reply = `Here you go:
[{"title": "Agencies", "rationale": "bigger invoices", "new_statement": "Small agencies will pay $49/mo."},
 {"title": "", "rationale": "dropped"},
 {"title": "Annual plan", "rationale": "cash up front"}]`
	got, err := env.engine.SuggestPivots(ctx, "i1", repo.WillingnessToPay)
	if err != nil {
		t.Fatalf("SuggestPivots: %v", err)
	}
	if len(got) != 2 || got[1].NewStatement != "Annual plan" {
		t.Errorf("suggestions = %+v", got)
	}
	if !strings.Contains(env.llm.prompts[0], "$12/mo") {
		t.Errorf("prompt missing assumption statement:\n%s", env.llm.prompts[0])
	}

	c, err := env.engine.ApplyPivot(ctx, "i1", repo.WillingnessToPay, 0)
	if err != nil {
		t.Fatalf("ApplyPivot: %v", err)
	}
	a := c.Assumption(repo.WillingnessToPay)
	if a.Status != repo.AssumptionPivoted || a.Statement != "Small agencies will pay $49/mo." {
		t.Errorf("assumption = %+v", a)
	}
	if len(c.PivotHistory) != 1 || c.PivotHistory[0].Chosen.Title != "Agencies" || !strings.Contains(c.PivotHistory[0].FromStatement, "$12/mo") {
		t.Errorf("history = %+v", c.PivotHistory)
	}

	for _, idx := range []int{-1, 2} {
		if _, err := env.engine.ApplyPivot(ctx, "i1", repo.WillingnessToPay, idx); !errors.Is(err, ErrPivotOutOfRange) {
			t.Errorf("ApplyPivot(%d) err = %v", idx, err)
		}
	}
	if _, err := env.engine.ApplyPivot(ctx, "i1", repo.Demand, 0); !errors.Is(err, ErrPivotOutOfRange) {
		t.Errorf("ApplyPivot without suggestions err = %v", err)
	}
	if _, err := env.engine.ApplyPivot(ctx, "i1", "vibes", 0); !errors.Is(err, ErrUnknownAssumption) {
		t.Errorf("unknown type err = %v", err)
	}
}

func TestSuggestPivotsBadReply(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	if _, err := env.engine.Generate(ctx, "i1"); err != nil {
		t.Fatal(err)
	}
	env.llm.reply = "I can't help with that."
	if _, err := env.engine.SuggestPivots(ctx, "i1", repo.Demand); err == nil {
		t.Error("expected error for reply without suggestions")
	}
	if _, err := env.repo.GetPivotSuggestions(ctx, "i1", repo.Demand); !errors.Is(err, kv.ErrNotFound) {
		t.Error("nothing should be stored for a bad reply")
	}
}

func TestKilledCanvasRejectsMutations(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	if _, err := env.engine.Generate(ctx, "i1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Kill(ctx, "i1", "  "); err == nil {
		t.Error("expected error for empty reason")
	}
	c, err := env.engine.Kill(ctx, "i1", "nobody signed up")
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if c.KilledAt == nil || c.KilledReason != "nobody signed up" {
		t.Errorf("killed canvas = %+v", c)
	}

	if _, err := env.engine.Kill(ctx, "i1", "again"); !errors.Is(err, ErrCanvasKilled) {
		t.Errorf("Kill twice err = %v", err)
	}
	if _, err := env.engine.SuggestPivots(ctx, "i1", repo.Demand); !errors.Is(err, ErrCanvasKilled) {
		t.Errorf("SuggestPivots err = %v", err)
	}
	if _, err := env.engine.ApplyPivot(ctx, "i1", repo.Demand, 0); !errors.Is(err, ErrCanvasKilled) {
		t.Errorf("ApplyPivot err = %v", err)
	}
	if _, err := env.engine.Evaluate(ctx, "i1", map[string]float64{"signups": 500}); !errors.Is(err, ErrCanvasKilled) {
		t.Errorf("Evaluate err = %v", err)
	}
	if _, err := env.engine.AddEvidence(ctx, "i1", repo.Demand, repo.Evidence{Note: "x"}); !errors.Is(err, ErrCanvasKilled) {
		t.Errorf("AddEvidence err = %v", err)
	}
	if len(env.llm.prompts) != 0 {
		t.Error("completion service must not be called for a killed canvas")
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	if _, err := env.engine.Generate(ctx, "i1"); err != nil {
		t.Fatal(err)
	}

	changes, err := env.engine.Evaluate(ctx, "i1", map[string]float64{"signups": 150, "ctr": 0.2})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(changes) != 2 || changes[0].To != repo.AssumptionTesting || changes[1].To != repo.AssumptionTesting {
		t.Errorf("first evaluate changes = %+v, want two moves to testing", changes)
	}

	// Window still open for both.
	env.advance(7 * 24 * time.Hour)
	changes, err = env.engine.Evaluate(ctx, "i1", map[string]float64{"signups": 150})
	if err != nil || len(changes) != 0 {
		t.Errorf("mid-window changes = %+v, %v", changes, err)
	}

	env.advance(8 * 24 * time.Hour)
	changes, err = env.engine.Evaluate(ctx, "i1", map[string]float64{"signups": 150, "ctr": 0.2, "preorders": 3})
	if err != nil {
		t.Fatal(err)
	}
	want := map[repo.AssumptionType]repo.AssumptionStatus{
		repo.Demand:           repo.AssumptionValidated,
		repo.Reachability:     repo.AssumptionInvalidated,
		repo.WillingnessToPay: repo.AssumptionTesting,
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v", changes)
	}
	for _, ch := range changes {
		if want[ch.Type] != ch.To {
			t.Errorf("%s -> %s, want %s", ch.Type, ch.To, want[ch.Type])
		}
	}

	c, _ := env.engine.Get(ctx, "i1")
	if n := len(c.Assumption(repo.Demand).Evidence); n != 3 {
		t.Errorf("demand evidence = %d, want 3", n)
	}

	// Settled assumptions take no more evidence.
	env.advance(24 * time.Hour)
	if _, err := env.engine.Evaluate(ctx, "i1", map[string]float64{"signups": 1}); err != nil {
		t.Fatal(err)
	}
	c, _ = env.engine.Get(ctx, "i1")
	if a := c.Assumption(repo.Demand); a.Status != repo.AssumptionValidated || len(a.Evidence) != 3 {
		t.Errorf("validated assumption changed: %+v", a)
	}
}

func TestAddEvidenceStartsTesting(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	if _, err := env.engine.Generate(ctx, "i1"); err != nil {
		t.Fatal(err)
	}
	c, err := env.engine.AddEvidence(ctx, "i1", repo.Engagement, repo.Evidence{Note: "5 interviews, 3 would return"})
	if err != nil {
		t.Fatal(err)
	}
	a := c.Assumption(repo.Engagement)
	if a.Status != repo.AssumptionTesting || a.TestingSince == nil || len(a.Evidence) != 1 {
		t.Errorf("assumption = %+v", a)
	}
}

func TestParseSuggestionsCap(t *testing.T) {
	reply := `[{"title":"a"},{"title":"b"},{"title":"c"},{"title":"d"},{"title":"e"},{"title":"f"}]`
	got, err := ParseSuggestions(reply)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != maxSuggestions || got[4].Title != "e" {
		t.Errorf("got %+v", got)
	}
}
