package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucasnoah/ideaforge/internal/config"
	appctx "github.com/lucasnoah/ideaforge/internal/context"
	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/pipeline"
	"github.com/lucasnoah/ideaforge/internal/repo"
	"github.com/lucasnoah/ideaforge/internal/review"
	"github.com/lucasnoah/ideaforge/internal/stage"
)

// --- fakes ---

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
	before  func()
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.Request, onChunk func(string) error) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	n := len(f.prompts)
	f.mu.Unlock()
	if f.before != nil {
		f.before()
	}
	reply := docReply(fmt.Sprintf("draft %d", n))
	if f.respond != nil {
		var err error
		if reply, err = f.respond(req.Prompt); err != nil {
			return "", err
		}
	}
	if onChunk != nil {
		if err := onChunk(reply); err != nil {
			return "", err
		}
	}
	return reply, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func docReply(body string) string {
	return "Here you go.\n<updated_document>\n" + body + "\n</updated_document>"
}

type loggedEvent struct{ subject, event, item, detail string }

type fakeEvents struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (f *fakeEvents) LogPipelineEvent(subject, event, item, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, loggedEvent{subject, event, item, detail})
	return nil
}

func (f *fakeEvents) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type fakeReviewer struct {
	rounds [][]review.Critique
	drafts []string
}

func (f *fakeReviewer) Review(ctx context.Context, kind, draft string) ([]review.Critique, error) {
	f.drafts = append(f.drafts, draft)
	i := len(f.drafts) - 1
	if i >= len(f.rounds) {
		i = len(f.rounds) - 1
	}
	return f.rounds[i], nil
}

func scored(score float64, issues ...review.Issue) []review.Critique {
	return []review.Critique{{AdvisorID: "skeptic", Name: "Skeptic", Score: score, Issues: issues}}
}

// --- setup ---

type env struct {
	repo   *repo.Repo
	store  *pipeline.Store
	runner *stage.Runner
	sched  *Scheduler
	llm    *fakeLLM
	events *fakeEvents
	ideaID string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := kv.NewMemoryStore()
	r := repo.New(mem)
	idea, err := r.CreateIdea(context.Background(), repo.Idea{Title: "Invoice Ninja", Summary: "Chase late invoices"})
	if err != nil {
		t.Fatalf("CreateIdea: %v", err)
	}
	f := &fakeLLM{}
	runner := stage.NewRunner(f, "")
	store := pipeline.NewStore(mem)
	ev := &fakeEvents{}
	s := NewScheduler(r, store, runner, appctx.NewBuilder(r, appctx.ModeDirect), ev)
	return &env{repo: r, store: store, runner: runner, sched: s, llm: f, events: ev, ideaID: idea.ID}
}

func (e *env) calendar(t *testing.T, n int) *repo.Calendar {
	t.Helper()
	var pieces []repo.Piece
	for i := 1; i <= n; i++ {
		pieces = append(pieces, repo.Piece{ID: fmt.Sprintf("p%d", i), Title: fmt.Sprintf("Piece %d", i), Type: "blog"})
	}
	cal, err := e.repo.CreateCalendar(context.Background(), repo.Calendar{ID: "cal1", IdeaID: e.ideaID, Priority: 1, Pieces: pieces})
	if err != nil {
		t.Fatalf("CreateCalendar: %v", err)
	}
	return cal
}

// pausingBudget pauses once the fake LLM has been called `calls` times.
func (e *env) pausingBudget(calls int) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	b := stage.NewBudget(time.Duration(calls)*5*time.Minute, time.Minute)
	b.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	})
	e.llm.before = func() {
		mu.Lock()
		clock = clock.Add(5 * time.Minute)
		mu.Unlock()
	}
	e.runner.SetBudget(b)
}

// --- subjects ---

func TestParseSubject(t *testing.T) {
	kind, id, err := ParseSubject(Subject(KindContent, "cal:with:colons"))
	if err != nil || kind != KindContent || id != "cal:with:colons" {
		t.Errorf("ParseSubject = %q, %q, %v", kind, id, err)
	}
	for _, bad := range []string{"", "foundation", "foundation:", "other:x"} {
		if _, _, err := ParseSubject(bad); err == nil {
			t.Errorf("ParseSubject(%q) should fail", bad)
		}
	}
}

// --- foundation ---

func TestRunFoundation_AllKindsInDependencyOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.sched.RunFoundation(ctx, e.ideaID, nil)
	if err != nil {
		t.Fatalf("RunFoundation: %v", err)
	}
	if res.Status != pipeline.StatusComplete || len(res.Completed) != 7 {
		t.Fatalf("result = %+v", res)
	}
	pos := make(map[string]int)
	for i, id := range res.Completed {
		pos[id] = i
	}
	for _, k := range foundation.All {
		for _, p := range foundation.Prerequisites(k) {
			if pos[string(p)] >= pos[string(k)] {
				t.Errorf("%s generated before its prerequisite %s", k, p)
			}
		}
	}
	if res.Completed[0] != "strategy" {
		t.Errorf("first = %s, want strategy", res.Completed[0])
	}

	d, err := e.repo.GetDocument(ctx, e.ideaID, foundation.Pricing)
	if err != nil || d.Version != 1 || d.Status != repo.StatusComplete || !strings.HasPrefix(d.Content, "draft") {
		t.Errorf("pricing doc = %+v, %v", d, err)
	}

	// Later documents see earlier ones in their prompt.
	last := e.llm.prompts[len(e.llm.prompts)-1]
	if !strings.Contains(last, "### positioning") {
		t.Error("product-design prompt is missing the positioning document")
	}

	p, _ := e.sched.Status(ctx, Subject(KindFoundation, e.ideaID))
	if p.Status != pipeline.StatusComplete || len(p.CompletedIDs) != 7 {
		t.Errorf("progress = %+v", p)
	}
}

func TestRunFoundation_PrerequisiteNotComplete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.sched.RunFoundation(ctx, e.ideaID, []foundation.Kind{foundation.Pricing})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Failed, []string{"pricing"}) || res.Status != pipeline.StatusError {
		t.Errorf("result = %+v", res)
	}
	if e.llm.calls() != 0 {
		t.Errorf("llm called %d times for a refused kind", e.llm.calls())
	}
	d, _ := e.repo.GetDocument(ctx, e.ideaID, foundation.Pricing)
	if d.Status != repo.StatusError || !strings.Contains(d.Error, "prerequisite not complete") {
		t.Errorf("doc = %+v", d)
	}
}

func TestRunFoundation_ItemErrorDoesNotAbortBatch(t *testing.T) {
	e := newEnv(t)
	e.llm.respond = func(p string) (string, error) {
		if strings.Contains(p, "# Competitive Battlecards") {
			return "", errors.New("provider 500")
		}
		return docReply("ok"), nil
	}

	res, err := e.sched.RunFoundation(context.Background(), e.ideaID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Failed, []string{"battlecards"}) || len(res.Completed) != 6 {
		t.Errorf("result = %+v", res)
	}
	if res.Status != pipeline.StatusError {
		t.Errorf("Status = %s", res.Status)
	}
	p, _ := e.store.Get(context.Background(), Subject(KindFoundation, e.ideaID))
	if s := p.Step("battlecards"); s == nil || s.Status != pipeline.StatusError || !strings.Contains(s.Detail, "provider 500") {
		t.Errorf("step = %+v", s)
	}
	if e.events.count("item_error") != 1 {
		t.Errorf("item_error events = %d", e.events.count("item_error"))
	}
}

func TestRunFoundation_FailedRegenerationKeepsPreviousVersion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.repo.SaveDocumentVersion(ctx, e.ideaID, foundation.Strategy, "v1"); err != nil {
		t.Fatal(err)
	}
	e.llm.respond = func(string) (string, error) {
		return "Rewriting <updated_document>half", nil
	}
	res, err := e.sched.RunFoundation(ctx, e.ideaID, []foundation.Kind{foundation.Strategy})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("result = %+v", res)
	}
	d, _ := e.repo.GetDocument(ctx, e.ideaID, foundation.Strategy)
	if d.Content != "v1" || d.Version != 1 || d.Status != repo.StatusError {
		t.Errorf("doc = %+v", d)
	}
}

func TestRunFoundation_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.sched.RunFoundation(ctx, e.ideaID, []foundation.Kind{"strategy", "press-kit"})
	if !errors.Is(err, ErrUnknownItem) || !errors.Is(err, foundation.ErrUnknownKind) {
		t.Errorf("err = %v", err)
	}
	if p, _ := e.sched.Status(ctx, Subject(KindFoundation, e.ideaID)); p.Status != pipeline.StatusNotStarted {
		t.Errorf("validation failure created progress: %+v", p)
	}
	if _, err := e.sched.RunFoundation(ctx, "nope", nil); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("unknown idea err = %v", err)
	}
}

// --- content ---

func TestRunContent_ResumeSkipsCompletedItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 5)
	subject := Subject(KindContent, "cal1")

	all := []string{"p1", "p2", "p3", "p4", "p5"}
	if _, err := e.store.Begin(ctx, subject, KindContent, all); err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.Update(ctx, subject, func(p *pipeline.Progress) {
		p.MarkCompleted("p1")
		p.MarkCompleted("p2")
		p.Status = pipeline.StatusPaused
	}); err != nil {
		t.Fatal(err)
	}

	res, err := e.sched.RunContent(ctx, "cal1", all)
	if err != nil {
		t.Fatal(err)
	}
	if e.llm.calls() != 3 {
		t.Errorf("llm calls = %d, want 3", e.llm.calls())
	}
	if !reflect.DeepEqual(res.Skipped, []string{"p1", "p2"}) || !reflect.DeepEqual(res.Completed, []string{"p3", "p4", "p5"}) {
		t.Errorf("result = %+v", res)
	}
	if res.Status != pipeline.StatusComplete {
		t.Errorf("Status = %s", res.Status)
	}

	// Re-invoking a finished run is idempotent.
	if _, err := e.sched.RunContent(ctx, "cal1", all); err != nil {
		t.Fatal(err)
	}
	if e.llm.calls() != 3 {
		t.Errorf("re-invocation re-ran items: %d calls", e.llm.calls())
	}
}

func TestRunContent_UnknownPieceRunsNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 2)

	_, err := e.sched.RunContent(ctx, "cal1", []string{"p1", "ghost"})
	if !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("err = %v", err)
	}
	if e.llm.calls() != 0 {
		t.Error("llm called before validation finished")
	}
	if _, err := e.sched.RunContent(ctx, "missing", nil); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("missing calendar err = %v", err)
	}
}

func TestRunContent_CallerOrderAndDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 3)
	if _, err := e.repo.SavePieceVersion(ctx, "cal1", "p2", "done already"); err != nil {
		t.Fatal(err)
	}

	res, err := e.sched.RunContent(ctx, "cal1", []string{"p3", "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Completed, []string{"p3", "p1"}) {
		t.Errorf("Completed = %v", res.Completed)
	}

	if err := e.sched.Reset(ctx, Subject(KindContent, "cal1")); err != nil {
		t.Fatal(err)
	}
	cal, _ := e.repo.GetCalendar(ctx, "cal1")
	if cal.Piece("p1").Status != repo.StatusComplete || cal.Piece("p1").Version != 1 {
		t.Errorf("p1 = %+v", cal.Piece("p1"))
	}
	// All complete now, so an empty request has nothing to do.
	res, err = e.sched.RunContent(ctx, "cal1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Completed) != 0 || res.Status != pipeline.StatusComplete {
		t.Errorf("empty request result = %+v", res)
	}
}

func TestRun_PauseLeavesRemainingPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 4)
	e.pausingBudget(2)

	res, err := e.sched.RunContent(ctx, "cal1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Paused || res.Status != pipeline.StatusPaused || len(res.Completed) != 2 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if e.events.count("item_error") != 0 {
		t.Error("pause logged as a failure")
	}
	if e.events.count("paused") != 1 {
		t.Error("pause not logged")
	}
	cal, _ := e.repo.GetCalendar(ctx, "cal1")
	for _, id := range []string{"p3", "p4"} {
		if st := cal.Piece(id).Status; st != repo.StatusPending {
			t.Errorf("%s status = %s, want pending", id, st)
		}
	}

	// The next invocation, with a fresh budget, does only the rest.
	e.runner.SetBudget(nil)
	res, err = e.sched.Resume(ctx, Subject(KindContent, "cal1"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Completed, []string{"p3", "p4"}) || res.Status != pipeline.StatusComplete {
		t.Errorf("resumed result = %+v", res)
	}
	if e.llm.calls() != 4 {
		t.Errorf("llm calls = %d, want 4", e.llm.calls())
	}
}

func TestRun_AlreadyRunningIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 2)
	subject := Subject(KindContent, "cal1")

	if _, ok, err := e.store.Acquire(ctx, subject); err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	res, err := e.sched.RunContent(ctx, "cal1", nil)
	if err != nil {
		t.Fatalf("already running returned error: %v", err)
	}
	if !res.AlreadyRunning || e.llm.calls() != 0 {
		t.Errorf("result = %+v, calls = %d", res, e.llm.calls())
	}
	if err := e.sched.Reset(ctx, subject); !errors.Is(err, ErrRunning) {
		t.Errorf("Reset while leased = %v, want ErrRunning", err)
	}
}

func TestRun_LLMNotConfiguredAborts(t *testing.T) {
	e := newEnv(t)
	e.calendar(t, 2)
	e.llm.respond = func(string) (string, error) { return "", llm.ErrNotConfigured }

	_, err := e.sched.RunContent(context.Background(), "cal1", nil)
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if e.llm.calls() != 1 {
		t.Errorf("calls = %d, want 1", e.llm.calls())
	}
	p, _ := e.store.Get(context.Background(), Subject(KindContent, "cal1"))
	if p.Status != pipeline.StatusError {
		t.Errorf("status = %s", p.Status)
	}
	// The lease is released so a fixed configuration can retry.
	if leased, _ := e.store.Leased(context.Background(), Subject(KindContent, "cal1")); leased {
		t.Error("lease not released")
	}
}

// --- review loop ---

func reviewCfg() config.Review {
	return config.Review{Enabled: true, MinScore: 7, MaxReviseRounds: 2}
}

func TestReview_RevisesThenApproves(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 1)
	rv := &fakeReviewer{rounds: [][]review.Critique{
		scored(5, review.Issue{Severity: review.SeverityMedium, Description: "too vague"}),
		scored(8),
	}}
	e.sched.SetReview(rv, reviewCfg())

	res, err := e.sched.RunContent(ctx, "cal1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Completed) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if e.llm.calls() != 2 {
		t.Errorf("llm calls = %d, want 2", e.llm.calls())
	}
	if !strings.Contains(e.llm.prompts[1], "[MEDIUM] (Skeptic) too vague") {
		t.Error("revision prompt lacks the editor brief")
	}
	if !strings.Contains(e.llm.prompts[1], "draft 1") {
		t.Error("revision prompt lacks the previous draft")
	}
	cal, _ := e.repo.GetCalendar(ctx, "cal1")
	if cal.Pieces[0].Content != "draft 2" {
		t.Errorf("content = %q, want the revised draft", cal.Pieces[0].Content)
	}
	if names, _ := e.store.SessionNames(ctx, Subject(KindContent, "cal1")); len(names) != 0 {
		t.Errorf("draft session left behind: %v", names)
	}
}

func TestReview_ExhaustedRoundsFailsWithBrief(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 1)
	rv := &fakeReviewer{rounds: [][]review.Critique{
		scored(9, review.Issue{Severity: review.SeverityHigh, Description: "makes up numbers"}),
	}}
	e.sched.SetReview(rv, reviewCfg())

	res, err := e.sched.RunContent(ctx, "cal1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if e.llm.calls() != 3 || len(rv.drafts) != 3 {
		t.Errorf("llm calls = %d, reviews = %d; want 3 and 3", e.llm.calls(), len(rv.drafts))
	}
	cal, _ := e.repo.GetCalendar(ctx, "cal1")
	if p := cal.Pieces[0]; p.Status != repo.StatusError || !strings.Contains(p.Error, "[HIGH] (Skeptic) makes up numbers") {
		t.Errorf("piece = %+v", p)
	}
}

func TestReview_OscillationGuardApproves(t *testing.T) {
	e := newEnv(t)
	e.calendar(t, 1)
	rv := &fakeReviewer{rounds: [][]review.Critique{scored(6), scored(5)}}
	cfg := reviewCfg()
	cfg.MinScore = 8
	e.sched.SetReview(rv, cfg)

	res, err := e.sched.RunContent(context.Background(), "cal1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Completed) != 1 || e.llm.calls() != 2 {
		t.Errorf("result = %+v, calls = %d", res, e.llm.calls())
	}
}

func TestReview_DisabledSkipsReviewer(t *testing.T) {
	e := newEnv(t)
	e.calendar(t, 1)
	rv := &fakeReviewer{rounds: [][]review.Critique{scored(0)}}
	cfg := reviewCfg()
	cfg.Enabled = false
	e.sched.SetReview(rv, cfg)

	if _, err := e.sched.RunContent(context.Background(), "cal1", nil); err != nil {
		t.Fatal(err)
	}
	if len(rv.drafts) != 0 {
		t.Error("reviewer called while disabled")
	}
}

func TestReview_PausedLoopResumesFromDraft(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 1)
	rv := &fakeReviewer{rounds: [][]review.Critique{scored(5), scored(8)}}
	e.sched.SetReview(rv, reviewCfg())
	e.pausingBudget(2)

	res, err := e.sched.RunContent(ctx, "cal1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Paused || e.llm.calls() != 2 {
		t.Fatalf("result = %+v, calls = %d", res, e.llm.calls())
	}

	e.runner.SetBudget(nil)
	res, err = e.sched.RunContent(ctx, "cal1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Completed) != 1 {
		t.Fatalf("resumed result = %+v", res)
	}
	if e.llm.calls() != 2 {
		t.Errorf("resume regenerated the draft: %d calls", e.llm.calls())
	}
	if rv.drafts[len(rv.drafts)-1] != "draft 2" {
		t.Errorf("reviewed %q after resume, want the stored revision", rv.drafts[len(rv.drafts)-1])
	}
}

// --- research ---

func TestRunResearch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.llm.respond = func(p string) (string, error) {
		switch {
		case strings.Contains(p, "# Research: Market"):
			return "Market is 2bn.", nil
		case strings.Contains(p, "# Research: Competitors"):
			return "Acme, Dunning Co.", nil
		case strings.Contains(p, "# Research: Audience"):
			return "Freelance designers.", nil
		default:
			if !strings.Contains(p, "Market is 2bn.") || !strings.Contains(p, "Freelance designers.") {
				return "", errors.New("synthesis prompt missing findings")
			}
			return "```json\n{\"summary\": \"Viable niche\", \"competitors\": [\"Acme\"], \"price_points\": [\"$9\"]}\n```", nil
		}
	}

	res, err := e.sched.RunResearch(ctx, e.ideaID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != pipeline.StatusComplete || !reflect.DeepEqual(res.Completed, ResearchSteps) {
		t.Fatalf("result = %+v", res)
	}
	a, err := e.repo.GetAnalysis(ctx, e.ideaID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if a.Summary != "Viable niche" || a.IdeaID != e.ideaID || !reflect.DeepEqual(a.PricePoints, []string{"$9"}) {
		t.Errorf("analysis = %+v", a)
	}
}

func TestRunResearch_BadSynthesis(t *testing.T) {
	e := newEnv(t)
	e.llm.respond = func(p string) (string, error) {
		if strings.Contains(p, "Synthesis") {
			return "I think it's a good idea!", nil
		}
		return "notes", nil
	}
	res, err := e.sched.RunResearch(context.Background(), e.ideaID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Failed, []string{"synthesis"}) || res.Status != pipeline.StatusError {
		t.Errorf("result = %+v", res)
	}
	if _, err := e.repo.GetAnalysis(context.Background(), e.ideaID); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("analysis stored from a bad reply: %v", err)
	}
}

func TestRunResearch_SynthesisNeedsEveryFinding(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	marketDown := true
	synthesized := false
	e.llm.respond = func(p string) (string, error) {
		switch {
		case strings.Contains(p, "# Research: Market"):
			if marketDown {
				return "", errors.New("upstream 503")
			}
			return "Market is 2bn.", nil
		case strings.Contains(p, "# Research: Competitors"), strings.Contains(p, "# Research: Audience"):
			return "notes", nil
		default:
			synthesized = true
			return `{"summary": "Viable niche"}`, nil
		}
	}

	res, err := e.sched.RunResearch(ctx, e.ideaID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Failed, []string{"market", "synthesis"}) || res.Status != pipeline.StatusError {
		t.Fatalf("result = %+v", res)
	}
	if synthesized {
		t.Error("synthesis ran on partial findings")
	}
	p, _ := e.store.Get(ctx, Subject(KindResearch, e.ideaID))
	if st := p.Step("synthesis"); st == nil || !strings.Contains(st.Detail, "market") {
		t.Errorf("synthesis step = %+v", st)
	}
	if _, err := e.repo.GetAnalysis(ctx, e.ideaID); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("analysis stored from partial findings: %v", err)
	}

	// Once the market step succeeds, resuming completes the analysis.
	marketDown = false
	res, err = e.sched.Resume(ctx, Subject(KindResearch, e.ideaID))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != pipeline.StatusComplete || !synthesized {
		t.Errorf("resume result = %+v", res)
	}
	if a, err := e.repo.GetAnalysis(ctx, e.ideaID); err != nil || a.Summary != "Viable niche" {
		t.Errorf("analysis = %+v, %v", a, err)
	}
}

func TestParseAnalysis(t *testing.T) {
	if _, err := ParseAnalysis("nothing here"); !errors.Is(err, ErrBadAnalysis) {
		t.Errorf("err = %v", err)
	}
	if _, err := ParseAnalysis(`{"summary": ""}`); !errors.Is(err, ErrBadAnalysis) {
		t.Errorf("empty summary err = %v", err)
	}
	a, err := ParseAnalysis(`Here: {"summary": "ok", "risks": ["churn"]} thanks`)
	if err != nil || a.Summary != "ok" || a.Risks[0] != "churn" {
		t.Errorf("ParseAnalysis = %+v, %v", a, err)
	}
}

// --- reset ---

func TestReset_StartsFreshRun(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.calendar(t, 1)
	subject := Subject(KindContent, "cal1")

	first, err := e.sched.RunContent(ctx, "cal1", []string{"p1"})
	if err != nil || len(first.Completed) != 1 {
		t.Fatalf("first run = %+v, %v", first, err)
	}
	p1, _ := e.store.Get(ctx, subject)

	if err := e.sched.Reset(ctx, subject); err != nil {
		t.Fatal(err)
	}
	if p, _ := e.sched.Status(ctx, subject); p.Status != pipeline.StatusNotStarted {
		t.Errorf("status after reset = %s", p.Status)
	}

	second, err := e.sched.RunContent(ctx, "cal1", []string{"p1"})
	if err != nil || len(second.Completed) != 1 {
		t.Fatalf("fresh run = %+v, %v", second, err)
	}
	p2, _ := e.store.Get(ctx, subject)
	if p2.RunID == p1.RunID {
		t.Error("fresh run reused the old run id")
	}
	cal, _ := e.repo.GetCalendar(ctx, "cal1")
	if cal.Pieces[0].Version != 2 {
		t.Errorf("version = %d, want 2", cal.Pieces[0].Version)
	}
	if e.events.count("reset") != 1 {
		t.Error("reset not logged")
	}
}
