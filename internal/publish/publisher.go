package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ideaforge/internal/config"
	"github.com/lucasnoah/ideaforge/internal/kv"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

var (
	// ErrNotConfigured is returned when no publishing repository is set.
	ErrNotConfigured = errors.New("publish: not configured")
	// ErrNotReady is returned for a piece that has no complete content.
	ErrNotReady = errors.New("piece is not complete")
)

// FileCommitter commits a single file and returns the commit SHA.
// *github.Client satisfies it.
type FileCommitter interface {
	PutFile(repo, branch, path, content, message string) (string, error)
}

// EventLogger receives audit events. *db.DB satisfies it.
type EventLogger interface {
	LogPipelineEvent(subject, event, item, detail string) error
}

// Result is the outcome of a publish call.
type Result struct {
	Record *repo.PublishRecord
	// AlreadyPublished is true when a record existed and nothing was committed.
	AlreadyPublished bool
}

// Publisher commits pieces and appends their PublishRecord.
type Publisher struct {
	repo     *repo.Repo
	selector *Selector
	git      FileCommitter
	cfg      config.Publish
	events   EventLogger
	policy   *bluemonday.Policy
	now      func() time.Time

	mu sync.Mutex
}

// NewPublisher creates a Publisher. events may be nil.
func NewPublisher(r *repo.Repo, git FileCommitter, cfg config.Publish, events EventLogger) *Publisher {
	return &Publisher{
		repo:     r,
		selector: NewSelector(r),
		git:      git,
		cfg:      cfg,
		events:   events,
		policy:   bluemonday.UGCPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Used by tests.
func (p *Publisher) SetClock(now func() time.Time) {
	p.now = now
}

// Selector returns the selector used by PublishNext.
func (p *Publisher) Selector() *Selector {
	return p.selector
}

// Publish commits one piece. A piece that already has a PublishRecord is a
// no-op success: the record is returned and the repository is not touched.
func (p *Publisher) Publish(ctx context.Context, calendarID, pieceID string) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec, err := p.repo.GetPublishRecord(ctx, pieceID); err == nil {
		return &Result{Record: rec, AlreadyPublished: true}, nil
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	if p.git == nil || p.cfg.Repo == "" {
		return nil, ErrNotConfigured
	}
	cal, err := p.repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	piece := cal.Piece(pieceID)
	if piece == nil {
		return nil, fmt.Errorf("piece %s in calendar %s: %w", pieceID, calendarID, kv.ErrNotFound)
	}
	if piece.Status != repo.StatusComplete || piece.Content == "" {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, pieceID, piece.Status)
	}

	slug := piece.Slug
	if slug == "" {
		slug = repo.Slugify(piece.Title)
	}
	file := path.Join(p.dir(), slug+".md")
	body, err := p.render(cal, piece, slug)
	if err != nil {
		return nil, err
	}

	sha, err := p.git.PutFile(p.cfg.Repo, p.cfg.Branch, file, body, "publish: "+piece.Title)
	if err != nil {
		p.event(calendarID, "publish_error", pieceID, err.Error())
		return nil, fmt.Errorf("publish %s: %w", pieceID, err)
	}

	rec := repo.PublishRecord{
		IdeaID:      cal.IdeaID,
		CalendarID:  cal.ID,
		PieceID:     pieceID,
		Slug:        slug,
		CommitSHA:   sha,
		FilePath:    file,
		PublishedAt: p.now(),
	}
	// Write with a context that survives cancellation: the commit has landed
	// and must be recorded.
	created, err := p.repo.PutPublishRecord(context.WithoutCancel(ctx), rec)
	if err != nil {
		return nil, fmt.Errorf("record publish of %s (commit %s): %w", pieceID, sha, err)
	}
	if !created {
		existing, err := p.repo.GetPublishRecord(ctx, pieceID)
		if err != nil {
			return nil, err
		}
		return &Result{Record: existing, AlreadyPublished: true}, nil
	}
	p.event(calendarID, "published", pieceID, sha)
	return &Result{Record: &rec}, nil
}

// PublishNext publishes the piece Selector.Next picks. It returns nil, nil
// when nothing is ready.
func (p *Publisher) PublishNext(ctx context.Context) (*Result, error) {
	c, err := p.selector.Next(ctx)
	if err != nil || c == nil {
		return nil, err
	}
	return p.Publish(ctx, c.Calendar.ID, c.Piece.ID)
}

func (p *Publisher) dir() string {
	if p.cfg.Dir == "" {
		return "content"
	}
	return strings.Trim(p.cfg.Dir, "/")
}

type frontMatter struct {
	Title    string    `yaml:"title"`
	Slug     string    `yaml:"slug"`
	Type     string    `yaml:"type,omitempty"`
	Idea     string    `yaml:"idea"`
	Calendar string    `yaml:"calendar"`
	Date     time.Time `yaml:"date"`
}

// render builds the committed file: YAML front matter followed by the piece
// body with unsafe HTML stripped.
func (p *Publisher) render(cal *repo.Calendar, piece *repo.Piece, slug string) (string, error) {
	fm, err := yaml.Marshal(frontMatter{
		Title:    piece.Title,
		Slug:     slug,
		Type:     piece.Type,
		Idea:     cal.IdeaID,
		Calendar: cal.ID,
		Date:     p.now(),
	})
	if err != nil {
		return "", fmt.Errorf("front matter: %w", err)
	}
	return "---\n" + string(fm) + "---\n\n" + p.Sanitize(piece.Content) + "\n", nil
}

// markdownEntities undoes the policy's escaping of markdown punctuation.
// &lt; stays encoded so escaped markup can never become a live tag.
var markdownEntities = strings.NewReplacer(
	"&amp;", "&",
	"&#39;", "'",
	"&#34;", `"`,
	"&quot;", `"`,
	"&gt;", ">",
)

// Sanitize removes scripts, event handlers and other unsafe HTML from
// markdown. Blockquotes, quotes and ampersands survive as plain characters.
func (p *Publisher) Sanitize(markdown string) string {
	return strings.TrimSpace(markdownEntities.Replace(p.policy.Sanitize(markdown)))
}

func (p *Publisher) event(calendarID, event, item, detail string) {
	if p.events != nil {
		_ = p.events.LogPipelineEvent("content:"+calendarID, event, item, detail)
	}
}
