// Package repo is the typed persistence layer over the key-value store.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/kv"
)

const calendarIndexKey = "calendars:index"

// Repo reads and writes domain records. It never caches: every call goes to
// the store.
type Repo struct {
	store kv.Store
	now   func() time.Time
}

// New creates a Repo over store.
func New(store kv.Store) *Repo {
	return &Repo{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source.
func (r *Repo) SetClock(now func() time.Time) {
	r.now = now
}

// Store returns the underlying key-value store.
func (r *Repo) Store() kv.Store {
	return r.store
}

func ideaKey(id string) string     { return "idea:" + id }
func analysisKey(id string) string { return "analysis:" + id }
func docKey(ideaID string, k foundation.Kind) string {
	return "doc:" + ideaID + ":" + string(k)
}
func docVersionKey(ideaID string, k foundation.Kind, v int) string {
	return fmt.Sprintf("docver:%s:%s:%06d", ideaID, k, v)
}
func calendarKey(id string) string { return "calendar:" + id }
func canvasKey(ideaID string) string {
	return "canvas:" + ideaID
}
func pivotsKey(ideaID string, t AssumptionType) string {
	return "pivots:" + ideaID + ":" + string(t)
}
func publishKey(pieceID string) string { return "publish:" + pieceID }
func chatKey(ideaID string, k foundation.Kind) string {
	return "chat:" + ideaID + ":" + string(k)
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, kv.ErrNotFound)
}

func getJSON[T any](ctx context.Context, s kv.Store, key, what, id string) (*T, error) {
	v, err := kv.GetJSON[T](ctx, s, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, notFound(what, id)
	}
	return v, err
}

// --- ideas ---

// CreateIdea stores a new idea, assigning an id if none is set.
func (r *Repo) CreateIdea(ctx context.Context, idea Idea) (*Idea, error) {
	if strings.TrimSpace(idea.Title) == "" {
		return nil, fmt.Errorf("idea title is required")
	}
	if idea.ID == "" {
		idea.ID = uuid.NewString()
	}
	idea.CreatedAt = r.now()
	ok, err := kv.PutJSONNX(ctx, r.store, ideaKey(idea.ID), idea)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("idea %s already exists", idea.ID)
	}
	return &idea, nil
}

func (r *Repo) GetIdea(ctx context.Context, id string) (*Idea, error) {
	return getJSON[Idea](ctx, r.store, ideaKey(id), "idea", id)
}

// ListIdeas returns every idea ordered by id.
func (r *Repo) ListIdeas(ctx context.Context) ([]Idea, error) {
	keys, err := r.store.List(ctx, "idea:")
	if err != nil {
		return nil, err
	}
	var ideas []Idea
	for _, k := range keys {
		idea, err := kv.GetJSON[Idea](ctx, r.store, k)
		if err != nil {
			continue // deleted between List and Get
		}
		ideas = append(ideas, *idea)
	}
	return ideas, nil
}

// --- analysis ---

// PutAnalysis stores the research analysis for an idea, replacing any
// previous one.
func (r *Repo) PutAnalysis(ctx context.Context, a Analysis) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	return kv.PutJSON(ctx, r.store, analysisKey(a.IdeaID), a)
}

func (r *Repo) GetAnalysis(ctx context.Context, ideaID string) (*Analysis, error) {
	return getJSON[Analysis](ctx, r.store, analysisKey(ideaID), "analysis", ideaID)
}

// --- foundation documents ---

func (r *Repo) GetDocument(ctx context.Context, ideaID string, k foundation.Kind) (*Document, error) {
	return getJSON[Document](ctx, r.store, docKey(ideaID, k), "document", ideaID+"/"+string(k))
}

// ListDocuments returns the documents that exist for an idea in priority
// order.
func (r *Repo) ListDocuments(ctx context.Context, ideaID string) ([]Document, error) {
	var docs []Document
	for _, k := range foundation.All {
		d, err := r.GetDocument(ctx, ideaID, k)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, nil
}

func (r *Repo) loadDocument(ctx context.Context, ideaID string, k foundation.Kind) (*Document, error) {
	d, err := r.GetDocument(ctx, ideaID, k)
	if errors.Is(err, kv.ErrNotFound) {
		return &Document{IdeaID: ideaID, Kind: k, Status: StatusPending}, nil
	}
	return d, err
}

// SaveDocumentVersion records a newly generated complete version and keeps
// a copy under its version number.
func (r *Repo) SaveDocumentVersion(ctx context.Context, ideaID string, k foundation.Kind, content string) (*Document, error) {
	d, err := r.loadDocument(ctx, ideaID, k)
	if err != nil {
		return nil, err
	}
	now := r.now()
	d.Version++
	d.Status = StatusComplete
	d.Content = content
	d.Error = ""
	d.GeneratedAt = &now

	if err := kv.PutJSON(ctx, r.store, docVersionKey(ideaID, k, d.Version), d); err != nil {
		return nil, err
	}
	if err := kv.PutJSON(ctx, r.store, docKey(ideaID, k), d); err != nil {
		return nil, err
	}
	return d, nil
}

// SetDocumentStatus updates status and error without touching content.
func (r *Repo) SetDocumentStatus(ctx context.Context, ideaID string, k foundation.Kind, status ItemStatus, errMsg string) error {
	d, err := r.loadDocument(ctx, ideaID, k)
	if err != nil {
		return err
	}
	d.Status = status
	d.Error = errMsg
	return kv.PutJSON(ctx, r.store, docKey(ideaID, k), d)
}

// DocumentVersions lists the stored version numbers of a document.
func (r *Repo) DocumentVersions(ctx context.Context, ideaID string, k foundation.Kind) ([]int, error) {
	prefix := fmt.Sprintf("docver:%s:%s:", ideaID, k)
	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var versions []int
	for _, key := range keys {
		v, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// --- calendars ---

// CreateCalendar stores a new calendar. Missing ids are generated and every
// piece starts pending. The calendar is appended to the insertion index.
func (r *Repo) CreateCalendar(ctx context.Context, c Calendar) (*Calendar, error) {
	if c.IdeaID == "" {
		return nil, fmt.Errorf("calendar idea id is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	seen := make(map[string]bool)
	for i := range c.Pieces {
		p := &c.Pieces[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate piece id %s", p.ID)
		}
		seen[p.ID] = true
		if p.Slug == "" {
			p.Slug = Slugify(p.Title)
		}
		p.Status = StatusPending
	}
	c.CreatedAt = r.now()

	ok, err := kv.PutJSONNX(ctx, r.store, calendarKey(c.ID), c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("calendar %s already exists", c.ID)
	}

	index, err := r.calendarIndex(ctx)
	if err != nil {
		return nil, err
	}
	index = append(index, c.ID)
	if err := kv.PutJSON(ctx, r.store, calendarIndexKey, index); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) calendarIndex(ctx context.Context) ([]string, error) {
	ids, err := kv.GetJSON[[]string](ctx, r.store, calendarIndexKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (r *Repo) GetCalendar(ctx context.Context, id string) (*Calendar, error) {
	return getJSON[Calendar](ctx, r.store, calendarKey(id), "calendar", id)
}

// ListCalendars returns calendars in insertion order.
func (r *Repo) ListCalendars(ctx context.Context) ([]Calendar, error) {
	ids, err := r.calendarIndex(ctx)
	if err != nil {
		return nil, err
	}
	var cals []Calendar
	for _, id := range ids {
		c, err := r.GetCalendar(ctx, id)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cals = append(cals, *c)
	}
	return cals, nil
}

// UpdatePiece performs a read-modify-write of one piece.
func (r *Repo) UpdatePiece(ctx context.Context, calendarID, pieceID string, fn func(*Piece)) (*Piece, error) {
	c, err := r.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	p := c.Piece(pieceID)
	if p == nil {
		return nil, notFound("piece", pieceID)
	}
	fn(p)
	if err := kv.PutJSON(ctx, r.store, calendarKey(calendarID), c); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePieceVersion stores freshly generated content for a piece.
func (r *Repo) SavePieceVersion(ctx context.Context, calendarID, pieceID, content string) (*Piece, error) {
	now := r.now()
	return r.UpdatePiece(ctx, calendarID, pieceID, func(p *Piece) {
		p.Version++
		p.Status = StatusComplete
		p.Content = content
		p.Error = ""
		p.GeneratedAt = &now
	})
}

// --- validation canvas ---

func (r *Repo) GetCanvas(ctx context.Context, ideaID string) (*Canvas, error) {
	return getJSON[Canvas](ctx, r.store, canvasKey(ideaID), "canvas", ideaID)
}

// CreateCanvas stores c only if the idea has no canvas yet.
func (r *Repo) CreateCanvas(ctx context.Context, c *Canvas) (bool, error) {
	return kv.PutJSONNX(ctx, r.store, canvasKey(c.IdeaID), c)
}

// PutCanvas replaces the stored canvas.
func (r *Repo) PutCanvas(ctx context.Context, c *Canvas) error {
	c.UpdatedAt = r.now()
	return kv.PutJSON(ctx, r.store, canvasKey(c.IdeaID), c)
}

func (r *Repo) PutPivotSuggestions(ctx context.Context, ideaID string, t AssumptionType, s []PivotSuggestion) error {
	return kv.PutJSON(ctx, r.store, pivotsKey(ideaID, t), s)
}

func (r *Repo) GetPivotSuggestions(ctx context.Context, ideaID string, t AssumptionType) ([]PivotSuggestion, error) {
	s, err := getJSON[[]PivotSuggestion](ctx, r.store, pivotsKey(ideaID, t), "pivot suggestions", ideaID+"/"+string(t))
	if err != nil {
		return nil, err
	}
	return *s, nil
}

// --- publishing ---

// PutPublishRecord appends a publish record. It reports false, without
// error, when the piece already has one.
func (r *Repo) PutPublishRecord(ctx context.Context, rec PublishRecord) (bool, error) {
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = r.now()
	}
	return kv.PutJSONNX(ctx, r.store, publishKey(rec.PieceID), rec)
}

func (r *Repo) GetPublishRecord(ctx context.Context, pieceID string) (*PublishRecord, error) {
	return getJSON[PublishRecord](ctx, r.store, publishKey(pieceID), "publish record", pieceID)
}

// IsPublished reports whether a publish record exists for pieceID.
func (r *Repo) IsPublished(ctx context.Context, pieceID string) (bool, error) {
	_, err := r.store.Get(ctx, publishKey(pieceID))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListPublishRecords returns every record, newest first.
func (r *Repo) ListPublishRecords(ctx context.Context) ([]PublishRecord, error) {
	keys, err := r.store.List(ctx, "publish:")
	if err != nil {
		return nil, err
	}
	var recs []PublishRecord
	for _, k := range keys {
		rec, err := kv.GetJSON[PublishRecord](ctx, r.store, k)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	sortRecords(recs)
	return recs, nil
}

// --- document chat ---

func (r *Repo) GetChat(ctx context.Context, ideaID string, k foundation.Kind) ([]ChatTurn, error) {
	turns, err := kv.GetJSON[[]ChatTurn](ctx, r.store, chatKey(ideaID, k))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return *turns, nil
}

// AppendChat adds turns to a document conversation, keeping the last
// maxTurns.
func (r *Repo) AppendChat(ctx context.Context, ideaID string, k foundation.Kind, maxTurns int, turns ...ChatTurn) error {
	history, err := r.GetChat(ctx, ideaID, k)
	if err != nil {
		return err
	}
	now := r.now()
	for _, t := range turns {
		if t.At.IsZero() {
			t.At = now
		}
		history = append(history, t)
	}
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	return kv.PutJSON(ctx, r.store, chatKey(ideaID, k), history)
}

func (r *Repo) ClearChat(ctx context.Context, ideaID string, k foundation.Kind) error {
	return r.store.Delete(ctx, chatKey(ideaID, k))
}
