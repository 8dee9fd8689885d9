package repo

import (
	"time"

	"github.com/lucasnoah/ideaforge/internal/foundation"
)

// ItemStatus is the generation status of a work item.
type ItemStatus string

const (
	StatusPending  ItemStatus = "pending"
	StatusRunning  ItemStatus = "running"
	StatusComplete ItemStatus = "complete"
	StatusError    ItemStatus = "error"
)

// Idea is the subject everything else hangs off.
type Idea struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Audience  string    `json:"audience,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Analysis is the structured research result for an idea.
type Analysis struct {
	IdeaID          string    `json:"idea_id"`
	Summary         string    `json:"summary"`
	Market          string    `json:"market,omitempty"`
	Competitors     []string  `json:"competitors,omitempty"`
	Audience        string    `json:"audience,omitempty"`
	Channels        []string  `json:"channels,omitempty"`
	PricePoints     []string  `json:"price_points,omitempty"`
	Differentiators []string  `json:"differentiators,omitempty"`
	Risks           []string  `json:"risks,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Document is a foundation document work item. Version counts successful
// generations; a failed regeneration records the error and keeps the last
// complete content.
type Document struct {
	IdeaID      string          `json:"idea_id"`
	Kind        foundation.Kind `json:"kind"`
	Status      ItemStatus      `json:"status"`
	Version     int             `json:"version"`
	Content     string          `json:"content,omitempty"`
	Error       string          `json:"error,omitempty"`
	GeneratedAt *time.Time      `json:"generated_at,omitempty"`
}

// ID is the document's work item id.
func (d *Document) ID() string { return string(d.Kind) }

// Available reports whether a complete version exists.
func (d *Document) Available() bool { return d != nil && d.Version > 0 }

// Calendar is a content plan for an idea.
type Calendar struct {
	ID        string    `json:"id"`
	IdeaID    string    `json:"idea_id"`
	Title     string    `json:"title"`
	Priority  int       `json:"priority"`
	Pieces    []Piece   `json:"pieces"`
	CreatedAt time.Time `json:"created_at"`
}

// Piece returns the piece with id, or nil.
func (c *Calendar) Piece(id string) *Piece {
	for i := range c.Pieces {
		if c.Pieces[i].ID == id {
			return &c.Pieces[i]
		}
	}
	return nil
}

// Piece is a content work item inside a calendar. Slice order is insertion
// order. Priority orders pieces within a calendar for publishing, lowest
// first.
type Piece struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Priority    int        `json:"priority,omitempty"`
	Brief       string     `json:"brief,omitempty"`
	Slug        string     `json:"slug,omitempty"`
	Status      ItemStatus `json:"status"`
	Version     int        `json:"version"`
	Content     string     `json:"content,omitempty"`
	Error       string     `json:"error,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// PublishRecord proves a piece was published. Records are never updated.
type PublishRecord struct {
	IdeaID      string    `json:"idea_id"`
	CalendarID  string    `json:"calendar_id"`
	PieceID     string    `json:"piece_id"`
	Slug        string    `json:"slug"`
	CommitSHA   string    `json:"commit_sha"`
	FilePath    string    `json:"file_path"`
	PublishedAt time.Time `json:"published_at"`
}

// ChatTurn is one message in a document editing conversation.
type ChatTurn struct {
	Role string    `json:"role"` // "user" or "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
