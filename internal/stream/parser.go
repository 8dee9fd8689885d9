package stream

import (
	"errors"
	"strings"
)

// Tag literals that delimit the embedded document in an LLM reply.
// They are matched exactly and case-sensitively.
const (
	OpenTag  = "<updated_document>"
	CloseTag = "</updated_document>"
)

// ErrInterrupted is returned by Finish when the stream ended inside an open
// document block. Callers must discard the partial document.
var ErrInterrupted = errors.New("response interrupted, document unchanged")

type state int

const (
	stateText state = iota
	stateMaybeOpen
	stateContent
	stateMaybeClose
)

func (s state) String() string {
	switch s {
	case stateText:
		return "text"
	case stateMaybeOpen:
		return "maybe-open"
	case stateContent:
		return "content"
	case stateMaybeClose:
		return "maybe-close"
	}
	return "unknown"
}

// Chunk is what a single Feed call produced.
type Chunk struct {
	Chat        string // chat text emitted by this chunk
	Document    string // completed document content, valid when HasDocument
	HasDocument bool
}

// Parser separates conversational text from one <updated_document> block in
// an incrementally delivered reply. It never buffers more than one tag
// literal beyond the document itself.
//
// Only the first block is recognised. After it closes, everything that
// follows is chat text, so results do not depend on how the reply was split
// into chunks.
type Parser struct {
	state     state
	candidate strings.Builder // partial tag being matched
	doc       strings.Builder
	emitted   bool
}

// NewParser returns a parser in the text state.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes the next chunk of the reply.
func (p *Parser) Feed(chunk string) Chunk {
	var out Chunk
	var chat strings.Builder

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		switch p.state {
		case stateText:
			if c == '<' && !p.emitted {
				p.state = stateMaybeOpen
				p.candidate.Reset()
				p.candidate.WriteByte(c)
				continue
			}
			chat.WriteByte(c)

		case stateMaybeOpen:
			p.candidate.WriteByte(c)
			cand := p.candidate.String()
			switch {
			case cand == OpenTag:
				p.state = stateContent
				p.candidate.Reset()
				p.doc.Reset()
			case strings.HasPrefix(OpenTag, cand):
				// keep buffering
			default:
				// Not our tag. The diverging byte may itself start a new
				// candidate, e.g. "<<updated_document>".
				p.state = stateText
				p.candidate.Reset()
				if c == '<' {
					chat.WriteString(cand[:len(cand)-1])
					p.state = stateMaybeOpen
					p.candidate.WriteByte(c)
				} else {
					chat.WriteString(cand)
				}
			}

		case stateContent:
			if c == '<' {
				p.state = stateMaybeClose
				p.candidate.Reset()
				p.candidate.WriteByte(c)
				continue
			}
			p.doc.WriteByte(c)

		case stateMaybeClose:
			p.candidate.WriteByte(c)
			cand := p.candidate.String()
			switch {
			case cand == CloseTag:
				p.state = stateText
				p.candidate.Reset()
				p.emitted = true
				out.Document = p.doc.String()
				out.HasDocument = true
				p.doc.Reset()
			case strings.HasPrefix(CloseTag, cand):
			default:
				p.state = stateContent
				p.candidate.Reset()
				if c == '<' {
					p.doc.WriteString(cand[:len(cand)-1])
					p.state = stateMaybeClose
					p.candidate.WriteByte(c)
				} else {
					p.doc.WriteString(cand)
				}
			}
		}
	}

	out.Chat = chat.String()
	return out
}

// Finish reports the end of the stream. Any state other than text means a
// tag or the block was left open and the reply counts as interrupted.
func (p *Parser) Finish() error {
	if p.state != stateText {
		return ErrInterrupted
	}
	return nil
}

// Result is the accumulated outcome of a whole reply.
type Result struct {
	Chat        string
	Document    string
	HasDocument bool
}

// Parse feeds every chunk in order and finalizes the stream.
func Parse(chunks ...string) (Result, error) {
	p := NewParser()
	var res Result
	var chat strings.Builder
	for _, c := range chunks {
		out := p.Feed(c)
		chat.WriteString(out.Chat)
		if out.HasDocument {
			res.Document = out.Document
			res.HasDocument = true
		}
	}
	if err := p.Finish(); err != nil {
		res.Chat = chat.String()
		res.Document = ""
		res.HasDocument = false
		return res, err
	}
	res.Chat = chat.String()
	return res, nil
}
