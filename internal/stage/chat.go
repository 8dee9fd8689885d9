package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucasnoah/ideaforge/internal/llm"
	"github.com/lucasnoah/ideaforge/internal/prompt"
	"github.com/lucasnoah/ideaforge/internal/stream"
)

// ChatRequest is one user message in a document editing conversation.
type ChatRequest struct {
	DocumentKind string
	Document     string
	History      string
	Message      string
}

// ChatResult is what the assistant said and, when it changed the document,
// the complete new version.
type ChatResult struct {
	Chat        string
	Document    string
	HasDocument bool
}

// Chat streams a document editing reply. onText receives chat text as it
// arrives; the document block is never forwarded. If the reply ends inside the
// block, stream.ErrInterrupted is returned with no document and the caller
// must keep the stored version.
func (r *Runner) Chat(ctx context.Context, req ChatRequest, onText func(string) error) (*ChatResult, error) {
	rendered, err := prompt.LoadAndRender(prompt.DocumentChat, r.templatesDir, prompt.Vars{
		"document_kind": req.DocumentKind,
		"document":      req.Document,
		"history":       req.History,
		"message":       req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("render chat prompt: %w", err)
	}

	p := stream.NewParser()
	res := &ChatResult{}
	var chat strings.Builder
	_, err = r.llm.Stream(ctx, llm.Request{System: SystemPrompt, Prompt: rendered}, func(chunk string) error {
		out := p.Feed(chunk)
		if out.Chat != "" {
			chat.WriteString(out.Chat)
			if onText != nil {
				if err := onText(out.Chat); err != nil {
					return err
				}
			}
		}
		if out.HasDocument {
			res.Document, res.HasDocument = out.Document, true
		}
		return nil
	})
	res.Chat = chat.String()
	if err != nil {
		return &ChatResult{Chat: res.Chat}, fmt.Errorf("chat: %w", err)
	}
	if err := p.Finish(); err != nil {
		return &ChatResult{Chat: res.Chat}, err
	}
	res.Document = strings.TrimSpace(res.Document)
	return res, nil
}
