package review

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// builtinAdvisorPrompts are used when no prompt file exists for an advisor.
var builtinAdvisorPrompts = map[string]string{
	"strategist": "You have launched a dozen B2B and consumer products. You care whether the " +
		"document holds together: a clear customer, a credible wedge, and choices that follow " +
		"from the research rather than contradict it.",
	"copy-editor": "You edit for a living. Flag filler, jargon, passive voice and anything a busy " +
		"founder would skim past. Tone drift from the brand voice is a medium issue.",
	"skeptic": "You assume every claim is wrong until the document supports it. Invented numbers, " +
		"unnamed competitors and hand-waved pricing are high issues.",
}

// PromptCache holds advisor persona prompts for the life of the process.
// Entries are loaded from <dir>/<advisor>.md on first use and stay cached
// until Clear is called.
type PromptCache struct {
	dir string

	mu      sync.Mutex
	entries map[string]string
}

// NewPromptCache creates a cache reading overrides from dir. An empty dir
// means built-in prompts only.
func NewPromptCache(dir string) *PromptCache {
	return &PromptCache{dir: dir, entries: make(map[string]string)}
}

// GetOrLoad returns the prompt for advisorID, loading it on a miss.
// Unknown advisors without a prompt file get an empty prompt.
func (c *PromptCache) GetOrLoad(advisorID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[advisorID]; ok {
		return p, nil
	}
	p, err := c.load(advisorID)
	if err != nil {
		return "", err
	}
	c.entries[advisorID] = p
	return p, nil
}

// Clear drops every cached prompt so the next lookup re-reads disk.
func (c *PromptCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]string)
	c.mu.Unlock()
}

// Len reports how many prompts are cached.
func (c *PromptCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *PromptCache) load(advisorID string) (string, error) {
	if c.dir != "" {
		if advisorID != filepath.Base(advisorID) {
			return "", fmt.Errorf("invalid advisor id %q", advisorID)
		}
		data, err := os.ReadFile(filepath.Join(c.dir, advisorID+".md"))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read advisor prompt %s: %w", advisorID, err)
		}
	}
	return builtinAdvisorPrompts[advisorID], nil
}
