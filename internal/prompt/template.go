package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// tagRe matches {{#if name}}, {{/if}} and {{name}}.
var tagRe = regexp.MustCompile(`\{\{(?:#if\s+([a-zA-Z_]\w*)\s*|(/if)|([a-zA-Z_]\w*))\}\}`)

// Vars maps placeholder names to their values.
type Vars map[string]string

// Render fills a prompt template in one pass. {{name}} takes the value of
// name and is an error when name is unset. {{#if name}}...{{/if}} keeps its
// body only when name is non-empty; blocks nest. Values are inserted as-is
// and never expanded again.
func Render(tmpl string, vars Vars) (string, error) {
	type block struct {
		tag  string
		keep bool
	}
	var (
		out     strings.Builder
		open    []block
		missing []string
		last    int
	)
	keeping := func() bool {
		return len(open) == 0 || open[len(open)-1].keep
	}

	for _, loc := range tagRe.FindAllStringSubmatchIndex(tmpl, -1) {
		if keeping() {
			out.WriteString(tmpl[last:loc[0]])
		}
		last = loc[1]

		switch {
		case loc[2] >= 0:
			name := tmpl[loc[2]:loc[3]]
			open = append(open, block{tag: tmpl[loc[0]:loc[1]], keep: keeping() && vars[name] != ""})
		case loc[4] >= 0:
			if len(open) == 0 {
				return "", fmt.Errorf("{{/if}} at offset %d has no opening {{#if}}", loc[0])
			}
			open = open[:len(open)-1]
		default:
			if !keeping() {
				continue
			}
			name := tmpl[loc[6]:loc[7]]
			if v, ok := vars[name]; ok {
				out.WriteString(v)
			} else {
				missing = append(missing, name)
			}
		}
	}
	if len(open) > 0 {
		return "", fmt.Errorf("unclosed conditional block: %s", open[len(open)-1].tag)
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	out.WriteString(tmpl[last:])
	return out.String(), nil
}

// Load returns the template called name. A file of the same name inside
// overrideDir takes precedence over the built-in copy.
func Load(name string, overrideDir string) (string, error) {
	if overrideDir != "" {
		path := filepath.Join(overrideDir, name)
		absPath, err := filepath.Abs(path)
		if err == nil {
			absDir, err2 := filepath.Abs(overrideDir)
			if err2 == nil && !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
				return "", fmt.Errorf("template path %q escapes %s", name, overrideDir)
			}
		}
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}

	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}
	return tmpl, nil
}

// LoadAndRender loads a template and expands it in one step.
func LoadAndRender(name, overrideDir string, vars Vars) (string, error) {
	tmpl, err := Load(name, overrideDir)
	if err != nil {
		return "", err
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

// Names lists the built-in template names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtinTemplates))
	for name := range builtinTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install writes the built-in templates into dir so they can be edited as
// overrides. Existing files are left alone. It returns the names written.
func Install(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	var written []string
	for _, name := range Names() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue // don't overwrite existing
		}
		if err := os.WriteFile(path, []byte(builtinTemplates[name]), 0o644); err != nil {
			return written, fmt.Errorf("write template %q: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}
