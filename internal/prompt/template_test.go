package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars Vars
		want string
	}{
		{
			name: "placeholders",
			tmpl: "Write the {{kind}} for {{idea_title}}.",
			vars: Vars{"kind": "pricing", "idea_title": "Invoice Ninja"},
			want: "Write the pricing for Invoice Ninja.",
		},
		{
			name: "no placeholders",
			tmpl: "Plain brief.",
			want: "Plain brief.",
		},
		{
			name: "block kept",
			tmpl: "Draft.{{#if feedback}} Fix: {{feedback}}.{{/if}} Go.",
			vars: Vars{"feedback": "cut the jargon"},
			want: "Draft. Fix: cut the jargon. Go.",
		},
		{
			name: "block dropped when unset",
			tmpl: "Draft.{{#if feedback}} Fix: {{feedback}}.{{/if}} Go.",
			want: "Draft. Go.",
		},
		{
			name: "block dropped when empty",
			tmpl: "{{#if feedback}}has feedback{{/if}}",
			vars: Vars{"feedback": ""},
			want: "",
		},
		{
			name: "sibling blocks",
			tmpl: "{{#if audience}}A={{audience}}{{/if}} {{#if channels}}C={{channels}}{{/if}}",
			vars: Vars{"audience": "freelancers"},
			want: "A=freelancers ",
		},
		{
			name: "nested blocks",
			tmpl: "{{#if context}}ctx {{#if history}}hist{{/if}} end{{/if}}",
			vars: Vars{"context": "x", "history": "y"},
			want: "ctx hist end",
		},
		{
			name: "nested blocks outer unset",
			tmpl: "[{{#if context}}ctx {{#if history}}hist{{/if}} end{{/if}}]",
			vars: Vars{"history": "y"},
			want: "[]",
		},
		{
			name: "dropped block does not require its placeholders",
			tmpl: "[{{#if brief}}brief: {{brief}} by {{author}}{{/if}}]",
			want: "[]",
		},
		{
			name: "whitespace inside if tag",
			tmpl: "{{#if brief }}kept{{/if}}|{{#if\nbrief}}kept{{/if}}",
			vars: Vars{"brief": "x"},
			want: "kept|kept",
		},
		{
			name: "values are not expanded again",
			tmpl: "{{a}} and {{b}}",
			vars: Vars{"a": "{{b}}", "b": "{{#if a}}"},
			want: "{{b}} and {{#if a}}",
		},
		{
			name: "value containing an end tag",
			tmpl: "{{#if note}}Note: {{note}}{{/if}} done",
			vars: Vars{"note": "use {{/if}} carefully"},
			want: "Note: use {{/if}} carefully done",
		},
		{
			name: "malformed placeholder left alone",
			tmpl: "{{ idea_title }} {{1st}}",
			want: "{{ idea_title }} {{1st}}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		vars     Vars
		mentions []string
	}{
		{"missing placeholder", "Idea {{idea_title}}, piece {{piece_title}}.", Vars{"idea_title": "x"}, []string{"piece_title"}},
		{"every missing placeholder listed", "{{kind}} {{brief}} {{audience}}", nil, []string{"kind", "brief", "audience"}},
		{"missing inside kept block", "{{#if brief}}{{tone}}{{/if}}", Vars{"brief": "x"}, []string{"tone"}},
		{"unclosed block", "START{{#if brief}}body", Vars{"brief": "x"}, []string{"unclosed", "{{#if brief}}"}},
		{"end tag without opening", "body{{/if}}", nil, []string{"no opening"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.tmpl, tt.vars)
			if err == nil {
				t.Fatal("expected error")
			}
			for _, m := range tt.mentions {
				if !strings.Contains(err.Error(), m) {
					t.Errorf("error %q should mention %q", err, m)
				}
			}
		})
	}
}

func TestBuiltin_FoundationTemplates(t *testing.T) {
	kinds := []string{"strategy", "positioning", "battlecards", "brand-voice", "pricing", "seo-strategy", "product-design"}
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			result, err := LoadAndRender(Foundation(kind), "", Vars{
				"idea_title":   "Invoice Ninja",
				"idea_summary": "Automated invoice chasing for freelancers.",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(result, "Invoice Ninja") {
				t.Errorf("expected idea title in output")
			}
			if !strings.Contains(result, "<updated_document>") {
				t.Errorf("expected document tag instructions in output")
			}
			if strings.Contains(result, "Editor Feedback") {
				t.Errorf("feedback section should be omitted without revision_feedback")
			}
		})
	}
}

func TestBuiltin_RevisionFeedback(t *testing.T) {
	result, err := LoadAndRender(ContentPiece, "", Vars{
		"idea_title":        "Invoice Ninja",
		"idea_summary":      "x",
		"piece_title":       "Why invoices go unpaid",
		"piece_type":        "blog",
		"revision_feedback": "[HIGH] (Skeptic) cite a source",
		"previous_draft":    "old draft body",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"cite a source", "old draft body", "Why invoices go unpaid"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestBuiltin_AdvisorReview(t *testing.T) {
	result, err := LoadAndRender(AdvisorReview, "", Vars{
		"advisor_name":  "Skeptic",
		"advisor_focus": "evidence",
		"document_kind": "pricing",
		"draft":         "$9/month",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "$9/month") || !strings.Contains(result, `"score"`) {
		t.Errorf("unexpected advisor prompt: %q", result)
	}
}

func TestLoadAndRender_MissingVar(t *testing.T) {
	_, err := LoadAndRender(DocumentChat, "", Vars{"document": "d"})
	if err == nil {
		t.Fatal("expected error for missing variables")
	}
	if !strings.Contains(err.Error(), DocumentChat) {
		t.Errorf("error should name the template, got: %v", err)
	}
}

func TestLoad_Override(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ContentPiece), []byte("custom template"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := Load(ContentPiece, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "custom template" {
		t.Errorf("expected 'custom template', got %q", result)
	}

	// Templates without an override still come from the built-ins.
	result, err = Load(AdvisorReview, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != advisorReviewTemplate {
		t.Errorf("expected built-in advisor template")
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load("nonexistent.md", "")
	if err == nil {
		t.Fatal("expected error for missing template")
	}
}

func TestInstall(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ContentPiece), []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	written, err := Install(dir)
	if err != nil {
		t.Fatalf("install error: %v", err)
	}
	if len(written) != len(builtinTemplates)-1 {
		t.Errorf("wrote %d templates, want %d", len(written), len(builtinTemplates)-1)
	}
	for _, name := range Names() {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			t.Errorf("template %q not installed", name)
		}
	}
	data, _ := os.ReadFile(filepath.Join(dir, ContentPiece))
	if string(data) != "mine" {
		t.Errorf("existing override was overwritten: %q", data)
	}

	// Running again writes nothing.
	written, err = Install(dir)
	if err != nil {
		t.Fatalf("second install error: %v", err)
	}
	if len(written) != 0 {
		t.Errorf("second install wrote %v", written)
	}
}

func TestNames_Sorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
	for _, step := range []string{"market", "competitors", "audience", "synthesis"} {
		if _, ok := builtinTemplates[Research(step)]; !ok {
			t.Errorf("missing research template for %q", step)
		}
	}
}

// Neither a relative escape nor an absolute name can read outside the
// override dir.
func TestLoad_StaysInsideOverrideDir(t *testing.T) {
	tmpDir := t.TempDir()
	overrides := filepath.Join(tmpDir, "templates")
	if err := os.MkdirAll(overrides, 0o755); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(tmpDir, "credentials.txt")
	if err := os.WriteFile(secret, []byte("sk-live"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"../credentials.txt", secret} {
		if content, err := Load(name, overrides); err == nil {
			t.Errorf("Load(%q) read outside the override dir: %q", name, content)
		}
	}
}

// Optional chat history is gated on its own variable.
func TestRender_DocumentChatWithoutHistory(t *testing.T) {
	result, err := LoadAndRender(DocumentChat, "", Vars{
		"document_kind": "positioning",
		"document":      "current text",
		"message":       "make it punchier",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(result, "Conversation So Far") {
		t.Errorf("history section should be omitted: %q", result)
	}
	if !strings.Contains(result, "make it punchier") {
		t.Errorf("expected message in output")
	}
}
