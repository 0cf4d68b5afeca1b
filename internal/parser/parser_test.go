package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/notesync/internal/models"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ncategory: Work\ncolor: \"#ffcc00\"\ntags:\n  - go\n  - notes\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "notes" {
		t.Errorf("tags = %v, want [go notes]", r.Tags)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	if r.Category != "Work" || r.Color != "#ffcc00" {
		t.Errorf("category = %q, color = %q", r.Category, r.Color)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Invalid YAML falls back to treating everything as body.
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestExtractTags_InlineAndCommaList(t *testing.T) {
	fm := map[string]interface{}{"tags": "a, b"}
	tags := extractTags("text #b and #c-d\n#e", fm)
	want := []string{"a", "b", "c-d", "e"}
	if strings.Join(tags, ",") != strings.Join(want, ",") {
		t.Errorf("tags = %v, want %v", tags, want)
	}
}

func TestDraft(t *testing.T) {
	r, _ := Parse([]byte("no heading here #todo\n"))
	d := r.Draft("fallback")
	if d.Title != "fallback" {
		t.Errorf("title = %q", d.Title)
	}
	if d.Category != nil {
		t.Errorf("category = %v, want nil", *d.Category)
	}
	if len(d.Tags) != 1 || d.Tags[0] != "todo" {
		t.Errorf("tags = %v", d.Tags)
	}

	r, _ = Parse([]byte("---\ncategory: Home\n---\n# Groceries\n"))
	d = r.Draft("x")
	if d.Title != "Groceries" || d.Category == nil || *d.Category != "Home" {
		t.Errorf("draft = %+v", d)
	}
}

func TestRender_RoundTrip(t *testing.T) {
	n := models.Note{
		ID:        "1",
		Title:     "Trip",
		Content:   "Pack #travel bags",
		Category:  models.StringPtr("Home"),
		Color:     "blue",
		Tags:      []string{"travel"},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	out, err := Render(n)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "---\ntitle: Trip\n") {
		t.Errorf("unexpected header: %q", out)
	}
	r, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if r.Title != "Trip" || r.Category != "Home" || r.Color != "blue" {
		t.Errorf("parsed = %+v", r)
	}
	if len(r.Tags) != 1 || r.Tags[0] != "travel" {
		t.Errorf("tags = %v", r.Tags)
	}
	if r.Body != "Pack #travel bags\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{
		"tags": []any{"alpha"},
	}
	body := "Some text #beta and #alpha again."
	tags := extractTags(body, fm)
	// alpha from FM, beta from body; alpha not duplicated.
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	fm := map[string]any{"title": "FM Title"}
	title := deriveTitle(fm, "# H1 Title\ntext")
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}
