// Package parser turns Markdown documents into note drafts and back.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/notesync/internal/models"
	"gopkg.in/yaml.v3"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Tags        []string
	Title       string
	Category    string
	Color       string
}

// Parse extracts frontmatter, body, tags, and the note fields carried in
// frontmatter from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
		Category:    stringField(fm, "category"),
		Color:       stringField(fm, "color"),
	}, nil
}

// Draft converts the result into a note draft. fallbackTitle is used when
// the document has neither a title field nor an H1.
func (r *Result) Draft(fallbackTitle string) models.NoteDraft {
	d := models.NoteDraft{
		Title:   r.Title,
		Content: r.Body,
		Color:   r.Color,
		Tags:    r.Tags,
	}
	if d.Title == "" {
		d.Title = fallbackTitle
	}
	if r.Category != "" {
		d.Category = models.StringPtr(r.Category)
	}
	return d
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	// Find end delimiter.
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, treat everything as body.
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	// Body starts after closing delimiter line.
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep the whole document as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if fm != nil {
		switch v := fm["tags"].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s := stringField(fm, "title"); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func stringField(fm map[string]interface{}, key string) string {
	if fm == nil {
		return ""
	}
	s, _ := fm[key].(string)
	return strings.TrimSpace(s)
}

// frontmatter is the field order Render writes.
type frontmatter struct {
	Title    string   `yaml:"title"`
	Category string   `yaml:"category,omitempty"`
	Color    string   `yaml:"color,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Favorite bool     `yaml:"favorite,omitempty"`
	Archived bool     `yaml:"archived,omitempty"`
	Created  string   `yaml:"created"`
	Updated  string   `yaml:"updated"`
}

// Render writes a note as Markdown with a YAML frontmatter block. Parse of the
// output yields the same title, category, color and tags.
func Render(n models.Note) ([]byte, error) {
	fm := frontmatter{
		Title:    n.Title,
		Category: n.CategoryName(),
		Color:    n.Color,
		Tags:     n.Tags,
		Favorite: n.IsFavorite,
		Archived: n.IsArchived,
		Created:  n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Updated:  n.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: render frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n")
	buf.WriteString(n.Content)
	if !strings.HasSuffix(n.Content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
