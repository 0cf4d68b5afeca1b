package mcpserver

// NoteFormatContract describes the Markdown accepted by create_note and
// produced by read_note.
const NoteFormatContract = `# Note Format Contract

A note is a Markdown document with an optional YAML frontmatter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – falls back to the first H1, then the tool's title argument
category: Work                      # OPTIONAL – created if missing; at most 30 characters
color: "#ffcc00"                    # OPTIONAL – any CSS colour string
tags:                               # OPTIONAL – YAML list or comma-separated string
  - tag-one
  - tag-two
---

Body text in standard Markdown. Inline #hashtags are added to the tags.
` + "```" + `

## Rules

1. The ` + "```" + `---` + "```" + ` fences must be the first thing in the document.
2. Everything after the closing fence becomes the note content verbatim.
3. **Categories** are compared case-sensitively when assigned and must not be blank.
4. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `, ` + "`" + `meeting-notes` + "`" + `).
5. ` + "`" + `favorite` + "`" + `, ` + "`" + `archived` + "`" + `, ` + "`" + `created` + "`" + ` and ` + "`" + `updated` + "`" + `
   appear in read_note output but are ignored on create.
6. **Encoding** is UTF-8.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
category: Meetings
tags:
  - meeting-notes
  - project-x
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob. #standup

## Action items

- Alice to review the design doc
- Bob to update the roadmap
` + "```" + `
`
