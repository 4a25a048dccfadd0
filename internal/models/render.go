package models

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// TypingPlaceholder is shown in place of an assistant message that has not received any content yet.
const TypingPlaceholder = "●●●"

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// RenderMarkdown renders assistant content into HTML. Raw HTML inside the content is omitted by the
// renderer, so the result is safe to embed in the page. Empty content renders as TypingPlaceholder.
func RenderMarkdown(content string) (template.HTML, error) {
	if content == "" {
		content = TypingPlaceholder
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	//nolint:gosec // goldmark drops raw HTML unless WithUnsafe is set.
	return template.HTML(buf.String()), nil
}

// RenderMessage renders the body of a message: markdown for the assistant, escaped text for the user.
func RenderMessage(m Message) (template.HTML, error) {
	if m.Role == RoleAssistant {
		return RenderMarkdown(m.Content)
	}
	return template.HTML("<p>" + template.HTMLEscapeString(m.Content) + "</p>"), nil //nolint:gosec // escaped above.
}
