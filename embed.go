package llamawebui

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the chat page. These templates
// are organized in a directory structure that separates layouts, pages, and partial views.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded stylesheet and script of the chat page.
//
//go:embed static/*
var StaticFS embed.FS
