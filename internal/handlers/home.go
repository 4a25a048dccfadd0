package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

type suggestion struct {
	Label  string
	Prompt string
}

var suggestions = []suggestion{
	{Label: "💡 Explícame qué es la IA", Prompt: "Explícame qué es la inteligencia artificial"},
	{Label: "✨ Escribe un poema", Prompt: "Escribe un poema corto sobre la tecnología"},
	{Label: "💻 Tips de programación", Prompt: "Dame 5 consejos para programar mejor"},
}

type modelOption struct {
	ModelOption
	Selected bool
}

type chatboxData struct {
	Messages    []message
	Suggestions []suggestion
}

type homePageData struct {
	chatboxData

	Models  []modelOption
	Loading bool
}

// HandleHome renders the chat page with the current conversation, or the welcome screen with
// suggestions when the conversation is empty.
func (m *Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s := m.State()

	msgs, err := m.renderMessages(s)
	if err != nil {
		m.logger.Error("Failed to render messages", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := homePageData{
		chatboxData: chatboxData{Messages: msgs},
		Models:      m.modelOptions(s.Model),
		Loading:     s.Loading,
	}
	if len(msgs) == 0 {
		data.Suggestions = suggestions
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// modelOptions returns the selector entries. A selected model missing from the configured list is
// still shown so the selector reflects what the next request uses.
func (m *Main) modelOptions(selected string) []modelOption {
	opts := make([]modelOption, 0, len(m.models)+1)
	found := false
	for _, o := range m.models {
		opts = append(opts, modelOption{ModelOption: o, Selected: o.ID == selected})
		found = found || o.ID == selected
	}
	if !found && selected != "" {
		opts = append(opts, modelOption{ModelOption: ModelOption{ID: selected, Label: selected}, Selected: true})
	}
	return opts
}
