package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"avatarsynth/internal/synthesis"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	Text      string
	Voice     string
	Character string
	Style     string
}

// Index renders the landing page prefilled with the configured avatar defaults.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) error {
	o := h.synth.Options(synthesis.Input{})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return indexTmpl.Execute(w, indexPage{
		Text:      o.Text,
		Voice:     o.Voice,
		Character: o.Character,
		Style:     o.Style,
	})
}
