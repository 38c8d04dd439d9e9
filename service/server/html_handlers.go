package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/flowtip/service/failure"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

// handleTipPage serves a page with a creator's tip link, QR code and a live
// feed of incoming tips.
// GET /tip/{handle}?amount={amount}
func handleTipPage(renderer *TemplateRenderer, lookup ProfileLookup, chain ChainInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, profile, err := resolveTipLink(r, lookup, chain)
		if err != nil {
			fe := failure.From(err)
			http.Error(w, fe.Message, fe.HTTPStatus())
			return
		}

		data := map[string]interface{}{
			"Link": link,
			// solana: is not a scheme html/template trusts
			"PaymentURL": template.URL(link.PaymentURL),
			"TipCount":   profile.TipCount,
		}
		if err := renderer.Render(w, "tip.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
