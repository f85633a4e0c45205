package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/catalog"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Title           string
	Heading         string
	States          []catalog.State
	Variables       []catalog.Variable
	DefaultState    string
	DefaultVariable string
	GithubURL       string
	SourceURL       string
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data := pageData{
		Title:           h.opts.SiteTitle,
		Heading:         "USA Census 2017",
		DefaultState:    catalog.DefaultState,
		DefaultVariable: catalog.DefaultVariable,
		GithubURL:       h.opts.GithubURL,
		SourceURL:       h.opts.SourceURL,
	}
	if h.data != nil {
		data.States = h.data.Catalog.States()
		data.Variables = h.data.Catalog.Variables()
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		zap.L().Error("dashboard: render index", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
