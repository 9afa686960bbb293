package server

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/explorer"
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
	tmpl, err := template.New("base.html").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render executes the layout for data and writes it with the given status.
// Nothing is written if the template fails.
func (tr *TemplateRenderer) Render(w http.ResponseWriter, status int, data *pageData) error {
	var buf bytes.Buffer
	if err := tr.templates.ExecuteTemplate(&buf, "base.html", data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount": func(d decimal.Decimal, n explorer.Network, rates client.Rates) string {
			return explorer.FormatAmount(d, n, rates).String()
		},
		"network": func(s string) explorer.Network {
			n, _ := explorer.ParseNetwork(s)
			return n
		},
		"count": func(v int64) string {
			return explorer.FormatNumber(float64(v))
		},
		"difficulty": explorer.FormatNumber,
		"bytes":      explorer.FormatBytes,
		"blocktime":  explorer.FormatBlockTime,
		"time":       explorer.FormatTime,
		"short":      explorer.ShortID,
		"txpath": func(txid string, n explorer.Network) string {
			return withNetwork(explorer.TransactionRoute(txid).Path(), n)
		},
		"blockpath": func(hash string, n explorer.Network) string {
			return withNetwork(explorer.BlockRoute(hash).Path(), n)
		},
		"addresspath": func(addr string) string {
			return explorer.AddressRoute(addr).Path()
		},
	}
}
