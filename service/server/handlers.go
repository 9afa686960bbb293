package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
)

// statusClientClosedRequest marks responses abandoned because the client
// went away mid-resolution. Nothing reads the body.
const statusClientClosedRequest = 499

// networkRow is one line of the home page status table.
type networkRow struct {
	Network explorer.Network
	Online  bool
	Status  client.NetworkStatus
}

// pageData is everything a template can show.
type pageData struct {
	Page         explorer.Page
	Networks     []networkRow
	StatusErr    string
	Blocks       []explorer.LiveBlock
	Transactions []explorer.LiveTransaction
	Rates        client.Rates
	Query        string
	Error        string
}

// Kind names the template that renders the page body.
func (d *pageData) Kind() string {
	return d.Page.Kind().String()
}

// newPageData fills the shared parts of a page from the controller.
func newPageData(ctrl *explorer.Controller, page explorer.Page) *pageData {
	state := ctrl.State()
	data := &pageData{
		Page:  page,
		Rates: state.Rates,
	}
	if state.StatusErr != nil {
		data.StatusErr = state.StatusErr.Error()
	}
	if page.Kind() == explorer.RouteHome {
		for _, n := range explorer.Networks {
			st, ok := state.Status[string(n)]
			data.Networks = append(data.Networks, networkRow{Network: n, Online: ok, Status: st})
		}
		data.Blocks = ctrl.LatestBlocks()
		data.Transactions = ctrl.LatestTransactions()
	}
	return data
}

// handleHome renders the network status, latest blocks and latest
// transactions.
// GET /
func handleHome(ctrl *explorer.Controller, renderer *TemplateRenderer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := newPageData(ctrl, explorer.NewPage(explorer.HomeRoute))
		if err := renderer.Render(w, http.StatusOK, data); err != nil {
			logger.Error("failed to render home page", "error", err)
		}
	})
}

// handlePage resolves an entity route using the fragment grammar.
// GET /{kind}/{id}?network={network}
func handlePage(ctrl *explorer.Controller, resolver *explorer.Resolver, renderer *TemplateRenderer, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := explorer.ParseFragment(r.PathValue("kind") + "/" + r.PathValue("id"))

		// An unknown or missing hint is the same as no hint.
		hint, _ := explorer.ParseNetwork(r.URL.Query().Get("network"))

		page := explorer.NewPage(explorer.NotFoundRoute)
		if route.Kind != explorer.RouteNotFound {
			var err error
			page, err = resolver.Resolve(r.Context(), route, hint)
			if err != nil {
				logger.DebugContext(r.Context(), "page resolution cancelled", "route", route.Path(), "error", err)
				w.WriteHeader(statusClientClosedRequest)
				return
			}
		}
		if m != nil {
			m.RecordPage(route.Kind.String(), page.Kind().String())
		}

		status := http.StatusOK
		if page.Kind() == explorer.RouteNotFound {
			status = http.StatusNotFound
		}
		logger.DebugContext(r.Context(), "page resolved",
			"requested", route.Kind.String(),
			"shown", page.Kind().String(),
			"id", route.ID,
		)
		if err := renderer.Render(w, status, newPageData(ctrl, page)); err != nil {
			logger.Error("failed to render page", "route", route.Path(), "error", err)
		}
	})
}

// handleSearch classifies a free-text query and redirects to the entity
// it names. Malformed queries re-render Home with the format error.
// GET /search?q={query}
func handleSearch(ctrl *explorer.Controller, resolver *explorer.Resolver, renderer *TemplateRenderer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		switch explorer.ClassifyQuery(query) {
		case explorer.QueryAddress:
			http.Redirect(w, r, explorer.AddressRoute(query).Path(), http.StatusSeeOther)
			return

		case explorer.QueryHash:
			network, found, err := resolver.IsTransaction(r.Context(), query)
			if err != nil {
				logger.DebugContext(r.Context(), "search cancelled", "query", query, "error", err)
				w.WriteHeader(statusClientClosedRequest)
				return
			}
			if found {
				http.Redirect(w, r, withNetwork(explorer.TransactionRoute(query).Path(), network), http.StatusSeeOther)
				return
			}
			view, err := resolver.ProbeBlock(r.Context(), query)
			if err == nil {
				http.Redirect(w, r, withNetwork(explorer.BlockRoute(query).Path(), view.Network), http.StatusSeeOther)
				return
			}
			if !errors.Is(err, explorer.ErrNotFound) {
				logger.DebugContext(r.Context(), "search cancelled", "query", query, "error", err)
				w.WriteHeader(statusClientClosedRequest)
				return
			}
			if err := renderer.Render(w, http.StatusNotFound, newPageData(ctrl, explorer.NewPage(explorer.NotFoundRoute))); err != nil {
				logger.Error("failed to render page", "error", err)
			}
			return
		}

		searchErr := &explorer.SearchError{Query: query}
		data := newPageData(ctrl, explorer.NewPage(explorer.HomeRoute))
		data.Query = query
		data.Error = searchErr.Error()
		if err := renderer.Render(w, http.StatusBadRequest, data); err != nil {
			logger.Error("failed to render home page", "error", err)
		}
	})
}

type feedResponse struct {
	Transactions []explorer.LiveTransaction `json:"transactions"`
	Blocks       []explorer.LiveBlock       `json:"blocks"`
}

// handleFeedSnapshot returns both live buffers.
// GET /api/v1/feed
func handleFeedSnapshot(ctrl *explorer.Controller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := feedResponse{
			Transactions: ctrl.LatestTransactions(),
			Blocks:       ctrl.LatestBlocks(),
		}
		if resp.Transactions == nil {
			resp.Transactions = []explorer.LiveTransaction{}
		}
		if resp.Blocks == nil {
			resp.Blocks = []explorer.LiveBlock{}
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

type healthResponse struct {
	Status   string   `json:"status"`
	Online   []string `json:"online"`
	Upstream string   `json:"upstream,omitempty"`
}

// handleHealth reports the server as up and lists the networks the last
// status snapshot saw online.
// GET /health
func handleHealth(ctrl *explorer.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := ctrl.State()
		resp := healthResponse{Status: "ok", Online: []string{}}
		for _, n := range explorer.Networks {
			if _, ok := state.Status[string(n)]; ok {
				resp.Online = append(resp.Online, string(n))
			}
		}
		if state.StatusErr != nil {
			resp.Upstream = state.StatusErr.Error()
		}
		writeJSON(w, resp, http.StatusOK)
	}
}

func withNetwork(path string, n explorer.Network) string {
	if n == "" {
		return path
	}
	return path + "?network=" + url.QueryEscape(string(n))
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
