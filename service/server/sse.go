package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
)

// keepaliveInterval is how often an idle stream gets a comment line.
var keepaliveInterval = 10 * time.Second

// handleStream relays applied live feed updates as server-sent events.
// An optional network query parameter limits the stream to one network.
// GET /api/v1/stream?network={network}
func handleStream(feed *explorer.Feed, buffer int, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var filter explorer.Network
		if raw := r.URL.Query().Get("network"); raw != "" {
			n, err := explorer.ParseNetwork(raw)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			filter = n
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		updates, cancel := feed.Listen(buffer)
		defer cancel()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		desc := "all networks"
		if filter != "" {
			desc = string(filter)
		}
		logger.DebugContext(r.Context(), "SSE client connected",
			"networks", desc,
			"remote_addr", r.RemoteAddr,
		)

		// Send initial connection event
		fmt.Fprintf(w, "event: connected\ndata: {\"networks\":%q}\n\n", desc)
		flusher.Flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case update, ok := <-updates:
				if !ok {
					return
				}
				if filter != "" && update.Network() != filter {
					continue
				}
				data, err := json.Marshal(update)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal update", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, data)
				flusher.Flush()
				if m != nil {
					m.RecordSSEEventSent(string(update.Network()), update.Type)
				}

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"networks", desc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
