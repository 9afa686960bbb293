package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultFeedURL is the public live feed.
const DefaultFeedURL = "https://sock-v1.freedom.st/sse"

// Stream is a server-sent-event subscription to the live feed. It
// reconnects after connection errors until its context is cancelled.
type Stream struct {
	url            string
	httpClient     *http.Client
	reconnectDelay time.Duration
	logger         *slog.Logger
}

// NewStream creates a live feed subscription. A zero reconnectDelay
// defaults to three seconds.
func NewStream(feedURL string, reconnectDelay time.Duration, logger *slog.Logger) *Stream {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Stream{
		url: feedURL,
		httpClient: &http.Client{
			Timeout: 0, // No timeout for streaming
		},
		reconnectDelay: reconnectDelay,
		logger:         logger,
	}
}

// Run connects to the feed and calls handle for every decoded event. Events
// whose payload does not parse are dropped. Run blocks until ctx is done and
// then returns ctx.Err(). onOpen, if non-nil, is called after every
// successful connect.
func (s *Stream) Run(ctx context.Context, onOpen func(), handle func(FeedEvent)) error {
	for {
		err := s.connect(ctx, onOpen, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("live feed disconnected", "url", s.url, "error", err)

		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Stream) connect(ctx context.Context, onOpen func(), handle func(FeedEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	s.logger.Info("connected to live feed", "url", s.url)
	if onOpen != nil {
		onOpen()
	}

	return readEvents(resp.Body, func(data string) {
		var event FeedEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			s.logger.Debug("dropping malformed feed event", "error", err)
			return
		}
		handle(event)
	})
}

// readEvents parses an SSE body and calls dispatch with the data of every
// complete event. Multiple data lines are joined with newlines; comments and
// other fields are ignored.
func readEvents(r io.Reader, dispatch func(data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if len(data) > 0 {
				dispatch(strings.Join(data, "\n"))
			}
			data = data[:0]
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			value := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return io.EOF
}
