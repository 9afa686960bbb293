package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/txexplorer/service/metrics"
)

// Publisher defines the interface for publishing live feed updates to NATS.
type Publisher interface {
	// PublishUpdate publishes a single feed message to JetStream.
	// The message is published to the subject "feed.{network}.{type}".
	PublishUpdate(ctx context.Context, msg *FeedMessage) error

	// PublishBatch publishes multiple feed messages.
	PublishBatch(ctx context.Context, msgs []*FeedMessage) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes feed messages to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for feed messages.
	StreamName = "EXPLORER_FEED"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "feed.>"

	// StreamRetention is how long messages are retained (7 days by default).
	StreamRetention = 7 * 24 * time.Hour

	// DuplicateWindow is how long JetStream remembers message ids, so a
	// transaction re-announced after a feed reconnect is stored once.
	DuplicateWindow = 10 * time.Minute
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("txexplorer-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	// Ensure stream exists
	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// WithMetrics attaches publish metrics.
func (p *JetStreamPublisher) WithMetrics(m *metrics.Metrics) *JetStreamPublisher {
	p.metrics = m
	return p
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Live transactions and blocks from the explorer feed",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Duplicates:  DuplicateWindow,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishUpdate publishes a single feed message.
func (p *JetStreamPublisher) PublishUpdate(ctx context.Context, msg *FeedMessage) error {
	subject := msg.Subject()
	start := time.Now()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal feed message: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msg.ID()))
	p.record(subject, err, start)
	if err != nil {
		return fmt.Errorf("failed to publish feed message: %w", err)
	}

	p.logger.Debug("published feed message",
		"subject", subject,
		"id", msg.ID(),
	)

	return nil
}

// PublishBatch publishes multiple feed messages. Failures are logged and do
// not stop the rest of the batch.
func (p *JetStreamPublisher) PublishBatch(ctx context.Context, msgs []*FeedMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	for _, msg := range msgs {
		if err := p.PublishUpdate(ctx, msg); err != nil {
			p.logger.Error("failed to publish feed message in batch",
				"id", msg.ID(),
				"error", err,
			)
			continue
		}
	}

	p.logger.Debug("published feed batch", "count", len(msgs))
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

func (p *JetStreamPublisher) record(subject string, err error, start time.Time) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
}
