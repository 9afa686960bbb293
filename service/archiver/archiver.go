package archiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/txexplorer/service/db"
	"github.com/brojonat/txexplorer/service/explorer"
	natspkg "github.com/brojonat/txexplorer/service/nats"
)

// Store is the archive the archiver writes to. *db.Store implements it.
type Store interface {
	UpsertTransaction(ctx context.Context, tx explorer.LiveTransaction) (*db.ArchivedTransaction, error)
	UpsertBlock(ctx context.Context, b explorer.LiveBlock) (*db.ArchivedBlock, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Archiver persists applied feed updates and republishes them on NATS.
type Archiver struct {
	store     Store
	publisher natspkg.Publisher
	retention time.Duration
	logger    *slog.Logger
}

// New creates an archiver. publisher may be nil to archive without
// republishing.
func New(store Store, publisher natspkg.Publisher, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Archiver{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// WithRetention makes Run prune entries not seen for d. Zero keeps
// everything.
func (a *Archiver) WithRetention(d time.Duration) *Archiver {
	a.retention = d
	return a
}

// Handle archives one update and then publishes it. A failed write is
// returned without publishing.
func (a *Archiver) Handle(ctx context.Context, u explorer.FeedUpdate) error {
	switch {
	case u.Transaction != nil:
		if _, err := a.store.UpsertTransaction(ctx, *u.Transaction); err != nil {
			return fmt.Errorf("failed to archive transaction %s: %w", u.Transaction.TxID, err)
		}
	case u.Block != nil:
		if _, err := a.store.UpsertBlock(ctx, *u.Block); err != nil {
			return fmt.Errorf("failed to archive block %s: %w", u.Block.Hash, err)
		}
	default:
		return errors.New("update carries no entry")
	}

	if a.publisher == nil {
		return nil
	}
	msg := natspkg.FromUpdate(u)
	if err := a.publisher.PublishUpdate(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.ID(), err)
	}
	return nil
}

// Run handles updates until ctx is done or updates is closed. Failures are
// logged and do not stop the loop.
func (a *Archiver) Run(ctx context.Context, updates <-chan explorer.FeedUpdate) error {
	var prune <-chan time.Time
	if a.retention > 0 {
		ticker := time.NewTicker(pruneInterval(a.retention))
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := a.Handle(ctx, u); err != nil {
				a.logger.Error("failed to archive update",
					"type", u.Type,
					"network", u.Network(),
					"error", err,
				)
				continue
			}
			a.logger.Debug("archived update", "type", u.Type, "network", u.Network())

		case <-prune:
			if _, err := a.Prune(ctx); err != nil {
				a.logger.Error("failed to prune archive", "error", err)
			}
		}
	}
}

// Prune deletes entries older than the retention window.
func (a *Archiver) Prune(ctx context.Context) (int64, error) {
	if a.retention <= 0 {
		return 0, nil
	}
	deleted, err := a.store.DeleteOlderThan(ctx, time.Now().Add(-a.retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		a.logger.Info("pruned archive", "deleted", deleted, "retention", a.retention)
	}
	return deleted, nil
}

// pruneInterval checks ten times per retention window, at most hourly.
func pruneInterval(retention time.Duration) time.Duration {
	interval := retention / 10
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
