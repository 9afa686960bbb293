package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/db"
	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
	natspkg "github.com/brojonat/txexplorer/service/nats"
)

// BackfillInput contains the input parameters for a tip backfill run.
type BackfillInput struct {
	Networks  []string      `json:"networks"`  // Empty means every supported network
	Retention time.Duration `json:"retention"` // Zero disables pruning
}

// BackfillResult contains the result of a tip backfill run.
type BackfillResult struct {
	Online   []string  `json:"online"`
	TipCount int       `json:"tip_count"`
	Written  int       `json:"written"`
	Skipped  int       `json:"skipped"` // Already archived
	Pruned   int64     `json:"pruned"`
	PollTime time.Time `json:"poll_time"`
	Error    *string   `json:"error,omitempty"`
}

// FetchNetworkTipsInput contains parameters for the FetchNetworkTips activity.
type FetchNetworkTipsInput struct {
	Networks []string `json:"networks"`
}

// FetchNetworkTipsResult contains the newest block of every online network.
type FetchNetworkTipsResult struct {
	Blocks  []explorer.LiveBlock `json:"blocks"`
	Offline []string             `json:"offline"`
}

// GetArchivedBlockHashesInput contains parameters for the
// GetArchivedBlockHashes activity.
type GetArchivedBlockHashesInput struct {
	Limit int32 `json:"limit"`
}

// GetArchivedBlockHashesResult holds "network/hash" keys of recently
// archived blocks.
type GetArchivedBlockHashesResult struct {
	Keys []string `json:"keys"`
}

// WriteBlocksInput contains parameters for the WriteBlocks activity.
type WriteBlocksInput struct {
	Blocks []explorer.LiveBlock `json:"blocks"`
}

// WriteBlocksResult contains the result of writing blocks.
type WriteBlocksResult struct {
	Written int `json:"written"`
}

// PruneArchiveInput contains parameters for the PruneArchive activity.
type PruneArchiveInput struct {
	Retention time.Duration `json:"retention"`
}

// PruneArchiveResult contains the result of pruning the archive.
type PruneArchiveResult struct {
	Deleted int64 `json:"deleted"`
}

// APIInterface defines the upstream calls needed by activities.
// This allows for easy mocking in tests.
type APIInterface interface {
	NetworkInfo(ctx context.Context) (map[string]client.NetworkStatus, error)
	RPCBlock(ctx context.Context, network, hash string) (*client.Block, error)
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	ListRecentBlocks(ctx context.Context, params db.ListRecentParams) ([]*db.ArchivedBlock, error)
	UpsertBlock(ctx context.Context, b explorer.LiveBlock) (*db.ArchivedBlock, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishBatch(ctx context.Context, msgs []*natspkg.FeedMessage) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	api       APIInterface
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// The publisher and metrics are optional.
func NewActivities(api APIInterface, store StoreInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		api:       api,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) observe(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}

// FetchNetworkTips reads the network status and fetches the tip block of
// every requested network that reports one. Networks missing from the
// status are offline; a tip whose block lookup fails is skipped.
func (a *Activities) FetchNetworkTips(ctx context.Context, input FetchNetworkTipsInput) (*FetchNetworkTipsResult, error) {
	defer a.observe("FetchNetworkTips", time.Now())

	networks, err := parseNetworks(input.Networks)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidNetwork", err)
	}

	status, err := a.api.NetworkInfo(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch network status", "error", err)
		return nil, fmt.Errorf("failed to fetch network status: %w", err)
	}

	result := &FetchNetworkTipsResult{}
	for _, n := range networks {
		st, ok := status[string(n)]
		if !ok || st.BestBlockHash == "" {
			result.Offline = append(result.Offline, string(n))
			continue
		}

		block, err := a.api.RPCBlock(ctx, string(n), st.BestBlockHash)
		if err != nil {
			a.logger.WarnContext(ctx, "failed to fetch tip block, skipping",
				"network", n,
				"hash", st.BestBlockHash,
				"error", err,
			)
			continue
		}

		result.Blocks = append(result.Blocks, explorer.LiveBlock{
			Hash:       block.Hash,
			Height:     block.Height,
			Network:    n,
			Time:       block.Time,
			MedianTime: block.MedianTime,
			TxCount:    block.TxCount(),
		})
	}

	a.logger.InfoContext(ctx, "fetched network tips",
		"tips", len(result.Blocks),
		"offline", result.Offline,
	)
	return result, nil
}

// GetArchivedBlockHashes lists the most recently archived blocks so the
// workflow can skip tips already written.
func (a *Activities) GetArchivedBlockHashes(ctx context.Context, input GetArchivedBlockHashesInput) (*GetArchivedBlockHashesResult, error) {
	defer a.observe("GetArchivedBlockHashes", time.Now())

	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}

	blocks, err := a.store.ListRecentBlocks(ctx, db.ListRecentParams{Limit: limit})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list archived blocks", "error", err)
		return nil, fmt.Errorf("failed to list archived blocks: %w", err)
	}

	result := &GetArchivedBlockHashesResult{Keys: make([]string, 0, len(blocks))}
	for _, b := range blocks {
		result.Keys = append(result.Keys, blockKey(b.Network, b.Hash))
	}
	return result, nil
}

// WriteBlocks archives the given blocks and republishes them to NATS.
// A publish failure is logged; the blocks stay archived.
func (a *Activities) WriteBlocks(ctx context.Context, input WriteBlocksInput) (*WriteBlocksResult, error) {
	defer a.observe("WriteBlocks", time.Now())

	written := make(map[explorer.Network]int)
	msgs := make([]*natspkg.FeedMessage, 0, len(input.Blocks))
	for i := range input.Blocks {
		b := input.Blocks[i]
		if _, err := a.store.UpsertBlock(ctx, b); err != nil {
			a.logger.ErrorContext(ctx, "failed to write block",
				"network", b.Network,
				"hash", b.Hash,
				"error", err,
			)
			return nil, fmt.Errorf("failed to write block %s: %w", b.Hash, err)
		}
		written[b.Network]++
		msgs = append(msgs, natspkg.FromUpdate(explorer.FeedUpdate{Type: "block", Block: &b}))
	}

	if a.publisher != nil && len(msgs) > 0 {
		if err := a.publisher.PublishBatch(ctx, msgs); err != nil {
			a.logger.WarnContext(ctx, "failed to publish backfilled blocks",
				"count", len(msgs),
				"error", err,
			)
		}
	}

	if a.metrics != nil {
		for n, count := range written {
			a.metrics.RecordBlocksBackfilled(string(n), count)
		}
	}

	a.logger.InfoContext(ctx, "wrote backfilled blocks", "count", len(msgs))
	return &WriteBlocksResult{Written: len(msgs)}, nil
}

// PruneArchive deletes archived entries not seen within the retention.
func (a *Activities) PruneArchive(ctx context.Context, input PruneArchiveInput) (*PruneArchiveResult, error) {
	defer a.observe("PruneArchive", time.Now())

	if input.Retention <= 0 {
		return &PruneArchiveResult{}, nil
	}

	deleted, err := a.store.DeleteOlderThan(ctx, time.Now().Add(-input.Retention))
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to prune archive", "error", err)
		return nil, fmt.Errorf("failed to prune archive: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecordArchivePruned(deleted)
	}

	a.logger.InfoContext(ctx, "pruned archive",
		"retention", input.Retention,
		"deleted", deleted,
	)
	return &PruneArchiveResult{Deleted: deleted}, nil
}

// parseNetworks validates network ids. An empty list means every network.
func parseNetworks(ids []string) ([]explorer.Network, error) {
	if len(ids) == 0 {
		return explorer.Networks, nil
	}
	networks := make([]explorer.Network, 0, len(ids))
	for _, id := range ids {
		n, err := explorer.ParseNetwork(id)
		if err != nil {
			return nil, err
		}
		networks = append(networks, n)
	}
	return networks, nil
}

func blockKey(network, hash string) string {
	return network + "/" + hash
}
