package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/db"
	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
	natspkg "github.com/brojonat/txexplorer/service/nats"
)

// Mock upstream API
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) NetworkInfo(ctx context.Context) (map[string]client.NetworkStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]client.NetworkStatus), args.Error(1)
}

func (m *MockAPI) RPCBlock(ctx context.Context, network, hash string) (*client.Block, error) {
	args := m.Called(ctx, network, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Block), args.Error(1)
}

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListRecentBlocks(ctx context.Context, params db.ListRecentParams) ([]*db.ArchivedBlock, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.ArchivedBlock), args.Error(1)
}

func (m *MockStore) UpsertBlock(ctx context.Context, b explorer.LiveBlock) (*db.ArchivedBlock, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.ArchivedBlock), args.Error(1)
}

func (m *MockStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestActivities_FetchNetworkTips(t *testing.T) {
	status := map[string]client.NetworkStatus{
		"btc":  {Blocks: 850000, BestBlockHash: "btc-tip"},
		"ltc":  {Blocks: 2700000, BestBlockHash: "ltc-tip"},
		"dash": {Blocks: 2000000},
	}

	tests := []struct {
		name      string
		input     FetchNetworkTipsInput
		setupMock func(*MockAPI)
		wantErr   bool
		validate  func(*testing.T, *FetchNetworkTipsResult)
	}{
		{
			name:  "fetches every online tip",
			input: FetchNetworkTipsInput{},
			setupMock: func(api *MockAPI) {
				api.On("NetworkInfo", mock.Anything).Return(status, nil)
				api.On("RPCBlock", mock.Anything, "btc", "btc-tip").
					Return(&client.Block{Hash: "btc-tip", Height: 850000, Time: 1718000000, NTx: 3000}, nil)
				api.On("RPCBlock", mock.Anything, "ltc", "ltc-tip").
					Return(&client.Block{Hash: "ltc-tip", Height: 2700000, MedianTime: 1718000050, Tx: []string{"a", "b"}}, nil)
			},
			validate: func(t *testing.T, result *FetchNetworkTipsResult) {
				require.Len(t, result.Blocks, 2)
				assert.Equal(t, explorer.BTC, result.Blocks[0].Network)
				assert.Equal(t, int64(3000), result.Blocks[0].TxCount)
				assert.Equal(t, explorer.LTC, result.Blocks[1].Network)
				assert.Equal(t, int64(2), result.Blocks[1].TxCount)
				assert.Equal(t, int64(1718000050), result.Blocks[1].MedianTime)
				assert.Equal(t, []string{"bch", "doge", "dash"}, result.Offline)
			},
		},
		{
			name:  "skips a tip whose block lookup fails",
			input: FetchNetworkTipsInput{Networks: []string{"BTC", "ltc"}},
			setupMock: func(api *MockAPI) {
				api.On("NetworkInfo", mock.Anything).Return(status, nil)
				api.On("RPCBlock", mock.Anything, "btc", "btc-tip").Return(nil, errors.New("rpc timeout"))
				api.On("RPCBlock", mock.Anything, "ltc", "ltc-tip").
					Return(&client.Block{Hash: "ltc-tip", Height: 2700000}, nil)
			},
			validate: func(t *testing.T, result *FetchNetworkTipsResult) {
				require.Len(t, result.Blocks, 1)
				assert.Equal(t, "ltc-tip", result.Blocks[0].Hash)
				assert.Empty(t, result.Offline)
			},
		},
		{
			name:      "unknown network is not retryable",
			input:     FetchNetworkTipsInput{Networks: []string{"eth"}},
			setupMock: func(api *MockAPI) {},
			wantErr:   true,
		},
		{
			name:  "status failure",
			input: FetchNetworkTipsInput{},
			setupMock: func(api *MockAPI) {
				api.On("NetworkInfo", mock.Anything).Return(nil, errors.New("upstream unavailable"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockAPI)
			tt.setupMock(api)

			activities := NewActivities(api, new(MockStore), nil, nil, discardLogger())
			result, err := activities.FetchNetworkTips(context.Background(), tt.input)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			tt.validate(t, result)
			api.AssertExpectations(t)
		})
	}
}

func TestActivities_FetchNetworkTips_InvalidNetworkNonRetryable(t *testing.T) {
	activities := NewActivities(new(MockAPI), new(MockStore), nil, nil, discardLogger())
	_, err := activities.FetchNetworkTips(context.Background(), FetchNetworkTipsInput{Networks: []string{"eth"}})
	require.Error(t, err)

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
}

func TestActivities_GetArchivedBlockHashes(t *testing.T) {
	store := new(MockStore)
	store.On("ListRecentBlocks", mock.Anything, db.ListRecentParams{Limit: 100}).Return([]*db.ArchivedBlock{
		{Network: "btc", Hash: "h1"},
		{Network: "doge", Hash: "h2"},
	}, nil)

	activities := NewActivities(new(MockAPI), store, nil, nil, discardLogger())
	result, err := activities.GetArchivedBlockHashes(context.Background(), GetArchivedBlockHashesInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"btc/h1", "doge/h2"}, result.Keys)
	store.AssertExpectations(t)
}

func TestActivities_GetArchivedBlockHashes_Error(t *testing.T) {
	store := new(MockStore)
	store.On("ListRecentBlocks", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	activities := NewActivities(new(MockAPI), store, nil, nil, discardLogger())
	_, err := activities.GetArchivedBlockHashes(context.Background(), GetArchivedBlockHashesInput{Limit: 5})
	assert.Error(t, err)
}

func TestActivities_WriteBlocks(t *testing.T) {
	blocks := []explorer.LiveBlock{
		{Hash: "h1", Height: 1, Network: explorer.BTC},
		{Hash: "h2", Height: 2, Network: explorer.DOGE},
	}

	store := new(MockStore)
	for _, b := range blocks {
		store.On("UpsertBlock", mock.Anything, b).Return(&db.ArchivedBlock{Hash: b.Hash, Network: string(b.Network)}, nil)
	}
	publisher := natspkg.NewMockPublisher()
	reg := prometheus.NewRegistry()

	activities := NewActivities(new(MockAPI), store, publisher, metrics.NewMetrics(reg), discardLogger())
	result, err := activities.WriteBlocks(context.Background(), WriteBlocksInput{Blocks: blocks})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Written)
	store.AssertExpectations(t)

	published := publisher.GetPublished()
	require.Len(t, published, 2)
	assert.Equal(t, "feed.btc.block", published[0].Subject())
	assert.Equal(t, "h1", published[0].Block.Hash)
	assert.Equal(t, "feed.doge.block", published[1].Subject())

	count, err := testutil.GatherAndCount(reg, "explorer_blocks_backfilled_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestActivities_WriteBlocks_PublishFailureIsNotFatal(t *testing.T) {
	block := explorer.LiveBlock{Hash: "h1", Network: explorer.LTC}
	store := new(MockStore)
	store.On("UpsertBlock", mock.Anything, block).Return(&db.ArchivedBlock{}, nil)
	publisher := natspkg.NewMockPublisher()
	publisher.SetPublishBatchError(errors.New("nats down"))

	activities := NewActivities(new(MockAPI), store, publisher, nil, discardLogger())
	result, err := activities.WriteBlocks(context.Background(), WriteBlocksInput{Blocks: []explorer.LiveBlock{block}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Written)
}

func TestActivities_WriteBlocks_StoreError(t *testing.T) {
	store := new(MockStore)
	store.On("UpsertBlock", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))
	publisher := natspkg.NewMockPublisher()

	activities := NewActivities(new(MockAPI), store, publisher, nil, discardLogger())
	_, err := activities.WriteBlocks(context.Background(), WriteBlocksInput{Blocks: []explorer.LiveBlock{{Hash: "h1", Network: explorer.BTC}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "h1")
	assert.Equal(t, 0, publisher.GetPublishedCount())
}

func TestActivities_PruneArchive(t *testing.T) {
	t.Run("zero retention is a no-op", func(t *testing.T) {
		store := new(MockStore)
		activities := NewActivities(new(MockAPI), store, nil, nil, discardLogger())

		result, err := activities.PruneArchive(context.Background(), PruneArchiveInput{})
		require.NoError(t, err)
		assert.Zero(t, result.Deleted)
		store.AssertNotCalled(t, "DeleteOlderThan", mock.Anything, mock.Anything)
	})

	t.Run("deletes entries older than the retention", func(t *testing.T) {
		store := new(MockStore)
		before := time.Now().Add(-time.Hour)
		store.On("DeleteOlderThan", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
			return cutoff.Sub(before).Abs() < time.Minute
		})).Return(int64(12), nil)
		reg := prometheus.NewRegistry()

		activities := NewActivities(new(MockAPI), store, nil, metrics.NewMetrics(reg), discardLogger())
		result, err := activities.PruneArchive(context.Background(), PruneArchiveInput{Retention: time.Hour})
		require.NoError(t, err)
		assert.Equal(t, int64(12), result.Deleted)
		store.AssertExpectations(t)
	})

	t.Run("store error", func(t *testing.T) {
		store := new(MockStore)
		store.On("DeleteOlderThan", mock.Anything, mock.Anything).Return(int64(0), errors.New("timeout"))

		activities := NewActivities(new(MockAPI), store, nil, nil, discardLogger())
		_, err := activities.PruneArchive(context.Background(), PruneArchiveInput{Retention: time.Hour})
		assert.Error(t, err)
	})
}
