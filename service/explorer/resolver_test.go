package explorer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/txexplorer/client"
)

type fakeProbeRecorder struct {
	hits, misses []string
}

func (r *fakeProbeRecorder) RecordProbe(kind, network string, hit bool) {
	if hit {
		r.hits = append(r.hits, kind+":"+network)
		return
	}
	r.misses = append(r.misses, kind+":"+network)
}

func rpcCalls(calls []string, prefix string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, strings.TrimPrefix(c, prefix))
		}
	}
	return out
}

func TestIsTransaction_StopsAtOwningNetwork(t *testing.T) {
	api := newFakeAPI()
	api.addTx(LTC, rpcTx("ltc-only", "1"))
	rec := &fakeProbeRecorder{}
	r := NewResolver(api, nil).WithRecorder(rec)

	network, ok, err := r.IsTransaction(context.Background(), "ltc-only")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, LTC, network)

	assert.Equal(t, []string{"btc", "bch", "ltc"}, rpcCalls(api.recorded(), "rpc_tx:"))
	assert.NotContains(t, api.recorded(), "db_tx")
	assert.Equal(t, []string{"transaction:ltc"}, rec.hits)
	assert.Equal(t, []string{"transaction:btc", "transaction:bch"}, rec.misses)
}

func TestIsTransaction_DatabaseFallback(t *testing.T) {
	api := newFakeAPI()
	api.rows["db-only"] = []client.TxRow{{TxID: "db-only", Crypto: "doge"}}
	r := NewResolver(api, nil)

	network, ok, err := r.IsTransaction(context.Background(), "db-only")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, network)
	assert.Len(t, rpcCalls(api.recorded(), "rpc_tx:"), len(Networks))

	_, ok, err = r.IsTransaction(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsTransaction_EmptyDatabaseRowsMiss(t *testing.T) {
	api := newFakeAPI()
	api.rows["empty"] = []client.TxRow{}
	r := NewResolver(api, nil)

	network, ok, err := r.IsTransaction(context.Background(), "empty")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, network)
	assert.Len(t, rpcCalls(api.recorded(), "rpc_tx:"), len(Networks))
	assert.Contains(t, api.recorded(), "db_tx")
}

func TestResolveTransaction_KnownNetworkFirst(t *testing.T) {
	api := newFakeAPI()
	api.addTx(DASH, rpcTx("t", "0.5", "0.25"))
	r := NewResolver(api, nil)

	view, err := r.ResolveTransaction(context.Background(), "t", DASH)
	require.NoError(t, err)
	assert.Equal(t, DASH, view.Network)
	assert.Equal(t, "rpc", view.Source())
	assert.Equal(t, "0.75", view.Total().String())
	assert.Equal(t, []string{"dash"}, rpcCalls(api.recorded(), "rpc_tx:"))
	assert.Contains(t, api.recorded(), "db_tx", "database is always queried")
}

func TestResolveTransaction_WrongHintScansOthersInOrder(t *testing.T) {
	api := newFakeAPI()
	api.addTx(LTC, rpcTx("t", "1"))
	r := NewResolver(api, nil)

	view, err := r.ResolveTransaction(context.Background(), "t", DOGE)
	require.NoError(t, err)
	assert.Equal(t, LTC, view.Network)
	assert.Equal(t, []string{"doge", "btc", "bch", "ltc"}, rpcCalls(api.recorded(), "rpc_tx:"))
}

func TestResolveTransaction_DatabaseOnly(t *testing.T) {
	api := newFakeAPI()
	api.rows["t"] = []client.TxRow{
		{TxID: "t", Crypto: "bch", Amount: decimal.RequireFromString("1.1")},
		{TxID: "t", Crypto: "bch", Amount: decimal.RequireFromString("0.9")},
	}
	r := NewResolver(api, nil)

	view, err := r.ResolveTransaction(context.Background(), "t", "")
	require.NoError(t, err)
	assert.Nil(t, view.RPC)
	assert.Equal(t, "database", view.Source())
	assert.Equal(t, BCH, view.Network)
	assert.Equal(t, "2", view.Total().String())
	assert.Equal(t, "N/A", view.FeeRate())
}

func TestResolveTransaction_NotFound(t *testing.T) {
	api := newFakeAPI()
	api.rows["empty"] = []client.TxRow{}
	r := NewResolver(api, nil)

	_, err := r.ResolveTransaction(context.Background(), "empty", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProbeBlock_ExhaustsAllNetworks(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(api, nil)

	_, err := r.ProbeBlock(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"btc", "bch", "ltc", "doge", "dash"}, rpcCalls(api.recorded(), "rpc_block:"))

	page, err := r.Resolve(context.Background(), BlockRoute("nowhere"), "")
	require.NoError(t, err)
	assert.Equal(t, RouteNotFound, page.Kind())
}

func TestProbeBlock_EnrichesTransactions(t *testing.T) {
	api := newFakeAPI()
	api.addBlock(DOGE, &client.Block{Hash: "blk", Height: 10, Tx: []string{"known", "unknown"}})
	api.rows["known"] = []client.TxRow{
		{TxID: "known", Crypto: "doge", Amount: decimal.NewFromInt(3)},
		{TxID: "known", Crypto: "doge", Amount: decimal.NewFromInt(4)},
	}
	r := NewResolver(api, nil)

	view, err := r.ProbeBlock(context.Background(), "blk")
	require.NoError(t, err)
	assert.Equal(t, DOGE, view.Network)
	require.Len(t, view.Transactions, 2)

	known := view.Transactions[0]
	assert.True(t, known.Known)
	assert.Equal(t, 2, known.Outputs)
	assert.Equal(t, "7", known.Amount.String())
	assert.Equal(t, DOGE, known.Network)

	unknown := view.Transactions[1]
	assert.False(t, unknown.Known)
	assert.Equal(t, DOGE, unknown.Network)
}

func TestResolveBlock_EnrichmentFailureKeepsEntriesUnknown(t *testing.T) {
	api := newFakeAPI()
	api.addBlock(BTC, &client.Block{Hash: "blk", Tx: []string{"a"}})
	api.rows["a"] = []client.TxRow{{TxID: "a", Crypto: "btc"}}
	api.lookupErr = errors.New("database down")
	r := NewResolver(api, nil)

	view, err := r.ResolveBlock(context.Background(), "blk", BTC)
	require.NoError(t, err)
	require.Len(t, view.Transactions, 1)
	assert.False(t, view.Transactions[0].Known)
	assert.Equal(t, []string{"btc"}, rpcCalls(api.recorded(), "rpc_block:"))

	_, err = r.ResolveBlock(context.Background(), "blk", LTC)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveAddress_Network(t *testing.T) {
	api := newFakeAPI()
	api.addresses["LAddr"] = &client.Address{
		Address:   "LAddr",
		Received:  decimal.RequireFromString("10.5"),
		Confirmed: decimal.RequireFromString("8.25"),
		Transactions: []client.AddressTx{
			{TxID: "a", Crypto: "ltc"},
			{TxID: "b", Crypto: "btc"},
		},
	}
	api.addresses["Empty"] = &client.Address{Address: "Empty"}

	r := NewResolver(api, nil)
	view, err := r.ResolveAddress(context.Background(), "LAddr")
	require.NoError(t, err)
	assert.Equal(t, LTC, view.Network)
	assert.Equal(t, "2.25", view.Unconfirmed.String())

	view, err = r.ResolveAddress(context.Background(), "Empty")
	require.NoError(t, err)
	assert.Equal(t, BTC, view.Network)

	view, err = r.WithFallbackNetwork(DOGE).ResolveAddress(context.Background(), "Empty")
	require.NoError(t, err)
	assert.Equal(t, DOGE, view.Network)

	_, err = r.ResolveAddress(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_CancelledContext(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(api, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page, err := r.Resolve(ctx, TransactionRoute("t"), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RouteNotFound, page.Kind())
}
