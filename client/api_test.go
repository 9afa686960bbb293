package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	endpoint string
	network  string
	err      error
}

type fakeObserver struct {
	calls []recordedCall
}

func (f *fakeObserver) ObserveAPICall(endpoint, network string, err error, started time.Time) {
	f.calls = append(f.calls, recordedCall{endpoint: endpoint, network: network, err: err})
}

func TestNetworkInfo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/rpc/info", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"btc": {"blocks": 850000, "difficulty": 8.3e13, "size_on_disk": 650000000000, "bestblockhash": "00000000abc", "time": 1718000000},
			"LTC": {"blocks": 2700000, "difficulty": 2.5e7, "size_on_disk": 200000000000, "bestblockhash": "ltcbest", "mediantime": 1717999000},
			"doge": null
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	info, err := client.NetworkInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info, 2)

	assert.Equal(t, int64(850000), info["btc"].Blocks)
	assert.Equal(t, "00000000abc", info["btc"].BestBlockHash)
	assert.Equal(t, uint64(650000000000), info["btc"].SizeOnDisk)
	assert.Equal(t, int64(1717999000), info["ltc"].Timestamp())
	_, ok := info["doge"]
	assert.False(t, ok, "null entries are offline")
}

func TestRates_SkipsNonNumeric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoice/rates", r.URL.Path)
		w.Write([]byte(`{"btc": 65000.5, "DOGE": 0.12, "updated": "yesterday"}`))
	}))
	defer server.Close()

	rates, err := NewClient(server.URL, nil, nil).Rates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.True(t, decimal.RequireFromString("65000.5").Equal(rates["btc"]))
	assert.True(t, decimal.RequireFromString("0.12").Equal(rates["doge"]))
}

func TestRPCTransaction_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/ltc/txid/abc123", r.URL.Path)
		w.Write([]byte(`{
			"tx": {"hash": "abc123", "block": "blk1", "size": 250, "fee": 0.0001, "version": 2, "lock": 0},
			"in": [{"coinbase": "03a0bb0d"}, {"value": 1.25, "address": "Lxyz", "txid": "prev", "vout": 1}],
			"out": [{"value": 0.5, "script": {"address": "Labc", "type": "pubkeyhash"}}, {"value": 0.75, "script": {"asm": "OP_RETURN", "type": "nulldata"}}]
		}`))
	}))
	defer server.Close()

	obs := &fakeObserver{}
	client := NewClient(server.URL, nil, nil).WithObserver(obs)
	tx, err := client.RPCTransaction(context.Background(), "ltc", "abc123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", tx.Tx.Hash)
	assert.Equal(t, int64(250), tx.Tx.Size)
	require.Len(t, tx.Inputs, 2)
	assert.True(t, tx.Inputs[0].IsCoinbase())
	assert.False(t, tx.Inputs[1].IsCoinbase())
	assert.Equal(t, "1.25", tx.TotalOutput().String())

	require.Len(t, obs.calls, 1)
	assert.Equal(t, "rpc_txid", obs.calls[0].endpoint)
	assert.Equal(t, "ltc", obs.calls[0].network)
	assert.NoError(t, obs.calls[0].err)
}

func TestRPCTransaction_ErrorPayloadIsMiss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"error": "No such mempool or blockchain transaction",
		})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).RPCTransaction(context.Background(), "btc", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMiss))
	assert.Contains(t, err.Error(), "No such mempool")
}

func TestRPCTransaction_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).RPCTransaction(context.Background(), "btc", "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
	assert.Contains(t, err.Error(), "status 502")
}

func TestRPCBlock_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/doge/block/beef", r.URL.Path)
		w.Write([]byte(`{"hash": "beef", "height": 5000000, "mediantime": 1718000000, "tx": ["a", "b", "c"], "previousblockhash": "dead"}`))
	}))
	defer server.Close()

	block, err := NewClient(server.URL, nil, nil).RPCBlock(context.Background(), "doge", "beef")
	require.NoError(t, err)
	assert.Equal(t, int64(5000000), block.Height)
	assert.Equal(t, int64(3), block.TxCount())
	assert.Equal(t, int64(1718000000), block.Timestamp())
	assert.Equal(t, "dead", block.PreviousBlockHash)
	assert.Empty(t, block.NextBlockHash)
}

func TestTransaction_ArrayAndSingleRow(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "array", body: `[{"txid": "t1", "address": "a1", "amount": 1, "crypto": "btc", "vout": 0}, {"txid": "t1", "address": "a2", "amount": 2, "crypto": "btc", "vout": 1}]`, want: 2},
		{name: "single object", body: `{"txid": "t1", "address": "a1", "amount": 1, "crypto": "btc", "vout": 0}`, want: 1},
		{name: "empty", body: `[]`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/txid/t1", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			rows, err := NewClient(server.URL, nil, nil).Transaction(context.Background(), "t1")
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestAddress_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/address/DAddr", r.URL.Path)
		w.Write([]byte(`{"address": "DAddr", "received": 12.5, "confirmed": 10, "transactions": [{"txid": "t1", "crypto": "doge", "amount": 12.5}]}`))
	}))
	defer server.Close()

	addr, err := NewClient(server.URL, nil, nil).Address(context.Background(), "DAddr")
	require.NoError(t, err)
	assert.Equal(t, "DAddr", addr.Address)
	require.Len(t, addr.Transactions, 1)
	assert.Equal(t, "doge", addr.Transactions[0].Crypto)
	assert.Empty(t, addr.Transactions[0].Block)
}

func TestLookupTransactions_PostsTerms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/txid", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Terms []string `json:"terms"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"t1", "t2"}, body.Terms)

		w.Write([]byte(`{"t1": [{"txid": "t1", "amount": 0.5, "crypto": "bch"}, {"txid": "t1", "amount": 0.25, "crypto": "bch"}]}`))
	}))
	defer server.Close()

	result, err := NewClient(server.URL, nil, nil).LookupTransactions(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Len(t, result["t1"], 2)
	assert.Empty(t, result["t2"])
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		body    string
		wantMsg string
		wantOK  bool
	}{
		{body: `{"error": "not found"}`, wantMsg: "not found", wantOK: true},
		{body: `{"error": {"code": -5}}`, wantMsg: `{"code": -5}`, wantOK: true},
		{body: `{"error": null, "hash": "x"}`, wantOK: false},
		{body: `{"error": ""}`, wantOK: false},
		{body: `[{"error": "in array"}]`, wantOK: false},
		{body: `not json`, wantOK: false},
	}

	for _, tt := range tests {
		msg, ok := apiError([]byte(tt.body))
		assert.Equal(t, tt.wantOK, ok, tt.body)
		if tt.wantOK {
			assert.Equal(t, tt.wantMsg, msg, tt.body)
		}
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, &http.Client{Timeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	_, err := c.NetworkInfo(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
	assert.Less(t, time.Since(start), 5*time.Second)
}
