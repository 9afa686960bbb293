package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/txexplorer/service/explorer"
)

var (
	testHash    = strings.Repeat("ab", 32)
	testAddress = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
)

// fakeUpstream serves routes, keyed by "METHOD /path", and answers
// everything else with an API miss.
func fakeUpstream(t *testing.T, routes map[string]string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if body, ok := routes[r.Method+" "+r.URL.Path]; ok {
			w.Write([]byte(body))
			return
		}
		w.Write([]byte(`{"error": "not found"}`))
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func ltcTransactionRoutes() map[string]string {
	return map[string]string{
		"GET /invoice/rates": `{"ltc": 100}`,
		"GET /rpc/ltc/txid/" + testHash: `{
			"tx": {"hash": "` + testHash + `", "block": "blk1", "size": 250, "fee": 0.0001},
			"in": [{"coinbase": "03a0bb0d"}],
			"out": [{"value": 1.5, "script": {"address": "Labc", "type": "pubkeyhash"}}]
		}`,
	}
}

// runApp runs the CLI against apiURL and returns what it printed.
func runApp(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	full := append([]string{"txexplorer", "--api-url", apiURL}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestTxCommand(t *testing.T) {
	apiURL := fakeUpstream(t, ltcTransactionRoutes())

	out, err := runApp(t, apiURL, "tx", testHash)
	require.NoError(t, err)
	assert.Contains(t, out, "Network:     Litecoin")
	assert.Contains(t, out, "1.5 LTC ($150.00)")
	assert.Contains(t, out, "40 lit/byte")
	assert.Contains(t, out, "coinbase")
	assert.Contains(t, out, "Labc")
}

func TestTxCommand_JSON(t *testing.T) {
	apiURL := fakeUpstream(t, ltcTransactionRoutes())

	out, err := runApp(t, apiURL, "--json", "tx", "--network", "ltc", testHash)
	require.NoError(t, err)

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, testHash, view["TxID"])
	assert.Equal(t, "ltc", view["Network"])
}

func TestTxCommand_NotFound(t *testing.T) {
	apiURL := fakeUpstream(t, map[string]string{})

	_, err := runApp(t, apiURL, "tx", testHash)
	require.Error(t, err)
	assert.ErrorIs(t, err, explorer.ErrNotFound)
}

func TestTxCommand_InvalidNetwork(t *testing.T) {
	apiURL := fakeUpstream(t, ltcTransactionRoutes())

	_, err := runApp(t, apiURL, "tx", "--network", "eth", testHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network")
}

func TestBlockCommand_WithNetwork(t *testing.T) {
	apiURL := fakeUpstream(t, map[string]string{
		"GET /rpc/doge/block/" + testHash: `{"hash": "` + testHash + `", "height": 5000000, "time": 1718000000, "tx": ["t1", "t2"]}`,
		"POST /txid": `{"t1": [{"txid": "t1", "amount": 10, "crypto": "doge"}]}`,
	})

	out, err := runApp(t, apiURL, "block", "--network", "doge", testHash)
	require.NoError(t, err)
	assert.Contains(t, out, "Dogecoin Block 5,000,000")
	assert.Contains(t, out, "10 DOGE")
	assert.Contains(t, out, "unknown", "transactions missing from the database stay unknown")
}

func TestSearchCommand(t *testing.T) {
	t.Run("address", func(t *testing.T) {
		apiURL := fakeUpstream(t, map[string]string{
			"GET /address/" + testAddress: `{"address": "` + testAddress + `", "received": 2, "confirmed": 1.5, "transactions": [{"txid": "t1", "crypto": "ltc", "amount": 0.5}]}`,
		})

		out, err := runApp(t, apiURL, "search", testAddress)
		require.NoError(t, err)
		assert.Contains(t, out, testAddress)
		assert.Contains(t, out, "Unconfirmed: 0.5 LTC")
		assert.Contains(t, out, "pending")
	})

	t.Run("hash falls back to block probe", func(t *testing.T) {
		apiURL := fakeUpstream(t, map[string]string{
			"GET /rpc/bch/block/" + testHash: `{"hash": "` + testHash + `", "height": 800000, "nTx": 3}`,
		})

		out, err := runApp(t, apiURL, "search", testHash)
		require.NoError(t, err)
		assert.Contains(t, out, "Bitcoin Cash Block 800,000")
	})

	t.Run("malformed query", func(t *testing.T) {
		apiURL := fakeUpstream(t, map[string]string{})

		_, err := runApp(t, apiURL, "search", "not-a-hash")
		require.Error(t, err)
		var searchErr *explorer.SearchError
		assert.ErrorAs(t, err, &searchErr)
	})

	t.Run("unknown hash", func(t *testing.T) {
		apiURL := fakeUpstream(t, map[string]string{})

		_, err := runApp(t, apiURL, "search", testHash)
		assert.ErrorIs(t, err, explorer.ErrNotFound)
	})
}

func TestStatusCommand(t *testing.T) {
	apiURL := fakeUpstream(t, map[string]string{
		"GET /rpc/info": `{"btc": {"blocks": 850000, "difficulty": 8.3e13, "size_on_disk": 650000000000, "bestblockhash": "00000000tip"}}`,
	})

	out, err := runApp(t, apiURL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Bitcoin")
	assert.Contains(t, out, "850,000")
	assert.Contains(t, out, "00000000tip")
	assert.Contains(t, out, "offline")
}

func TestRatesCommand(t *testing.T) {
	apiURL := fakeUpstream(t, map[string]string{
		"GET /invoice/rates": `{"btc": 30000, "doge": 0.12}`,
	})

	out, err := runApp(t, apiURL, "rates")
	require.NoError(t, err)
	assert.Contains(t, out, "$30,000.00")
	assert.Contains(t, out, "$0.12")
	assert.Less(t, strings.Index(out, "btc"), strings.Index(out, "doge"))
}
