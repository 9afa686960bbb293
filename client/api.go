package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public blockchain-data API.
const DefaultBaseURL = "https://api-v1.freedom.st"

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 32 << 20

// ErrMiss is returned when the API answers with an {"error": ...} payload.
var ErrMiss = errors.New("api reported a miss")

// Observer records the outcome of every API call.
type Observer interface {
	ObserveAPICall(endpoint, network string, err error, started time.Time)
}

// Client is the HTTP client for the blockchain-data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// NewClient creates a new API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// WithObserver attaches a metrics observer to the client.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// BaseURL returns the API base the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NetworkInfo fetches the per-network status snapshot. Networks without an
// entry (or with a null entry) are offline.
func (c *Client) NetworkInfo(ctx context.Context) (map[string]NetworkStatus, error) {
	var raw map[string]*NetworkStatus
	if err := c.getJSON(ctx, "info", "", "/rpc/info", &raw); err != nil {
		return nil, err
	}
	info := make(map[string]NetworkStatus, len(raw))
	for network, status := range raw {
		if status == nil {
			continue
		}
		info[strings.ToLower(network)] = *status
	}
	return info, nil
}

// Rates fetches USD rates. Entries that are not numbers are skipped.
func (c *Client) Rates(ctx context.Context) (Rates, error) {
	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, "rates", "", "/invoice/rates", &raw); err != nil {
		return nil, err
	}
	rates := make(Rates, len(raw))
	for network, v := range raw {
		var d decimal.Decimal
		if err := json.Unmarshal(v, &d); err != nil {
			c.logger.Debug("skipping non-numeric rate", "network", network, "error", err)
			continue
		}
		rates[strings.ToLower(network)] = d
	}
	return rates, nil
}

// RPCTransaction fetches a transaction from one network's node proxy.
func (c *Client) RPCTransaction(ctx context.Context, network, txid string) (*RPCTransaction, error) {
	var tx RPCTransaction
	path := fmt.Sprintf("/rpc/%s/txid/%s", url.PathEscape(network), url.PathEscape(txid))
	if err := c.getJSON(ctx, "rpc_txid", network, path, &tx); err != nil {
		return nil, err
	}
	if tx.Tx == nil {
		return nil, fmt.Errorf("transaction %s on %s: %w", txid, network, ErrMiss)
	}
	return &tx, nil
}

// RPCBlock fetches a block by hash from one network's node proxy.
func (c *Client) RPCBlock(ctx context.Context, network, hash string) (*Block, error) {
	var block Block
	path := fmt.Sprintf("/rpc/%s/block/%s", url.PathEscape(network), url.PathEscape(hash))
	if err := c.getJSON(ctx, "rpc_block", network, path, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// Transaction fetches the database rows for a txid. The endpoint may answer
// with a single row object instead of an array.
func (c *Client) Transaction(ctx context.Context, txid string) ([]TxRow, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "db_txid", "", "/txid/"+url.PathEscape(txid), &raw); err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction rows: %w", err)
	}
	return rows, nil
}

// Address fetches an address summary with its transaction history.
func (c *Client) Address(ctx context.Context, address string) (*Address, error) {
	var addr Address
	if err := c.getJSON(ctx, "address", "", "/address/"+url.PathEscape(address), &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

// LookupTransactions batch-fetches database rows for many txids at once.
func (c *Client) LookupTransactions(ctx context.Context, txids []string) (map[string][]TxRow, error) {
	body, err := json.Marshal(map[string]interface{}{"terms": txids})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	started := time.Now()
	var result map[string][]TxRow
	err = c.do(ctx, http.MethodPost, "/txid", bytes.NewReader(body), &result)
	c.observe("db_txid_batch", "", err, started)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("looked up transactions", "requested", len(txids), "found", len(result))
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, network, path string, out interface{}) error {
	started := time.Now()
	err := c.do(ctx, http.MethodGet, path, nil, out)
	c.observe(endpoint, network, err, started)
	return err
}

func (c *Client) observe(endpoint, network string, err error, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveAPICall(endpoint, network, err, started)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if msg, ok := apiError(data); ok {
		c.logger.Debug("api miss", "path", path, "status", resp.StatusCode, "error", msg)
		return fmt.Errorf("%s: %w", msg, ErrMiss)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError reports whether body is a JSON object with a truthy "error" field.
func apiError(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return "", false
	}
	switch strings.TrimSpace(string(envelope.Error)) {
	case "", "null", "false", "0", `""`:
		return "", false
	}
	var msg string
	if err := json.Unmarshal(envelope.Error, &msg); err != nil {
		msg = string(envelope.Error)
	}
	return msg, true
}

func decodeRows(raw json.RawMessage) ([]TxRow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var row TxRow
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, err
		}
		return []TxRow{row}, nil
	}
	var rows []TxRow
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
