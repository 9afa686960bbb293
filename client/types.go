package client

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// NetworkStatus is one network's entry in the /rpc/info response.
type NetworkStatus struct {
	Blocks        int64   `json:"blocks"`
	Difficulty    float64 `json:"difficulty"`
	SizeOnDisk    uint64  `json:"size_on_disk"`
	BestBlockHash string  `json:"bestblockhash"`
	Time          int64   `json:"time"`
	MedianTime    int64   `json:"mediantime"`
}

// Timestamp returns the block time of the network tip, falling back to the
// median time when the node does not report one.
func (s NetworkStatus) Timestamp() int64 {
	if s.Time != 0 {
		return s.Time
	}
	return s.MedianTime
}

// Rates maps a lowercase network id to its USD price per unit.
type Rates map[string]decimal.Decimal

// TxSummary is the "tx" object of an RPC-style transaction.
type TxSummary struct {
	Hash    string          `json:"hash"`
	Block   string          `json:"block,omitempty"`
	Size    int64           `json:"size"`
	Fee     decimal.Decimal `json:"fee"`
	Version int64           `json:"version"`
	Lock    int64           `json:"lock"`
}

// TxInput is a transaction input. Coinbase is set only for coinbase inputs.
type TxInput struct {
	Coinbase *string         `json:"coinbase,omitempty"`
	Value    decimal.Decimal `json:"value"`
	Address  string          `json:"address,omitempty"`
	TxID     string          `json:"txid,omitempty"`
	Vout     int64           `json:"vout"`
}

// IsCoinbase reports whether the input mints new coins.
func (in TxInput) IsCoinbase() bool {
	return in.Coinbase != nil
}

// Script describes an output's locking script.
type Script struct {
	Address string `json:"address,omitempty"`
	Asm     string `json:"asm,omitempty"`
	Type    string `json:"type,omitempty"`
}

// TxOutput is a transaction output.
type TxOutput struct {
	Value  decimal.Decimal `json:"value"`
	Script Script          `json:"script"`
}

// RPCTransaction is the node-proxy view of a transaction. The live feed
// delivers transaction events in the same shape.
type RPCTransaction struct {
	Tx      *TxSummary `json:"tx"`
	Inputs  []TxInput  `json:"in"`
	Outputs []TxOutput `json:"out"`
}

// TotalOutput sums the values of all outputs.
func (t *RPCTransaction) TotalOutput() decimal.Decimal {
	total := decimal.Zero
	for _, out := range t.Outputs {
		total = total.Add(out.Value)
	}
	return total
}

// Block is the node-proxy view of a block. The live feed delivers block
// events in the same shape.
type Block struct {
	Hash              string   `json:"hash"`
	Height            int64    `json:"height"`
	Time              int64    `json:"time"`
	MedianTime        int64    `json:"mediantime"`
	NTx               int64    `json:"nTx"`
	Tx                []string `json:"tx"`
	Size              int64    `json:"size"`
	Difficulty        float64  `json:"difficulty"`
	Nonce             uint64   `json:"nonce"`
	MerkleRoot        string   `json:"merkleroot"`
	PreviousBlockHash string   `json:"previousblockhash,omitempty"`
	NextBlockHash     string   `json:"nextblockhash,omitempty"`
}

// TxCount prefers the node's nTx field and falls back to the txid list.
func (b *Block) TxCount() int64 {
	if b.NTx != 0 {
		return b.NTx
	}
	return int64(len(b.Tx))
}

// Timestamp returns time, or mediantime when time is absent.
func (b *Block) Timestamp() int64 {
	if b.Time != 0 {
		return b.Time
	}
	return b.MedianTime
}

// TxRow is one flattened output row from the transaction database.
type TxRow struct {
	TxID         string          `json:"txid"`
	Address      string          `json:"address"`
	Amount       decimal.Decimal `json:"amount"`
	AmountSat    int64           `json:"amount_sat"`
	Block        string          `json:"block,omitempty"`
	Crypto       string          `json:"crypto"`
	Vout         int64           `json:"vout"`
	ScriptPubKey string          `json:"scriptPubKey"`
}

// AddressTx is one entry of an address history.
type AddressTx struct {
	TxID   string          `json:"txid"`
	Crypto string          `json:"crypto"`
	Amount decimal.Decimal `json:"amount"`
	Block  string          `json:"block,omitempty"`
}

// Address is the /address/{address} response.
type Address struct {
	Address      string          `json:"address"`
	Received     decimal.Decimal `json:"received"`
	Confirmed    decimal.Decimal `json:"confirmed"`
	Transactions []AddressTx     `json:"transactions"`
}

// FeedEvent is one message from the live push channel.
type FeedEvent struct {
	Type   string          `json:"type"`
	Crypto string          `json:"crypto"`
	Data   json.RawMessage `json:"data"`
	Time   EventTime       `json:"time"`
}

// HasData reports whether the event carries a non-null payload.
func (e *FeedEvent) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// EventTime accepts unix seconds (number or numeric string) or an RFC 3339
// string. Anything else decodes to the zero time.
type EventTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *EventTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			t.Time = ts
			return nil
		}
		b = []byte(s)
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	// Millisecond timestamps are common on push feeds.
	if secs > 1e12 {
		secs /= 1000
	}
	t.Time = time.Unix(int64(secs), 0).UTC()
	return nil
}

// MarshalJSON writes unix seconds, or null for the zero time.
func (t EventTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}
