package explorer

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/brojonat/txexplorer/client"
)

// fakeAPI is an in-memory API. Unknown ids answer with client.ErrMiss.
type fakeAPI struct {
	mu sync.Mutex

	txs       map[Network]map[string]*client.RPCTransaction
	blocks    map[Network]map[string]*client.Block
	rows      map[string][]client.TxRow
	addresses map[string]*client.Address
	info      map[string]client.NetworkStatus
	rates     client.Rates

	infoErr   error
	lookupErr error

	// beforeRPCTransaction runs before every RPC transaction lookup.
	beforeRPCTransaction func(ctx context.Context, network, txid string)

	calls []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		txs:       make(map[Network]map[string]*client.RPCTransaction),
		blocks:    make(map[Network]map[string]*client.Block),
		rows:      make(map[string][]client.TxRow),
		addresses: make(map[string]*client.Address),
		info:      make(map[string]client.NetworkStatus),
		rates:     client.Rates{},
	}
}

func (f *fakeAPI) addTx(n Network, tx *client.RPCTransaction) {
	if f.txs[n] == nil {
		f.txs[n] = make(map[string]*client.RPCTransaction)
	}
	f.txs[n][tx.Tx.Hash] = tx
}

func (f *fakeAPI) addBlock(n Network, b *client.Block) {
	if f.blocks[n] == nil {
		f.blocks[n] = make(map[string]*client.Block)
	}
	f.blocks[n][b.Hash] = b
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) NetworkInfo(ctx context.Context) (map[string]client.NetworkStatus, error) {
	f.record("info")
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeAPI) Rates(ctx context.Context) (client.Rates, error) {
	f.record("rates")
	return f.rates, nil
}

func (f *fakeAPI) RPCTransaction(ctx context.Context, network, txid string) (*client.RPCTransaction, error) {
	f.record("rpc_tx:" + network)
	if f.beforeRPCTransaction != nil {
		f.beforeRPCTransaction(ctx, network, txid)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx, ok := f.txs[Network(network)][txid]; ok {
		return tx, nil
	}
	return nil, fmt.Errorf("no such transaction: %w", client.ErrMiss)
}

func (f *fakeAPI) RPCBlock(ctx context.Context, network, hash string) (*client.Block, error) {
	f.record("rpc_block:" + network)
	if b, ok := f.blocks[Network(network)][hash]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("block not found: %w", client.ErrMiss)
}

func (f *fakeAPI) Transaction(ctx context.Context, txid string) ([]client.TxRow, error) {
	f.record("db_tx")
	if rows, ok := f.rows[txid]; ok {
		return rows, nil
	}
	return nil, fmt.Errorf("not found: %w", client.ErrMiss)
}

func (f *fakeAPI) Address(ctx context.Context, address string) (*client.Address, error) {
	f.record("address")
	if a, ok := f.addresses[address]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("address not found: %w", client.ErrMiss)
}

func (f *fakeAPI) LookupTransactions(ctx context.Context, txids []string) (map[string][]client.TxRow, error) {
	f.record("db_tx_batch")
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := make(map[string][]client.TxRow)
	for _, id := range txids {
		if rows, ok := f.rows[id]; ok {
			out[id] = rows
		}
	}
	return out, nil
}

func rpcTx(hash string, outputs ...string) *client.RPCTransaction {
	tx := &client.RPCTransaction{Tx: &client.TxSummary{Hash: hash}}
	for _, v := range outputs {
		tx.Outputs = append(tx.Outputs, client.TxOutput{Value: decimal.RequireFromString(v)})
	}
	return tx
}
