package explorer

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/brojonat/txexplorer/client"
)

// API is the subset of the blockchain-data API the resolver needs.
// *client.Client implements it.
type API interface {
	NetworkInfo(ctx context.Context) (map[string]client.NetworkStatus, error)
	Rates(ctx context.Context) (client.Rates, error)
	RPCTransaction(ctx context.Context, network, txid string) (*client.RPCTransaction, error)
	RPCBlock(ctx context.Context, network, hash string) (*client.Block, error)
	Transaction(ctx context.Context, txid string) ([]client.TxRow, error)
	Address(ctx context.Context, address string) (*client.Address, error)
	LookupTransactions(ctx context.Context, txids []string) (map[string][]client.TxRow, error)
}

// ProbeRecorder receives the outcome of every single-network probe.
type ProbeRecorder interface {
	RecordProbe(kind, network string, hit bool)
}

// TransactionView is a resolved transaction. RPC is preferred for display;
// Rows are the database rows, used when RPC is nil.
type TransactionView struct {
	TxID    string
	Network Network
	RPC     *client.RPCTransaction
	Rows    []client.TxRow
}

// Source names the backend the view is rendered from.
func (v *TransactionView) Source() string {
	if v.RPC != nil {
		return "rpc"
	}
	return "database"
}

// Total is the sum of output values.
func (v *TransactionView) Total() decimal.Decimal {
	if v.RPC != nil {
		return v.RPC.TotalOutput()
	}
	total := decimal.Zero
	for _, row := range v.Rows {
		total = total.Add(row.Amount)
	}
	return total
}

// FeeRate is the formatted fee rate, or "N/A" without RPC detail.
func (v *TransactionView) FeeRate() string {
	if v.RPC == nil || v.RPC.Tx == nil {
		return "N/A"
	}
	return FeeRate(v.RPC.Tx.Fee, v.RPC.Tx.Size, v.Network)
}

// BlockTx is one entry of a block's transaction list. Known is false when
// the database had no rows for it; the other fields are then unset.
type BlockTx struct {
	TxID    string
	Known   bool
	Amount  decimal.Decimal
	Outputs int
	Network Network
}

// BlockView is a resolved block with its enriched transaction list.
type BlockView struct {
	Network      Network
	Block        *client.Block
	Transactions []BlockTx
}

// AddressView is a resolved address. Network selects the display unit for
// the whole page.
type AddressView struct {
	Address     *client.Address
	Network     Network
	Unconfirmed decimal.Decimal
}

// Page is the single visible view. At most one payload is set, matching
// Route.Kind; Home and NotFound carry none.
type Page struct {
	Route       Route
	Title       string
	Transaction *TransactionView
	Block       *BlockView
	Address     *AddressView
}

// NewPage returns an empty page for route.
func NewPage(route Route) Page {
	return Page{Route: route, Title: Title(route)}
}

// Kind is the kind of the visible view.
func (p Page) Kind() RouteKind {
	return p.Route.Kind
}

// Resolver finds which network and backend know an id.
type Resolver struct {
	api      API
	logger   *slog.Logger
	recorder ProbeRecorder
	fallback Network
}

// NewResolver creates a resolver. Addresses without transactions are shown
// as btc unless WithFallbackNetwork says otherwise.
func NewResolver(api API, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Resolver{
		api:      api,
		logger:   logger,
		fallback: BTC,
	}
}

// WithRecorder attaches a metrics recorder.
func (r *Resolver) WithRecorder(rec ProbeRecorder) *Resolver {
	r.recorder = rec
	return r
}

// WithFallbackNetwork sets the address display network used when an
// address has no transactions.
func (r *Resolver) WithFallbackNetwork(n Network) *Resolver {
	r.fallback = n
	return r
}

// API returns the underlying API.
func (r *Resolver) API() API {
	return r.api
}

// IsTransaction reports whether txid is a known transaction. Networks are
// probed over RPC in fixed order, then the database. The network is empty
// when only the database knows the transaction.
func (r *Resolver) IsTransaction(ctx context.Context, txid string) (Network, bool, error) {
	_, n, err := FirstSuccess(ctx, Networks, r.probeTransaction(txid), r.onMiss("transaction", txid))
	if err == nil {
		return n, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}

	rows, err := r.api.Transaction(ctx, txid)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		r.logger.Debug("database lookup missed", "txid", txid, "error", err)
		return "", false, nil
	}
	// An empty row set is a miss.
	return "", len(rows) > 0, nil
}

// ResolveTransaction fetches txid from both backends concurrently. The RPC
// scan starts at known when it is set and continues with the other networks
// in fixed order. It returns ErrNotFound when neither backend has the
// transaction.
func (r *Resolver) ResolveTransaction(ctx context.Context, txid string, known Network) (*TransactionView, error) {
	var (
		rpc     *client.RPCTransaction
		network Network
		rows    []client.TxRow
		g       errgroup.Group
	)

	g.Go(func() error {
		tx, n, err := FirstSuccess(ctx, probeOrder(known), r.probeTransaction(txid), r.onMiss("transaction", txid))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		rpc, network = tx, n
		return nil
	})

	g.Go(func() error {
		got, err := r.api.Transaction(ctx, txid)
		if err != nil {
			r.logger.Debug("database lookup missed", "txid", txid, "error", err)
			return nil
		}
		rows = got
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rpc == nil && len(rows) == 0 {
		return nil, ErrNotFound
	}

	view := &TransactionView{TxID: txid, Network: network, RPC: rpc, Rows: rows}
	if rpc == nil {
		view.Network = rowsNetwork(rows)
	}
	return view, nil
}

// ProbeBlock scans every network in fixed order for hash.
func (r *Resolver) ProbeBlock(ctx context.Context, hash string) (*BlockView, error) {
	b, n, err := FirstSuccess(ctx, Networks, r.probeBlock(hash), r.onMiss("block", hash))
	if err != nil {
		return nil, err
	}
	return r.blockView(ctx, n, b), nil
}

// ResolveBlock fetches hash on network directly. An empty network falls
// back to ProbeBlock.
func (r *Resolver) ResolveBlock(ctx context.Context, hash string, network Network) (*BlockView, error) {
	if network == "" {
		return r.ProbeBlock(ctx, hash)
	}
	b, err := r.probeBlock(hash)(ctx, network)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Debug("block lookup missed", "hash", hash, "network", network, "error", err)
		return nil, ErrNotFound
	}
	return r.blockView(ctx, network, b), nil
}

// ResolveAddress fetches an address summary. The display network is the
// network of the first listed transaction.
func (r *Resolver) ResolveAddress(ctx context.Context, address string) (*AddressView, error) {
	info, err := r.api.Address(ctx, address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Debug("address lookup missed", "address", address, "error", err)
		return nil, ErrNotFound
	}

	network := r.fallback
	if len(info.Transactions) > 0 {
		if n, err := ParseNetwork(info.Transactions[0].Crypto); err == nil {
			network = n
		}
	}

	return &AddressView{
		Address:     info,
		Network:     network,
		Unconfirmed: info.Received.Sub(info.Confirmed).Round(8),
	}, nil
}

// Resolve produces the page for route. Misses yield a NotFound page and a
// nil error; the error is only set when ctx ended. hint is the network to
// try first for transactions and the network to fetch blocks from.
func (r *Resolver) Resolve(ctx context.Context, route Route, hint Network) (Page, error) {
	page := NewPage(route)

	var err error
	switch route.Kind {
	case RouteTransaction:
		page.Transaction, err = r.ResolveTransaction(ctx, route.ID, hint)
	case RouteBlock:
		page.Block, err = r.ResolveBlock(ctx, route.ID, hint)
	case RouteAddress:
		page.Address, err = r.ResolveAddress(ctx, route.ID)
	}

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewPage(NotFoundRoute), nil
		}
		return NewPage(NotFoundRoute), err
	}
	return page, nil
}

func (r *Resolver) blockView(ctx context.Context, network Network, b *client.Block) *BlockView {
	view := &BlockView{
		Network:      network,
		Block:        b,
		Transactions: make([]BlockTx, len(b.Tx)),
	}
	for i, txid := range b.Tx {
		view.Transactions[i] = BlockTx{TxID: txid, Network: network}
	}
	if len(b.Tx) == 0 {
		return view
	}

	found, err := r.api.LookupTransactions(ctx, b.Tx)
	if err != nil {
		r.logger.Debug("block transaction lookup failed", "hash", b.Hash, "network", network, "error", err)
		return view
	}

	for i := range view.Transactions {
		rows := found[view.Transactions[i].TxID]
		if len(rows) == 0 {
			continue
		}
		entry := &view.Transactions[i]
		entry.Known = true
		entry.Outputs = len(rows)
		entry.Amount = decimal.Zero
		for _, row := range rows {
			entry.Amount = entry.Amount.Add(row.Amount)
		}
		if n := rowsNetwork(rows); n != "" {
			entry.Network = n
		}
	}
	return view
}

func (r *Resolver) probeTransaction(txid string) func(context.Context, Network) (*client.RPCTransaction, error) {
	return func(ctx context.Context, n Network) (*client.RPCTransaction, error) {
		tx, err := r.api.RPCTransaction(ctx, string(n), txid)
		r.record("transaction", n, err)
		return tx, err
	}
}

func (r *Resolver) probeBlock(hash string) func(context.Context, Network) (*client.Block, error) {
	return func(ctx context.Context, n Network) (*client.Block, error) {
		b, err := r.api.RPCBlock(ctx, string(n), hash)
		r.record("block", n, err)
		return b, err
	}
}

func (r *Resolver) onMiss(kind, id string) func(Network, error) {
	return func(n Network, err error) {
		r.logger.Debug("probe missed", "kind", kind, "id", id, "network", n, "error", err)
	}
}

func (r *Resolver) record(kind string, n Network, err error) {
	if r.recorder != nil {
		r.recorder.RecordProbe(kind, string(n), err == nil)
	}
}

func rowsNetwork(rows []client.TxRow) Network {
	if len(rows) == 0 {
		return ""
	}
	n, err := ParseNetwork(rows[0].Crypto)
	if err != nil {
		return ""
	}
	return n
}
