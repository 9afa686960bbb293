package explorer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/brojonat/txexplorer/client"
)

// FeedCapacity is the size of each live buffer.
const FeedCapacity = 5

// Feed event types.
const (
	EventTransaction = "tx"
	EventBlock       = "block"
)

// LiveTransaction is a transaction seen on the live feed.
type LiveTransaction struct {
	TxID    string          `json:"txid"`
	Amount  decimal.Decimal `json:"amount"`
	Network Network         `json:"network"`
	Block   string          `json:"block,omitempty"`
	Time    int64           `json:"time,omitempty"`
	Inputs  int             `json:"inputs"`
	Outputs int             `json:"outputs"`
}

// LiveBlock is a block seen on the live feed, or a synthetic tip entry
// derived from a network status snapshot.
type LiveBlock struct {
	Hash       string  `json:"hash"`
	Height     int64   `json:"height"`
	Network    Network `json:"network"`
	Time       int64   `json:"time,omitempty"`
	MedianTime int64   `json:"mediantime,omitempty"`
	TxCount    int64   `json:"tx_count"`
	Synthetic  bool    `json:"synthetic,omitempty"`
}

// Timestamp is time, falling back to mediantime, then zero.
func (b LiveBlock) Timestamp() int64 {
	if b.Time != 0 {
		return b.Time
	}
	return b.MedianTime
}

// FeedUpdate is one applied feed event. Exactly one of Transaction and
// Block is set.
type FeedUpdate struct {
	Type        string           `json:"type"`
	Transaction *LiveTransaction `json:"transaction,omitempty"`
	Block       *LiveBlock       `json:"block,omitempty"`
}

// Network returns the network of the carried entry.
func (u FeedUpdate) Network() Network {
	if u.Transaction != nil {
		return u.Transaction.Network
	}
	if u.Block != nil {
		return u.Block.Network
	}
	return ""
}

// Feed holds the two capped live buffers. Apply must only be called from the
// goroutine that owns the subscription; every other method is safe for
// concurrent use.
type Feed struct {
	mu     sync.RWMutex
	txs    []LiveTransaction
	blocks []LiveBlock

	lmu       sync.Mutex
	listeners map[uint64]chan FeedUpdate
	nextID    uint64

	logger   *slog.Logger
	recorder FeedRecorder
}

// FeedRecorder receives the outcome of every feed event.
type FeedRecorder interface {
	RecordFeedEvent(eventType, network, outcome string)
}

// NewFeed creates an empty feed cache.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Feed{
		listeners: make(map[uint64]chan FeedUpdate),
		logger:    logger,
	}
}

// WithRecorder attaches a metrics recorder.
func (f *Feed) WithRecorder(r FeedRecorder) *Feed {
	f.recorder = r
	return f
}

// Apply folds one feed event into the buffers. It reports false for events
// that were ignored: unknown networks, null payloads, unparsable payloads and
// unknown types.
func (f *Feed) Apply(ev client.FeedEvent) (FeedUpdate, bool) {
	network, err := ParseNetwork(ev.Crypto)
	if err != nil {
		f.record(ev.Type, ev.Crypto, "unknown_network")
		return FeedUpdate{}, false
	}
	if !ev.HasData() {
		f.record(ev.Type, ev.Crypto, "ignored")
		return FeedUpdate{}, false
	}

	var update FeedUpdate
	switch ev.Type {
	case EventTransaction:
		var tx client.RPCTransaction
		if err := json.Unmarshal(ev.Data, &tx); err != nil {
			f.logger.Debug("dropping malformed transaction event", "network", network, "error", err)
			f.record(ev.Type, ev.Crypto, "malformed")
			return FeedUpdate{}, false
		}
		if tx.Tx == nil {
			f.record(ev.Type, ev.Crypto, "ignored")
			return FeedUpdate{}, false
		}
		lt := LiveTransaction{
			TxID:    tx.Tx.Hash,
			Amount:  tx.TotalOutput(),
			Network: network,
			Block:   tx.Tx.Block,
			Inputs:  len(tx.Inputs),
			Outputs: len(tx.Outputs),
		}
		if !ev.Time.IsZero() {
			lt.Time = ev.Time.Unix()
		}
		f.mu.Lock()
		f.txs = pushFront(f.txs, lt)
		f.mu.Unlock()
		update = FeedUpdate{Type: EventTransaction, Transaction: &lt}

	case EventBlock:
		var b client.Block
		if err := json.Unmarshal(ev.Data, &b); err != nil {
			f.logger.Debug("dropping malformed block event", "network", network, "error", err)
			f.record(ev.Type, ev.Crypto, "malformed")
			return FeedUpdate{}, false
		}
		lb := LiveBlock{
			Hash:       b.Hash,
			Height:     b.Height,
			Network:    network,
			Time:       b.Time,
			MedianTime: b.MedianTime,
			TxCount:    b.TxCount(),
		}
		f.mu.Lock()
		f.blocks = pushFront(f.blocks, lb)
		f.mu.Unlock()
		update = FeedUpdate{Type: EventBlock, Block: &lb}

	default:
		f.record(ev.Type, ev.Crypto, "ignored")
		return FeedUpdate{}, false
	}

	f.record(ev.Type, ev.Crypto, "applied")
	f.broadcast(update)
	return update, true
}

// Seed replaces both buffers, e.g. with entries restored from the archive.
// Inputs are expected newest first and are capped.
func (f *Feed) Seed(txs []LiveTransaction, blocks []LiveBlock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = capped(append([]LiveTransaction(nil), txs...))
	f.blocks = capped(append([]LiveBlock(nil), blocks...))
}

// Transactions returns a copy of the live transaction buffer, newest first.
func (f *Feed) Transactions() []LiveTransaction {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]LiveTransaction(nil), f.txs...)
}

// LiveBlocks returns a copy of the live block buffer, newest first.
func (f *Feed) LiveBlocks() []LiveBlock {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]LiveBlock(nil), f.blocks...)
}

// Blocks merges the live block buffer with one synthetic tip entry per
// online network in status, sorts by timestamp descending and keeps the top
// FeedCapacity entries.
func (f *Feed) Blocks(status map[string]client.NetworkStatus) []LiveBlock {
	merged := f.LiveBlocks()
	for _, n := range Networks {
		st, ok := status[string(n)]
		if !ok {
			continue
		}
		merged = append(merged, LiveBlock{
			Hash:       st.BestBlockHash,
			Height:     st.Blocks,
			Network:    n,
			Time:       st.Time,
			MedianTime: st.MedianTime,
			Synthetic:  true,
		})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp() > merged[j].Timestamp()
	})
	return capped(merged)
}

// Listen registers a listener for applied updates. Updates are dropped for
// a listener whose buffer is full. The returned func unregisters the
// listener and closes the channel.
func (f *Feed) Listen(buffer int) (<-chan FeedUpdate, func()) {
	ch := make(chan FeedUpdate, buffer)

	f.lmu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = ch
	f.lmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.lmu.Lock()
			delete(f.listeners, id)
			f.lmu.Unlock()
			close(ch)
		})
	}
}

func (f *Feed) broadcast(u FeedUpdate) {
	f.lmu.Lock()
	defer f.lmu.Unlock()
	for id, ch := range f.listeners {
		select {
		case ch <- u:
		default:
			f.logger.Debug("dropping update for slow listener", "listener", id, "type", u.Type)
		}
	}
}

func (f *Feed) record(eventType, network, outcome string) {
	if f.recorder != nil {
		f.recorder.RecordFeedEvent(eventType, network, outcome)
	}
}

// pushFront returns a new slice with v first and at most FeedCapacity
// entries.
func pushFront[T any](buf []T, v T) []T {
	out := make([]T, 0, FeedCapacity)
	out = append(out, v)
	out = append(out, buf...)
	return capped(out)
}

func capped[T any](buf []T) []T {
	if len(buf) > FeedCapacity {
		return buf[:FeedCapacity]
	}
	return buf
}

// Subscription delivers raw feed events. *client.Stream implements it.
type Subscription interface {
	Run(ctx context.Context, onOpen func(), handle func(client.FeedEvent)) error
}

// Consume applies every event from sub until ctx is done. It is the single
// owner of the buffers for its lifetime.
func (f *Feed) Consume(ctx context.Context, sub Subscription) error {
	return sub.Run(ctx, func() {
		f.logger.Info("live feed subscription open")
	}, func(ev client.FeedEvent) {
		f.Apply(ev)
	})
}
