package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
)

// Store provides archive operations for live feed entries.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithMetrics attaches query metrics.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// ArchivedTransaction is a live transaction as stored in the archive.
type ArchivedTransaction struct {
	TxID      string
	Network   string
	Amount    decimal.Decimal
	BlockHash *string // nil while unconfirmed
	Inputs    int32
	Outputs   int32
	FeedTime  *time.Time
	SeenAt    time.Time
}

// ArchivedBlock is a live block as stored in the archive.
type ArchivedBlock struct {
	Hash       string
	Network    string
	Height     int64
	BlockTime  int64
	MedianTime int64
	TxCount    int64
	SeenAt     time.Time
}

// ListRecentParams selects the newest archived entries. An empty Network
// lists every network.
type ListRecentParams struct {
	Network string
	Limit   int32
}

const transactionColumns = `network, txid, amount::text, block_hash, inputs, outputs, feed_time, seen_at`

const blockColumns = `network, hash, height, block_time, median_time, tx_count, seen_at`

// UpsertTransaction archives a live transaction. Re-announcing a known
// transaction updates it; a known block hash is never cleared.
func (s *Store) UpsertTransaction(ctx context.Context, tx explorer.LiveTransaction) (*ArchivedTransaction, error) {
	var feedTime pgtype.Timestamptz
	if tx.Time != 0 {
		feedTime = pgtype.Timestamptz{Time: time.Unix(tx.Time, 0).UTC(), Valid: true}
	}

	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO live_transactions (network, txid, amount, block_hash, inputs, outputs, feed_time)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		ON CONFLICT (network, txid) DO UPDATE SET
			amount = EXCLUDED.amount,
			block_hash = COALESCE(EXCLUDED.block_hash, live_transactions.block_hash),
			inputs = EXCLUDED.inputs,
			outputs = EXCLUDED.outputs,
			feed_time = COALESCE(EXCLUDED.feed_time, live_transactions.feed_time),
			seen_at = NOW()
		RETURNING `+transactionColumns,
		string(tx.Network), tx.TxID, tx.Amount.String(), pgtextFromString(tx.Block),
		int32(tx.Inputs), int32(tx.Outputs), feedTime,
	)
	result, err := scanTransaction(row)
	s.record("upsert", "live_transactions", start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertBlock archives a live block.
func (s *Store) UpsertBlock(ctx context.Context, b explorer.LiveBlock) (*ArchivedBlock, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO live_blocks (network, hash, height, block_time, median_time, tx_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (network, hash) DO UPDATE SET
			height = EXCLUDED.height,
			block_time = EXCLUDED.block_time,
			median_time = EXCLUDED.median_time,
			tx_count = EXCLUDED.tx_count,
			seen_at = NOW()
		RETURNING `+blockColumns,
		string(b.Network), b.Hash, b.Height, b.Time, b.MedianTime, b.TxCount,
	)
	result, err := scanBlock(row)
	s.record("upsert", "live_blocks", start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransaction retrieves an archived transaction by network and txid.
func (s *Store) GetTransaction(ctx context.Context, network, txid string) (*ArchivedTransaction, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM live_transactions WHERE network = $1 AND txid = $2`,
		network, txid,
	)
	result, err := scanTransaction(row)
	s.record("get", "live_transactions", start, err)
	return result, err
}

// ListRecentTransactions returns the most recently seen transactions.
func (s *Store) ListRecentTransactions(ctx context.Context, params ListRecentParams) ([]*ArchivedTransaction, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM live_transactions
		WHERE ($1 = '' OR network = $1)
		ORDER BY seen_at DESC
		LIMIT $2`,
		params.Network, params.Limit,
	)
	if err != nil {
		s.record("list", "live_transactions", start, err)
		return nil, err
	}
	defer rows.Close()

	var result []*ArchivedTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			s.record("list", "live_transactions", start, err)
			return nil, err
		}
		result = append(result, tx)
	}
	err = rows.Err()
	s.record("list", "live_transactions", start, err)
	return result, err
}

// ListRecentBlocks returns the most recently seen blocks.
func (s *Store) ListRecentBlocks(ctx context.Context, params ListRecentParams) ([]*ArchivedBlock, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT `+blockColumns+`
		FROM live_blocks
		WHERE ($1 = '' OR network = $1)
		ORDER BY seen_at DESC
		LIMIT $2`,
		params.Network, params.Limit,
	)
	if err != nil {
		s.record("list", "live_blocks", start, err)
		return nil, err
	}
	defer rows.Close()

	var result []*ArchivedBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			s.record("list", "live_blocks", start, err)
			return nil, err
		}
		result = append(result, b)
	}
	err = rows.Err()
	s.record("list", "live_blocks", start, err)
	return result, err
}

// DeleteOlderThan removes archived entries last seen before the cutoff and
// returns how many rows were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	var total int64
	for _, table := range []string{"live_transactions", "live_blocks"} {
		tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE seen_at < $1`, before)
		s.record("delete", table, start, err)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// Live converts the archived entry back to a feed entry.
func (t *ArchivedTransaction) Live() explorer.LiveTransaction {
	lt := explorer.LiveTransaction{
		TxID:    t.TxID,
		Amount:  t.Amount,
		Network: explorer.Network(t.Network),
		Inputs:  int(t.Inputs),
		Outputs: int(t.Outputs),
	}
	if t.BlockHash != nil {
		lt.Block = *t.BlockHash
	}
	if t.FeedTime != nil {
		lt.Time = t.FeedTime.Unix()
	}
	return lt
}

// Live converts the archived entry back to a feed entry.
func (b *ArchivedBlock) Live() explorer.LiveBlock {
	return explorer.LiveBlock{
		Hash:       b.Hash,
		Height:     b.Height,
		Network:    explorer.Network(b.Network),
		Time:       b.BlockTime,
		MedianTime: b.MedianTime,
		TxCount:    b.TxCount,
	}
}

func (s *Store) record(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}

func scanTransaction(row pgx.Row) (*ArchivedTransaction, error) {
	var (
		t        ArchivedTransaction
		amount   string
		block    pgtype.Text
		feedTime pgtype.Timestamptz
	)
	if err := row.Scan(&t.Network, &t.TxID, &amount, &block, &t.Inputs, &t.Outputs, &feedTime, &t.SeenAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	t.Amount = d
	t.BlockHash = stringPtrFromPgtext(block)
	t.FeedTime = timePtrFromPgTimestamptz(feedTime)
	return &t, nil
}

func scanBlock(row pgx.Row) (*ArchivedBlock, error) {
	var b ArchivedBlock
	if err := row.Scan(&b.Network, &b.Hash, &b.Height, &b.BlockTime, &b.MedianTime, &b.TxCount, &b.SeenAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func pgtextFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
