package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/txexplorer/service/db"
	"github.com/brojonat/txexplorer/service/explorer"
	natspkg "github.com/brojonat/txexplorer/service/nats"
)

func recentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "network",
			Aliases: []string{"n"},
			Usage:   "Filter by network (btc, bch, ltc, doge, dash)",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"l"},
			Usage:   "Maximum number of rows",
			Value:   20,
		},
	}
}

func recentParams(c *cli.Context) (db.ListRecentParams, error) {
	params := db.ListRecentParams{Limit: int32(c.Int("limit"))}
	if raw := c.String("network"); raw != "" {
		n, err := explorer.ParseNetwork(raw)
		if err != nil {
			return params, err
		}
		params.Network = string(n)
	}
	if params.Limit <= 0 {
		return params, fmt.Errorf("limit must be positive")
	}
	return params, nil
}

func recentTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "recent-txs",
		Usage:   "List archived live feed transactions, newest first",
		Aliases: []string{"txs"},
		Flags:   recentFlags(),
		Action: func(c *cli.Context) error {
			params, err := recentParams(c)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txs, err := store.ListRecentTransactions(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, txs)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NETWORK\tTXID\tAMOUNT\tBLOCK\tSEEN")
			for _, tx := range txs {
				n := explorer.Network(tx.Network)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					n.Upper(),
					tx.TxID,
					explorer.FormatAmount(tx.Amount, n, nil),
					formatOptionalBlock(tx.BlockHash),
					humanize.Time(tx.SeenAt),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(txs))
			return nil
		},
	}
}

func recentBlocksCommand() *cli.Command {
	return &cli.Command{
		Name:    "recent-blocks",
		Usage:   "List archived live feed blocks, newest first",
		Aliases: []string{"blocks"},
		Flags:   recentFlags(),
		Action: func(c *cli.Context) error {
			params, err := recentParams(c)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			blocks, err := store.ListRecentBlocks(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to list blocks: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, blocks)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NETWORK\tHEIGHT\tHASH\tTXS\tBLOCK TIME\tSEEN")
			for _, b := range blocks {
				live := b.Live()
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					live.Network.Upper(),
					explorer.FormatNumber(float64(b.Height)),
					b.Hash,
					b.TxCount,
					explorer.FormatBlockTime(live.Timestamp()),
					humanize.Time(b.SeenAt),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d blocks\n", len(blocks))
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending archive migrations",
		Action: func(c *cli.Context) error {
			dbURL, err := databaseURL(c)
			if err != nil {
				return err
			}
			if err := db.Migrate(dbURL, newLogger(c)); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "✓ Migrations applied")
			return nil
		},
	}
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete archived rows older than a cutoff",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:     "older-than",
				Usage:    "Delete rows first seen before now minus this duration (e.g. 720h)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			age := c.Duration("older-than")
			if age <= 0 {
				return fmt.Errorf("older-than must be positive")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			cutoff := time.Now().Add(-age)
			n, err := store.DeleteOlderThan(context.Background(), cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune archive: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]interface{}{
					"deleted": n,
					"cutoff":  cutoff.UTC(),
				})
			}
			fmt.Fprintf(c.App.Writer, "✓ Deleted %s rows seen before %s\n", humanize.Comma(n), cutoff.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func republishCommand() *cli.Command {
	return &cli.Command{
		Name:  "republish",
		Usage: "Publish recent archived updates to NATS again",
		Description: `Read the most recent archived transactions and blocks and publish them to
the feed stream. JetStream deduplicates by message id, so updates still
inside the duplicate window are not delivered twice.`,
		Flags: recentFlags(),
		Action: func(c *cli.Context) error {
			params, err := recentParams(c)
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := context.Background()
			txs, err := store.ListRecentTransactions(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			blocks, err := store.ListRecentBlocks(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to list blocks: %w", err)
			}

			msgs := make([]*natspkg.FeedMessage, 0, len(txs)+len(blocks))
			for _, tx := range txs {
				live := tx.Live()
				msgs = append(msgs, natspkg.FromUpdate(explorer.FeedUpdate{Type: explorer.EventTransaction, Transaction: &live}))
			}
			for _, b := range blocks {
				live := b.Live()
				msgs = append(msgs, natspkg.FromUpdate(explorer.FeedUpdate{Type: explorer.EventBlock, Block: &live}))
			}

			pub, err := natspkg.NewPublisher(c.String("nats-url"), newLogger(c))
			if err != nil {
				return err
			}
			defer pub.Close()

			if err := pub.PublishBatch(ctx, msgs); err != nil {
				return fmt.Errorf("failed to publish: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Published %d updates\n", len(msgs))
			return nil
		},
	}
}

func databaseURL(c *cli.Context) (string, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return "", fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}
	return dbURL, nil
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL, err := databaseURL(c)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

func formatOptionalBlock(hash *string) string {
	if hash != nil && *hash != "" {
		return explorer.ShortID(*hash)
	}
	return "unconfirmed"
}
