package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/explorer"
)

// watchCommand follows the live feed directly.
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow the live feed of new transactions and blocks",
		Description: `Connect to the live feed and print every applied update.

Updates can be narrowed by network and type, and by jq expressions that are
evaluated against the JSON form of the update. Every --must-jq expression
must be truthy for an update to be printed.

Example:
  txexplorer feed watch --network btc --type tx --must-jq '.transaction.amount | tonumber > 1'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Only show updates for this network",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Only show updates of this type (tx or block)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Stop after this many updates (0 for no limit)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to each printed update",
			},
			&cli.DurationFlag{
				Name:    "reconnect-delay",
				Usage:   "Delay between reconnects",
				EnvVars: []string{"FEED_RECONNECT_DELAY"},
				Value:   5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			filter, err := newUpdateFilter(c)
			if err != nil {
				return err
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			logger := newLogger(c)
			feed := explorer.NewFeed(logger)
			stream := client.NewStream(c.String("feed-url"), c.Duration("reconnect-delay"), logger)
			out := c.App.Writer
			jsonOutput := c.Bool("json")
			limit := c.Int("count")

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Watching %s... (Ctrl+C to stop)\n\n", c.String("feed-url"))
			}

			count := 0
			err = stream.Run(ctx, func() {
				logger.Debug("live feed connected")
			}, func(ev client.FeedEvent) {
				update, ok := feed.Apply(ev)
				if !ok {
					return
				}
				printed, err := filter.emit(out, update, jsonOutput)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error handling update: %v\n", err)
					return
				}
				if !printed {
					return
				}
				count++
				if limit > 0 && count >= limit {
					cancel()
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

// updateFilter narrows and formats live feed updates. It is shared by the
// feed and nats commands.
type updateFilter struct {
	network   explorer.Network
	eventType string
	mustJQ    []*gojq.Code
	transform *gojq.Code
}

func newUpdateFilter(c *cli.Context) (*updateFilter, error) {
	f := &updateFilter{eventType: c.String("type")}

	if raw := c.String("network"); raw != "" {
		n, err := explorer.ParseNetwork(raw)
		if err != nil {
			return nil, err
		}
		f.network = n
	}
	switch f.eventType {
	case "", explorer.EventTransaction, explorer.EventBlock:
	default:
		return nil, fmt.Errorf("unknown update type %q (expected %s or %s)", f.eventType, explorer.EventTransaction, explorer.EventBlock)
	}

	must, err := compileJQ(c.StringSlice("must-jq"))
	if err != nil {
		return nil, err
	}
	f.mustJQ = must

	if expr := c.String("jq"); expr != "" {
		codes, err := compileJQ([]string{expr})
		if err != nil {
			return nil, err
		}
		f.transform = codes[0]
	}
	return f, nil
}

// match reports whether update passes the network, type and jq filters.
func (f *updateFilter) match(update explorer.FeedUpdate) (bool, error) {
	if f.network != "" && update.Network() != f.network {
		return false, nil
	}
	if f.eventType != "" && update.Type != f.eventType {
		return false, nil
	}
	if len(f.mustJQ) == 0 {
		return true, nil
	}
	input, err := jqInput(update)
	if err != nil {
		return false, err
	}
	return matchesAll(f.mustJQ, input), nil
}

// emit writes update when it matches and reports whether it did.
func (f *updateFilter) emit(w io.Writer, update explorer.FeedUpdate, jsonOutput bool) (bool, error) {
	ok, err := f.match(update)
	if err != nil || !ok {
		return false, err
	}

	if f.transform != nil {
		input, err := jqInput(update)
		if err != nil {
			return false, err
		}
		results, err := transformJQ(f.transform, input)
		if err != nil {
			return false, err
		}
		for _, r := range results {
			data, err := json.Marshal(r)
			if err != nil {
				return false, err
			}
			fmt.Fprintln(w, string(data))
		}
		return true, nil
	}

	if jsonOutput {
		data, err := json.Marshal(update)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(w, string(data))
		return true, nil
	}

	printUpdate(w, update)
	return true, nil
}

func printUpdate(w io.Writer, update explorer.FeedUpdate) {
	switch {
	case update.Transaction != nil:
		tx := update.Transaction
		fmt.Fprintf(w, "%-4s tx     %s  %s  (%d in, %d out)\n",
			tx.Network.Upper(),
			tx.TxID,
			explorer.FormatAmount(tx.Amount, tx.Network, nil),
			tx.Inputs,
			tx.Outputs,
		)
	case update.Block != nil:
		b := update.Block
		fmt.Fprintf(w, "%-4s block  %s  height %s  %s txs  %s\n",
			b.Network.Upper(),
			b.Hash,
			explorer.FormatNumber(float64(b.Height)),
			explorer.FormatNumber(float64(b.TxCount)),
			explorer.FormatBlockTime(b.Timestamp()),
		)
	}
}
