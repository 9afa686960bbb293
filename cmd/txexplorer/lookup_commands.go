package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/explorer"
)

const defaultRequestTimeout = 15 * time.Second

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search for a transaction, block or address",
		ArgsUsage: "QUERY",
		Description: `Classify QUERY the way the explorer search box does.

A 64 character hex string is shown as a transaction when any network knows
it, otherwise it is probed as a block hash. A 26-35 character base58 string
is shown as an address.

Example:
  txexplorer search 000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("query is required")
			}

			resolver, err := newResolver(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			ctrl := explorer.NewController(resolver, explorer.NewMemoryHistory(""), nil, newLogger(c))
			if !c.Bool("json") {
				ctrl.LoadRates(ctx)
			}

			page, err := ctrl.Search(ctx, c.Args().Get(0))
			if err != nil {
				return err
			}
			return outputPage(c, page, ctrl.State().Rates)
		},
	}
}

func txCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Show a transaction",
		ArgsUsage: "TXID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Network to probe first (btc, bch, ltc, doge, dash)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("transaction id is required")
			}
			return lookup(c, explorer.TransactionRoute(c.Args().Get(0)))
		},
	}
}

func blockCommand() *cli.Command {
	return &cli.Command{
		Name:      "block",
		Usage:     "Show a block",
		ArgsUsage: "HASH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Network the block is on; every network is probed when unset",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("block hash is required")
			}
			return lookup(c, explorer.BlockRoute(c.Args().Get(0)))
		},
	}
}

func addressCommand() *cli.Command {
	return &cli.Command{
		Name:      "address",
		Usage:     "Show an address summary and history",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address is required")
			}
			return lookup(c, explorer.AddressRoute(c.Args().Get(0)))
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the status of every network",
		Action: func(c *cli.Context) error {
			status, err := newAPIClient(c).NetworkInfo(c.Context)
			if err != nil {
				return fmt.Errorf("failed to load network status: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}
			renderStatus(c.App.Writer, status)
			return nil
		},
	}
}

func ratesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rates",
		Usage: "Show USD exchange rates",
		Action: func(c *cli.Context) error {
			rates, err := newAPIClient(c).Rates(c.Context)
			if err != nil {
				return fmt.Errorf("failed to load rates: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, rates)
			}
			renderRates(c.App.Writer, rates)
			return nil
		},
	}
}

// lookup resolves route with the optional --network hint and prints it. A
// miss is reported as an error so the exit status reflects it.
func lookup(c *cli.Context, route explorer.Route) error {
	var hint explorer.Network
	if raw := c.String("network"); raw != "" {
		n, err := explorer.ParseNetwork(raw)
		if err != nil {
			return err
		}
		hint = n
	}

	resolver, err := newResolver(c)
	if err != nil {
		return err
	}

	page, err := resolver.Resolve(c.Context, route, hint)
	if err != nil {
		return err
	}
	if page.Kind() == explorer.RouteNotFound {
		return fmt.Errorf("%s %s: %w", route.Kind, route.ID, explorer.ErrNotFound)
	}

	rates := client.Rates{}
	if !c.Bool("json") {
		rates = loadRates(c.Context, resolver.API())
	}
	return outputPage(c, page, rates)
}

func outputPage(c *cli.Context, page explorer.Page, rates client.Rates) error {
	if page.Kind() == explorer.RouteNotFound {
		return explorer.ErrNotFound
	}
	if c.Bool("json") {
		return outputJSON(c.App.Writer, pagePayload(page))
	}
	renderPage(c.App.Writer, page, rates)
	return nil
}

// pagePayload is the JSON form of a page: the resolved view itself.
func pagePayload(page explorer.Page) interface{} {
	switch page.Kind() {
	case explorer.RouteTransaction:
		return page.Transaction
	case explorer.RouteBlock:
		return page.Block
	case explorer.RouteAddress:
		return page.Address
	default:
		return map[string]string{"page": page.Kind().String()}
	}
}

// loadRates returns empty rates on failure; amounts then print without USD.
func loadRates(ctx context.Context, api explorer.API) client.Rates {
	rates, err := api.Rates(ctx)
	if err != nil {
		return client.Rates{}
	}
	return rates
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelError
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newAPIClient(c *cli.Context) *client.Client {
	timeout := c.Duration("request-timeout")
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return client.NewClient(c.String("api-url"), &http.Client{Timeout: timeout}, newLogger(c))
}

func newResolver(c *cli.Context) (*explorer.Resolver, error) {
	resolver := explorer.NewResolver(newAPIClient(c), newLogger(c))
	if raw := c.String("address-network"); raw != "" {
		n, err := explorer.ParseNetwork(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid address-network: %w", err)
		}
		resolver = resolver.WithFallbackNetwork(n)
	}
	return resolver, nil
}

// Helper function to output JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
