package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/explorer"
)

const browseHelp = `Commands:
  open FRAGMENT          resolve a fragment such as tx/<id>, block/<hash>, address/<addr>
  search QUERY           search for a transaction, block or address
  tx TXID [NETWORK]      show a transaction
  block HASH [NETWORK]   show a block
  address ADDRESS        show an address
  home                   show network status and the live feed
  back                   go back one step in history
  latest                 show the live feed buffers
  help                   show this help
  quit                   leave
`

func browseCommand() *cli.Command {
	return &cli.Command{
		Name:      "browse",
		Usage:     "Interactive explorer session with navigation history",
		ArgsUsage: "[FRAGMENT]",
		Description: `Start an interactive session. The optional FRAGMENT (for example
tx/<txid>) is resolved first, the same way a deep link is.

With --live the session subscribes to the live feed and "latest" shows the
most recent blocks and transactions.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "live",
				Usage: "Subscribe to the live feed",
			},
			&cli.DurationFlag{
				Name:    "reconnect-delay",
				Usage:   "Delay between live feed reconnects",
				EnvVars: []string{"FEED_RECONNECT_DELAY"},
				Value:   5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			resolver, err := newResolver(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			logger := newLogger(c)
			hist := explorer.NewMemoryHistory(c.Args().First())
			ctrl := explorer.NewController(resolver, hist, nil, logger)

			if c.Bool("live") {
				stream := client.NewStream(c.String("feed-url"), c.Duration("reconnect-delay"), logger)
				go consumeFeed(ctx, ctrl.Feed(), stream, logger)
			}

			if err := ctrl.Start(ctx); err != nil {
				return err
			}
			showState(c.App.Writer, ctrl)

			return runBrowse(ctx, ctrl, hist, os.Stdin, c.App.Writer)
		},
	}
}

// runBrowse reads one command per line from in until quit or EOF.
func runBrowse(ctx context.Context, ctrl *explorer.Controller, hist *explorer.MemoryHistory, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		var err error
		switch cmd {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprint(out, browseHelp)
			continue
		case "latest":
			renderLatest(out, ctrl.LatestBlocks(), ctrl.LatestTransactions(), ctrl.State().Rates)
			continue
		case "home":
			ctrl.ShowHome()
		case "back":
			if _, ok := hist.Back(); !ok {
				fmt.Fprintln(out, "no earlier page")
				continue
			}
			_, err = ctrl.HandleFragmentChange(ctx)
		case "open":
			if len(args) != 1 {
				err = fmt.Errorf("usage: open FRAGMENT")
				break
			}
			_, err = ctrl.Open(ctx, args[0])
		case "search":
			_, err = ctrl.Search(ctx, strings.Join(args, " "))
		case "tx":
			var n explorer.Network
			if n, err = networkArg(args, 1); err == nil {
				_, err = ctrl.ShowTransaction(ctx, args[0], n)
			}
		case "block":
			var n explorer.Network
			if n, err = networkArg(args, 1); err == nil {
				if n == "" {
					_, err = ctrl.SearchBlockHash(ctx, args[0])
				} else {
					_, err = ctrl.ShowBlock(ctx, args[0], n)
				}
			}
		case "address":
			if len(args) != 1 {
				err = fmt.Errorf("usage: address ADDRESS")
				break
			}
			_, err = ctrl.ShowAddress(ctx, args[0])
		default:
			err = fmt.Errorf("unknown command %q, try help", cmd)
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var searchErr *explorer.SearchError
			if errors.As(err, &searchErr) {
				fmt.Fprintln(out, searchErr.Error())
				continue
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		showState(out, ctrl)
	}
}

// networkArg validates an ID argument followed by an optional network at
// position i.
func networkArg(args []string, i int) (explorer.Network, error) {
	if len(args) < i || len(args) > i+1 {
		return "", fmt.Errorf("usage: ID [NETWORK]")
	}
	if len(args) == i {
		return "", nil
	}
	return explorer.ParseNetwork(args[i])
}

func showState(out io.Writer, ctrl *explorer.Controller) {
	state := ctrl.State()
	fmt.Fprintf(out, "[%s]\n", state.Page.Title)
	if state.Page.Kind() == explorer.RouteHome {
		if state.StatusErr != nil {
			fmt.Fprintf(out, "network status unavailable: %v\n", state.StatusErr)
		}
		renderStatus(out, state.Status)
		fmt.Fprintln(out)
		renderLatest(out, ctrl.LatestBlocks(), ctrl.LatestTransactions(), state.Rates)
		return
	}
	renderPage(out, state.Page, state.Rates)
}

// consumeFeed runs the live feed until ctx is done. A subscription that
// stops on its own is logged.
func consumeFeed(ctx context.Context, feed *explorer.Feed, sub explorer.Subscription, logger *slog.Logger) {
	if err := feed.Consume(ctx, sub); err != nil && ctx.Err() == nil {
		logger.Error("live feed stopped", "error", err)
	}
}
