package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "txexplorer",
		Usage: "Multi-network block explorer CLI",
		Description: `A command-line block explorer for btc, bch, ltc, doge and dash.

Use this CLI to look up transactions, blocks and addresses, watch the live
feed, browse interactively with history, and inspect the archive.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// One-shot lookups against the blockchain-data API
			searchCommand(),
			txCommand(),
			blockCommand(),
			addressCommand(),
			statusCommand(),
			ratesCommand(),
			// Interactive session
			browseCommand(),
			// Live feed commands
			{
				Name:  "feed",
				Usage: "Live feed commands",
				Subcommands: []*cli.Command{
					watchCommand(),
				},
			},
			// NATS feed relay commands
			{
				Name:  "nats",
				Usage: "NATS feed relay commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Archive inspection commands
			{
				Name:  "db",
				Usage: "Archive inspection commands",
				Subcommands: []*cli.Command{
					recentTransactionsCommand(),
					recentBlocksCommand(),
					migrateCommand(),
					pruneCommand(),
					republishCommand(),
				},
			},
			// Temporal backfill schedule commands
			{
				Name:  "backfill",
				Usage: "Tip backfill schedule commands",
				Subcommands: []*cli.Command{
					scheduleBackfillCommand(),
					describeBackfillCommand(),
					unscheduleBackfillCommand(),
					runBackfillCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-url",
			Usage:   "Blockchain-data API base URL",
			EnvVars: []string{"API_BASE_URL"},
			Value:   "https://api-v1.freedom.st",
		},
		&cli.StringFlag{
			Name:    "feed-url",
			Usage:   "Live feed SSE URL",
			EnvVars: []string{"FEED_URL"},
			Value:   "https://sock-v1.freedom.st/sse",
		},
		&cli.DurationFlag{
			Name:    "request-timeout",
			Usage:   "Timeout for each API request",
			EnvVars: []string{"REQUEST_TIMEOUT"},
			Value:   defaultRequestTimeout,
		},
		&cli.StringFlag{
			Name:    "address-network",
			Usage:   "Network used for addresses without transactions",
			EnvVars: []string{"DEFAULT_ADDRESS_NETWORK"},
			Value:   "btc",
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "Server URL for health checks",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://localhost:4222",
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server host:port",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue the worker listens on",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "txexplorer",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Log debug output to stderr",
		},
	}
}
