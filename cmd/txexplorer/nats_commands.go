package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/txexplorer/service/explorer"
	natspkg "github.com/brojonat/txexplorer/service/nats"
)

// subscribeCommand follows the archived feed relayed through NATS.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to live feed updates relayed through NATS",
		Description: `Subscribe to the feed updates the archiver publishes to NATS JetStream.

Updates are published to the subject feed.{network}.{type}; --network and
--type narrow the consumer's subject filter.

Example:
  txexplorer nats subscribe --network ltc --type block --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Only receive updates for this network",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Only receive updates of this type (tx or block)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to each printed update",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "txexplorer-cli",
			},
		},
		Action: func(c *cli.Context) error {
			filter, err := newUpdateFilter(c)
			if err != nil {
				return err
			}
			return streamUpdates(c, filter)
		},
	}
}

func streamUpdates(c *cli.Context, filter *updateFilter) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	out := c.App.Writer

	// Connect to NATS
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := natspkg.Subject(filter.network, filter.eventType)

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "Subscribing to: %s\n", subject)
		fmt.Fprintf(os.Stderr, "   NATS: %s\n", natsURL)
		if c.Bool("durable") {
			fmt.Fprintf(os.Stderr, "   Consumer: %s (durable)\n", c.String("consumer-name"))
		}
		fmt.Fprintf(os.Stderr, "\nWaiting for updates... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if c.Bool("durable") {
		consumerConfig.Durable = c.String("consumer-name")
		consumerConfig.Name = c.String("consumer-name")
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var m natspkg.FeedMessage
			if err := json.Unmarshal(msg.Data(), &m); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing update: %v\n", err)
				msg.Ack()
				continue
			}

			update := explorer.FeedUpdate{Type: m.Type, Transaction: m.Transaction, Block: m.Block}
			printed, err := filter.emit(out, update, jsonOutput)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error handling update: %v\n", err)
			}
			if printed {
				count++
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\nReceived %d updates\n", count)
			}
			return nil
		}
	}
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the " + natspkg.StreamName + " JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  txexplorer nats inspect-stream`,
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			out := c.App.Writer

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(c.Context, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(out, info)
			}

			fmt.Fprintf(out, "Stream: %s\n", info.Config.Name)
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(out, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(out, "Messages:     %s\n", humanize.Comma(int64(info.State.Msgs)))
			fmt.Fprintf(out, "Bytes:        %s\n", humanize.IBytes(info.State.Bytes))
			fmt.Fprintf(out, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(out, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(out, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(out, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(out, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
