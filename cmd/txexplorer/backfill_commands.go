package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/temporal"
)

func backfillInputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "network",
			Aliases: []string{"n"},
			Usage:   "Network to backfill (repeatable, default all)",
		},
		&cli.DurationFlag{
			Name:    "retention",
			Usage:   "Prune archive entries not seen for this long (0 keeps everything)",
			EnvVars: []string{"ARCHIVE_RETENTION"},
		},
	}
}

func scheduleBackfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Create or update the tip backfill schedule",
		Flags: append(backfillInputFlags(),
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "How often the backfill runs",
				EnvVars: []string{"BACKFILL_INTERVAL"},
				Value:   time.Minute,
			},
		),
		Action: func(c *cli.Context) error {
			input, err := backfillInput(c)
			if err != nil {
				return err
			}
			interval := c.Duration("interval")
			if interval < 10*time.Second {
				return fmt.Errorf("interval must be at least 10s, got %s", interval)
			}

			tc, err := newTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			return scheduleBackfill(c.Context, tc, c.App.Writer, input, interval)
		},
	}
}

func describeBackfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "describe",
		Usage: "Show the tip backfill schedule",
		Action: func(c *cli.Context) error {
			tc, err := newTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			status, err := tc.DescribeBackfillSchedule(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}
			printScheduleStatus(c.App.Writer, status)
			return nil
		},
	}
}

func unscheduleBackfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "unschedule",
		Usage: "Delete the tip backfill schedule",
		Action: func(c *cli.Context) error {
			tc, err := newTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteBackfillSchedule(c.Context); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Deleted schedule %s\n", temporal.BackfillScheduleID)
			return nil
		},
	}
}

func runBackfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one tip backfill now and wait for the result",
		Flags: append(backfillInputFlags(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the workflow",
				Value: 5 * time.Minute,
			},
		),
		Action: func(c *cli.Context) error {
			input, err := backfillInput(c)
			if err != nil {
				return err
			}

			tc, err := newTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			result, err := tc.RunBackfill(ctx, input)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, result)
			}
			printBackfillResult(c.App.Writer, result)
			return nil
		},
	}
}

// backfillInput validates the network and retention flags.
func backfillInput(c *cli.Context) (temporal.BackfillInput, error) {
	input := temporal.BackfillInput{Retention: c.Duration("retention")}
	if input.Retention < 0 {
		return input, fmt.Errorf("retention cannot be negative")
	}
	for _, raw := range c.StringSlice("network") {
		n, err := explorer.ParseNetwork(raw)
		if err != nil {
			return input, err
		}
		input.Networks = append(input.Networks, string(n))
	}
	return input, nil
}

func scheduleBackfill(ctx context.Context, s temporal.Scheduler, w io.Writer, input temporal.BackfillInput, interval time.Duration) error {
	if err := s.UpsertBackfillSchedule(ctx, input, interval); err != nil {
		return err
	}
	networks := "all networks"
	if len(input.Networks) > 0 {
		networks = strings.Join(input.Networks, ", ")
	}
	fmt.Fprintf(w, "Scheduled %s every %s for %s\n", temporal.BackfillScheduleID, interval, networks)
	if input.Retention > 0 {
		fmt.Fprintf(w, "Pruning entries older than %s\n", input.Retention)
	}
	return nil
}

func printScheduleStatus(w io.Writer, status *temporal.ScheduleStatus) {
	state := "active"
	if status.Paused {
		state = "paused"
	}
	fmt.Fprintf(w, "Schedule: %s (%s)\n", status.ID, state)
	fmt.Fprintf(w, "Interval: %s\n", status.Interval)
	fmt.Fprintf(w, "Runs:     %s\n", humanize.Comma(int64(status.NumActions)))
	for _, next := range status.NextRuns {
		fmt.Fprintf(w, "Next:     %s (%s)\n", next.UTC().Format(time.RFC3339), humanize.Time(next))
	}
}

func printBackfillResult(w io.Writer, result *temporal.BackfillResult) {
	online := "none"
	if len(result.Online) > 0 {
		online = strings.Join(result.Online, ", ")
	}
	fmt.Fprintf(w, "Online:  %s\n", online)
	fmt.Fprintf(w, "Tips:    %d\n", result.TipCount)
	fmt.Fprintf(w, "Written: %d\n", result.Written)
	fmt.Fprintf(w, "Skipped: %d\n", result.Skipped)
	fmt.Fprintf(w, "Pruned:  %s\n", humanize.Comma(result.Pruned))
}

func newTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		newLogger(c),
	)
}
