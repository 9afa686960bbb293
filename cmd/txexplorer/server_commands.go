package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// healthStatus mirrors the server's /health response.
type healthStatus struct {
	Status   string   `json:"status"`
	Online   []string `json:"online"`
	Upstream string   `json:"upstream,omitempty"`
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			client := &http.Client{
				Timeout: c.Duration("timeout"),
			}

			healthURL := strings.TrimRight(serverURL, "/") + "/health"
			resp, err := client.Get(healthURL)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned unhealthy status: %d", resp.StatusCode)
			}

			var health healthStatus
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("failed to decode health response: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, health)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "✓ Server is healthy (status: %d)\n", resp.StatusCode)
			fmt.Fprintf(out, "  URL:      %s\n", serverURL)
			online := "none"
			if len(health.Online) > 0 {
				online = strings.Join(health.Online, ", ")
			}
			fmt.Fprintf(out, "  Online:   %s\n", online)
			if health.Upstream != "" {
				fmt.Fprintf(out, "  Upstream: %s\n", health.Upstream)
			}
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			out := c.App.Writer
			fmt.Fprintf(out, "txexplorer CLI\n")
			fmt.Fprintf(out, "  Version: %s\n", version)
			fmt.Fprintf(out, "  Commit:  %s\n", commit)
			fmt.Fprintf(out, "  Built:   %s\n", date)
			return nil
		},
	}
}
