package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/explorer"
)

func newBrowseController(t *testing.T, routes map[string]string, initial string) (*explorer.Controller, *explorer.MemoryHistory) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	api := client.NewClient(fakeUpstream(t, routes), nil, logger)
	hist := explorer.NewMemoryHistory(initial)
	ctrl := explorer.NewController(explorer.NewResolver(api, logger), hist, nil, logger)
	require.NoError(t, ctrl.Start(context.Background()))
	return ctrl, hist
}

func TestRunBrowse_NavigatesAndGoesBack(t *testing.T) {
	ctrl, hist := newBrowseController(t, ltcTransactionRoutes(), "")

	input := strings.Join([]string{
		"tx " + testHash,
		"home",
		"back",
		"back",
		"back",
		"quit",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, runBrowse(context.Background(), ctrl, hist, strings.NewReader(input), &out))

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "[Transaction abababab... - Transaction.st]"),
		"going back to the transaction resolves it again")
	assert.Equal(t, 2, strings.Count(text, "[Transaction.st - Block Explorer]"))
	assert.Contains(t, text, "no earlier page")
	assert.Equal(t, explorer.RouteHome, ctrl.State().Page.Kind())
}

func TestRunBrowse_DeepLink(t *testing.T) {
	ctrl, hist := newBrowseController(t, ltcTransactionRoutes(), "#tx/"+testHash)

	state := ctrl.State()
	require.Equal(t, explorer.RouteTransaction, state.Page.Kind())
	assert.Equal(t, explorer.LTC, state.Page.Transaction.Network)

	var out bytes.Buffer
	require.NoError(t, runBrowse(context.Background(), ctrl, hist, strings.NewReader(""), &out))
}

func TestRunBrowse_Errors(t *testing.T) {
	ctrl, hist := newBrowseController(t, map[string]string{}, "")

	input := strings.Join([]string{
		"search not-a-hash",
		"tx",
		"block " + testHash + " eth",
		"frobnicate",
		"help",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, runBrowse(context.Background(), ctrl, hist, strings.NewReader(input), &out))

	text := out.String()
	assert.Contains(t, text, "Invalid search format")
	assert.Contains(t, text, "usage: ID [NETWORK]")
	assert.Contains(t, text, `unknown network "eth"`)
	assert.Contains(t, text, `unknown command "frobnicate"`)
	assert.Contains(t, text, "Commands:")
	assert.Equal(t, 1, hist.Len(), "failed commands leave history alone")
}

func TestRunBrowse_BlockMissShowsNotFound(t *testing.T) {
	ctrl, hist := newBrowseController(t, map[string]string{}, "")

	var out bytes.Buffer
	require.NoError(t, runBrowse(context.Background(), ctrl, hist, strings.NewReader("block "+testHash+"\n"), &out))

	assert.Contains(t, out.String(), "[Page Not Found - Transaction.st]")
	assert.Equal(t, 1, hist.Len(), "a block miss does not write history")
}

type stoppedSubscription struct {
	err error
}

func (s stoppedSubscription) Run(ctx context.Context, onOpen func(), handle func(client.FeedEvent)) error {
	return s.err
}

func TestConsumeFeed_LogsStoppedSubscription(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	feed := explorer.NewFeed(logger)

	consumeFeed(context.Background(), feed, stoppedSubscription{err: errors.New("dial failed")}, logger)
	assert.Contains(t, logs.String(), "live feed stopped")
	assert.Contains(t, logs.String(), "dial failed")

	logs.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumeFeed(ctx, feed, stoppedSubscription{err: context.Canceled}, logger)
	assert.NotContains(t, logs.String(), "live feed stopped")
}
