package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// archivedLookback is how many recently archived blocks are checked
// before writing tips.
const archivedLookback = 100

// BackfillTipsWorkflow archives the current tip block of every online
// network. It is triggered by a Temporal schedule so the archive keeps
// up with the chains while the live feed is down.
//
// The workflow performs these steps:
// 1. Fetch the tip block of every requested network (FetchNetworkTips activity)
// 2. Drop tips already in the archive (GetArchivedBlockHashes activity)
// 3. Archive and republish the remaining tips (WriteBlocks activity)
// 4. Prune entries older than the retention (PruneArchive activity)
func BackfillTipsWorkflow(ctx workflow.Context, input BackfillInput) (*BackfillResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("BackfillTipsWorkflow started", "networks", input.Networks)

	result := &BackfillResult{
		PollTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Fetch network tips
	var tips *FetchNetworkTipsResult
	err := workflow.ExecuteActivity(ctx, a.FetchNetworkTips, FetchNetworkTipsInput{Networks: input.Networks}).Get(ctx, &tips)
	if err != nil {
		errMsg := fmt.Sprintf("failed to fetch network tips: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to fetch network tips: %w", err)
	}
	for _, b := range tips.Blocks {
		result.Online = append(result.Online, string(b.Network))
	}
	result.TipCount = len(tips.Blocks)
	logger.Info("fetched network tips", "tips", result.TipCount, "offline", tips.Offline)

	if len(tips.Blocks) > 0 {
		// Step 2: Skip tips that are already archived
		var archived *GetArchivedBlockHashesResult
		err = workflow.ExecuteActivity(ctx, a.GetArchivedBlockHashes, GetArchivedBlockHashesInput{Limit: archivedLookback}).Get(ctx, &archived)
		if err != nil {
			errMsg := fmt.Sprintf("failed to get archived blocks: %v", err)
			result.Error = &errMsg
			return result, fmt.Errorf("failed to get archived blocks: %w", err)
		}

		seen := make(map[string]bool, len(archived.Keys))
		for _, k := range archived.Keys {
			seen[k] = true
		}
		var fresh WriteBlocksInput
		for _, b := range tips.Blocks {
			if seen[blockKey(string(b.Network), b.Hash)] {
				result.Skipped++
				continue
			}
			fresh.Blocks = append(fresh.Blocks, b)
		}

		// Step 3: Archive the new tips
		if len(fresh.Blocks) > 0 {
			var written *WriteBlocksResult
			err = workflow.ExecuteActivity(ctx, a.WriteBlocks, fresh).Get(ctx, &written)
			if err != nil {
				logger.Error("failed to write blocks", "error", err)
				errMsg := fmt.Sprintf("failed to write blocks: %v", err)
				result.Error = &errMsg
				return result, fmt.Errorf("failed to write blocks: %w", err)
			}
			result.Written = written.Written
		}
	}

	// Step 4: Prune the archive
	if input.Retention > 0 {
		var pruned *PruneArchiveResult
		err = workflow.ExecuteActivity(ctx, a.PruneArchive, PruneArchiveInput{Retention: input.Retention}).Get(ctx, &pruned)
		if err != nil {
			// The tips are already archived; pruning runs again next time.
			logger.Warn("failed to prune archive", "error", err)
		} else {
			result.Pruned = pruned.Deleted
		}
	}

	logger.Info("BackfillTipsWorkflow completed successfully",
		"tips", result.TipCount,
		"written", result.Written,
		"skipped", result.Skipped,
		"pruned", result.Pruned,
	)

	return result, nil
}
