package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/brojonat/txexplorer/service/explorer"
)

func tipBlocks() []explorer.LiveBlock {
	return []explorer.LiveBlock{
		{Hash: "btc-tip", Height: 850000, Network: explorer.BTC, Time: 1718000000, TxCount: 3000},
		{Hash: "ltc-tip", Height: 2700000, Network: explorer.LTC, Time: 1718000100, TxCount: 40},
	}
}

func newBackfillEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *Activities) {
	t.Helper()
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.FetchNetworkTips)
	env.RegisterActivity(activities.GetArchivedBlockHashes)
	env.RegisterActivity(activities.WriteBlocks)
	env.RegisterActivity(activities.PruneArchive)
	return env, activities
}

func TestBackfillTipsWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		input          BackfillInput
		mockActivities func(*testsuite.TestWorkflowEnvironment, *Activities)
		expectedError  bool
		validateResult func(*testing.T, *BackfillResult)
	}{
		{
			name:  "writes new tips and skips archived ones",
			input: BackfillInput{},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchNetworkTips, mock.Anything, mock.Anything).
					Return(&FetchNetworkTipsResult{Blocks: tipBlocks(), Offline: []string{"doge"}}, nil)
				env.OnActivity(a.GetArchivedBlockHashes, mock.Anything, mock.Anything).
					Return(&GetArchivedBlockHashesResult{Keys: []string{"btc/btc-tip"}}, nil)
				env.OnActivity(a.WriteBlocks, mock.Anything, mock.MatchedBy(func(in WriteBlocksInput) bool {
					return len(in.Blocks) == 1 && in.Blocks[0].Hash == "ltc-tip"
				})).Return(&WriteBlocksResult{Written: 1}, nil)
			},
			validateResult: func(t *testing.T, result *BackfillResult) {
				assert.Equal(t, []string{"btc", "ltc"}, result.Online)
				assert.Equal(t, 2, result.TipCount)
				assert.Equal(t, 1, result.Written)
				assert.Equal(t, 1, result.Skipped)
				assert.Zero(t, result.Pruned)
				assert.Nil(t, result.Error)
			},
		},
		{
			name:  "all tips archived writes nothing",
			input: BackfillInput{Networks: []string{"btc"}},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchNetworkTips, mock.Anything, mock.Anything).
					Return(&FetchNetworkTipsResult{Blocks: tipBlocks()[:1]}, nil)
				env.OnActivity(a.GetArchivedBlockHashes, mock.Anything, mock.Anything).
					Return(&GetArchivedBlockHashesResult{Keys: []string{"btc/btc-tip"}}, nil)
			},
			validateResult: func(t *testing.T, result *BackfillResult) {
				assert.Equal(t, 1, result.TipCount)
				assert.Equal(t, 0, result.Written)
				assert.Equal(t, 1, result.Skipped)
			},
		},
		{
			name:  "every network offline",
			input: BackfillInput{},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchNetworkTips, mock.Anything, mock.Anything).
					Return(&FetchNetworkTipsResult{Offline: []string{"btc", "bch", "ltc", "doge", "dash"}}, nil)
			},
			validateResult: func(t *testing.T, result *BackfillResult) {
				assert.Empty(t, result.Online)
				assert.Equal(t, 0, result.TipCount)
				assert.Equal(t, 0, result.Written)
			},
		},
		{
			name:  "prunes when retention is set",
			input: BackfillInput{Retention: 24 * time.Hour},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchNetworkTips, mock.Anything, mock.Anything).
					Return(&FetchNetworkTipsResult{Blocks: tipBlocks()}, nil)
				env.OnActivity(a.GetArchivedBlockHashes, mock.Anything, mock.Anything).
					Return(&GetArchivedBlockHashesResult{}, nil)
				env.OnActivity(a.WriteBlocks, mock.Anything, mock.Anything).
					Return(&WriteBlocksResult{Written: 2}, nil)
				env.OnActivity(a.PruneArchive, mock.Anything, PruneArchiveInput{Retention: 24 * time.Hour}).
					Return(&PruneArchiveResult{Deleted: 7}, nil)
			},
			validateResult: func(t *testing.T, result *BackfillResult) {
				assert.Equal(t, 2, result.Written)
				assert.Equal(t, int64(7), result.Pruned)
			},
		},
		{
			name:  "prune failure does not fail the run",
			input: BackfillInput{Retention: time.Hour},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchNetworkTips, mock.Anything, mock.Anything).
					Return(&FetchNetworkTipsResult{}, nil)
				env.OnActivity(a.PruneArchive, mock.Anything, mock.Anything).
					Return(nil, errors.New("database unavailable"))
			},
			validateResult: func(t *testing.T, result *BackfillResult) {
				assert.Zero(t, result.Pruned)
				assert.Nil(t, result.Error)
			},
		},
		{
			name:  "tip fetch failure fails the workflow",
			input: BackfillInput{},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchNetworkTips, mock.Anything, mock.Anything).
					Return(nil, errors.New("upstream unavailable"))
			},
			expectedError: true,
		},
		{
			name:  "write failure fails the workflow",
			input: BackfillInput{},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment, a *Activities) {
				env.OnActivity(a.FetchNetworkTips, mock.Anything, mock.Anything).
					Return(&FetchNetworkTipsResult{Blocks: tipBlocks()}, nil)
				env.OnActivity(a.GetArchivedBlockHashes, mock.Anything, mock.Anything).
					Return(&GetArchivedBlockHashesResult{}, nil)
				env.OnActivity(a.WriteBlocks, mock.Anything, mock.Anything).
					Return(nil, errors.New("database unavailable"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, activities := newBackfillEnv(t)
			tt.mockActivities(env, activities)

			env.ExecuteWorkflow(BackfillTipsWorkflow, tt.input)

			require.True(t, env.IsWorkflowCompleted())
			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				return
			}

			assert.NoError(t, env.GetWorkflowError())
			var result BackfillResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validateResult(t, &result)
		})
	}
}

func TestBackfillTipsWorkflow_ActivityRetries(t *testing.T) {
	env, activities := newBackfillEnv(t)

	// Fail twice then succeed
	callCount := 0
	env.OnActivity(activities.FetchNetworkTips, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		callCount++
		if callCount < 3 {
			panic("transient error") // Temporal retries on panics
		}
	}).Return(&FetchNetworkTipsResult{Blocks: tipBlocks()[:1]}, nil)
	env.OnActivity(activities.GetArchivedBlockHashes, mock.Anything, mock.Anything).
		Return(&GetArchivedBlockHashesResult{}, nil)
	env.OnActivity(activities.WriteBlocks, mock.Anything, mock.Anything).
		Return(&WriteBlocksResult{Written: 1}, nil)

	env.ExecuteWorkflow(BackfillTipsWorkflow, BackfillInput{})

	assert.NoError(t, env.GetWorkflowError())

	var result BackfillResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 3, callCount)
}
