package temporal

import (
	"context"
	"time"
)

// BackfillScheduleID is the ID of the single schedule that triggers
// BackfillTipsWorkflow.
const BackfillScheduleID = "backfill-tips"

// Scheduler manages the Temporal schedule for tip backfills.
type Scheduler interface {
	// UpsertBackfillSchedule creates the backfill schedule or updates its
	// interval and input when it already exists.
	UpsertBackfillSchedule(ctx context.Context, input BackfillInput, interval time.Duration) error

	// DeleteBackfillSchedule deletes the backfill schedule.
	DeleteBackfillSchedule(ctx context.Context) error

	// DescribeBackfillSchedule reports the current state of the schedule.
	DescribeBackfillSchedule(ctx context.Context) (*ScheduleStatus, error)
}

// ScheduleStatus summarizes a schedule description.
type ScheduleStatus struct {
	ID         string        `json:"id"`
	Interval   time.Duration `json:"interval"`
	Paused     bool          `json:"paused"`
	NumActions int           `json:"num_actions"`
	NextRuns   []time.Time   `json:"next_runs"`
}
