package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) backfillAction(input BackfillInput) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "backfill-tips-workflow",
		Workflow:  "BackfillTipsWorkflow",
		TaskQueue: c.taskQueue,
		Args:      []interface{}{input},
	}
}

// CreateBackfillSchedule creates the schedule that triggers
// BackfillTipsWorkflow every interval.
func (c *Client) CreateBackfillSchedule(ctx context.Context, input BackfillInput, interval time.Duration) error {
	c.logger.Debug("creating backfill schedule",
		"schedule_id", BackfillScheduleID,
		"networks", input.Networks,
		"interval", interval,
	)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: BackfillScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action: c.backfillAction(input),
		Memo: map[string]interface{}{
			"created_by": "txexplorer",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"schedule_id", BackfillScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", BackfillScheduleID, err)
	}

	c.logger.Info("backfill schedule created",
		"schedule_id", BackfillScheduleID,
		"networks", input.Networks,
		"interval", interval,
	)
	return nil
}

// UpsertBackfillSchedule creates the backfill schedule, or updates the
// interval and input of the existing one.
func (c *Client) UpsertBackfillSchedule(ctx context.Context, input BackfillInput, interval time.Duration) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, BackfillScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		// Schedule doesn't exist or error getting it - create new one
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", BackfillScheduleID,
			"error", err,
		)
		return c.CreateBackfillSchedule(ctx, input, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			in.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			in.Description.Schedule.Action = c.backfillAction(input)
			return &client.ScheduleUpdate{
				Schedule: &in.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", BackfillScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", BackfillScheduleID, err)
	}

	c.logger.Info("backfill schedule updated",
		"schedule_id", BackfillScheduleID,
		"networks", input.Networks,
		"interval", interval,
	)
	return nil
}

// DeleteBackfillSchedule deletes the backfill schedule.
func (c *Client) DeleteBackfillSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, BackfillScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", BackfillScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", BackfillScheduleID, err)
	}

	c.logger.Info("backfill schedule deleted", "schedule_id", BackfillScheduleID)
	return nil
}

// DescribeBackfillSchedule reports the interval, pause state and upcoming
// runs of the backfill schedule.
func (c *Client) DescribeBackfillSchedule(ctx context.Context) (*ScheduleStatus, error) {
	desc, err := c.client.ScheduleClient().GetHandle(ctx, BackfillScheduleID).Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe schedule %q: %w", BackfillScheduleID, err)
	}

	status := &ScheduleStatus{
		ID:         BackfillScheduleID,
		NumActions: desc.Info.NumActions,
		NextRuns:   desc.Info.NextActionTimes,
	}
	if spec := desc.Schedule.Spec; spec != nil && len(spec.Intervals) > 0 {
		status.Interval = spec.Intervals[0].Every
	}
	if desc.Schedule.State != nil {
		status.Paused = desc.Schedule.State.Paused
	}
	return status, nil
}

// RunBackfill executes BackfillTipsWorkflow once and waits for its result.
func (c *Client) RunBackfill(ctx context.Context, input BackfillInput) (*BackfillResult, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("backfill-tips-manual-%d", time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}

	run, err := c.client.ExecuteWorkflow(ctx, opts, BackfillTipsWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start backfill workflow: %w", err)
	}
	c.logger.Info("backfill workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	var result BackfillResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("backfill workflow failed: %w", err)
	}
	return &result, nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
