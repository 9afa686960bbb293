package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	exists    bool
	input     BackfillInput
	interval  time.Duration
	upserts   int
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertBackfillSchedule creates or updates the schedule.
func (m *MockScheduler) UpsertBackfillSchedule(ctx context.Context, input BackfillInput, interval time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.exists = true
	m.input = input
	m.interval = interval
	m.upserts++
	return nil
}

// DeleteBackfillSchedule records that the schedule was deleted.
func (m *MockScheduler) DeleteBackfillSchedule(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return fmt.Errorf("schedule %q not found", BackfillScheduleID)
	}
	m.exists = false
	return nil
}

// DescribeBackfillSchedule reports the recorded schedule.
func (m *MockScheduler) DescribeBackfillSchedule(ctx context.Context) (*ScheduleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return nil, fmt.Errorf("schedule %q not found", BackfillScheduleID)
	}
	return &ScheduleStatus{
		ID:         BackfillScheduleID,
		Interval:   m.interval,
		NumActions: m.upserts,
	}, nil
}

// SetCreateError makes UpsertBackfillSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteBackfillSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// Input returns the input the schedule was last upserted with.
func (m *MockScheduler) Input() BackfillInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// ScheduleExists reports whether the schedule exists.
func (m *MockScheduler) ScheduleExists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists
}

// Reset clears the schedule and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = false
	m.input = BackfillInput{}
	m.interval = 0
	m.upserts = 0
	m.createErr = nil
	m.deleteErr = nil
}
