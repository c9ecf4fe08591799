package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfawz/hifz/internal/logger"
	"github.com/alfawz/hifz/pkg/models"
)

type fakeNotifier struct {
	reminders map[int64]int
	completed []int64
	failFor   int64
}

func (f *fakeNotifier) SendReminders(userID int64, count int) error {
	if userID == f.failFor {
		return errors.New("telegram down")
	}
	if f.reminders == nil {
		f.reminders = make(map[int64]int)
	}
	f.reminders[userID] = count
	return nil
}

func (f *fakeNotifier) SendPlanCompleted(plan models.MemorizationPlan) error {
	f.completed = append(f.completed, plan.ID)
	return nil
}

type fakeUsers struct {
	byHour map[int][]models.User
}

func (f fakeUsers) ListForNotification(ctx context.Context, hour int) ([]models.User, error) {
	return f.byHour[hour], nil
}

type fakeDue map[int64]int

func (f fakeDue) CountDue(ctx context.Context, userID int64, now time.Time) (int, error) {
	return f[userID], nil
}

type fakePlans []models.MemorizationPlan

func (f fakePlans) CompletePlans(ctx context.Context) ([]models.MemorizationPlan, error) {
	return f, nil
}

func at(hour int) func() time.Time {
	return func() time.Time { return time.Date(2025, 3, 1, hour, 0, 0, 0, time.UTC) }
}

func newTestScheduler(n *fakeNotifier, now func() time.Time) *Scheduler {
	users := fakeUsers{byHour: map[int][]models.User{
		9: {
			{ID: 1, DailyGoal: 5},
			{ID: 2, DailyGoal: 10},
			{ID: 3, DailyGoal: 10},
			{ID: 4, DailyGoal: 10},
		},
	}}
	due := fakeDue{1: 12, 2: 3, 3: 0, 4: 7}
	plans := fakePlans{{ID: 8, UserID: 1}, {ID: 9, UserID: 2}}
	opts := Options{StartHour: DefaultNotificationStartHour, EndHour: DefaultNotificationEndHour, Now: now}
	return New(n, users, due, plans, opts, logger.NewNop())
}

func TestSendRemindersCapsAtDailyGoal(t *testing.T) {
	n := &fakeNotifier{failFor: 4}
	s := newTestScheduler(n, at(9))

	sent, err := s.SendReminders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	assert.Equal(t, map[int64]int{1: 5, 2: 3}, n.reminders)
}

func TestSendRemindersOutsideWindow(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(n, at(22))

	sent, err := s.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, n.reminders)
}

func TestCompletePlansNotifies(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(n, at(0))

	count, err := s.CompletePlans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []int64{8, 9}, n.completed)
}

func TestRunManualCheck(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(n, at(23))

	count, err := s.RunManualCheck(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	assert.Equal(t, 12, n.reminders[1])

	count, err = s.RunManualCheck(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStartAndStop(t *testing.T) {
	s := newTestScheduler(&fakeNotifier{}, time.Now)
	require.NoError(t, s.Start())
	assert.Len(t, s.scheduler.Jobs(), 2)
	s.Stop()
}

func TestNextHour(t *testing.T) {
	got := nextHour(time.Date(2025, 3, 1, 9, 41, 12, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), got)
}
