package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/internal/logger"
	"github.com/alfawz/hifz/pkg/models"
)

// Default reminder window, UTC hours
const (
	DefaultNotificationStartHour = 4
	DefaultNotificationEndHour   = 18
)

// Notifier interface for sending notifications
type Notifier interface {
	SendReminders(userID int64, count int) error
	SendPlanCompleted(plan models.MemorizationPlan) error
}

// UserSource lists users who want a reminder at a given hour
type UserSource interface {
	ListForNotification(ctx context.Context, hour int) ([]models.User, error)
}

// DueCounter counts a user's due ayat
type DueCounter interface {
	CountDue(ctx context.Context, userID int64, now time.Time) (int, error)
}

// PlanCompleter closes plans whose ayat are all mastered
type PlanCompleter interface {
	CompletePlans(ctx context.Context) ([]models.MemorizationPlan, error)
}

// Options configures the reminder window
type Options struct {
	StartHour int
	EndHour   int
	Now       func() time.Time
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	users     UserSource
	due       DueCounter
	plans     PlanCompleter
	opts      Options
	log       *logger.Logger
}

// New creates a new scheduler instance
func New(notifier Notifier, users UserSource, due DueCounter, plans PlanCompleter, opts Options, log *logger.Logger) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		notifier:  notifier,
		users:     users,
		due:       due,
		plans:     plans,
		opts:      opts,
		log:       log.With("component", "scheduler"),
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	// Hourly check for users who need a reminder
	if _, err := s.scheduler.Every(1).Hour().StartAt(nextHour(s.opts.Now())).Do(s.checkAndSendReminders); err != nil {
		return errors.Wrap(err, "failed to schedule reminders")
	}
	// Nightly sweep for finished plans
	if _, err := s.scheduler.Every(1).Day().At("00:05").Do(s.completePlans); err != nil {
		return errors.Wrap(err, "failed to schedule plan completion")
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	s.log.Info("scheduler started", "jobs", len(s.scheduler.Jobs()))
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func nextHour(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}

func (s *Scheduler) inWindow(hour int) bool {
	return hour >= s.opts.StartHour && hour <= s.opts.EndHour
}

// checkAndSendReminders checks for users who need reminders and sends them
func (s *Scheduler) checkAndSendReminders() {
	if _, err := s.SendReminders(context.Background()); err != nil {
		s.log.Error("reminder run failed", "error", err)
	}
}

// SendReminders notifies every user scheduled for the current hour who has
// due ayat. It returns how many reminders were sent.
func (s *Scheduler) SendReminders(ctx context.Context) (int, error) {
	now := s.opts.Now().UTC()
	hour := now.Hour()

	if !s.inWindow(hour) {
		s.log.Debug("outside notification hours, skipping reminders",
			"hour", hour, "start", s.opts.StartHour, "end", s.opts.EndHour)
		return 0, nil
	}

	users, err := s.users.ListForNotification(ctx, hour)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get users for notification")
	}

	sent := 0
	for _, user := range users {
		count, err := s.due.CountDue(ctx, user.ID, now)
		if err != nil {
			s.log.Error("failed to count due ayat", "user_id", user.ID, "error", err)
			continue
		}
		if count == 0 {
			continue
		}
		// Don't ask for more than the user's daily goal
		if user.DailyGoal > 0 && count > user.DailyGoal {
			count = user.DailyGoal
		}
		if err := s.notifier.SendReminders(user.ID, count); err != nil {
			s.log.Error("failed to send reminder", "user_id", user.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Scheduler) completePlans() {
	if _, err := s.CompletePlans(context.Background()); err != nil {
		s.log.Error("plan completion run failed", "error", err)
	}
}

// CompletePlans closes finished plans and congratulates their students
func (s *Scheduler) CompletePlans(ctx context.Context) (int, error) {
	completed, err := s.plans.CompletePlans(ctx)
	if err != nil {
		return 0, err
	}
	for _, plan := range completed {
		if err := s.notifier.SendPlanCompleted(plan); err != nil {
			s.log.Error("failed to send plan completion", "plan_id", plan.ID, "error", err)
		}
	}
	return len(completed), nil
}

// RunManualCheck forces a reminder for a specific user regardless of the hour
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) (int, error) {
	count, err := s.due.CountDue(ctx, userID, s.opts.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return count, s.notifier.SendReminders(userID, count)
	}
	return 0, nil
}
