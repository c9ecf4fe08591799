package review

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alfawz/hifz/internal/database"
	"github.com/alfawz/hifz/internal/logger"
	"github.com/alfawz/hifz/internal/spaced_repetition"
	"github.com/alfawz/hifz/pkg/models"
)

// ErrInvalidRange is returned for plans that do not name existing ayat
var ErrInvalidRange = errors.New("invalid ayah range")

// ItemStore is the record store for review items
type ItemStore interface {
	GetByUnit(ctx context.Context, userID int64, unit models.Unit) (*models.ReviewItem, error)
	ListDue(ctx context.Context, userID int64, now time.Time) ([]models.ReviewItem, error)
	ListMastered(ctx context.Context, userID int64, mastery database.MasteryThreshold) ([]models.ReviewItem, error)
	Modify(ctx context.Context, userID int64, unit models.Unit, fn database.ModifyFunc) (*models.ReviewItem, error)
}

// PlanStore is the record store for memorization plans
type PlanStore interface {
	Create(ctx context.Context, plan *models.MemorizationPlan, items []models.ReviewItem) (int, error)
	ListByUser(ctx context.Context, userID int64) ([]models.MemorizationPlan, error)
	ListCompletable(ctx context.Context, mastery database.MasteryThreshold) ([]models.MemorizationPlan, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) error
	GetByID(ctx context.Context, id int64) (*models.MemorizationPlan, error)
	Delete(ctx context.Context, id int64) error
}

// LogStore reads the review history
type LogStore interface {
	ListByItem(ctx context.Context, itemID int64) ([]models.ReviewLog, error)
}

// StatsStore provides progress rollups
type StatsStore interface {
	UserStats(ctx context.Context, userID int64, now, dayStart time.Time, mastery database.MasteryThreshold) (*models.UserStats, error)
	Leaderboard(ctx context.Context, since time.Time, mastery database.MasteryThreshold, limit int) ([]models.LeaderboardEntry, error)
}

// Outcome is the result of one applied review
type Outcome struct {
	Item          models.ReviewItem
	Quality       spaced_repetition.QualityResponse
	Passed        bool
	Mastered      bool
	NewlyMastered bool
	Difficulty    spaced_repetition.Difficulty
}

// Service runs the review scheduler against the record store
type Service struct {
	items ItemStore
	plans PlanStore
	stats StatsStore
	logs  LogStore
	sm    *spaced_repetition.SM2
	log   *logger.Logger
}

// NewService creates a review service
func NewService(items ItemStore, plans PlanStore, stats StatsStore, logs LogStore, sm *spaced_repetition.SM2, log *logger.Logger) *Service {
	return &Service{
		items: items,
		plans: plans,
		stats: stats,
		logs:  logs,
		sm:    sm,
		log:   log.With("component", "review"),
	}
}

// Scheduler exposes the SM-2 instance for read-side classification
func (s *Service) Scheduler() *spaced_repetition.SM2 {
	return s.sm
}

func (s *Service) mastery() database.MasteryThreshold {
	cfg := s.sm.Config()
	return database.MasteryThreshold{Confidence: cfg.MasteryConfidence, Repetitions: cfg.MasteryRepetitions}
}

// ApplyReview records a recitation outcome for one ayah. The read, the SM-2
// update and the write happen in one transaction. Store failures are returned
// as is; the caller decides whether to retry.
func (s *Service) ApplyReview(ctx context.Context, userID int64, unit models.Unit, confidence float64) (*Outcome, error) {
	var (
		res         spaced_repetition.Result
		wasMastered bool
	)
	item, err := s.items.Modify(ctx, userID, unit, func(item *models.ReviewItem) (*models.ReviewLog, error) {
		wasMastered = s.sm.IsMastered(*item)
		res = s.sm.Apply(item, confidence)
		return &models.ReviewLog{
			Confidence:    item.ConfidenceScore,
			Quality:       int(res.Quality),
			EaseBefore:    res.EaseBefore,
			EaseAfter:     item.EaseFactor,
			IntervalAfter: item.Interval,
			ReviewedAt:    *item.LastReviewedAt,
		}, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "apply review %s for user %d", unit, userID)
	}

	mastered := s.sm.IsMastered(*item)
	out := &Outcome{
		Item:          *item,
		Quality:       res.Quality,
		Passed:        res.Passed,
		Mastered:      mastered,
		NewlyMastered: mastered && !wasMastered,
		Difficulty:    s.sm.Difficulty(*item),
	}
	s.log.Debug("review applied",
		"user_id", userID,
		"unit", unit.String(),
		"quality", int(res.Quality),
		"interval", item.Interval,
		"ease", item.EaseFactor,
	)
	return out, nil
}

// Reset restarts the schedule of one ayah, e.g. when a teacher asks a student to relearn it
func (s *Service) Reset(ctx context.Context, userID int64, unit models.Unit) (*models.ReviewItem, error) {
	item, err := s.items.Modify(ctx, userID, unit, func(item *models.ReviewItem) (*models.ReviewLog, error) {
		s.sm.Reset(item)
		return nil, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "reset %s for user %d", unit, userID)
	}
	s.log.Info("review item reset", "user_id", userID, "unit", unit.String())
	return item, nil
}

// History returns an item with its reviews, oldest first
func (s *Service) History(ctx context.Context, userID int64, unit models.Unit) (*models.ReviewItem, []models.ReviewLog, error) {
	item, err := s.items.GetByUnit(ctx, userID, unit)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.logs.ListByItem(ctx, item.ID)
	if err != nil {
		return nil, nil, err
	}
	return item, logs, nil
}

// Due returns the items due now in mushaf order
func (s *Service) Due(ctx context.Context, userID int64) ([]models.ReviewItem, error) {
	return s.items.ListDue(ctx, userID, s.sm.Now())
}

// ByPriority returns up to limit due items, most urgent first. limit <= 0 returns all.
func (s *Service) ByPriority(ctx context.Context, userID int64, limit int) ([]models.ReviewItem, error) {
	now := s.sm.Now()
	due, err := s.items.ListDue(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	ordered := s.sm.ByPriority(due, now)
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

// Overdue returns the due items past the grace period
func (s *Service) Overdue(ctx context.Context, userID int64) ([]models.ReviewItem, error) {
	now := s.sm.Now()
	due, err := s.items.ListDue(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	var overdue []models.ReviewItem
	for _, it := range due {
		if s.sm.IsOverdue(it, now) {
			overdue = append(overdue, it)
		}
	}
	return overdue, nil
}

// Mastered returns the mastered items of a user
func (s *Service) Mastered(ctx context.Context, userID int64) ([]models.ReviewItem, error) {
	return s.items.ListMastered(ctx, userID, s.mastery())
}

// EnrollPlan validates a plan and creates it together with one item per ayah.
// It returns the number of newly enrolled ayat.
func (s *Service) EnrollPlan(ctx context.Context, plan *models.MemorizationPlan) (int, error) {
	count := models.AyahCount(plan.SurahID)
	if count == 0 || plan.StartAyah < 1 || plan.StartAyah > plan.EndAyah || plan.EndAyah > count {
		return 0, errors.Wrapf(ErrInvalidRange, "surah %d ayat %d-%d", plan.SurahID, plan.StartAyah, plan.EndAyah)
	}
	if plan.Title == "" {
		plan.Title = models.SurahName(plan.SurahID)
	}

	units := plan.Units()
	items := make([]models.ReviewItem, 0, len(units))
	for _, u := range units {
		items = append(items, s.sm.Enroll(plan.UserID, 0, u))
	}

	n, err := s.plans.Create(ctx, plan, items)
	if err != nil {
		return 0, errors.Wrap(err, "enroll plan")
	}
	s.log.Info("plan enrolled", "user_id", plan.UserID, "plan_id", plan.ID, "enrolled", n)
	return n, nil
}

// Plans lists the plans of a user
func (s *Service) Plans(ctx context.Context, userID int64) ([]models.MemorizationPlan, error) {
	return s.plans.ListByUser(ctx, userID)
}

// DeletePlan removes a plan with its items and history and returns the removed plan
func (s *Service) DeletePlan(ctx context.Context, id int64) (*models.MemorizationPlan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.plans.Delete(ctx, id); err != nil {
		return nil, errors.Wrapf(err, "delete plan %d", id)
	}
	s.log.Info("plan deleted", "plan_id", id, "user_id", plan.UserID)
	return plan, nil
}

// CompletePlans marks every active plan whose ayat are all mastered as
// completed and returns those plans
func (s *Service) CompletePlans(ctx context.Context) ([]models.MemorizationPlan, error) {
	candidates, err := s.plans.ListCompletable(ctx, s.mastery())
	if err != nil {
		return nil, err
	}
	now := s.sm.Now()
	var completed []models.MemorizationPlan
	for _, p := range candidates {
		err := s.plans.MarkCompleted(ctx, p.ID, now)
		if errors.Is(err, database.ErrNotFound) {
			// completed concurrently
			continue
		}
		if err != nil {
			return completed, err
		}
		p.Status = models.PlanCompleted
		p.CompletedAt = &now
		completed = append(completed, p)
	}
	if len(completed) > 0 {
		s.log.Info("plans completed", "count", len(completed))
	}
	return completed, nil
}

// Stats returns a user's progress summary
func (s *Service) Stats(ctx context.Context, userID int64) (*models.UserStats, error) {
	now := s.sm.Now()
	dayStart := now.Truncate(24 * time.Hour)
	return s.stats.UserStats(ctx, userID, now, dayStart, s.mastery())
}

// Leaderboard ranks students by mastered ayat, breaking ties with reviews over the last days
func (s *Service) Leaderboard(ctx context.Context, days, limit int) ([]models.LeaderboardEntry, error) {
	since := s.sm.Now().AddDate(0, 0, -days)
	return s.stats.Leaderboard(ctx, since, s.mastery(), limit)
}
