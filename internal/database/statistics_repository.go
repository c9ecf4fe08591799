package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/pkg/models"
)

// StatisticsRepository handles progress rollups for dashboards and the leaderboard
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// UserStats returns a user's totals at now. Reviews are counted from dayStart.
func (r *StatisticsRepository) UserStats(ctx context.Context, userID int64, now, dayStart time.Time, mastery MasteryThreshold) (*models.UserStats, error) {
	stats := models.UserStats{UserID: userID}
	query := r.db.Rebind(`
		SELECT
			COUNT(*) AS total_items,
			COALESCE(SUM(CASE WHEN due_at IS NULL OR due_at <= ? THEN 1 ELSE 0 END), 0) AS due_now,
			COALESCE(SUM(CASE WHEN confidence_score >= ? AND repetitions >= ? THEN 1 ELSE 0 END), 0) AS mastered,
			COALESCE(AVG(ease_factor), 0) AS average_ease
		FROM review_items
		WHERE user_id = ?
	`)
	err := r.db.GetContext(ctx, &stats, query, utc(now), mastery.Confidence, mastery.Repetitions, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user statistics")
	}

	err = r.db.GetContext(ctx, &stats.ReviewsToday,
		r.db.Rebind("SELECT COUNT(*) FROM review_logs WHERE user_id = ? AND reviewed_at >= ?"),
		userID, utc(dayStart))
	if err != nil {
		return nil, errors.Wrap(err, "failed to count today's reviews")
	}

	if stats.TotalItems > 0 {
		stats.CompletionPercentage = float64(stats.Mastered) / float64(stats.TotalItems) * 100
	}
	return &stats, nil
}

// Leaderboard ranks students by mastered ayat, then by reviews since the given time
func (r *StatisticsRepository) Leaderboard(ctx context.Context, since time.Time, mastery MasteryThreshold, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	query := r.db.Rebind(`
		SELECT
			u.id AS user_id,
			u.username,
			u.first_name,
			u.last_name,
			COALESCE(SUM(CASE WHEN ri.confidence_score >= ? AND ri.repetitions >= ? THEN 1 ELSE 0 END), 0) AS mastered,
			(SELECT COUNT(*) FROM review_logs rl WHERE rl.user_id = u.id AND rl.reviewed_at >= ?) AS review_count
		FROM users u
		JOIN review_items ri ON ri.user_id = u.id
		GROUP BY u.id, u.username, u.first_name, u.last_name
		ORDER BY mastered DESC, review_count DESC, u.id
		LIMIT ?
	`)
	err := r.db.SelectContext(ctx, &entries, query, mastery.Confidence, mastery.Repetitions, utc(since), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get leaderboard")
	}
	return entries, nil
}
