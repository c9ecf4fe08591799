package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/pkg/models"
)

// ReviewLogRepository handles database operations for review history
type ReviewLogRepository struct {
	db *sqlx.DB
}

// NewReviewLogRepository creates a new repository instance
func NewReviewLogRepository(db *sqlx.DB) *ReviewLogRepository {
	return &ReviewLogRepository{db: db}
}

func insertLog(ctx context.Context, q sqlx.ExtContext, log *models.ReviewLog) error {
	query := q.Rebind(`
		INSERT INTO review_logs (
			item_id, user_id, confidence, quality, ease_before, ease_after, interval_after, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := q.QueryRowxContext(ctx, query,
		log.ItemID,
		log.UserID,
		log.Confidence,
		log.Quality,
		log.EaseBefore,
		log.EaseAfter,
		log.IntervalAfter,
		utc(log.ReviewedAt),
	).Scan(&log.ID)
	if err != nil {
		return errors.Wrap(err, "failed to create review log")
	}
	return nil
}

// ListByItem returns the review history of an item, oldest first
func (r *ReviewLogRepository) ListByItem(ctx context.Context, itemID int64) ([]models.ReviewLog, error) {
	var logs []models.ReviewLog
	query := r.db.Rebind(`
		SELECT id, item_id, user_id, confidence, quality, ease_before, ease_after, interval_after, reviewed_at
		FROM review_logs
		WHERE item_id = ?
		ORDER BY reviewed_at, id
	`)
	if err := r.db.SelectContext(ctx, &logs, query, itemID); err != nil {
		return nil, errors.Wrap(err, "failed to list review logs")
	}
	return logs, nil
}
