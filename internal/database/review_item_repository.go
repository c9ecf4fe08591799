package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/pkg/models"
)

const itemColumns = `id, user_id, plan_id, surah_id, ayah_id, ease_factor, interval_days,
	repetitions, confidence_score, review_count, due_at, last_reviewed_at, created_at, updated_at`

// ModifyFunc mutates a locked review item. A non-nil log is stored in the
// same transaction as the item update.
type ModifyFunc func(item *models.ReviewItem) (*models.ReviewLog, error)

// ReviewItemRepository handles database operations for review items
type ReviewItemRepository struct {
	db *sqlx.DB
}

// NewReviewItemRepository creates a new repository instance
func NewReviewItemRepository(db *sqlx.DB) *ReviewItemRepository {
	return &ReviewItemRepository{db: db}
}

// GetByUnit returns the item of a user for a specific ayah
func (r *ReviewItemRepository) GetByUnit(ctx context.Context, userID int64, unit models.Unit) (*models.ReviewItem, error) {
	return getItem(ctx, r.db, "user_id = ? AND surah_id = ? AND ayah_id = ?", userID, unit.SurahID, unit.AyahID)
}

func getItem(ctx context.Context, q sqlx.ExtContext, where string, args ...interface{}) (*models.ReviewItem, error) {
	var item models.ReviewItem
	query := "SELECT " + itemColumns + " FROM review_items WHERE " + where
	if _, ok := q.(*sqlx.Tx); ok && isPostgres(q) {
		query += " FOR UPDATE"
	}
	err := sqlx.GetContext(ctx, q, &item, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get review item")
	}
	return &item, nil
}

// ListDue returns items that are due at now, including never-scheduled ones
func (r *ReviewItemRepository) ListDue(ctx context.Context, userID int64, now time.Time) ([]models.ReviewItem, error) {
	return r.list(ctx, "user_id = ? AND (due_at IS NULL OR due_at <= ?)", userID, utc(now))
}

// ListMastered returns items meeting the mastery threshold
func (r *ReviewItemRepository) ListMastered(ctx context.Context, userID int64, mastery MasteryThreshold) ([]models.ReviewItem, error) {
	return r.list(ctx, "user_id = ? AND confidence_score >= ? AND repetitions >= ?",
		userID, mastery.Confidence, mastery.Repetitions)
}

// CountDue returns how many items are due at now
func (r *ReviewItemRepository) CountDue(ctx context.Context, userID int64, now time.Time) (int, error) {
	var count int
	query := r.db.Rebind("SELECT COUNT(*) FROM review_items WHERE user_id = ? AND (due_at IS NULL OR due_at <= ?)")
	if err := r.db.GetContext(ctx, &count, query, userID, utc(now)); err != nil {
		return 0, errors.Wrap(err, "failed to count due items")
	}
	return count, nil
}

func (r *ReviewItemRepository) list(ctx context.Context, where string, args ...interface{}) ([]models.ReviewItem, error) {
	var items []models.ReviewItem
	query := r.db.Rebind("SELECT " + itemColumns + " FROM review_items WHERE " + where + " ORDER BY surah_id, ayah_id")
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list review items")
	}
	return items, nil
}

// updateItem writes the scheduling fields of an item
func updateItem(ctx context.Context, q sqlx.ExtContext, item *models.ReviewItem) error {
	now := utc(time.Now())
	query := q.Rebind(`
		UPDATE review_items SET
			ease_factor = ?,
			interval_days = ?,
			repetitions = ?,
			confidence_score = ?,
			review_count = ?,
			due_at = ?,
			last_reviewed_at = ?,
			updated_at = ?
		WHERE id = ?
	`)
	result, err := q.ExecContext(ctx, query,
		item.EaseFactor,
		item.Interval,
		item.Repetitions,
		item.ConfidenceScore,
		item.ReviewCount,
		utcPtr(item.DueAt),
		utcPtr(item.LastReviewedAt),
		now,
		item.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update review item")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return ErrNotFound
	}
	item.UpdatedAt = now
	return nil
}

// Modify performs an atomic read-modify-write of one item: the row is read
// (and locked on PostgreSQL), passed to fn, and written back together with
// the log fn returns. Any error rolls the transaction back.
func (r *ReviewItemRepository) Modify(ctx context.Context, userID int64, unit models.Unit, fn ModifyFunc) (*models.ReviewItem, error) {
	var updated *models.ReviewItem
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		item, err := getItem(ctx, tx, "user_id = ? AND surah_id = ? AND ayah_id = ?", userID, unit.SurahID, unit.AyahID)
		if err != nil {
			return err
		}

		log, err := fn(item)
		if err != nil {
			return err
		}

		if err := updateItem(ctx, tx, item); err != nil {
			return err
		}
		if log != nil {
			log.ItemID = item.ID
			log.UserID = item.UserID
			if err := insertLog(ctx, tx, log); err != nil {
				return err
			}
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
