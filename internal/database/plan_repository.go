package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/pkg/models"
)

const planColumns = `id, user_id, title, surah_id, start_ayah, end_ayah, status,
	created_at, updated_at, completed_at`

// PlanRepository handles database operations for memorization plans
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a new repository instance
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts the plan and enrolls its items in one transaction. Items for
// ayat the user already has in another plan are skipped. It returns the
// number of items enrolled, or ErrAlreadyEnrolled with nothing written when
// every ayah was skipped.
func (r *PlanRepository) Create(ctx context.Context, plan *models.MemorizationPlan, items []models.ReviewItem) (int, error) {
	now := utc(time.Now())
	if plan.Status == "" {
		plan.Status = models.PlanActive
	}

	enrolled := 0
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := ensureUser(ctx, tx, plan.UserID); err != nil {
			return err
		}

		query := tx.Rebind(`
			INSERT INTO memorization_plans (
				user_id, title, surah_id, start_ayah, end_ayah, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`)
		err := tx.QueryRowxContext(ctx, query,
			plan.UserID,
			plan.Title,
			plan.SurahID,
			plan.StartAyah,
			plan.EndAyah,
			plan.Status,
			now,
			now,
		).Scan(&plan.ID)
		if err != nil {
			return errors.Wrap(err, "failed to create plan")
		}
		plan.CreatedAt = now
		plan.UpdatedAt = now

		insert := tx.Rebind(`
			INSERT INTO review_items (
				user_id, plan_id, surah_id, ayah_id, ease_factor, interval_days,
				repetitions, confidence_score, review_count, due_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, surah_id, ayah_id) DO NOTHING
		`)
		for _, item := range items {
			result, err := tx.ExecContext(ctx, insert,
				plan.UserID,
				plan.ID,
				item.SurahID,
				item.AyahID,
				item.EaseFactor,
				item.Interval,
				item.Repetitions,
				item.ConfidenceScore,
				item.ReviewCount,
				utcPtr(item.DueAt),
				now,
				now,
			)
			if err != nil {
				return errors.Wrapf(err, "failed to enroll ayah %d:%d", item.SurahID, item.AyahID)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "failed to get rows affected")
			}
			enrolled += int(rows)
		}
		if enrolled == 0 {
			return ErrAlreadyEnrolled
		}
		return nil
	})
	if err != nil {
		plan.ID = 0
		return 0, err
	}
	return enrolled, nil
}

// GetByID returns a plan by ID
func (r *PlanRepository) GetByID(ctx context.Context, id int64) (*models.MemorizationPlan, error) {
	var plan models.MemorizationPlan
	err := r.db.GetContext(ctx, &plan, r.db.Rebind("SELECT "+planColumns+" FROM memorization_plans WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get plan")
	}
	return &plan, nil
}

// ListByUser returns all plans of a user, newest first
func (r *PlanRepository) ListByUser(ctx context.Context, userID int64) ([]models.MemorizationPlan, error) {
	var plans []models.MemorizationPlan
	query := r.db.Rebind("SELECT " + planColumns + " FROM memorization_plans WHERE user_id = ? ORDER BY created_at DESC, id DESC")
	if err := r.db.SelectContext(ctx, &plans, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to list plans")
	}
	return plans, nil
}

// ListCompletable returns active plans that have items and whose items are all mastered
func (r *PlanRepository) ListCompletable(ctx context.Context, mastery MasteryThreshold) ([]models.MemorizationPlan, error) {
	var plans []models.MemorizationPlan
	query := r.db.Rebind(`
		SELECT ` + planColumns + ` FROM memorization_plans p
		WHERE p.status = ?
		AND EXISTS (SELECT 1 FROM review_items ri WHERE ri.plan_id = p.id)
		AND NOT EXISTS (
			SELECT 1 FROM review_items ri
			WHERE ri.plan_id = p.id
			AND NOT (ri.confidence_score >= ? AND ri.repetitions >= ?)
		)
		ORDER BY p.id
	`)
	err := r.db.SelectContext(ctx, &plans, query, models.PlanActive, mastery.Confidence, mastery.Repetitions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list completable plans")
	}
	return plans, nil
}

// MarkCompleted flags an active plan as completed
func (r *PlanRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	query := r.db.Rebind(`
		UPDATE memorization_plans SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	result, err := r.db.ExecContext(ctx, query, models.PlanCompleted, utc(at), utc(at), id, models.PlanActive)
	if err != nil {
		return errors.Wrap(err, "failed to complete plan")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a plan together with its items and their review history
func (r *PlanRepository) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		logs := tx.Rebind("DELETE FROM review_logs WHERE item_id IN (SELECT id FROM review_items WHERE plan_id = ?)")
		if _, err := tx.ExecContext(ctx, logs, id); err != nil {
			return errors.Wrap(err, "failed to delete review logs")
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM review_items WHERE plan_id = ?"), id); err != nil {
			return errors.Wrap(err, "failed to delete review items")
		}
		result, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM memorization_plans WHERE id = ?"), id)
		if err != nil {
			return errors.Wrap(err, "failed to delete plan")
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
}
