package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/pkg/models"
)

const userColumns = `id, username, first_name, last_name, is_teacher, notification_enabled,
	notification_hour, daily_goal, created_at, updated_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by Telegram ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user by ID")
	}
	return &user, nil
}

// Upsert creates the user or refreshes its profile fields. Notification
// settings keep their stored values (or the column defaults for new users).
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	now := utc(time.Now())
	query := r.db.Rebind(`
		INSERT INTO users (
			id, username, first_name, last_name, is_teacher, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			is_teacher = excluded.is_teacher,
			updated_at = excluded.updated_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.IsTeacher,
		now,
		now,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert user")
	}
	return nil
}

// ensureUser inserts a bare user row if the ID is unknown
func ensureUser(ctx context.Context, q sqlx.ExtContext, id int64) error {
	now := utc(time.Now())
	query := q.Rebind(`
		INSERT INTO users (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if _, err := q.ExecContext(ctx, query, id, now, now); err != nil {
		return errors.Wrapf(err, "failed to ensure user %d", id)
	}
	return nil
}

// ListForNotification returns users with reminders enabled for the given hour
func (r *UserRepository) ListForNotification(ctx context.Context, hour int) ([]models.User, error) {
	var users []models.User
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE notification_enabled = ? AND notification_hour = ? ORDER BY id")
	if err := r.db.SelectContext(ctx, &users, query, true, hour); err != nil {
		return nil, errors.Wrap(err, "failed to get users for notification")
	}
	return users, nil
}

// SetNotificationsEnabled toggles reminders for a user
func (r *UserRepository) SetNotificationsEnabled(ctx context.Context, id int64, enabled bool) error {
	query := r.db.Rebind("UPDATE users SET notification_enabled = ?, updated_at = ? WHERE id = ?")
	return r.updateOne(ctx, query, enabled, utc(time.Now()), id)
}

// SetNotificationHour changes the hour reminders are sent at
func (r *UserRepository) SetNotificationHour(ctx context.Context, id int64, hour int) error {
	if hour < 0 || hour > 23 {
		return errors.Errorf("invalid notification hour %d", hour)
	}
	query := r.db.Rebind("UPDATE users SET notification_hour = ?, updated_at = ? WHERE id = ?")
	return r.updateOne(ctx, query, hour, utc(time.Now()), id)
}

// SetDailyGoal changes how many ayat a reminder asks for
func (r *UserRepository) SetDailyGoal(ctx context.Context, id int64, goal int) error {
	if goal <= 0 {
		return errors.Errorf("invalid daily goal %d", goal)
	}
	query := r.db.Rebind("UPDATE users SET daily_goal = ?, updated_at = ? WHERE id = ?")
	return r.updateOne(ctx, query, goal, utc(time.Now()), id)
}

func (r *UserRepository) updateOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update user")
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
