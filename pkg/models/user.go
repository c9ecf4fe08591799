package models

import "time"

// User represents a student or teacher talking to the bot
type User struct {
	ID                  int64     `json:"id" db:"id"` // Telegram User ID
	Username            string    `json:"username" db:"username"`
	FirstName           string    `json:"first_name" db:"first_name"`
	LastName            string    `json:"last_name" db:"last_name"`
	IsTeacher           bool      `json:"is_teacher" db:"is_teacher"`
	NotificationEnabled bool      `json:"notification_enabled" db:"notification_enabled"`
	NotificationHour    int       `json:"notification_hour" db:"notification_hour"` // Hour of day for notifications (0-23)
	DailyGoal           int       `json:"daily_goal" db:"daily_goal"`               // Ayat to review per day
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the name shown on the leaderboard
func (u User) DisplayName() string {
	if u.FirstName != "" {
		if u.LastName != "" {
			return u.FirstName + " " + u.LastName
		}
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "student"
}
