package models

// UserStats summarizes a student's memorization progress
type UserStats struct {
	UserID               int64   `json:"user_id" db:"user_id"`
	TotalItems           int     `json:"total_items" db:"total_items"`
	DueNow               int     `json:"due_now" db:"due_now"`
	Mastered             int     `json:"mastered" db:"mastered"`
	AverageEase          float64 `json:"average_ease" db:"average_ease"`
	ReviewsToday         int     `json:"reviews_today" db:"reviews_today"`
	CompletionPercentage float64 `json:"completion_percentage" db:"-"`
}

// LeaderboardEntry ranks a student by mastered ayat
type LeaderboardEntry struct {
	UserID      int64  `json:"user_id" db:"user_id"`
	Username    string `json:"username" db:"username"`
	FirstName   string `json:"first_name" db:"first_name"`
	LastName    string `json:"last_name" db:"last_name"`
	Mastered    int    `json:"mastered" db:"mastered"`
	ReviewCount int    `json:"review_count" db:"review_count"`
}

// DisplayName returns the name shown on the leaderboard
func (e LeaderboardEntry) DisplayName() string {
	return User{Username: e.Username, FirstName: e.FirstName, LastName: e.LastName}.DisplayName()
}
