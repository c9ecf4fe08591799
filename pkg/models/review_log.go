package models

import "time"

// ReviewLog records one applied review for history and reporting
type ReviewLog struct {
	ID            int64     `json:"id" db:"id"`
	ItemID        int64     `json:"item_id" db:"item_id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	Confidence    float64   `json:"confidence" db:"confidence"`
	Quality       int       `json:"quality" db:"quality"`
	EaseBefore    float64   `json:"ease_before" db:"ease_before"`
	EaseAfter     float64   `json:"ease_after" db:"ease_after"`
	IntervalAfter int       `json:"interval_after" db:"interval_after"`
	ReviewedAt    time.Time `json:"reviewed_at" db:"reviewed_at"`
}
