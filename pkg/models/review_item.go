package models

import (
	"fmt"
	"time"
)

// ReviewItem tracks a user's memorization of a single ayah under the SM-2 schedule
type ReviewItem struct {
	ID              int64      `json:"id" db:"id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	PlanID          int64      `json:"plan_id" db:"plan_id"`
	SurahID         int        `json:"surah_id" db:"surah_id"`
	AyahID          int        `json:"ayah_id" db:"ayah_id"`
	EaseFactor      float64    `json:"ease_factor" db:"ease_factor"`           // SM-2 EF parameter
	Interval        int        `json:"interval" db:"interval_days"`            // Current interval in days
	Repetitions     int        `json:"repetitions" db:"repetitions"`           // Consecutive successful reviews
	ConfidenceScore float64    `json:"confidence_score" db:"confidence_score"` // Last review outcome, 0..1
	ReviewCount     int        `json:"review_count" db:"review_count"`         // Total reviews performed
	DueAt           *time.Time `json:"due_at" db:"due_at"`                     // nil means never scheduled
	LastReviewedAt  *time.Time `json:"last_reviewed_at" db:"last_reviewed_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Unit returns the content unit the item schedules
func (i ReviewItem) Unit() Unit {
	return Unit{SurahID: i.SurahID, AyahID: i.AyahID}
}

// Unit identifies an ayah within a surah
type Unit struct {
	SurahID int `json:"surah_id"`
	AyahID  int `json:"ayah_id"`
}

// String formats the unit as "surah:ayah"
func (u Unit) String() string {
	return fmt.Sprintf("%d:%d", u.SurahID, u.AyahID)
}
