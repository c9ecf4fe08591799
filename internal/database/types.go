package database

import (
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// ErrAlreadyEnrolled is returned when a new plan would not add a single ayah
var ErrAlreadyEnrolled = errors.New("every ayah is already enrolled")

// MasteryThreshold is the SQL side of the mastery rule
type MasteryThreshold struct {
	Confidence  float64
	Repetitions int
}

// utc normalizes timestamps before they are written so SQLite's text
// comparison of due_at stays chronological
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
