package models

import "time"

// PlanStatus is the lifecycle state of a memorization plan
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
)

// MemorizationPlan enrolls a contiguous range of ayat of one surah for a student
type MemorizationPlan struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	SurahID     int        `json:"surah_id" db:"surah_id"`
	StartAyah   int        `json:"start_ayah" db:"start_ayah"`
	EndAyah     int        `json:"end_ayah" db:"end_ayah"`
	Status      PlanStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// Units returns every ayah the plan covers, in order
func (p MemorizationPlan) Units() []Unit {
	if p.EndAyah < p.StartAyah {
		return nil
	}
	units := make([]Unit, 0, p.EndAyah-p.StartAyah+1)
	for a := p.StartAyah; a <= p.EndAyah; a++ {
		units = append(units, Unit{SurahID: p.SurahID, AyahID: a})
	}
	return units
}
