package spaced_repetition

import (
	"math"
	"sort"
	"time"

	"github.com/alfawz/hifz/pkg/models"
)

// Config holds the SM-2 tuning constants
type Config struct {
	// Ease factor of a freshly enrolled ayah
	InitialEase float64
	// Lower bound for the ease factor
	MinEase float64
	// Ease adjustment: EF' = EF + (EaseBonus - d*(EasePenaltyLinear + d*EasePenaltyQuadratic)), d = MaxQuality-q
	EaseBonus            float64
	EasePenaltyLinear    float64
	EasePenaltyQuadratic float64
	// Highest quality bucket
	MaxQuality int
	// Quality buckets at or above this value count as a successful review
	PassQuality int
	// Scores below this never pass, whatever bucket they round to
	PassConfidence float64
	// Fixed intervals for the first and second consecutive success
	FirstInterval  int
	SecondInterval int
	// Upper bound for the interval in days, 0 disables the cap
	MaxInterval int
	// Mastery thresholds
	MasteryConfidence  float64
	MasteryRepetitions int
	// Confidence thresholds for the easy and medium difficulty labels
	EasyConfidence   float64
	MediumConfidence float64
	// How long past due_at an item has to be before it counts as overdue
	OverdueGrace time.Duration
	// priority = daysOverdue + (PriorityEaseCeiling - EF)
	PriorityEaseCeiling float64
}

// intervalCeiling bounds every interval, configured cap or not, so due dates
// stay representable after any number of perfect reviews
const intervalCeiling = 36500

// DefaultConfig returns the classic SM-2 constants
func DefaultConfig() Config {
	return Config{
		InitialEase:          2.5,
		MinEase:              1.3,
		EaseBonus:            0.1,
		EasePenaltyLinear:    0.08,
		EasePenaltyQuadratic: 0.02,
		MaxQuality:           5,
		PassQuality:          3,
		PassConfidence:       0.6,
		FirstInterval:        1,
		SecondInterval:       6,
		MaxInterval:          0,
		MasteryConfidence:    0.9,
		MasteryRepetitions:   3,
		EasyConfidence:       0.8,
		MediumConfidence:     0.5,
		OverdueGrace:         24 * time.Hour,
		PriorityEaseCeiling:  3.0,
	}
}

// SM2 implements the SuperMemo-2 algorithm for ayah review scheduling
type SM2 struct {
	cfg Config
	now func() time.Time
}

// Option configures an SM2 instance
type Option func(*SM2)

// WithConfig replaces the tuning constants
func WithConfig(cfg Config) Option {
	return func(sm *SM2) { sm.cfg = cfg }
}

// WithClock injects the time source used by Apply, Reset and Enroll.
// Its readings are converted to UTC so a day is always 24 hours.
func WithClock(now func() time.Time) Option {
	return func(sm *SM2) { sm.now = now }
}

// NewSM2 creates a new SM2 with default settings
func NewSM2(opts ...Option) *SM2 {
	sm := &SM2{
		cfg: DefaultConfig(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Config returns the constants in use
func (sm *SM2) Config() Config {
	return sm.cfg
}

// Now returns the current time of the injected clock
func (sm *SM2) Now() time.Time {
	return sm.now().UTC()
}

// QualityResponse represents the quality of a recitation in SM-2
type QualityResponse int

const (
	// Complete blackout, unable to recall
	QualityBlackout QualityResponse = 0
	// Incorrect recitation but remembered once prompted
	QualityIncorrect QualityResponse = 1
	// Incorrect recitation but the ayah felt familiar
	QualityIncorrectFamiliar QualityResponse = 2
	// Correct recitation that required significant effort
	QualityCorrectDifficult QualityResponse = 3
	// Correct recitation after some hesitation
	QualityCorrectHesitation QualityResponse = 4
	// Perfect recitation with no hesitation
	QualityPerfect QualityResponse = 5
)

// Result describes what Apply did to an item
type Result struct {
	Quality    QualityResponse
	Passed     bool
	EaseBefore float64
}

// Quality maps a confidence score onto a 0..MaxQuality bucket
func (sm *SM2) Quality(confidence float64) QualityResponse {
	c := clamp(confidence, 0, 1)
	q := int(math.Round(c * float64(sm.cfg.MaxQuality)))
	if q > sm.cfg.MaxQuality {
		q = sm.cfg.MaxQuality
	}
	if q < 0 {
		q = 0
	}
	// 0.5 rounds up into the passing bucket; the pass line sits on the score itself
	if c < sm.cfg.PassConfidence && q >= sm.cfg.PassQuality {
		q = sm.cfg.PassQuality - 1
	}
	return QualityResponse(q)
}

// Enroll returns a fresh review item for a unit. It has no due date, so it is due at once.
func (sm *SM2) Enroll(userID, planID int64, unit models.Unit) models.ReviewItem {
	return models.ReviewItem{
		UserID:      userID,
		PlanID:      planID,
		SurahID:     unit.SurahID,
		AyahID:      unit.AyahID,
		EaseFactor:  sm.cfg.InitialEase,
		Interval:    1,
		Repetitions: 0,
	}
}

// Apply updates the item with the outcome of one review. It never fails:
// confidence scores outside [0, 1] are clamped.
func (sm *SM2) Apply(item *models.ReviewItem, confidence float64) Result {
	now := sm.now().UTC()
	if item.EaseFactor == 0 {
		item.EaseFactor = sm.cfg.InitialEase
	}

	quality := sm.Quality(confidence)
	res := Result{
		Quality:    quality,
		Passed:     int(quality) >= sm.cfg.PassQuality,
		EaseBefore: item.EaseFactor,
	}

	item.ReviewCount++

	if res.Passed {
		item.Repetitions++
		item.EaseFactor = sm.nextEase(item.EaseFactor, quality)

		switch {
		case item.Repetitions == 1:
			item.Interval = sm.cfg.FirstInterval
		case item.Repetitions == 2:
			item.Interval = sm.cfg.SecondInterval
		default:
			next := math.Round(float64(item.Interval) * item.EaseFactor)
			item.Interval = int(math.Min(next, intervalCeiling))
		}
		if sm.cfg.MaxInterval > 0 && item.Interval > sm.cfg.MaxInterval {
			item.Interval = sm.cfg.MaxInterval
		}
		if item.Interval > intervalCeiling {
			item.Interval = intervalCeiling
		}
	} else {
		// Failed recitation restarts the ladder but leaves the ease alone
		item.Repetitions = 0
		item.Interval = 1
	}
	if item.Interval < 1 {
		item.Interval = 1
	}

	item.ConfidenceScore = clamp(confidence, 0, 1)

	due := now.AddDate(0, 0, item.Interval)
	item.DueAt = &due
	reviewed := now
	item.LastReviewedAt = &reviewed

	return res
}

func (sm *SM2) nextEase(ease float64, quality QualityResponse) float64 {
	d := float64(sm.cfg.MaxQuality - int(quality))
	ease += sm.cfg.EaseBonus - d*(sm.cfg.EasePenaltyLinear+d*sm.cfg.EasePenaltyQuadratic)
	if ease < sm.cfg.MinEase {
		ease = sm.cfg.MinEase
	}
	return ease
}

// Reset puts the item back to the state of a new ayah, due immediately
func (sm *SM2) Reset(item *models.ReviewItem) {
	now := sm.now().UTC()
	item.Interval = 1
	item.EaseFactor = sm.cfg.InitialEase
	item.Repetitions = 0
	item.ConfidenceScore = 0
	item.ReviewCount = 0
	item.DueAt = &now
}

// IsDue reports whether the item may be reviewed at now
func (sm *SM2) IsDue(item models.ReviewItem, now time.Time) bool {
	if item.DueAt == nil {
		return true
	}
	return !item.DueAt.After(now)
}

// IsOverdue reports whether the item is past due by more than the grace period
func (sm *SM2) IsOverdue(item models.ReviewItem, now time.Time) bool {
	if item.DueAt == nil {
		return false
	}
	return item.DueAt.Add(sm.cfg.OverdueGrace).Before(now)
}

// DaysOverdue returns how many days (fractional) the item is past due, never negative
func (sm *SM2) DaysOverdue(item models.ReviewItem, now time.Time) float64 {
	if item.DueAt == nil {
		return 0
	}
	days := now.Sub(*item.DueAt).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

// PriorityScore ranks due items: more overdue and harder items score higher
func (sm *SM2) PriorityScore(item models.ReviewItem, now time.Time) float64 {
	return sm.DaysOverdue(item, now) + (sm.cfg.PriorityEaseCeiling - item.EaseFactor)
}

// IsMastered determines if an ayah is considered memorized
func (sm *SM2) IsMastered(item models.ReviewItem) bool {
	return item.ConfidenceScore >= sm.cfg.MasteryConfidence &&
		item.Repetitions >= sm.cfg.MasteryRepetitions
}

// Difficulty is the label shown to students for an ayah
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulty classifies an item by its last confidence score
func (sm *SM2) Difficulty(item models.ReviewItem) Difficulty {
	switch {
	case item.ConfidenceScore >= sm.cfg.EasyConfidence:
		return DifficultyEasy
	case item.ConfidenceScore >= sm.cfg.MediumConfidence:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

// Due filters the items that are due at now
func (sm *SM2) Due(items []models.ReviewItem, now time.Time) []models.ReviewItem {
	var due []models.ReviewItem
	for _, it := range items {
		if sm.IsDue(it, now) {
			due = append(due, it)
		}
	}
	return due
}

// Mastered filters the mastered items
func (sm *SM2) Mastered(items []models.ReviewItem) []models.ReviewItem {
	var mastered []models.ReviewItem
	for _, it := range items {
		if sm.IsMastered(it) {
			mastered = append(mastered, it)
		}
	}
	return mastered
}

// ByPriority returns the due items ordered from most to least urgent
func (sm *SM2) ByPriority(items []models.ReviewItem, now time.Time) []models.ReviewItem {
	due := sm.Due(items, now)
	scores := make(map[int]float64, len(due))
	idx := make([]int, len(due))
	for i := range due {
		idx[i] = i
		scores[i] = sm.PriorityScore(due[i], now)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		// Never-scheduled items first, then the earliest due date
		di, dj := due[i].DueAt, due[j].DueAt
		if (di == nil) != (dj == nil) {
			return di == nil
		}
		if di != nil && !di.Equal(*dj) {
			return di.Before(*dj)
		}
		if due[i].SurahID != due[j].SurahID {
			return due[i].SurahID < due[j].SurahID
		}
		return due[i].AyahID < due[j].AyahID
	})

	ordered := make([]models.ReviewItem, len(due))
	for k, i := range idx {
		ordered[k] = due[i]
	}
	return ordered
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
