package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alfawz/hifz/internal/excel"
	"github.com/alfawz/hifz/internal/review"
	"github.com/alfawz/hifz/internal/spaced_repetition"
	"github.com/alfawz/hifz/pkg/models"
)

const maxListedAyat = 40

// parseUnit parses "surah:ayah", e.g. "2:255"
func parseUnit(s string) (models.Unit, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return models.Unit{}, errors.Errorf("expected surah:ayah, got %q", s)
	}
	surah, err1 := strconv.Atoi(parts[0])
	ayah, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return models.Unit{}, errors.Errorf("expected surah:ayah, got %q", s)
	}
	unit := models.Unit{SurahID: surah, AyahID: ayah}
	if !unit.Valid() {
		return models.Unit{}, errors.Errorf("%s is not an ayah of the Qur'an", unit)
	}
	return unit, nil
}

// parseRange parses "from-to" or a single ayah number
func parseRange(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, n, nil
	}
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("expected from-to, got %q", s)
	}
	from, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	to, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, errors.Errorf("expected from-to, got %q", s)
	}
	return from, to, nil
}

// parseScore reads a confidence score. "0.85", "85%" and "85" all mean 0.85.
// Without a percent sign only values of 2 and above are percentages, so a
// slightly high fraction like "1.2" stays above 1. Out of range values are
// left for the scheduler to clamp.
func parseScore(s string) (float64, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, errors.Errorf("invalid score %q", s)
	}
	if percent || v >= 2 {
		v /= 100
	}
	return v, nil
}

// parsePlanArgs parses "<user> [title words...] <surah> <from>-<to>"
func parsePlanArgs(args []string) (*models.MemorizationPlan, error) {
	if len(args) < 3 {
		return nil, errors.New("not enough arguments")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, errors.Errorf("invalid user ID %q", args[0])
	}
	surah, err := strconv.Atoi(args[len(args)-2])
	if err != nil {
		return nil, errors.Errorf("invalid surah %q", args[len(args)-2])
	}
	from, to, err := parseRange(args[len(args)-1])
	if err != nil {
		return nil, err
	}
	return &models.MemorizationPlan{
		UserID:    userID,
		Title:     strings.Join(args[1:len(args)-2], " "),
		SurahID:   surah,
		StartAyah: from,
		EndAyah:   to,
	}, nil
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func pluralAyat(n int) string {
	if n == 1 {
		return "1 ayah"
	}
	return fmt.Sprintf("%d ayat", n)
}

func unitLabel(u models.Unit) string {
	return fmt.Sprintf("%s %s", models.SurahName(u.SurahID), u)
}

func formatDue(items []models.ReviewItem, sm *spaced_repetition.SM2, now time.Time) string {
	if len(items) == 0 {
		return "✅ Nothing is due right now. Well done!"
	}
	var b strings.Builder
	b.WriteString("📖 Ayat to review, most urgent first:\n\n")
	for i, it := range items {
		var status string
		switch {
		case it.DueAt == nil:
			status = "new"
		case sm.IsOverdue(it, now):
			status = "overdue " + pluralDays(int(sm.DaysOverdue(it, now)))
		default:
			status = "due"
		}
		fmt.Fprintf(&b, "%d. %s (%s, %s)\n", i+1, unitLabel(it.Unit()), status, sm.Difficulty(it))
	}
	b.WriteString("\nRecord a recitation with /review <surah>:<ayah> <score>")
	return b.String()
}

func formatOutcome(out *review.Outcome, feedback string) string {
	var b strings.Builder
	u := out.Item.Unit()
	if out.Passed {
		fmt.Fprintf(&b, "✅ %s recorded (quality %d/5).\n", unitLabel(u), out.Quality)
	} else {
		fmt.Fprintf(&b, "🔁 %s needs more practice (quality %d/5).\n", unitLabel(u), out.Quality)
	}
	fmt.Fprintf(&b, "Next review in %s.", pluralDays(out.Item.Interval))
	if out.NewlyMastered {
		b.WriteString("\n⭐ This ayah is now mastered!")
	}
	if feedback != "" {
		b.WriteString("\n\n" + feedback)
	}
	return b.String()
}

func formatMastered(items []models.ReviewItem) string {
	if len(items) == 0 {
		return "No mastered ayat yet. Keep reviewing!"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⭐ Mastered %s:\n\n", pluralAyat(len(items)))
	for i, it := range items {
		if i == maxListedAyat {
			fmt.Fprintf(&b, "...and %d more", len(items)-maxListedAyat)
			break
		}
		b.WriteString(unitLabel(it.Unit()) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStats(s *models.UserStats, overdue int) string {
	return fmt.Sprintf("📊 Your progress\n\n"+
		"Ayat in plans: %d\n"+
		"Due now: %d (%d overdue)\n"+
		"Mastered: %d (%.1f%%)\n"+
		"Average ease: %.2f\n"+
		"Reviews today: %d",
		s.TotalItems, s.DueNow, overdue, s.Mastered, s.CompletionPercentage, s.AverageEase, s.ReviewsToday)
}

func formatLeaderboard(entries []models.LeaderboardEntry, days int) string {
	if len(entries) == 0 {
		return "🏆 The leaderboard is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Leaderboard (reviews over the last %s)\n\n", pluralDays(days))
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s: %d mastered, %d reviews\n", i+1, e.DisplayName(), e.Mastered, e.ReviewCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPlans(plans []models.MemorizationPlan) string {
	if len(plans) == 0 {
		return "You have no memorization plans yet. Ask your teacher to add one."
	}
	var b strings.Builder
	b.WriteString("📚 Your plans\n\n")
	for _, p := range plans {
		mark := "⏳"
		if p.Status == models.PlanCompleted {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s #%d %s: %s %d-%d\n", mark, p.ID, p.Title, models.SurahName(p.SurahID), p.StartAyah, p.EndAyah)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatImport(res *excel.ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Import finished\n\nRows: %d\nPlans created: %d\nAyat enrolled: %d\nSkipped rows: %d",
		res.TotalProcessed, res.PlansCreated, res.ItemsEnrolled, res.Skipped)
	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "\n\nErrors (%d):\n", len(res.Errors))
		for i, e := range res.Errors {
			if i == 10 {
				fmt.Fprintf(&b, "...and %d more", len(res.Errors)-10)
				break
			}
			b.WriteString(e + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(item *models.ReviewItem, logs []models.ReviewLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕘 %s\n\n", unitLabel(item.Unit()))
	if len(logs) == 0 {
		b.WriteString("Not reviewed yet.")
		return b.String()
	}
	for _, l := range logs {
		fmt.Fprintf(&b, "%s  quality %d/5, next in %s\n",
			l.ReviewedAt.UTC().Format("2006-01-02"), l.Quality, pluralDays(l.IntervalAfter))
	}
	fmt.Fprintf(&b, "\nEase %.2f, %d in a row", item.EaseFactor, item.Repetitions)
	return b.String()
}
