package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfawz/hifz/pkg/models"
)

var (
	ctx     = context.Background()
	t0      = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mastery = MasteryThreshold{Confidence: 0.9, Repetitions: 3}
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Connect(Config{Driver: "sqlite", DSN: "file:" + name + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newItems(userID int64, surah, from, to int) []models.ReviewItem {
	var items []models.ReviewItem
	for a := from; a <= to; a++ {
		items = append(items, models.ReviewItem{
			UserID:     userID,
			SurahID:    surah,
			AyahID:     a,
			EaseFactor: 2.5,
			Interval:   1,
		})
	}
	return items
}

func createPlan(t *testing.T, db *sqlx.DB, userID int64, surah, from, to int) (*models.MemorizationPlan, int) {
	t.Helper()
	plan := &models.MemorizationPlan{UserID: userID, Title: "Juz Amma", SurahID: surah, StartAyah: from, EndAyah: to}
	n, err := NewPlanRepository(db).Create(ctx, plan, newItems(userID, surah, from, to))
	require.NoError(t, err)
	return plan, n
}

func TestPlanCreateEnrollsItems(t *testing.T) {
	db := newTestDB(t)
	plan, n := createPlan(t, db, 42, 112, 1, 4)

	assert.Equal(t, 4, n)
	assert.NotZero(t, plan.ID)
	assert.Equal(t, models.PlanActive, plan.Status)

	items, err := NewReviewItemRepository(db).list(ctx, "plan_id = ?", plan.ID)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, 1, items[0].AyahID)
	assert.Equal(t, 4, items[3].AyahID)
	assert.Nil(t, items[0].DueAt)
	assert.InDelta(t, 2.5, items[0].EaseFactor, 1e-9)

	user, err := NewUserRepository(db).GetByID(ctx, 42)
	require.NoError(t, err)
	assert.True(t, user.NotificationEnabled)
	assert.Equal(t, 9, user.NotificationHour)
}

func TestPlanCreateSkipsAlreadyEnrolledAyat(t *testing.T) {
	db := newTestDB(t)
	createPlan(t, db, 42, 112, 1, 4)

	plan, n := createPlan(t, db, 42, 112, 3, 6)

	assert.Equal(t, 2, n)
	items, err := NewReviewItemRepository(db).list(ctx, "plan_id = ?", plan.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 5, items[0].AyahID)
}

func TestPlanCreateRejectsFullyEnrolledRange(t *testing.T) {
	db := newTestDB(t)
	plans := NewPlanRepository(db)
	createPlan(t, db, 42, 112, 1, 4)

	dup := &models.MemorizationPlan{UserID: 42, Title: "Again", SurahID: 112, StartAyah: 2, EndAyah: 3}
	n, err := plans.Create(ctx, dup, newItems(42, 112, 2, 3))
	assert.True(t, errors.Is(err, ErrAlreadyEnrolled))
	assert.Zero(t, n)
	assert.Zero(t, dup.ID)

	stored, err := plans.ListByUser(ctx, 42)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Juz Amma", stored[0].Title)
}

func TestModifyWritesItemAndLog(t *testing.T) {
	db := newTestDB(t)
	createPlan(t, db, 7, 1, 1, 7)
	repo := NewReviewItemRepository(db)
	unit := models.Unit{SurahID: 1, AyahID: 2}

	updated, err := repo.Modify(ctx, 7, unit, func(item *models.ReviewItem) (*models.ReviewLog, error) {
		due := t0.AddDate(0, 0, 6)
		item.Interval = 6
		item.Repetitions = 2
		item.EaseFactor = 2.6
		item.ConfidenceScore = 0.7
		item.ReviewCount = 2
		item.DueAt = &due
		item.LastReviewedAt = &t0
		return &models.ReviewLog{Confidence: 0.7, Quality: 4, EaseBefore: 2.6, EaseAfter: 2.6, IntervalAfter: 6, ReviewedAt: t0}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Interval)

	stored, err := repo.GetByUnit(ctx, 7, unit)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Interval)
	assert.Equal(t, 2, stored.Repetitions)
	assert.InDelta(t, 0.7, stored.ConfidenceScore, 1e-9)
	require.NotNil(t, stored.DueAt)
	assert.True(t, stored.DueAt.Equal(t0.AddDate(0, 0, 6)))

	logs, err := NewReviewLogRepository(db).ListByItem(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(7), logs[0].UserID)
	assert.Equal(t, 4, logs[0].Quality)
	assert.True(t, logs[0].ReviewedAt.Equal(t0))
}

func TestModifyRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	createPlan(t, db, 7, 1, 1, 7)
	repo := NewReviewItemRepository(db)
	unit := models.Unit{SurahID: 1, AyahID: 3}
	boom := errors.New("boom")

	_, err := repo.Modify(ctx, 7, unit, func(item *models.ReviewItem) (*models.ReviewLog, error) {
		item.Repetitions = 9
		return nil, boom
	})
	assert.True(t, errors.Is(err, boom))

	stored, err := repo.GetByUnit(ctx, 7, unit)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Repetitions)
}

func TestModifyMissingItem(t *testing.T) {
	db := newTestDB(t)
	_, err := NewReviewItemRepository(db).Modify(ctx, 7, models.Unit{SurahID: 2, AyahID: 255},
		func(item *models.ReviewItem) (*models.ReviewLog, error) { return nil, nil })
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListDueAndMastered(t *testing.T) {
	db := newTestDB(t)
	createPlan(t, db, 5, 103, 1, 3)
	repo := NewReviewItemRepository(db)

	future := t0.AddDate(0, 0, 10)
	past := t0.Add(-time.Hour)
	set := func(ayah int, due *time.Time, conf float64, reps int) {
		item, err := repo.GetByUnit(ctx, 5, models.Unit{SurahID: 103, AyahID: ayah})
		require.NoError(t, err)
		item.DueAt = due
		item.ConfidenceScore = conf
		item.Repetitions = reps
		require.NoError(t, updateItem(ctx, db, item))
	}
	set(1, &future, 0.95, 3)
	set(2, &past, 0.6, 1)

	due, err := repo.ListDue(ctx, 5, t0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, 2, due[0].AyahID)
	assert.Equal(t, 3, due[1].AyahID)

	count, err := repo.CountDue(ctx, 5, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mastered, err := repo.ListMastered(ctx, 5, mastery)
	require.NoError(t, err)
	require.Len(t, mastered, 1)
	assert.Equal(t, 1, mastered[0].AyahID)
}

func TestPlanCompletionAndDelete(t *testing.T) {
	db := newTestDB(t)
	plans := NewPlanRepository(db)
	items := NewReviewItemRepository(db)
	done, _ := createPlan(t, db, 9, 108, 1, 3)
	createPlan(t, db, 9, 109, 1, 6)

	list, err := items.list(ctx, "plan_id = ?", done.ID)
	require.NoError(t, err)
	for i := range list {
		list[i].ConfidenceScore = 1
		list[i].Repetitions = 3
		require.NoError(t, updateItem(ctx, db, &list[i]))
	}

	completable, err := plans.ListCompletable(ctx, mastery)
	require.NoError(t, err)
	require.Len(t, completable, 1)
	assert.Equal(t, done.ID, completable[0].ID)

	require.NoError(t, plans.MarkCompleted(ctx, done.ID, t0))
	stored, err := plans.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, errors.Is(plans.MarkCompleted(ctx, done.ID, t0), ErrNotFound))

	completable, err = plans.ListCompletable(ctx, mastery)
	require.NoError(t, err)
	assert.Empty(t, completable)

	require.NoError(t, plans.Delete(ctx, done.ID))
	left, err := items.list(ctx, "user_id = ?", 9)
	require.NoError(t, err)
	assert.Len(t, left, 6)
	_, err = plans.GetByID(ctx, done.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	byUser, err := plans.ListByUser(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)
}

func TestUserNotifications(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	require.NoError(t, users.Upsert(ctx, &models.User{ID: 1, FirstName: "Aisha"}))
	require.NoError(t, users.Upsert(ctx, &models.User{ID: 2, FirstName: "Bilal"}))
	require.NoError(t, users.SetNotificationHour(ctx, 2, 18))
	require.NoError(t, users.Upsert(ctx, &models.User{ID: 2, FirstName: "Bilal", Username: "bilal", IsTeacher: true}))

	atNine, err := users.ListForNotification(ctx, 9)
	require.NoError(t, err)
	require.Len(t, atNine, 1)
	assert.Equal(t, int64(1), atNine[0].ID)

	require.NoError(t, users.SetNotificationsEnabled(ctx, 2, false))
	atSix, err := users.ListForNotification(ctx, 18)
	require.NoError(t, err)
	assert.Empty(t, atSix)

	bilal, err := users.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 18, bilal.NotificationHour)
	assert.True(t, bilal.IsTeacher)
	assert.Equal(t, "bilal", bilal.Username)

	assert.Error(t, users.SetNotificationHour(ctx, 1, 24))
	assert.True(t, errors.Is(users.SetDailyGoal(ctx, 99, 5), ErrNotFound))
	_, err = users.GetByID(ctx, 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStatisticsAndLeaderboard(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	require.NoError(t, users.Upsert(ctx, &models.User{ID: 1, FirstName: "Aisha"}))
	require.NoError(t, users.Upsert(ctx, &models.User{ID: 2, Username: "bilal"}))
	createPlan(t, db, 1, 114, 1, 4)
	createPlan(t, db, 2, 113, 1, 5)
	repo := NewReviewItemRepository(db)

	master := func(userID int64, surah, ayah int) {
		_, err := repo.Modify(ctx, userID, models.Unit{SurahID: surah, AyahID: ayah}, func(item *models.ReviewItem) (*models.ReviewLog, error) {
			due := t0.AddDate(0, 0, 15)
			item.ConfidenceScore = 0.95
			item.Repetitions = 3
			item.EaseFactor = 2.7
			item.DueAt = &due
			return &models.ReviewLog{Confidence: 0.95, Quality: 5, EaseBefore: 2.6, EaseAfter: 2.7, IntervalAfter: 15, ReviewedAt: t0}, nil
		})
		require.NoError(t, err)
	}
	master(1, 114, 1)
	master(1, 114, 2)
	master(2, 113, 1)

	stats, err := NewStatisticsRepository(db).UserStats(ctx, 1, t0, t0.Add(-time.Hour), mastery)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalItems)
	assert.Equal(t, 2, stats.DueNow)
	assert.Equal(t, 2, stats.Mastered)
	assert.Equal(t, 2, stats.ReviewsToday)
	assert.InDelta(t, 50.0, stats.CompletionPercentage, 1e-9)
	assert.InDelta(t, 2.6, stats.AverageEase, 1e-9)

	board, err := NewStatisticsRepository(db).Leaderboard(ctx, t0.AddDate(0, 0, -7), mastery, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, int64(1), board[0].UserID)
	assert.Equal(t, 2, board[0].Mastered)
	assert.Equal(t, 2, board[0].ReviewCount)
	assert.Equal(t, "Aisha", board[0].DisplayName())
	assert.Equal(t, "@bilal", board[1].DisplayName())

	empty, err := NewStatisticsRepository(db).UserStats(ctx, 77, t0, t0, mastery)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalItems)
	assert.Equal(t, 0.0, empty.CompletionPercentage)
}
