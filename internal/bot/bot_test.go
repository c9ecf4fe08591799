package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfawz/hifz/internal/ai"
	"github.com/alfawz/hifz/internal/database"
	"github.com/alfawz/hifz/internal/logger"
	"github.com/alfawz/hifz/internal/review"
	"github.com/alfawz/hifz/internal/spaced_repetition"
	"github.com/alfawz/hifz/pkg/models"
)

const (
	teacherID int64 = 1
	studentID int64 = 2
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests int
	fileURL  string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

// last returns the text of the last message sent to a chat
func (f *fakeAPI) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].ChatID == chatID {
			return f.sent[i].Text
		}
	}
	return ""
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI) {
	t.Helper()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return newTestBotAt(t, &now)
}

// newTestBotAt reads the time from now, so tests can move the clock
func newTestBotAt(t *testing.T, now *time.Time) (*Bot, *fakeAPI) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: "file:" + name + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sm := spaced_repetition.NewSM2(spaced_repetition.WithClock(func() time.Time { return *now }))
	svc := review.NewService(
		database.NewReviewItemRepository(db),
		database.NewPlanRepository(db),
		database.NewStatisticsRepository(db),
		database.NewReviewLogRepository(db),
		sm,
		logger.NewNop(),
	)

	cfg := DefaultConfig()
	cfg.Teachers[teacherID] = true

	api := &fakeAPI{}
	var feedback *ai.FeedbackWriter
	return newBot(api, cfg, svc, database.NewUserRepository(db), feedback, logger.NewNop()), api
}

func command(from int64, text string) *tgbotapi.Message {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from, FirstName: "Test"},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}
}

func send(t *testing.T, b *Bot, from int64, text string) {
	t.Helper()
	require.NoError(t, b.HandleMessage(context.Background(), command(from, text)))
}

func TestStudentFlow(t *testing.T) {
	b, api := newTestBot(t)

	send(t, b, studentID, "/start")
	assert.Contains(t, api.last(studentID), "Your Telegram ID is 2")

	send(t, b, studentID, "/plan 2 67 1-3")
	assert.Equal(t, msgTeacherOnly, api.last(studentID))

	send(t, b, teacherID, "/plan 2 Week one 67 1-3")
	assert.Contains(t, api.last(teacherID), `"Week one" created for 2: 3 ayat enrolled`)
	assert.Contains(t, api.last(studentID), "Your teacher added the plan")

	send(t, b, studentID, "/due")
	assert.Contains(t, api.last(studentID), "1. Al-Mulk 67:1 (new, hard)")

	send(t, b, studentID, "/review 67:1 90%")
	reply := api.last(studentID)
	assert.Contains(t, reply, "Al-Mulk 67:1 recorded (quality 5/5)")
	assert.Contains(t, reply, "Next review in 1 day.")
	assert.Contains(t, reply, "Excellent recitation")

	send(t, b, studentID, "/review 67:9 0.8")
	assert.Contains(t, api.last(studentID), "is not in any memorization plan")

	send(t, b, studentID, "/review 2 67:2 0.5")
	assert.Contains(t, api.last(studentID), "Usage: /review")

	send(t, b, teacherID, "/review 2 67:2 0.5")
	assert.Contains(t, api.last(teacherID), "needs more practice (quality 2/5)")

	send(t, b, studentID, "/stats")
	assert.Contains(t, api.last(studentID), "Ayat in plans: 3")

	send(t, b, studentID, "/plans")
	assert.Contains(t, api.last(studentID), "#1 Week one: Al-Mulk 1-3")

	send(t, b, studentID, "/history 67:2")
	reply = api.last(studentID)
	assert.Contains(t, reply, "Al-Mulk 67:2")
	assert.Contains(t, reply, "2025-03-01  quality 2/5, next in 1 day")

	send(t, b, studentID, "/history 67:30")
	assert.Contains(t, api.last(studentID), "is not in any memorization plan")

	send(t, b, teacherID, "/reset 2 67:1")
	assert.Contains(t, api.last(teacherID), "Al-Mulk 67:1 restarted for 2")

	send(t, b, studentID, "/mastered")
	assert.Contains(t, api.last(studentID), "No mastered ayat yet")

	send(t, b, studentID, "/leaderboard")
	assert.Contains(t, api.last(studentID), "1. Test: 0 mastered, 2 reviews")
}

func TestSettingsCommands(t *testing.T) {
	b, api := newTestBot(t)

	send(t, b, 99, "/notify on")
	assert.Equal(t, msgNotStarted, api.last(99))

	send(t, b, studentID, "/start")
	send(t, b, studentID, "/notify off")
	assert.Equal(t, "✅ Reminders disabled", api.last(studentID))
	send(t, b, studentID, "/notify maybe")
	assert.Equal(t, "Usage: /notify on|off", api.last(studentID))
	send(t, b, studentID, "/time 25")
	assert.Contains(t, api.last(studentID), "Usage: /time")
	send(t, b, studentID, "/time 7")
	assert.Contains(t, api.last(studentID), "07:00 UTC")
	send(t, b, studentID, "/goal 5")
	assert.Contains(t, api.last(studentID), "up to 5 ayat")
	send(t, b, studentID, "/whatever")
	assert.Contains(t, api.last(studentID), "Unknown command")
}

func TestHelpShowsTeacherCommands(t *testing.T) {
	b, api := newTestBot(t)

	send(t, b, studentID, "/help")
	assert.NotContains(t, api.last(studentID), "/plan <user>")
	send(t, b, teacherID, "/help")
	assert.Contains(t, api.last(teacherID), "/plan <user>")
}

func TestImportDocument(t *testing.T) {
	b, api := newTestBot(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sheet-1", r.URL.Path)
		_, _ = w.Write([]byte("student,title,surah,from,to\n5,,112,1,4\n6,Bad,112,3,9\n5,Again,112,2,3\n"))
	}))
	defer srv.Close()
	api.fileURL = srv.URL

	doc := func(from int64, caption string) *tgbotapi.Message {
		return &tgbotapi.Message{
			From:     &tgbotapi.User{ID: from},
			Chat:     &tgbotapi.Chat{ID: from},
			Caption:  caption,
			Document: &tgbotapi.Document{FileID: "sheet-1", FileName: "plans.csv", FileSize: 64},
		}
	}
	ctx := context.Background()

	require.NoError(t, b.HandleMessage(ctx, doc(studentID, "/import")))
	assert.Equal(t, msgTeacherOnly, api.last(studentID))

	require.NoError(t, b.HandleMessage(ctx, doc(teacherID, "")))
	assert.Contains(t, api.last(teacherID), "caption /import")

	send(t, b, teacherID, "/import")
	require.NoError(t, b.HandleMessage(ctx, doc(teacherID, "")))
	reply := api.last(teacherID)
	assert.Contains(t, reply, "Plans created: 1")
	assert.Contains(t, reply, "Ayat enrolled: 4")
	assert.Contains(t, reply, "Row 3")
	assert.Contains(t, reply, "Row 4: enroll plan: every ayah is already enrolled")

	bad := doc(teacherID, "/import")
	bad.Document.FileName = "plans.pdf"
	require.NoError(t, b.HandleMessage(ctx, bad))
	assert.Contains(t, api.last(teacherID), "Only .xlsx and .csv")
}

func TestCallbackAnswersAndRoutes(t *testing.T) {
	b, api := newTestBot(t)
	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: studentID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: studentID}},
		Data:    callbackStats,
	}
	require.NoError(t, b.HandleCallback(context.Background(), cb))
	assert.Equal(t, 1, api.requests)
	assert.Contains(t, api.last(studentID), "Your progress")
}

func TestNotifier(t *testing.T) {
	b, api := newTestBot(t)

	require.NoError(t, b.SendReminders(studentID, 1))
	assert.Contains(t, api.last(studentID), "You have 1 ayah waiting")

	require.NoError(t, b.SendPlanCompleted(models.MemorizationPlan{
		ID: 3, UserID: studentID, Title: "Juz Amma", SurahID: 112, StartAyah: 1, EndAyah: 4,
	}))
	assert.Contains(t, api.last(studentID), `"Juz Amma" (Al-Ikhlas 1-4) is mastered`)
}

func TestPendingImportExpires(t *testing.T) {
	b, _ := newTestBot(t)
	b.pendingImports[teacherID] = time.Now().Add(-time.Hour)
	assert.False(t, b.takePendingImport(teacherID))

	b.setPendingImport(teacherID)
	assert.True(t, b.takePendingImport(teacherID))
	assert.False(t, b.takePendingImport(teacherID))
}

func TestDeletePlan(t *testing.T) {
	b, api := newTestBot(t)
	send(t, b, teacherID, "/plan 2 112 1-4")
	assert.Contains(t, api.last(teacherID), `"Al-Ikhlas" created for 2: 4 ayat enrolled`)

	send(t, b, studentID, "/deleteplan 1")
	assert.Equal(t, msgTeacherOnly, api.last(studentID))

	send(t, b, teacherID, "/plan 2 Repeat 112 2-3")
	assert.Equal(t, "Al-Ikhlas 2-3 is already in the plans of 2.", api.last(teacherID))

	send(t, b, teacherID, "/deleteplan 1")
	assert.Contains(t, api.last(teacherID), `Plan #1 "Al-Ikhlas" of 2 deleted`)

	send(t, b, teacherID, "/deleteplan 1")
	assert.Contains(t, api.last(teacherID), "does not exist")

	send(t, b, studentID, "/due")
	assert.Contains(t, api.last(studentID), "Nothing is due")
}

func TestStatsCountsOverdue(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	b, api := newTestBotAt(t, &now)
	send(t, b, teacherID, "/plan 2 67 1-3")
	send(t, b, studentID, "/review 67:1 0.9")

	send(t, b, studentID, "/stats")
	assert.Contains(t, api.last(studentID), "Due now: 2 (0 overdue)")

	now = now.AddDate(0, 0, 3)
	send(t, b, studentID, "/stats")
	assert.Contains(t, api.last(studentID), "Due now: 3 (1 overdue)")
}

type fakeReminder struct {
	counts map[int64]int
	calls  []int64
}

func (f *fakeReminder) RunManualCheck(ctx context.Context, userID int64) (int, error) {
	f.calls = append(f.calls, userID)
	return f.counts[userID], nil
}

func TestRemindCommand(t *testing.T) {
	b, api := newTestBot(t)

	send(t, b, studentID, "/remind")
	assert.Equal(t, "Reminders are not running.", api.last(studentID))

	reminder := &fakeReminder{counts: map[int64]int{5: 3}}
	b.SetReminder(reminder)

	send(t, b, studentID, "/remind")
	assert.Contains(t, api.last(studentID), "Nothing is due right now")

	send(t, b, studentID, "/remind 5")
	assert.Equal(t, msgTeacherOnly, api.last(studentID))

	send(t, b, teacherID, "/remind five")
	assert.Equal(t, "Usage: /remind <user>", api.last(teacherID))

	send(t, b, teacherID, "/remind 5")
	assert.Equal(t, "🔔 Reminded 5 about 3 ayat.", api.last(teacherID))

	send(t, b, teacherID, "/remind 2")
	assert.Equal(t, "Nothing is due for 2.", api.last(teacherID))

	assert.Equal(t, []int64{studentID, 5, 2}, reminder.calls)
}

func TestReviewScoreAboveOneCountsAsPerfect(t *testing.T) {
	b, api := newTestBot(t)
	send(t, b, teacherID, "/plan 2 112 1-4")

	send(t, b, studentID, "/review 112:1 1.5")
	assert.Contains(t, api.last(studentID), "Al-Ikhlas 112:1 recorded (quality 5/5)")

	send(t, b, studentID, "/review 112:2 100")
	assert.Contains(t, api.last(studentID), "Al-Ikhlas 112:2 recorded (quality 5/5)")
}
