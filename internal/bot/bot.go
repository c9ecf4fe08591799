package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/internal/ai"
	"github.com/alfawz/hifz/internal/logger"
	"github.com/alfawz/hifz/internal/review"
	"github.com/alfawz/hifz/internal/spaced_repetition"
	"github.com/alfawz/hifz/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// Callback data of the menu buttons
const (
	callbackDue         = "due"
	callbackStats       = "stats"
	callbackMastered    = "mastered"
	callbackLeaderboard = "leaderboard"
)

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// MainMenuButtons returns the buttons shown under most replies
func MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "📖 Due ayat", CallbackData: callbackDue}, {Text: "📊 Progress", CallbackData: callbackStats}},
		{{Text: "⭐ Mastered", CallbackData: callbackMastered}, {Text: "🏆 Leaderboard", CallbackData: callbackLeaderboard}},
	}
}

// Reviewer is the review service used by the handlers
type Reviewer interface {
	ApplyReview(ctx context.Context, userID int64, unit models.Unit, confidence float64) (*review.Outcome, error)
	Reset(ctx context.Context, userID int64, unit models.Unit) (*models.ReviewItem, error)
	ByPriority(ctx context.Context, userID int64, limit int) ([]models.ReviewItem, error)
	Overdue(ctx context.Context, userID int64) ([]models.ReviewItem, error)
	Mastered(ctx context.Context, userID int64) ([]models.ReviewItem, error)
	Stats(ctx context.Context, userID int64) (*models.UserStats, error)
	Leaderboard(ctx context.Context, days, limit int) ([]models.LeaderboardEntry, error)
	Plans(ctx context.Context, userID int64) ([]models.MemorizationPlan, error)
	EnrollPlan(ctx context.Context, plan *models.MemorizationPlan) (int, error)
	DeletePlan(ctx context.Context, id int64) (*models.MemorizationPlan, error)
	History(ctx context.Context, userID int64, unit models.Unit) (*models.ReviewItem, []models.ReviewLog, error)
	Scheduler() *spaced_repetition.SM2
}

// Reminder sends an out-of-schedule reminder and reports how many ayat it covered
type Reminder interface {
	RunManualCheck(ctx context.Context, userID int64) (int, error)
}

// UserStore keeps student profiles and reminder settings
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
	SetNotificationsEnabled(ctx context.Context, id int64, enabled bool) error
	SetNotificationHour(ctx context.Context, id int64, hour int) error
	SetDailyGoal(ctx context.Context, id int64, goal int) error
}

// FeedbackWriter produces the encouragement line after a review
type FeedbackWriter interface {
	WriteWithFallback(ctx context.Context, r ai.Review) string
}

// telegramAPI is the part of tgbotapi.BotAPI the handlers use
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	api      telegramAPI
	botAPI   *tgbotapi.BotAPI
	cfg      Config
	reviews  Reviewer
	users    UserStore
	feedback FeedbackWriter
	reminder Reminder
	http     *http.Client
	log      *logger.Logger

	mu             sync.Mutex
	pendingImports map[int64]time.Time
}

// New connects to Telegram and creates a bot instance
func New(cfg Config, reviews Reviewer, users UserStore, feedback FeedbackWriter, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create bot")
	}
	b := newBot(botAPI, cfg, reviews, users, feedback, log)
	b.botAPI = botAPI
	b.log.Info("authorized on account", "username", botAPI.Self.UserName)
	return b, nil
}

func newBot(api telegramAPI, cfg Config, reviews Reviewer, users UserStore, feedback FeedbackWriter, log *logger.Logger) *Bot {
	if cfg.Teachers == nil {
		cfg.Teachers = make(map[int64]bool)
	}
	return &Bot{
		api:            api,
		cfg:            cfg,
		reviews:        reviews,
		users:          users,
		feedback:       feedback,
		http:           &http.Client{Timeout: time.Minute},
		log:            log.With("component", "bot"),
		pendingImports: make(map[int64]time.Time),
	}
}

// SetReminder enables /remind
func (b *Bot) SetReminder(r Reminder) {
	b.reminder = r
}

// Start receives updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	if b.botAPI == nil {
		return errors.New("bot is not connected")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.cfg.UpdateTimeout
	updates := b.botAPI.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.botAPI.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		err = b.HandleMessage(ctx, update.Message)
	}
	if err != nil {
		b.log.Error("failed to handle update", "update_id", update.UpdateID, "error", err)
	}
}

func (b *Bot) isTeacher(userID int64) bool {
	return b.cfg.Teachers[userID]
}

func (b *Bot) reply(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return errors.Wrap(err, "failed to send message")
}

func (b *Bot) replyWithMenu(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(MainMenuButtons())
	_, err := b.api.Send(msg)
	return errors.Wrap(err, "failed to send message")
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(userID int64, count int) error {
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf(
		"🔔 You have %s waiting for review. Recite them to your teacher and record the result with /review.",
		pluralAyat(count)))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📖 Show due ayat", CallbackData: callbackDue}}})
	if _, err := b.api.Send(msg); err != nil {
		return errors.Wrapf(err, "failed to send reminder to user %d", userID)
	}
	b.log.Debug("reminder sent", "user_id", userID, "count", count)
	return nil
}

// SendPlanCompleted implements the scheduler.Notifier interface
func (b *Bot) SendPlanCompleted(plan models.MemorizationPlan) error {
	text := fmt.Sprintf("🎉 Masha'Allah! Every ayah of your plan %q (%s %d-%d) is mastered.",
		plan.Title, models.SurahName(plan.SurahID), plan.StartAyah, plan.EndAyah)
	if err := b.replyWithMenu(plan.UserID, text); err != nil {
		return errors.Wrapf(err, "failed to notify plan %d completion", plan.ID)
	}
	return nil
}

// setPendingImport marks that the next document from a teacher is a plan sheet
func (b *Bot) setPendingImport(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingImports[userID] = time.Now()
}

// takePendingImport clears and reports a pending import younger than ten minutes
func (b *Bot) takePendingImport(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	at, ok := b.pendingImports[userID]
	delete(b.pendingImports, userID)
	return ok && time.Since(at) < 10*time.Minute
}

// download fetches a file sent to the bot
func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get file URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create download request")
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download file")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("failed to download file: %s", resp.Status)
	}
	return resp.Body, nil
}
