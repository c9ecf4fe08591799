package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/alfawz/hifz/internal/ai"
	"github.com/alfawz/hifz/internal/database"
	"github.com/alfawz/hifz/internal/excel"
	"github.com/alfawz/hifz/internal/review"
	"github.com/alfawz/hifz/pkg/models"
)

const (
	msgTeacherOnly = "This command is only available to teachers."
	msgNotStarted  = "Please send /start first."
	msgFailed      = "❌ Something went wrong. Please try again later."
)

// HandleMessage routes a message to the command or document handler
func (b *Bot) HandleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return nil
	}
	if message.Document != nil {
		if strings.HasPrefix(message.Caption, "/import") || b.takePendingImport(message.From.ID) {
			return b.handleDocument(ctx, message)
		}
		return b.reply(message.Chat.ID, "To import plans, send the file with the caption /import.")
	}
	if message.IsCommand() {
		return b.HandleCommand(ctx, message)
	}
	return b.replyWithMenu(message.Chat.ID, "Use /help to see what I can do.")
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(ctx, message)
	case "help":
		err = b.handleHelp(message)
	case "due":
		err = b.handleDue(ctx, message)
	case "review":
		err = b.handleReview(ctx, message)
	case "mastered":
		err = b.handleMastered(ctx, message)
	case "stats":
		err = b.handleStats(ctx, message)
	case "leaderboard":
		err = b.handleLeaderboard(ctx, message)
	case "plans":
		err = b.handlePlans(ctx, message)
	case "history":
		err = b.handleHistory(ctx, message)
	case "notify":
		err = b.handleNotify(ctx, message)
	case "time":
		err = b.handleTime(ctx, message)
	case "goal":
		err = b.handleGoal(ctx, message)
	case "plan":
		err = b.handlePlan(ctx, message)
	case "reset":
		err = b.handleReset(ctx, message)
	case "deleteplan":
		err = b.handleDeletePlan(ctx, message)
	case "remind":
		err = b.handleRemind(ctx, message)
	case "import":
		err = b.handleImport(message)
	default:
		err = b.replyWithMenu(message.Chat.ID, "Unknown command. Use /help to see the list of commands.")
	}
	return err
}

// HandleCallback handles menu button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Warn("failed to answer callback", "error", err)
	}
	if callback.Message == nil || callback.From == nil {
		return nil
	}
	message := &tgbotapi.Message{From: callback.From, Chat: callback.Message.Chat}

	switch callback.Data {
	case callbackDue:
		return b.handleDue(ctx, message)
	case callbackStats:
		return b.handleStats(ctx, message)
	case callbackMastered:
		return b.handleMastered(ctx, message)
	case callbackLeaderboard:
		return b.handleLeaderboard(ctx, message)
	default:
		b.log.Warn("unknown callback", "data", callback.Data)
		return nil
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	user := &models.User{
		ID:        message.From.ID,
		Username:  message.From.UserName,
		FirstName: message.From.FirstName,
		LastName:  message.From.LastName,
		IsTeacher: b.isTeacher(message.From.ID),
	}
	if err := b.users.Upsert(ctx, user); err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return errors.Wrap(err, "failed to register user")
	}

	text := fmt.Sprintf("As-salamu alaykum, %s!\n\n"+
		"I keep track of the ayat you memorize and tell you when to revise each one.\n\n"+
		"1. Your teacher adds a memorization plan\n"+
		"2. You recite, and the result is recorded with /review\n"+
		"3. I schedule the next revision and remind you when it is due\n\n"+
		"Your Telegram ID is %d. Share it with your teacher.",
		user.DisplayName(), user.ID)
	return b.replyWithMenu(message.Chat.ID, text)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) error {
	text := "📖 Commands\n\n" +
		"/due - ayat to review, most urgent first\n" +
		"/review <surah>:<ayah> <score> - record a recitation, score 0-1 or 0-100%\n" +
		"/mastered - ayat you have mastered\n" +
		"/stats - your progress\n" +
		"/leaderboard - top students\n" +
		"/plans - your memorization plans\n" +
		"/history <surah>:<ayah> - past reviews of an ayah\n" +
		"/notify on|off - daily reminders\n" +
		"/time <hour> - reminder hour (0-23, UTC)\n" +
		"/goal <count> - ayat per reminder\n" +
		"/remind - get your reminder now"
	if b.isTeacher(message.From.ID) {
		text += "\n\n👳 Teacher\n" +
			"/review <user> <surah>:<ayah> <score> - grade a student\n" +
			"/plan <user> [title] <surah> <from>-<to> - add a plan\n" +
			"/reset <user> <surah>:<ayah> - restart an ayah\n" +
			"/deleteplan <plan> - remove a plan with its ayat\n" +
			"/remind <user> - send a student their reminder now\n" +
			"/import - upload plans as .xlsx or .csv"
	}
	return b.replyWithMenu(message.Chat.ID, text)
}

func (b *Bot) handleDue(ctx context.Context, message *tgbotapi.Message) error {
	items, err := b.reviews.ByPriority(ctx, message.From.ID, b.cfg.DueListLimit)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	sm := b.reviews.Scheduler()
	return b.replyWithMenu(message.Chat.ID, formatDue(items, sm, sm.Now()))
}

func (b *Bot) handleReview(ctx context.Context, message *tgbotapi.Message) error {
	const usage = "Usage: /review <surah>:<ayah> <score>, e.g. /review 67:1 0.8"
	args := strings.Fields(message.CommandArguments())

	userID := message.From.ID
	switch {
	case len(args) == 3 && b.isTeacher(message.From.ID):
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return b.reply(message.Chat.ID, usage)
		}
		userID = id
		args = args[1:]
	case len(args) != 2:
		return b.reply(message.Chat.ID, usage)
	}

	unit, err := parseUnit(args[0])
	if err != nil {
		return b.reply(message.Chat.ID, err.Error())
	}
	score, err := parseScore(args[1])
	if err != nil {
		return b.reply(message.Chat.ID, err.Error())
	}

	out, err := b.reviews.ApplyReview(ctx, userID, unit, score)
	if errors.Is(err, database.ErrNotFound) {
		return b.reply(message.Chat.ID, fmt.Sprintf("%s is not in any memorization plan.", unitLabel(unit)))
	}
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}

	var feedback string
	if b.feedback != nil {
		feedback = b.feedback.WriteWithFallback(ctx, ai.Review{
			Unit:       unit,
			Confidence: out.Item.ConfidenceScore,
			Quality:    int(out.Quality),
			Passed:     out.Passed,
			Interval:   out.Item.Interval,
			Mastered:   out.Mastered,
		})
	}
	return b.reply(message.Chat.ID, formatOutcome(out, feedback))
}

func (b *Bot) handleMastered(ctx context.Context, message *tgbotapi.Message) error {
	items, err := b.reviews.Mastered(ctx, message.From.ID)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	return b.replyWithMenu(message.Chat.ID, formatMastered(items))
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) error {
	stats, err := b.reviews.Stats(ctx, message.From.ID)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	overdue, err := b.reviews.Overdue(ctx, message.From.ID)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	return b.replyWithMenu(message.Chat.ID, formatStats(stats, len(overdue)))
}

func (b *Bot) handleLeaderboard(ctx context.Context, message *tgbotapi.Message) error {
	entries, err := b.reviews.Leaderboard(ctx, b.cfg.LeaderboardDays, b.cfg.LeaderboardLimit)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	return b.replyWithMenu(message.Chat.ID, formatLeaderboard(entries, b.cfg.LeaderboardDays))
}

func (b *Bot) handlePlans(ctx context.Context, message *tgbotapi.Message) error {
	plans, err := b.reviews.Plans(ctx, message.From.ID)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	return b.replyWithMenu(message.Chat.ID, formatPlans(plans))
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) error {
	unit, err := parseUnit(message.CommandArguments())
	if err != nil {
		return b.reply(message.Chat.ID, "Usage: /history <surah>:<ayah>")
	}
	item, logs, err := b.reviews.History(ctx, message.From.ID, unit)
	if errors.Is(err, database.ErrNotFound) {
		return b.reply(message.Chat.ID, fmt.Sprintf("%s is not in any memorization plan.", unitLabel(unit)))
	}
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	return b.reply(message.Chat.ID, formatHistory(item, logs))
}

// settingResult turns a settings update error into a reply
func (b *Bot) settingResult(chatID int64, err error, ok string) error {
	if errors.Is(err, database.ErrNotFound) {
		return b.reply(chatID, msgNotStarted)
	}
	if err != nil {
		_ = b.reply(chatID, msgFailed)
		return err
	}
	return b.reply(chatID, ok)
}

func (b *Bot) handleNotify(ctx context.Context, message *tgbotapi.Message) error {
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(message.CommandArguments())) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return b.reply(message.Chat.ID, "Usage: /notify on|off")
	}
	err := b.users.SetNotificationsEnabled(ctx, message.From.ID, enabled)
	if enabled {
		return b.settingResult(message.Chat.ID, err, "✅ Reminders enabled")
	}
	return b.settingResult(message.Chat.ID, err, "✅ Reminders disabled")
}

func (b *Bot) handleTime(ctx context.Context, message *tgbotapi.Message) error {
	hour, err := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
	if err != nil || hour < 0 || hour > 23 {
		return b.reply(message.Chat.ID, "Usage: /time <hour>, an hour between 0 and 23 (UTC)")
	}
	err = b.users.SetNotificationHour(ctx, message.From.ID, hour)
	return b.settingResult(message.Chat.ID, err, fmt.Sprintf("✅ Reminders will arrive at %02d:00 UTC", hour))
}

func (b *Bot) handleGoal(ctx context.Context, message *tgbotapi.Message) error {
	goal, err := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
	if err != nil || goal <= 0 {
		return b.reply(message.Chat.ID, "Usage: /goal <count>, a positive number of ayat")
	}
	err = b.users.SetDailyGoal(ctx, message.From.ID, goal)
	return b.settingResult(message.Chat.ID, err, fmt.Sprintf("✅ Reminders will ask for up to %s", pluralAyat(goal)))
}

func (b *Bot) handlePlan(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isTeacher(message.From.ID) {
		return b.reply(message.Chat.ID, msgTeacherOnly)
	}
	plan, err := parsePlanArgs(strings.Fields(message.CommandArguments()))
	if err != nil {
		return b.reply(message.Chat.ID, "Usage: /plan <user> [title] <surah> <from>-<to>, e.g. /plan 12345 Week one 67 1-10")
	}

	n, err := b.reviews.EnrollPlan(ctx, plan)
	if errors.Is(err, review.ErrInvalidRange) {
		return b.reply(message.Chat.ID, fmt.Sprintf("Surah %d has no ayat %d-%d.", plan.SurahID, plan.StartAyah, plan.EndAyah))
	}
	if errors.Is(err, database.ErrAlreadyEnrolled) {
		return b.reply(message.Chat.ID, fmt.Sprintf("%s %d-%d is already in the plans of %d.",
			models.SurahName(plan.SurahID), plan.StartAyah, plan.EndAyah, plan.UserID))
	}
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}

	text := fmt.Sprintf("📚 Plan #%d %q created for %d: %s enrolled.", plan.ID, plan.Title, plan.UserID, pluralAyat(n))
	if err := b.reply(plan.UserID, fmt.Sprintf("📚 Your teacher added the plan %q: %s %d-%d. Send /due to start.",
		plan.Title, models.SurahName(plan.SurahID), plan.StartAyah, plan.EndAyah)); err != nil {
		b.log.Warn("failed to notify student about plan", "user_id", plan.UserID, "error", err)
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleReset(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isTeacher(message.From.ID) {
		return b.reply(message.Chat.ID, msgTeacherOnly)
	}
	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		return b.reply(message.Chat.ID, "Usage: /reset <user> <surah>:<ayah>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return b.reply(message.Chat.ID, "Usage: /reset <user> <surah>:<ayah>")
	}
	unit, err := parseUnit(args[1])
	if err != nil {
		return b.reply(message.Chat.ID, err.Error())
	}

	_, err = b.reviews.Reset(ctx, userID, unit)
	if errors.Is(err, database.ErrNotFound) {
		return b.reply(message.Chat.ID, fmt.Sprintf("%s is not in the plans of %d.", unitLabel(unit), userID))
	}
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("🔄 %s restarted for %d. It is due now.", unitLabel(unit), userID))
}

func (b *Bot) handleDeletePlan(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isTeacher(message.From.ID) {
		return b.reply(message.Chat.ID, msgTeacherOnly)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(message.CommandArguments()), 10, 64)
	if err != nil {
		return b.reply(message.Chat.ID, "Usage: /deleteplan <plan>")
	}
	plan, err := b.reviews.DeletePlan(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return b.reply(message.Chat.ID, fmt.Sprintf("Plan #%d does not exist.", id))
	}
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("🗑 Plan #%d %q of %d deleted.", plan.ID, plan.Title, plan.UserID))
}

func (b *Bot) handleRemind(ctx context.Context, message *tgbotapi.Message) error {
	if b.reminder == nil {
		return b.reply(message.Chat.ID, "Reminders are not running.")
	}
	userID := message.From.ID
	if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
		if !b.isTeacher(message.From.ID) {
			return b.reply(message.Chat.ID, msgTeacherOnly)
		}
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return b.reply(message.Chat.ID, "Usage: /remind <user>")
		}
		userID = id
	}

	count, err := b.reminder.RunManualCheck(ctx, userID)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	switch {
	case count == 0 && userID == message.From.ID:
		return b.replyWithMenu(message.Chat.ID, "✅ Nothing is due right now. Well done!")
	case count == 0:
		return b.reply(message.Chat.ID, fmt.Sprintf("Nothing is due for %d.", userID))
	case userID != message.From.ID:
		return b.reply(message.Chat.ID, fmt.Sprintf("🔔 Reminded %d about %s.", userID, pluralAyat(count)))
	}
	return nil
}

func (b *Bot) handleImport(message *tgbotapi.Message) error {
	if !b.isTeacher(message.From.ID) {
		return b.reply(message.Chat.ID, msgTeacherOnly)
	}
	b.setPendingImport(message.From.ID)
	return b.reply(message.Chat.ID, "Send the plan sheet as .xlsx or .csv with the columns:\n"+
		"student ID, title, surah, from ayah, to ayah\n\nThe first row is treated as a header.")
}

func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isTeacher(message.From.ID) {
		return b.reply(message.Chat.ID, msgTeacherOnly)
	}
	doc := message.Document
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext != ".xlsx" && ext != ".xlsm" && ext != ".csv" {
		return b.reply(message.Chat.ID, "Only .xlsx and .csv files can be imported.")
	}
	if b.cfg.MaxImportSize > 0 && doc.FileSize > b.cfg.MaxImportSize {
		return b.reply(message.Chat.ID, "The file is too large.")
	}

	body, err := b.download(ctx, doc.FileID)
	if err != nil {
		_ = b.reply(message.Chat.ID, msgFailed)
		return err
	}
	defer body.Close()

	res, err := excel.Import(ctx, body, ext, b.cfg.Import, b.reviews)
	if err != nil {
		_ = b.reply(message.Chat.ID, fmt.Sprintf("❌ Could not read the file: %v", err))
		return err
	}
	b.log.Info("plans imported",
		"teacher_id", message.From.ID,
		"file", doc.FileName,
		"plans", res.PlansCreated,
		"errors", len(res.Errors),
	)
	return b.reply(message.Chat.ID, formatImport(res))
}
