package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/alfawz/hifz/internal/ai"
	"github.com/alfawz/hifz/internal/bot"
	"github.com/alfawz/hifz/internal/config"
	"github.com/alfawz/hifz/internal/database"
	"github.com/alfawz/hifz/internal/excel"
	"github.com/alfawz/hifz/internal/logger"
	"github.com/alfawz/hifz/internal/review"
	"github.com/alfawz/hifz/internal/scheduler"
	"github.com/alfawz/hifz/internal/spaced_repetition"
)

var (
	envFile string

	importSheet    string
	importStartRow int

	rootCmd = &cobra.Command{
		Use:           "hifz",
		Short:         "Qur'an memorization tracker with spaced repetition reviews",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the reminder jobs",
		RunE:  runServe,
	}

	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Create memorization plans from an .xlsx or .csv file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE:  runMigrate,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to the .env file")
	importCmd.Flags().StringVar(&importSheet, "sheet", "Sheet1", "sheet to read from an Excel file")
	importCmd.Flags().IntVar(&importStartRow, "start-row", 2, "first data row (1-based)")
	rootCmd.AddCommand(serveCmd, importCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the dependencies shared by the commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *sqlx.DB
	users   *database.UserRepository
	items   *database.ReviewItemRepository
	reviews *review.Service
}

func setup() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}

	db, err := database.Connect(cfg.Database())
	if err != nil {
		log.Sync()
		return nil, err
	}
	log.Info("connected to database", "driver", cfg.DBType)

	items := database.NewReviewItemRepository(db)
	sm := spaced_repetition.NewSM2(spaced_repetition.WithConfig(cfg.SM2()))
	return &app{
		cfg:   cfg,
		log:   log,
		db:    db,
		users: database.NewUserRepository(db),
		items: items,
		reviews: review.NewService(
			items,
			database.NewPlanRepository(db),
			database.NewStatisticsRepository(db),
			database.NewReviewLogRepository(db),
			sm,
			log,
		),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("failed to close database", "error", err)
	}
	a.log.Sync()
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	feedback, err := ai.New(ai.Config{
		APIKey:  a.cfg.OpenAIKey,
		BaseURL: a.cfg.OpenAIBaseURL,
		Model:   a.cfg.OpenAIModel,
	})
	switch {
	case errors.Is(err, ai.ErrDisabled):
		a.log.Info("AI feedback disabled, using canned messages")
	case err != nil:
		return err
	}

	botCfg := bot.DefaultConfig()
	botCfg.Token = a.cfg.TelegramToken
	botCfg.Teachers = a.cfg.TeacherIDs
	b, err := bot.New(botCfg, a.reviews, a.users, feedback, a.log)
	if err != nil {
		return err
	}

	sched := scheduler.New(b, a.users, a.items, a.reviews, scheduler.Options{
		StartHour: a.cfg.NotificationStartHour,
		EndHour:   a.cfg.NotificationEndHour,
	}, a.log)
	b.SetReminder(sched)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("bot started, press Ctrl+C to stop")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("bot stopped")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := excel.DefaultImportConfig()
	cfg.FilePath = args[0]
	cfg.SheetName = importSheet
	cfg.StartRow = importStartRow

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	res, err := excel.ImportFile(ctx, cfg, a.reviews)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rows processed: %d\n", res.TotalProcessed)
	fmt.Fprintf(out, "Plans created:  %d\n", res.PlansCreated)
	fmt.Fprintf(out, "Ayat enrolled:  %d\n", res.ItemsEnrolled)
	fmt.Fprintf(out, "Skipped rows:   %d\n", res.Skipped)
	for _, e := range res.Errors {
		fmt.Fprintln(out, e)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	a.log.Info("database schema is up to date")
	return nil
}
