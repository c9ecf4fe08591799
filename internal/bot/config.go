package bot

import (
	"github.com/alfawz/hifz/internal/excel"
)

// Config represents the configuration for the bot
type Config struct {
	Token string
	// Telegram IDs allowed to create plans, reset ayat and import files
	Teachers map[int64]bool
	// Number of ayat listed by /due
	DueListLimit int
	// Window and size of /leaderboard
	LeaderboardDays  int
	LeaderboardLimit int
	// Largest accepted import upload, in bytes
	MaxImportSize int
	// Long polling timeout in seconds
	UpdateTimeout int
	Import        excel.ImportConfig
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() Config {
	return Config{
		Teachers:         make(map[int64]bool),
		DueListLimit:     10,
		LeaderboardDays:  7,
		LeaderboardLimit: 10,
		MaxImportSize:    10 << 20,
		UpdateTimeout:    60,
		Import:           excel.DefaultImportConfig(),
	}
}
