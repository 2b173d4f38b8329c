package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/completion"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/config"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/db"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/journal"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// configFlags are shared by every command that talks to the database.
type configFlags struct {
	configPath string
	envFile    string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to an optional whisperlog YAML config file")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded into the environment when present")
}

// load reads the dotenv file, if any, and then the config. Variables already
// set in the process environment win over the dotenv file.
func (f *configFlags) load() (*config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f.envFile, err)
		}
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	return logging.NewWithWriter(out, cfg.Log.Level, cfg.Log.Format)
}

func connectFromConfig(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	return gormDB, nil
}

func newJournalStore(cfg *config.Config, gormDB *gorm.DB, log zerolog.Logger) (*journal.Store, error) {
	return journal.NewStore(journal.StoreOpts{
		DB:           gormDB,
		Log:          logging.Component(log, "journal"),
		CacheSize:    cfg.Journal.CacheSize,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
}

// newGenerator returns the best-effort journal generator. Without an API key
// every generation reports "no journal".
func newGenerator(cfg *config.Config, log zerolog.Logger) *completion.BestEffort {
	log = logging.Component(log, "completion")
	var provider completion.Provider = completion.Disabled{}
	switch openai, err := completion.NewOpenAI(cfg.Completion); {
	case !cfg.CompletionEnabled():
		log.Warn().Msg("OPENAI_API_KEY not set, journal generation disabled")
	case err != nil:
		log.Warn().Err(err).Msg("completion provider unavailable, journal generation disabled")
	default:
		provider = openai
	}
	return completion.NewBestEffort(provider, cfg.Completion.Timeout, log)
}
