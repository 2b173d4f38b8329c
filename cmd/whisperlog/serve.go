package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/backfill"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/db"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/logging"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/webhook"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var (
		flags configFlags
		port  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation webhook server",
		Long: `Starts the HTTP server that accepts POST /log-conversation deliveries.

Configuration comes from the optional --config file and the environment
(PORT, DATABASE_URL, OPENAI_API_KEY, ...). A .env file is loaded when present.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, port)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides PORT)")
	return cmd
}

// prepareSchema migrates when asked to. Otherwise it only makes sure the
// existing journal table carries the unique conversation index; failing that
// is logged and the journal store falls back to check-then-insert.
func prepareSchema(gormDB *gorm.DB, autoMigrate bool, log zerolog.Logger) error {
	if autoMigrate {
		if err := db.AutoMigrate(gormDB); err != nil {
			return err
		}
		log.Info().Int("tables", len(db.AllModels())).Msg("database migrated")
		return nil
	}
	if err := db.EnsureJournalIndex(gormDB); err != nil {
		log.Warn().Err(err).Msg("could not ensure unique journal index")
	}
	return nil
}

func runServe(cmd *cobra.Command, flags configFlags, port int) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Ping(ctx, gormDB); err != nil {
		// Requests still get a 200 with conversation_updated=false, so keep serving.
		log.Warn().Err(err).Msg("database not reachable at startup")
	}
	if err := prepareSchema(gormDB, cfg.Database.AutoMigrate, log); err != nil {
		return err
	}

	store, err := newJournalStore(cfg, gormDB, log)
	if err != nil {
		return err
	}
	gen := newGenerator(cfg, log)

	if cfg.Backfill.Enabled {
		sweeper, err := backfill.NewSweeper(backfill.SweeperOpts{
			Store:     store,
			Generator: gen,
			Log:       logging.Component(log, "backfill"),
			Schedule:  cfg.Backfill.Schedule,
			Lookback:  cfg.Backfill.Lookback,
			BatchSize: cfg.Backfill.BatchSize,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := sweeper.Run(ctx); err != nil {
				log.Error().Err(err).Msg("backfill stopped")
			}
		}()
		log.Info().Str("schedule", cfg.Backfill.Schedule).Msg("backfill enabled")
	}

	metricsPath := cfg.Metrics.Path
	if cfg.Metrics.Disabled {
		metricsPath = ""
	}

	err = webhook.Start(ctx, webhook.StartOpts{
		RouterOpts: webhook.RouterOpts{
			Store:       store,
			Generator:   gen,
			Log:         logging.Component(log, "webhook"),
			Version:     Version,
			MetricsPath: metricsPath,
		},
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Out:             cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Shut down cleanly.")
	return nil
}
