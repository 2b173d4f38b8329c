package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/backfill"
	"github.com/JustTolerateMe/Whisperbackendtest/internal/logging"
	"github.com/spf13/cobra"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and backfill journal entries",
	}

	cmd.AddCommand(newJournalShowCmd())
	cmd.AddCommand(newJournalBackfillCmd())
	return cmd
}

func newJournalShowCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print the journal entry stored for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalShow(cmd, flags, args[0])
		},
	}

	flags.register(cmd)
	return cmd
}

func runJournalShow(cmd *cobra.Command, flags configFlags, conversationID string) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	store, err := newJournalStore(cfg, gormDB, log)
	if err != nil {
		return err
	}

	entry, err := store.GetJournal(cmd.Context(), conversationID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Journal %s\n", entry.ID)
	fmt.Fprintf(out, "Conversation: %s\n", entry.ConversationID)
	fmt.Fprintf(out, "Created:      %s\n", entry.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintln(out)
	fmt.Fprintln(out, entry.Journal)
	return nil
}

func newJournalBackfillCmd() *cobra.Command {
	var (
		flags     configFlags
		lookback  time.Duration
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Generate journals for recent conversations that have none",
		Long: `Runs a single backfill sweep: conversations updated within the lookback
window that have a transcript but no journal entry get one generated and
stored. Existing journals are never overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalBackfill(cmd, flags, lookback, batchSize)
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "how far back to look (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch", 0, "maximum conversations to process (default from config)")
	return cmd
}

func runJournalBackfill(cmd *cobra.Command, flags configFlags, lookback time.Duration, batchSize int) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if lookback > 0 {
		cfg.Backfill.Lookback = lookback
	}
	if batchSize > 0 {
		cfg.Backfill.BatchSize = batchSize
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	store, err := newJournalStore(cfg, gormDB, log)
	if err != nil {
		return err
	}

	sweeper, err := backfill.NewSweeper(backfill.SweeperOpts{
		Store:     store,
		Generator: newGenerator(cfg, log),
		Log:       logging.Component(log, "backfill"),
		Lookback:  cfg.Backfill.Lookback,
		BatchSize: cfg.Backfill.BatchSize,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d conversations: %d inserted, %d already journaled, %d skipped, %d failed\n",
		res.Scanned, res.Inserted, res.Existing, res.Skipped, res.Failed)
	return nil
}
