package main

import (
	"context"
	"fmt"
	"time"

	"github.com/JustTolerateMe/Whisperbackendtest/internal/db"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBPingCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the conversation and journal tables",
		Long: `Runs schema migration for user_conversations and journal_entries,
including the unique index that keeps one journal per conversation.
Intended for local and self-hosted databases; hosted schemas usually
already exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func runDBMigrate(cmd *cobra.Command, flags configFlags) error {
	out := cmd.OutOrStdout()

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBPingCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured database answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBPing(cmd, flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func runDBPing(cmd *cobra.Command, flags configFlags) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if err := db.Ping(ctx, gormDB); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s database reachable\n", cfg.Database.Driver)
	return nil
}
