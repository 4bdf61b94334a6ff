package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/index"
	"github.com/Zuo-Peng/chat-history/internal/model"
)

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the full-text index from the configured exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := index.OpenDB(cfg.IndexDBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			fmt.Fprintf(os.Stderr, "Loading exports...\n")
			for _, p := range model.Providers() {
				path := cfg.ExportPath(p)
				if path == "" {
					path = "(not configured)"
				}
				fmt.Fprintf(os.Stderr, "  %-8s %s\n", p+":", path)
			}

			res, err := loadConversations(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			stats, err := index.IndexAll(db, res.Conversations, slog.Default())
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}
}
