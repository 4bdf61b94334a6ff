package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/index"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/scan"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify exports, index DB, FTS5, and show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			fmt.Println("=== Exports ===")
			for _, p := range model.Providers() {
				checkExport(p, cfg.ExportPath(p))
			}

			fmt.Println("\n=== Settings ===")
			fmt.Printf("  Data dir:   %s\n", cfg.DataDir)
			fmt.Printf("  Favorites:  %s\n", cfg.SettingsDBPath)
			if cfg.OpenAIEnabled {
				fmt.Printf("  Embeddings: %s\n", cfg.EmbeddingModel)
			} else {
				fmt.Println("  Embeddings: disabled")
			}

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.IndexDBPath)
			if _, err := os.Stat(cfg.IndexDBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'chat-history index' first)")
				return nil
			}

			db, err := index.OpenDB(cfg.IndexDBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			convCount, err := db.ConversationCount()
			if err != nil {
				return fmt.Errorf("count conversations: %w", err)
			}

			msgCount, err := db.MessageCount()
			if err != nil {
				return fmt.Errorf("count messages: %w", err)
			}

			fmt.Printf("  Conversations: %d\n", convCount)
			fmt.Printf("  Messages:      %d\n", msgCount)

			fmt.Println("\n=== FTS5 ===")
			ftsCount, err := db.FTSCount()
			if err != nil {
				fmt.Printf("  FTS5 error: %v\n", err)
			} else {
				fmt.Printf("  FTS5 entries: %d\n", ftsCount)
				if ftsCount == msgCount {
					fmt.Println("  Status: OK (synced)")
				} else {
					fmt.Printf("  Status: MISMATCH (messages=%d, fts=%d)\n", msgCount, ftsCount)
				}
			}

			if info, err := os.Stat(cfg.IndexDBPath); err == nil {
				fmt.Printf("\n=== DB Size: %s ===\n", humanize.Bytes(uint64(info.Size())))
			}

			return nil
		},
	}
}

func checkExport(p model.Provider, path string) {
	if path == "" {
		fmt.Printf("  %s: not configured (set %s or run 'chat-history init')\n", p, config.EnvKey(p))
		return
	}
	summary, err := scan.Summarize(path)
	if err != nil {
		fmt.Printf("  %s: %s (%v)\n", p, path, err)
		return
	}
	if summary.Provider != p {
		fmt.Printf("  %s: %s (looks like a %s export)\n", p, path, summary.Provider)
		return
	}
	fmt.Printf("  %s: %s (OK, %d conversations, %s)\n", p, path, summary.Conversations, summary.DateRange())
}
