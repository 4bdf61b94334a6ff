package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/index"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/parse"
)

var version = "dev"

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "chat-history",
		Short:         "Browse and search ChatGPT, Claude and Gemini conversation exports",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func exportPaths(cfg *config.Config) parse.Paths {
	return parse.Paths{
		ChatGPT: cfg.ChatGPTPath,
		Claude:  cfg.ClaudePath,
		Gemini:  cfg.GeminiPath,
	}
}

// loadConversations parses every configured export, newest first.
func loadConversations(ctx context.Context, cfg *config.Config) (parse.LoadResult, error) {
	res, err := parse.Load(ctx, exportPaths(cfg), parse.Options{Logger: slog.Default()})
	if err != nil {
		return res, fmt.Errorf("load exports: %w", err)
	}
	for p, ferr := range res.Failed {
		fmt.Fprintf(os.Stderr, "  WARN: %s export: %v\n", p, ferr)
	}
	return res, nil
}

// openIndex opens the full-text index and brings it up to date with the
// exports.
func openIndex(ctx context.Context, cfg *config.Config) (*index.DB, error) {
	db, err := index.OpenDB(cfg.IndexDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	res, err := loadConversations(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := index.IndexAll(db, res.Conversations, slog.Default()); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: %w", err)
	}
	return db, nil
}

func parseProviderFlag(raw string) (model.Provider, error) {
	if raw == "" {
		return "", nil
	}
	p, ok := model.ParseProvider(raw)
	if !ok {
		return "", fmt.Errorf("unknown provider %q (want chatgpt, claude or gemini)", raw)
	}
	return p, nil
}
