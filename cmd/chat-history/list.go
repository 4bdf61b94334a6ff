package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/search"
	"github.com/Zuo-Peng/chat-history/internal/tui"
)

func listCmd() *cobra.Command {
	var provider, since string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse all conversations sorted by update time",
		Long:  `Opens a TUI panel showing all indexed conversations sorted by update time (newest first). Type to search their content; Tab cycles the provider filter.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProviderFlag(provider)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := openIndex(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			opts := search.Options{
				Provider: string(p),
				Since:    since,
				Limit:    limit,
			}

			return tui.RunList(db, opts)
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider (chatgpt/claude/gemini)")
	cmd.Flags().StringVar(&since, "since", "", "Filter conversations updated since date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results (0 = no limit)")

	return cmd
}
