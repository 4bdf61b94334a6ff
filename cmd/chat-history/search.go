package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/search"
	"github.com/Zuo-Peng/chat-history/internal/tui"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorOrange  = "\033[38;5;208m"
	sColorDim     = "\033[2m"
)

func colorizeProvider(provider string) string {
	switch model.Provider(provider) {
	case model.ChatGPT:
		return sColorGreen + provider + sColorReset
	case model.Claude:
		return sColorOrange + provider + sColorReset
	case model.Gemini:
		return sColorBlue + provider + sColorReset
	default:
		return provider
	}
}

func colorizeSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	snippet = strings.ReplaceAll(snippet, "<<<", sColorReset)
	return snippet
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func searchCmd() *cobra.Command {
	var provider, role, since string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across indexed conversations",
		Long: `Search indexed conversations using FTS5. Output is TSV for fzf integration:
  convKey, seq, updatedAt, provider, title, snippet

Recommended shell function (add to .zshrc):
  chf() {
    chat-history search "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'chat-history preview {1} --hit {2} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --preview-debounce=150 \
      --bind 'enter:execute(chat-history open {1} --hit {2})'
  }`,
		Args: cobra.ExactArgs(1),
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
				Role:     role,
				Since:    since,
				Limit:    limit,
			}

			// Interactive TUI when stdout is a terminal; TSV output for pipes
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return tui.Run(db, args[0], opts)
			}

			opts.Query = args[0]
			results, err := search.Search(db, opts)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}

			for _, r := range results {
				// first two fields (convKey, seq) stay plain for fzf {1} {2}
				fmt.Printf("%s\t%d\t%s%s%s\t%s\t%s\t%s\n",
					r.ConvKey,
					r.Seq,
					sColorDim, r.UpdatedAt, sColorReset,
					colorizeProvider(r.Provider),
					oneLine(r.Title),
					colorizeSnippet(oneLine(r.Snippet)),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider (chatgpt/claude/gemini)")
	cmd.Flags().StringVar(&role, "role", "", "Filter by role (user/assistant)")
	cmd.Flags().StringVar(&since, "since", "", "Filter conversations updated since date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")

	return cmd
}
