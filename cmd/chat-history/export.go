package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/export"
	"github.com/Zuo-Peng/chat-history/internal/model"
)

func exportCmd() *cobra.Command {
	var providerFlag, out string
	var clean bool
	var excludeSystem, excludeTool, excludeThinking, excludeAttachments bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write conversations as markdown files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProviderFlag(providerFlag)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if out == "" {
				out = cfg.ExportDir()
			}

			res, err := loadConversations(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			if clean {
				n, err := export.Clean(out, provider)
				if err != nil {
					return fmt.Errorf("clean %s: %w", out, err)
				}
				fmt.Fprintf(os.Stderr, "Removed %d previous files\n", n)
			}

			vis := model.Visibility{
				IncludeSystem:      !excludeSystem,
				IncludeTool:        !excludeTool,
				IncludeThinking:    !excludeThinking,
				IncludeAttachments: !excludeAttachments,
			}
			written := 0
			for _, c := range res.Conversations {
				if provider != "" && c.Provider != provider {
					continue
				}
				if _, err := export.WriteConversation(c, out, vis); err != nil {
					return err
				}
				written++
			}
			fmt.Fprintf(os.Stderr, "Exported %d conversations to %s\n", written, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerFlag, "provider", "", "Only export one provider (chatgpt/claude/gemini)")
	cmd.Flags().StringVar(&out, "out", "", "Output directory (default <data>/export)")
	cmd.Flags().BoolVar(&clean, "clean", false, "Remove previous export files first")
	cmd.Flags().BoolVar(&excludeSystem, "exclude-system", false, "Leave out system messages")
	cmd.Flags().BoolVar(&excludeTool, "exclude-tool", false, "Leave out tool calls and results")
	cmd.Flags().BoolVar(&excludeThinking, "exclude-thinking", false, "Leave out reasoning blocks")
	cmd.Flags().BoolVar(&excludeAttachments, "exclude-attachments", false, "Leave out attachments")

	return cmd
}
