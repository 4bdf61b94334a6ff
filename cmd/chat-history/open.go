package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/index"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/open"
)

func parseConvKey(s string) (model.Key, error) {
	raw, id, ok := strings.Cut(s, ":")
	p, valid := model.ParseProvider(raw)
	if !ok || !valid || id == "" {
		return model.Key{}, fmt.Errorf("invalid conversation key %q (want provider:id)", s)
	}
	return model.Key{Provider: p, ID: id}, nil
}

func openCmd() *cobra.Command {
	var hitSeq int

	cmd := &cobra.Command{
		Use:   "open <convKey>",
		Short: "Export a conversation to markdown and open it in $EDITOR at the hit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseConvKey(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			messageID := ""
			if hitSeq >= 0 {
				db, err := index.OpenDB(cfg.IndexDBPath)
				if err != nil {
					return err
				}
				rows, err := db.GetMessages(key.String())
				db.Close()
				if err != nil {
					return err
				}
				for _, r := range rows {
					if r.Seq == hitSeq {
						messageID = r.MessageID
						break
					}
				}
			}

			res, err := loadConversations(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for _, c := range res.Conversations {
				if c.Key() == key {
					return open.OpenConversation(c, cfg.ExportDir(), messageID, model.ShowAll)
				}
			}
			return fmt.Errorf("conversation not found: %s", key)
		},
	}

	cmd.Flags().IntVar(&hitSeq, "hit", -1, "Row to jump to")

	return cmd
}
