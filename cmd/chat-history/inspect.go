package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/parse"
)

type providerReport struct {
	Provider      model.Provider `json:"provider" yaml:"provider"`
	Path          string         `json:"path" yaml:"path"`
	Conversations int            `json:"conversations" yaml:"conversations"`
	Messages      int            `json:"messages" yaml:"messages"`
	First         string         `json:"first,omitempty" yaml:"first,omitempty"`
	Last          string         `json:"last,omitempty" yaml:"last,omitempty"`
	Roles         map[string]int `json:"roles,omitempty" yaml:"roles,omitempty"`
	Models        []string       `json:"models,omitempty" yaml:"models,omitempty"`
	Error         string         `json:"error,omitempty" yaml:"error,omitempty"`
}

func buildReports(paths parse.Paths, res parse.LoadResult, only model.Provider) []providerReport {
	var reports []providerReport
	for _, p := range model.Providers() {
		if only != "" && p != only {
			continue
		}
		path := paths.For(p)
		if path == "" {
			continue
		}
		r := providerReport{Provider: p, Path: path, Roles: map[string]int{}}
		if err := res.Failed[p]; err != nil {
			r.Error = err.Error()
		}
		models := map[string]bool{}
		var first, last model.Conversation
		for _, c := range res.Conversations {
			if c.Provider != p {
				continue
			}
			if r.Conversations == 0 || c.Created.Before(first.Created) {
				first = c
			}
			if r.Conversations == 0 || c.Created.After(last.Created) {
				last = c
			}
			r.Conversations++
			r.Messages += len(c.Messages)
			for _, m := range c.Messages {
				r.Roles[m.Role]++
				if m.Model != "" {
					models[m.Model] = true
				}
			}
		}
		if r.Conversations > 0 {
			r.First = first.Created.Local().Format("2006-01-02")
			r.Last = last.Created.Local().Format("2006-01-02")
		}
		for m := range models {
			r.Models = append(r.Models, m)
		}
		sort.Strings(r.Models)
		reports = append(reports, r)
	}
	return reports
}

func inspectCmd() *cobra.Command {
	var providerFlag, format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the configured exports",
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
			res, err := parse.Load(cmd.Context(), exportPaths(cfg), parse.Options{})
			if err != nil {
				return err
			}
			reports := buildReports(exportPaths(cfg), res, provider)

			switch format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			case "yaml":
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(reports)
			case "table":
				if len(reports) == 0 {
					fmt.Fprintln(os.Stderr, "No exports configured. Run 'chat-history init' first.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PROVIDER\tCONVERSATIONS\tMESSAGES\tFIRST\tLAST\tSTATUS")
				for _, r := range reports {
					status := "ok"
					if r.Error != "" {
						status = r.Error
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n", r.Provider, r.Conversations, r.Messages, r.First, r.Last, status)
				}
				return w.Flush()
			default:
				return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
			}
		},
	}

	cmd.Flags().StringVar(&providerFlag, "provider", "", "Only inspect one provider (chatgpt/claude/gemini)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json or yaml")

	return cmd
}
