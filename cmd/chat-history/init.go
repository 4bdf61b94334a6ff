package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/scan"
)

func initCmd() *cobra.Command {
	var root, providerFlag string

	cmd := &cobra.Command{
		Use:   "init [source]",
		Short: "Import an export (zip, folder or conversations.json) and remember its path",
		Long: `Validates an export and records its conversations.json in data/.env under
the project root. Zip archives are extracted into the data directory.

Without a source argument, recent exports in the current directory and
~/Downloads are offered for selection.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProviderFlag(providerFlag)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			root, err = filepath.Abs(root)
			if err != nil {
				return err
			}
			dataDir := cfg.DataDir
			if !filepath.IsAbs(dataDir) {
				dataDir = filepath.Join(root, dataDir)
			}

			in := bufio.NewReader(cmd.InOrStdin())
			interactive := term.IsTerminal(int(os.Stdin.Fd()))

			var source string
			if len(args) == 1 {
				source = args[0]
			}
			if provider == "" && source != "" && !strings.EqualFold(filepath.Ext(source), ".zip") {
				provider, err = detectProvider(source)
				if err != nil && !interactive {
					return err
				}
			}
			if provider == "" {
				if !interactive {
					return errors.New("--provider is required when stdin is not a terminal")
				}
				if provider, err = pickProvider(in); err != nil {
					return err
				}
			}
			if source == "" {
				if !interactive {
					return errors.New("a source path is required when stdin is not a terminal")
				}
				if source, err = pickSource(in, root, provider); err != nil {
					return err
				}
			}

			fmt.Fprintf(os.Stderr, "Importing %s export from %s\n", provider, source)
			path, summary, err := scan.Prepare(source, provider, dataDir)
			if err != nil {
				return err
			}
			if summary.Provider != provider {
				return fmt.Errorf("%s looks like a %s export, not %s", path, summary.Provider, provider)
			}

			envPath := config.EnvPath(root)
			if err := config.UpdateEnvFile(envPath, map[string]string{config.EnvKey(provider): path}); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "  Conversations: %s\n", humanize.Comma(int64(summary.Conversations)))
			fmt.Fprintf(os.Stderr, "  Dates:         %s\n", summary.DateRange())
			fmt.Fprintf(os.Stderr, "  Saved %s in %s\n", config.EnvKey(provider), envPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "path", ".", "Project root holding data/.env")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "Export provider (chatgpt/claude/gemini)")

	return cmd
}

func detectProvider(source string) (model.Provider, error) {
	path, err := scan.FindConversationsJSON(source)
	if err != nil {
		return "", err
	}
	summary, err := scan.Summarize(path)
	if err != nil {
		return "", err
	}
	return summary.Provider, nil
}

func prompt(in *bufio.Reader, question string) (string, error) {
	fmt.Fprint(os.Stderr, question)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func pickProvider(in *bufio.Reader) (model.Provider, error) {
	providers := model.Providers()
	for i, p := range providers {
		fmt.Fprintf(os.Stderr, "  %d) %s\n", i+1, p)
	}
	answer, err := prompt(in, "Provider: ")
	if err != nil {
		return "", err
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(providers) {
		return providers[n-1], nil
	}
	if p, ok := model.ParseProvider(answer); ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", answer)
}

func pickSource(in *bufio.Reader, root string, p model.Provider) (string, error) {
	local, err := scan.Candidates(root, p)
	if err != nil {
		return "", err
	}
	downloads, err := scan.DownloadCandidates(p)
	if err != nil {
		return "", err
	}
	candidates := append(local, downloads...)

	if len(candidates) == 0 {
		fmt.Fprintf(os.Stderr, "No %s exports found in %s or ~/Downloads.\n", p, root)
	}
	for i, c := range candidates {
		size := ""
		if !c.IsDir {
			size = ", " + humanize.Bytes(uint64(c.Size))
		}
		fmt.Fprintf(os.Stderr, "  %d) %s (%s%s, %s)\n", i+1, c.Path, c.Kind(), size, humanize.Time(time.Unix(c.Mtime, 0)))
	}
	answer, err := prompt(in, "Number or path: ")
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", errors.New("no source selected")
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(candidates) {
			return "", fmt.Errorf("choice %d out of range", n)
		}
		return candidates[n-1].Path, nil
	}
	return answer, nil
}
