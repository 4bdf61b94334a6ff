package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/embed"
	"github.com/Zuo-Peng/chat-history/internal/favorites"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/server"
	"github.com/Zuo-Peng/chat-history/internal/service"
)

func serveCmd() *cobra.Command {
	var host string
	var port int
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := slog.Default()

			favs, err := favorites.Open(cfg.SettingsDBPath)
			if err != nil {
				return err
			}
			defer favs.Close()

			opts := service.Options{
				Logger:    logger,
				Favorites: favs,
				Tokenizer: model.NewTiktokenCounter(),
			}
			if cfg.OpenAIEnabled {
				fn := embed.NewOpenAIFunc(cfg.OpenAIAPIKey, cfg.OpenAIOrganization, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
				opts.Embedder = embed.New(fn, embed.Options{Logger: logger, CachePath: cfg.EmbeddingsDBPath})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := service.New(cfg, opts)
			if err := svc.Load(ctx); err != nil {
				return err
			}
			for p, ferr := range svc.Failed() {
				fmt.Fprintf(os.Stderr, "  WARN: %s export: %v\n", p, ferr)
			}
			if len(svc.Conversations()) == 0 {
				fmt.Fprintln(os.Stderr, "No conversations loaded. Run 'chat-history init' to import an export.")
			}

			srv := server.New(svc, server.Options{Logger: logger})
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			return srv.Run(ctx, addr, func(bound string) {
				url := "http://" + browserAddr(bound)
				fmt.Fprintf(os.Stderr, "Serving on %s\n", url)
				if noBrowser {
					return
				}
				if err := browser.OpenURL(url); err != nil {
					logger.Warn("open browser", "url", url, "err", err)
				}
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Address to listen on")
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open a browser")

	return cmd
}

// browserAddr swaps wildcard listen hosts for loopback.
func browserAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

