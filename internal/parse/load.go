package parse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

// Paths holds the export file for each provider. Blank paths are skipped.
type Paths struct {
	ChatGPT string
	Claude  string
	Gemini  string
}

// For returns the configured path for p.
func (p Paths) For(provider model.Provider) string {
	switch provider {
	case model.ChatGPT:
		return p.ChatGPT
	case model.Claude:
		return p.Claude
	case model.Gemini:
		return p.Gemini
	}
	return ""
}

type LoadResult struct {
	// Conversations from every provider, newest first.
	Conversations []model.Conversation
	Counts        map[model.Provider]int
	// Failed holds the fatal error of each present export that could not be parsed.
	Failed map[model.Provider]error
}

type providerResult struct {
	provider model.Provider
	convs    []model.Conversation
	err      error
}

// Load parses every present export concurrently and merges the results.
// A missing file omits its provider; a malformed one is logged and recorded
// in Failed while the others still load. The error is non-nil only when ctx
// is cancelled before the parsers finish.
func Load(ctx context.Context, paths Paths, opts Options) (LoadResult, error) {
	logger := opts.logger()
	res := LoadResult{
		Counts: make(map[model.Provider]int),
		Failed: make(map[model.Provider]error),
	}

	var jobs []model.Provider
	for _, p := range model.Providers() {
		path := strings.TrimSpace(paths.For(p))
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Debug("export not found", "provider", p, "path", path)
				continue
			}
			res.Failed[p] = fmt.Errorf("stat %s: %w", path, err)
			continue
		}
		jobs = append(jobs, p)
	}

	results := make([]providerResult, len(jobs))
	var wg sync.WaitGroup
	for i, p := range jobs {
		wg.Add(1)
		go func(i int, p model.Provider) {
			defer wg.Done()
			parser, err := ParserFor(p)
			if err != nil {
				results[i] = providerResult{provider: p, err: err}
				return
			}
			convs, err := parser(strings.TrimSpace(paths.For(p)), opts)
			results[i] = providerResult{provider: p, convs: convs, err: err}
		}(i, p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return LoadResult{}, ctx.Err()
	case <-done:
	}

	for _, r := range results {
		if r.err != nil {
			res.Failed[r.provider] = r.err
			continue
		}
		res.Counts[r.provider] = len(r.convs)
		res.Conversations = append(res.Conversations, r.convs...)
	}
	for p, err := range res.Failed {
		logger.Error("failed to load export", "provider", p, "error", err)
	}

	sort.SliceStable(res.Conversations, func(i, j int) bool {
		return res.Conversations[i].Created.After(res.Conversations[j].Created)
	})

	logger.Info("loaded conversations",
		"total", len(res.Conversations),
		"chatgpt", res.Counts[model.ChatGPT],
		"claude", res.Counts[model.Claude],
		"gemini", res.Counts[model.Gemini],
	)
	return res, nil
}
