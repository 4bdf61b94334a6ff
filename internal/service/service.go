// Package service holds the loaded conversations and answers the queries
// behind the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Zuo-Peng/chat-history/internal/assets"
	"github.com/Zuo-Peng/chat-history/internal/config"
	"github.com/Zuo-Peng/chat-history/internal/embed"
	"github.com/Zuo-Peng/chat-history/internal/model"
	"github.com/Zuo-Peng/chat-history/internal/parse"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNoFavorites = errors.New("favorites store not configured")
)

// FavoriteStore persists favorite conversations.
type FavoriteStore interface {
	Keys() (map[model.Key]bool, error)
	Toggle(k model.Key) (bool, error)
}

// SemanticIndex answers similarity queries over titles and messages.
type SemanticIndex interface {
	Build(ctx context.Context, p model.Provider, convs []model.Conversation) error
	Query(ctx context.Context, q string, n int) ([]embed.Hit, error)
}

type Options struct {
	Logger    *slog.Logger
	Favorites FavoriteStore
	Embedder  SemanticIndex
	Tokenizer model.Tokenizer
	Now       func() time.Time
}

type msgRef struct {
	conv, msg int
}

// snapshot is never modified once published.
type snapshot struct {
	conversations []model.Conversation
	byKey         map[model.Key]int
	messages      map[model.Key]msgRef
	assets        assets.Catalog
	counts        map[model.Provider]int
	failed        map[model.Provider]error
	semantic      bool
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byKey:    map[model.Key]int{},
		messages: map[model.Key]msgRef{},
		assets:   assets.Catalog{},
		counts:   map[model.Provider]int{},
		failed:   map[model.Provider]error{},
	}
}

type Service struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger
	snap atomic.Pointer[snapshot]
}

func New(cfg *config.Config, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{cfg: cfg, opts: opts, log: opts.Logger}
	s.snap.Store(emptySnapshot())
	return s
}

func (s *Service) current() *snapshot {
	return s.snap.Load()
}

func (s *Service) paths() parse.Paths {
	return parse.Paths{
		ChatGPT: s.cfg.ChatGPTPath,
		Claude:  s.cfg.ClaudePath,
		Gemini:  s.cfg.GeminiPath,
	}
}

// Load parses every configured export, resolves assets and builds the
// semantic index when one is configured, then publishes the result.
func (s *Service) Load(ctx context.Context) error {
	res, err := parse.Load(ctx, s.paths(), parse.Options{Logger: s.log, Now: s.opts.Now})
	if err != nil {
		return fmt.Errorf("load exports: %w", err)
	}

	roots := make(map[model.Provider]string)
	for _, p := range model.Providers() {
		roots[p] = s.cfg.ProviderRoot(p)
	}
	convs, catalog := assets.Enrich(res.Conversations, roots, s.log)

	snap := &snapshot{
		conversations: convs,
		byKey:         make(map[model.Key]int, len(convs)),
		messages:      make(map[model.Key]msgRef),
		assets:        catalog,
		counts:        res.Counts,
		failed:        res.Failed,
	}
	for ci, c := range convs {
		snap.byKey[c.Key()] = ci
		for mi, m := range c.Messages {
			snap.messages[m.Key()] = msgRef{conv: ci, msg: mi}
		}
	}

	if s.opts.Embedder != nil {
		snap.semantic = s.buildSemantic(ctx, convs)
	}

	s.snap.Store(snap)
	return nil
}

// Reload is Load under the name the API uses; readers keep the previous
// snapshot until the new one is published.
func (s *Service) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

func (s *Service) buildSemantic(ctx context.Context, convs []model.Conversation) bool {
	byProvider := make(map[model.Provider][]model.Conversation)
	for _, c := range convs {
		byProvider[c.Provider] = append(byProvider[c.Provider], c)
	}
	built := false
	for _, p := range model.Providers() {
		if len(byProvider[p]) == 0 {
			continue
		}
		if err := s.opts.Embedder.Build(ctx, p, byProvider[p]); err != nil {
			s.log.Warn("semantic index unavailable", "provider", p, "err", err)
			continue
		}
		built = true
	}
	return built
}

// Conversations returns the loaded conversations, newest first.
func (s *Service) Conversations() []model.Conversation {
	return s.current().conversations
}

func (s *Service) Conversation(p model.Provider, id string) (model.Conversation, bool) {
	snap := s.current()
	i, ok := snap.byKey[model.Key{Provider: p, ID: id}]
	if !ok {
		return model.Conversation{}, false
	}
	return snap.conversations[i], true
}

// Counts returns conversations per provider of the last load.
func (s *Service) Counts() map[model.Provider]int {
	return s.current().counts
}

// Failed returns the providers whose export could not be read.
func (s *Service) Failed() map[model.Provider]error {
	return s.current().failed
}

// ToggleFavorite flips the favorite flag of a loaded conversation.
func (s *Service) ToggleFavorite(p model.Provider, id string) (bool, error) {
	if s.opts.Favorites == nil {
		return false, ErrNoFavorites
	}
	if _, ok := s.Conversation(p, id); !ok {
		return false, fmt.Errorf("conversation %s:%s: %w", p, id, ErrNotFound)
	}
	return s.opts.Favorites.Toggle(model.Key{Provider: p, ID: id})
}

func (s *Service) favorites() map[model.Key]bool {
	if s.opts.Favorites == nil {
		return nil
	}
	keys, err := s.opts.Favorites.Keys()
	if err != nil {
		s.log.Warn("read favorites", "err", err)
		return nil
	}
	return keys
}

// Asset returns the file behind a resolved asset id.
func (s *Service) Asset(p model.Provider, assetID string) (assets.Resolved, error) {
	r, ok := s.current().assets.Lookup(p, assetID)
	if !ok {
		return assets.Resolved{}, ErrNotFound
	}
	return r, nil
}

func sortedProviders(m map[model.Provider]int) []model.Provider {
	out := make([]model.Provider, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
