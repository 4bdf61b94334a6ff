// Package embed builds the optional semantic index over conversation
// titles and message texts.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/philippgille/chromem-go"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

const (
	TypeConversation = "conversation"
	TypeMessage      = "message"

	maxEmbedChars = 16000
)

// Hit is one semantic match.
type Hit struct {
	Provider       model.Provider
	Type           string
	ConversationID string
	ItemID         string
	Score          float32
}

// NewOpenAIFunc returns an embedding function backed by the OpenAI
// embeddings endpoint.
func NewOpenAIFunc(apiKey, organization, baseURL, embeddingModel string) chromem.EmbeddingFunc {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	client := openai.NewClient(opts...)

	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
			Model: openai.EmbeddingModel(embeddingModel),
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("create embedding: empty response")
		}
		vec := make([]float32, len(resp.Data[0].Embedding))
		for i, f := range resp.Data[0].Embedding {
			vec[i] = float32(f)
		}
		return vec, nil
	}
}

type Options struct {
	Logger *slog.Logger
	// CachePath returns the embedding cache of a provider.
	CachePath func(model.Provider) string
}

// Index holds one in-memory vector collection per provider, backed by the
// on-disk cache.
type Index struct {
	embed     chromem.EmbeddingFunc
	cachePath func(model.Provider) string
	logger    *slog.Logger

	mu   sync.RWMutex
	cols map[model.Provider]*chromem.Collection
}

func New(fn chromem.EmbeddingFunc, opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		embed:     fn,
		cachePath: opts.CachePath,
		logger:    logger,
		cols:      make(map[model.Provider]*chromem.Collection),
	}
}

func entryKey(entryType, id string) string {
	if entryType == TypeConversation {
		return "c:" + id
	}
	return "m:" + id
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxEmbedChars {
		return text
	}
	cut := maxEmbedChars
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Build embeds every title and message of p not yet cached, then replaces
// the provider's collection with the full cache.
func (x *Index) Build(ctx context.Context, p model.Provider, convs []model.Conversation) error {
	if x.cachePath == nil {
		return errors.New("embed: no cache path")
	}
	cache, err := OpenCache(x.cachePath(p))
	if err != nil {
		return err
	}
	defer cache.Close()

	entries, err := cache.All()
	if err != nil {
		return fmt.Errorf("read embedding cache: %w", err)
	}

	added := 0
	add := func(entryType, convID, itemID, text string) error {
		text = truncate(text)
		key := entryKey(entryType, itemID)
		if text == "" {
			return nil
		}
		if _, ok := entries[key]; ok {
			return nil
		}
		vec, err := x.embed(ctx, text)
		if err != nil {
			return err
		}
		e := Entry{ID: key, Type: entryType, ConversationID: convID, ItemID: itemID, Vector: vec}
		if err := cache.Put(e); err != nil {
			return fmt.Errorf("save embedding %s: %w", key, err)
		}
		entries[key] = e
		added++
		return nil
	}

	for _, c := range convs {
		if c.Provider != p {
			continue
		}
		if err := add(TypeConversation, c.ID, c.ID, c.Title); err != nil {
			return err
		}
		for _, m := range c.Messages {
			if err := add(TypeMessage, c.ID, m.ID, m.Text(model.ShowAll)); err != nil {
				return err
			}
		}
	}
	if added > 0 {
		x.logger.Info("created embeddings", "provider", p, "count", added)
	}

	if len(entries) == 0 {
		x.mu.Lock()
		delete(x.cols, p)
		x.mu.Unlock()
		return nil
	}

	col, err := chromem.NewDB().GetOrCreateCollection(string(p), nil, x.embed)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, chromem.Document{
			ID:        e.ID,
			Content:   e.ID,
			Embedding: e.Vector,
			Metadata: map[string]string{
				"type":    e.Type,
				"conv_id": e.ConversationID,
				"item_id": e.ItemID,
			},
		})
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("fill collection: %w", err)
	}

	x.mu.Lock()
	x.cols[p] = col
	x.mu.Unlock()
	return nil
}

// Query embeds q once and returns the best n hits of every provider,
// highest score first.
func (x *Index) Query(ctx context.Context, q string, n int) ([]Hit, error) {
	x.mu.RLock()
	cols := make(map[model.Provider]*chromem.Collection, len(x.cols))
	for p, c := range x.cols {
		cols[p] = c
	}
	x.mu.RUnlock()

	if len(cols) == 0 || n <= 0 {
		return nil, nil
	}
	vec, err := x.embed(ctx, truncate(q))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for p, col := range cols {
		k := n
		if count := col.Count(); count < k {
			k = count
		}
		if k == 0 {
			continue
		}
		results, err := col.QueryEmbedding(ctx, vec, k, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", p, err)
		}
		for _, r := range results {
			hits = append(hits, Hit{
				Provider:       p,
				Type:           r.Metadata["type"],
				ConversationID: r.Metadata["conv_id"],
				ItemID:         r.Metadata["item_id"],
				Score:          r.Similarity,
			})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Provider < hits[j].Provider
	})
	return hits, nil
}
