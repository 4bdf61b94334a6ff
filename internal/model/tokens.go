package model

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Tokenizer counts tokens of text produced by the named model.
type Tokenizer interface {
	Count(model, text string) int
}

const defaultEncoding = "cl100k_base"

// TiktokenCounter counts with the model's BPE encoding, falling back to
// cl100k_base for unknown models. BPE ranks come from the embedded offline
// loader. If no encoding can be built it estimates four bytes per token.
type TiktokenCounter struct {
	mu    sync.Mutex
	byKey map[string]*tiktoken.Tiktoken
	base  *tiktoken.Tiktoken
	ready bool
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{byKey: make(map[string]*tiktoken.Tiktoken)}
}

func (c *TiktokenCounter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := c.encoding(model)
	if enc == nil {
		return estimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.byKey[model]; ok {
		return enc
	}
	if !c.ready {
		c.ready = true
		if enc, err := tiktoken.GetEncoding(defaultEncoding); err == nil {
			c.base = enc
		}
	}
	enc := c.base
	if model != "" {
		if e, err := tiktoken.EncodingForModel(model); err == nil {
			enc = e
		}
	}
	c.byKey[model] = enc
	return enc
}

func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && utf8.RuneCountInString(text) > 0 {
		n = 1
	}
	return n
}
