// Package modeltest provides deterministic stand-ins for the embedding and
// completion services.
package modeltest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"legischat/model"
	"legischat/textnorm"
)

// HashEmbedder embeds text as a normalized bag of hashed words, so texts
// sharing words are close in cosine distance.
type HashEmbedder struct {
	Dim int

	mu    sync.Mutex
	Calls int
	Fail  error
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	fail := e.Fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.Dim)
		for _, w := range Words(t) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[int(h.Sum32())%e.Dim]++
		}
		out[i] = model.Normalize(v)
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int {
	return e.Dim
}

// Words splits text into lower-cased, accent-free words.
func Words(text string) []string {
	return strings.FieldsFunc(textnorm.Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Completer answers prompts with Fn and records every prompt it receives.
type Completer struct {
	Fn func(p model.Prompt) (string, error)

	mu      sync.Mutex
	Prompts []model.Prompt
}

func (c *Completer) Complete(ctx context.Context, p model.Prompt) (string, error) {
	c.mu.Lock()
	c.Prompts = append(c.Prompts, p)
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Fn == nil {
		return "", errors.New("modeltest: no completion configured")
	}
	return c.Fn(p)
}

func (c *Completer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Prompts)
}

// Failing returns a completer that always fails with err.
func Failing(err error) *Completer {
	return &Completer{Fn: func(model.Prompt) (string, error) { return "", err }}
}

// Echo returns a completer that answers with the user prompt unchanged.
func Echo() *Completer {
	return &Completer{Fn: func(p model.Prompt) (string, error) { return p.User, nil }}
}
