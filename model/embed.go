package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// EmbedderInterface maps text to fixed-dimension vectors.
type EmbedderInterface interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OpenAIEmbedder creates embeddings through the OpenAI API.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	dim     int
	limiter *rate.Limiter
	retry   RetryPolicy
}

func NewOpenAIEmbedder(apiKey, model string, dim int, rps float64, retry RetryPolicy) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if dim <= 0 {
		dim = 1536
		if model == string(openai.LargeEmbedding3) {
			dim = 3072
		}
	}
	return &OpenAIEmbedder{
		client:  openai.NewClient(apiKey),
		model:   model,
		dim:     dim,
		limiter: newLimiter(rps),
		retry:   retry,
	}, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(math.Ceil(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in a single request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("cannot embed empty text at %d", i)
		}
	}

	resp, err := Retry(ctx, e.retry, "embeddings", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return openai.EmbeddingResponse{}, err
		}
		return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		Normalize(v)
		out[i] = v
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// Normalize scales a vector to unit length in place.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
