package model

import (
	"fmt"
	"time"

	"legischat/config"
)

// RetryPolicyFrom applies the configured timeout and attempt count.
func RetryPolicyFrom(cfg *config.Config) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		p.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RequestTimeout > 0 {
		p.Timeout = cfg.RequestTimeout
	}
	return p
}

func NewEmbedder(cfg *config.Config) (*OpenAIEmbedder, error) {
	return NewOpenAIEmbedder(cfg.LLM.APIKey, cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDim, cfg.LLM.RateLimitRPS, RetryPolicyFrom(cfg))
}

func NewChat(cfg *config.Config) (*OpenAIChat, error) {
	return NewOpenAIChat(cfg.LLM.APIKey, cfg.LLM.ChatModel, cfg.LLM.Temperature, cfg.LLM.RateLimitRPS, RetryPolicyFrom(cfg))
}

// NewSummarizer returns the completer used for search representations.
// Local generation gets a longer timeout.
func NewSummarizer(cfg *config.Config) (Completer, error) {
	switch cfg.LLM.SummaryBackend {
	case "ollama":
		p := RetryPolicyFrom(cfg)
		p.Timeout = max(p.Timeout, 5*time.Minute)
		return NewOllamaGenerator(cfg.LLM.OllamaURL, cfg.LLM.OllamaModel, p), nil
	case "openai":
		return NewChat(cfg)
	}
	return nil, fmt.Errorf("unknown SUMMARY_BACKEND %q", cfg.LLM.SummaryBackend)
}
