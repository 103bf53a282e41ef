package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Prompt is a rendered template ready to be sent to a completion service.
type Prompt struct {
	System string
	User   string
}

// Completer produces text from a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// OpenAIChat answers prompts with the chat completions API.
type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
	limiter     *rate.Limiter
	retry       RetryPolicy
}

func NewOpenAIChat(apiKey, model string, temperature float32, rps float64, retry RetryPolicy) (*OpenAIChat, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	return &OpenAIChat{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		limiter:     newLimiter(rps),
		retry:       retry,
	}, nil
}

func (c *OpenAIChat) Complete(ctx context.Context, p Prompt) (string, error) {
	var messages []openai.ChatCompletionMessage
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	// temperature is omitted from the request when zero, which the API reads as 1
	temperature := c.temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := Retry(ctx, c.retry, "chat completion", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return openai.ChatCompletionResponse{}, err
		}
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: temperature,
		})
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("chat completion returned empty content (finish reason %q)", resp.Choices[0].FinishReason)
	}
	return out, nil
}
