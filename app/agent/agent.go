package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"legischat/model"
	"legischat/types"
)

// Assistant is the reasoning capability the pipelines depend on.
type Assistant interface {
	Condense(ctx context.Context, question string, history []types.Turn) (string, error)
	Answer(ctx context.Context, evidence, question string) (string, error)
	Summarize(ctx context.Context, text string) (string, error)
}

type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the BPE of a given model.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(modelName string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter estimates four characters per token.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

type Agent struct {
	chat       model.Completer
	summarizer model.Completer
	memoryK    int
	counter    TokenCounter
	maxTokens  int
	logger     *slog.Logger
}

type Option func(*Agent)

// WithSummarizer routes Summarize to a different completion service.
func WithSummarizer(c model.Completer) Option {
	return func(a *Agent) { a.summarizer = c }
}

// WithMemory limits the history shown to the condenser to the last k exchanges.
func WithMemory(k int) Option {
	return func(a *Agent) { a.memoryK = k }
}

// WithTokenBudget caps the synthesis context at maxTokens as measured by counter.
func WithTokenBudget(maxTokens int, counter TokenCounter) Option {
	return func(a *Agent) {
		a.maxTokens = maxTokens
		if counter != nil {
			a.counter = counter
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func New(chat model.Completer, opts ...Option) *Agent {
	a := &Agent{
		chat:       chat,
		summarizer: chat,
		memoryK:    5,
		counter:    ApproxCounter{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Condense(ctx context.Context, question string, history []types.Turn) (string, error) {
	out, err := a.chat.Complete(ctx, condensePrompt(a.formatHistory(history), question))
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrCondensationFailed, err)
	}
	condensed := cleanCondensed(out)
	if condensed == "" {
		return "", fmt.Errorf("%w: empty rewrite", types.ErrCondensationFailed)
	}
	return condensed, nil
}

func (a *Agent) formatHistory(history []types.Turn) string {
	if a.memoryK > 0 && len(history) > 2*a.memoryK {
		history = history[len(history)-2*a.memoryK:]
	}
	var sb strings.Builder
	for _, t := range history {
		switch t.Role {
		case types.RoleUser:
			sb.WriteString("Usuario: ")
		default:
			sb.WriteString("Asistente: ")
		}
		sb.WriteString(strings.TrimSpace(t.Content))
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

var condensedPrefixes = []string{
	"pregunta reestructurada:",
	"pregunta reformulada:",
	"pregunta:",
}

// cleanCondensed reduces a model reply to a bare question string.
func cleanCondensed(out string) string {
	var first string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, p := range condensedPrefixes {
			if strings.HasPrefix(lower, p) {
				line = strings.TrimSpace(line[len(p):])
				break
			}
		}
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.Trim(line, "\"'“”«» ")
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		if strings.Contains(line, "?") {
			return line
		}
	}
	return first
}

func (a *Agent) Answer(ctx context.Context, evidence, question string) (string, error) {
	prompt := answerPrompt(evidence, question)
	a.logger.Debug("[AGENT] answer prompt", "tokens", a.counter.Count(prompt.System+prompt.User))

	out, err := a.chat.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrSynthesisFailed, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty answer", types.ErrSynthesisFailed)
	}
	return out, nil
}

func (a *Agent) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("nothing to summarize")
	}
	out, err := a.summarizer.Complete(ctx, summarizePrompt(text))
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrRepresentationFailed, err)
	}
	return strings.TrimSpace(out), nil
}

// BuildContext joins the full text of the evidence, in retrieval order,
// stopping before the token budget is exceeded. The first record is always
// kept. It returns the context and the number of records it includes.
func (a *Agent) BuildContext(evidence []types.Record) (string, int) {
	var sb strings.Builder
	used := 0
	for i, r := range evidence {
		block := r.FullText + "\n\n"
		if a.maxTokens > 0 && i > 0 && used+a.counter.Count(block) > a.maxTokens {
			a.logger.Debug("[CONTEXT] token budget reached", "records", i, "budget", a.maxTokens)
			return strings.TrimSpace(sb.String()), i
		}
		used += a.counter.Count(block)
		sb.WriteString(block)
	}
	return strings.TrimSpace(sb.String()), len(evidence)
}
