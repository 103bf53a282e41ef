// Package pipeline runs a question through condensation, filter inference,
// retrieval and answer synthesis.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"legischat/app/filter"
	"legischat/model"
	"legischat/store"
	"legischat/types"
)

type State int

const (
	StateCondensing State = iota
	StateFiltering
	StateRetrieving
	StateSynthesizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCondensing:
		return "condensing"
	case StateFiltering:
		return "filtering"
	case StateRetrieving:
		return "retrieving"
	case StateSynthesizing:
		return "synthesizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Assistant is the part of the reasoning capability the pipeline needs.
type Assistant interface {
	Condense(ctx context.Context, question string, history []types.Turn) (string, error)
	Answer(ctx context.Context, evidence, question string) (string, error)
	BuildContext(evidence []types.Record) (string, int)
}

type Result struct {
	Answer            string
	Evidence          []types.Record
	CondensedQuestion string
	Filter            types.Filter
	// Empty reports that retrieval found nothing and the answer was
	// generated without context.
	Empty bool
}

type Pipeline struct {
	assistant Assistant
	inferrer  filter.Inferrer
	embedder  model.EmbedderInterface
	index     store.Index
	k         int
	retry     model.RetryPolicy
	logger    *slog.Logger
}

// New builds a pipeline. Every similarity search runs under retry.
func New(assistant Assistant, inferrer filter.Inferrer, embedder model.EmbedderInterface, index store.Index, k int, retry model.RetryPolicy, logger *slog.Logger) *Pipeline {
	if k <= 0 {
		k = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		assistant: assistant,
		inferrer:  inferrer,
		embedder:  embedder,
		index:     index,
		k:         k,
		retry:     retry,
		logger:    logger,
	}
}

// Ask answers question within the session. The session history is extended
// only when an answer is produced.
func (p *Pipeline) Ask(ctx context.Context, s *Session, question string, scope []types.DocType) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("%w: empty question", types.ErrInvalidQuery)
	}
	if !s.busy.TryLock() {
		return Result{}, types.ErrSessionBusy
	}
	defer s.busy.Unlock()

	res, err := p.run(ctx, s, question, scope)
	if err != nil {
		p.transition(s, StateFailed)
		return Result{}, err
	}

	s.Append(
		types.Turn{Role: types.RoleUser, Content: question},
		types.Turn{Role: types.RoleAssistant, Content: res.Answer},
	)
	p.transition(s, StateDone)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, s *Session, question string, scope []types.DocType) (Result, error) {
	var res Result

	p.transition(s, StateCondensing)
	res.CondensedQuestion = p.condense(ctx, question, s.History())

	p.transition(s, StateFiltering)
	res.Filter = p.inferrer.Infer(res.CondensedQuestion, scope)
	p.logger.Debug("[FILTER] filter applied", "session", s.ID, "filter", res.Filter.String())

	p.transition(s, StateRetrieving)
	records, err := p.retrieve(ctx, res.CondensedQuestion, res.Filter)
	if err != nil {
		return Result{}, err
	}
	res.Empty = len(records) == 0
	if res.Empty {
		p.logger.Info("[SEARCH] no relevant documents", "session", s.ID, "filter", res.Filter.String())
	}
	for i, r := range records {
		p.logger.Debug("[SEARCH] evidence", "rank", i+1, "id", r.ID, "score", r.Score,
			"search_text", r.SearchText, "full_text", r.FullText)
	}

	p.transition(s, StateSynthesizing)
	evidence, n := p.assistant.BuildContext(records)
	res.Evidence = records[:n]
	res.Answer, err = p.assistant.Answer(ctx, evidence, res.CondensedQuestion)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// condense falls back to the raw question when the rewrite fails.
func (p *Pipeline) condense(ctx context.Context, question string, history []types.Turn) string {
	condensed, err := p.assistant.Condense(ctx, question, history)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("[PIPELINE] condensation failed, using raw question", "error", err)
		}
		return question
	}
	return condensed
}

func (p *Pipeline) retrieve(ctx context.Context, question string, f types.Filter) ([]types.Record, error) {
	vec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %w", types.ErrRetrievalFailed, err)
	}
	records, err := model.Retry(ctx, p.retry, "search", func(ctx context.Context) ([]types.Record, error) {
		return p.index.Search(ctx, vec, p.k, f)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRetrievalFailed, err)
	}
	return records, nil
}

func (p *Pipeline) transition(s *Session, st State) {
	s.setState(st)
	p.logger.Debug("[PIPELINE] state", "session", s.ID, "state", st.String())
}
