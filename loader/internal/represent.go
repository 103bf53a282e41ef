package internal

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"legischat/types"
)

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Representer fills in the search representation of chunks.
type Representer struct {
	summarizer Summarizer
	workers    int
	logger     *slog.Logger
}

func NewRepresenter(s Summarizer, workers int, logger *slog.Logger) *Representer {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Representer{summarizer: s, workers: workers, logger: logger}
}

// Represent sets SearchText on every chunk and returns how many fell back to
// their full text. Only cancellation of ctx is reported as an error.
func (r *Representer) Represent(ctx context.Context, chunks []types.Chunk) (int, error) {
	var fallbacks atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for i := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if !r.represent(ctx, &chunks[i]) {
				fallbacks.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return int(fallbacks.Load()), err
	}
	return int(fallbacks.Load()), nil
}

func (r *Representer) represent(ctx context.Context, c *types.Chunk) bool {
	out, err := r.summarizer.Summarize(ctx, c.FullText)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if ctx.Err() == nil {
			r.logger.Warn("[REPRESENT] using full text as search text", "source", types.SourceKey(c.DocType, c.Filename), "page", c.PageLabel, "error", err)
		}
		c.SearchText = c.FullText
		return false
	}
	c.SearchText = PreserveReferences(out, c.FullText)
	return true
}

var referenceRe = regexp.MustCompile(`(?i)\b(?:art[íi]culos?|art\.|arts\.|ley|decreto|cap[íi]tulo|numeral|inciso|literal|disposici[óo]n)\s*(?:n[o°º]\.?\s*)?(\d+(?:[.\-]\d+)*)`)

// PreserveReferences appends to rewritten the numbered legal references of
// source whose numbers it lost.
func PreserveReferences(rewritten, source string) string {
	var missing []string
	seen := map[string]bool{}
	for _, m := range referenceRe.FindAllStringSubmatch(source, -1) {
		ref := strings.Join(strings.Fields(m[0]), " ")
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if !containsNumber(rewritten, m[1]) {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return rewritten
	}
	return rewritten + "\nReferencias: " + strings.Join(missing, "; ")
}

func containsNumber(text, num string) bool {
	re := regexp.MustCompile(`(?:^|[^\d.\-])` + regexp.QuoteMeta(num) + `(?:$|[^\d])`)
	return re.MatchString(text)
}
