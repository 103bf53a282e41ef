package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"legischat/model"
	"legischat/store"
	"legischat/types"
)

type WriteReport struct {
	Batches       int
	FailedBatches int
	Written       int
	Failed        int
	// FailedSources lists the documents with at least one chunk in a
	// failed batch, ordered by source key.
	FailedSources []Source
}

// Source identifies one indexed document.
type Source struct {
	DocType  types.DocType
	Filename string
}

func (s Source) Key() string {
	return types.SourceKey(s.DocType, s.Filename)
}

// Writer embeds the search text of chunks and upserts them in fixed size
// batches. Batches are written concurrently and independently: a failed
// batch leaves the others in place and is reported in the returned error.
type Writer struct {
	embedder  model.EmbedderInterface
	index     store.Index
	batchSize int
	workers   int
	retry     model.RetryPolicy
	logger    *slog.Logger
}

func NewWriter(embedder model.EmbedderInterface, index store.Index, batchSize, workers int, retry model.RetryPolicy, logger *slog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		workers:   workers,
		retry:     retry,
		logger:    logger,
	}
}

func (w *Writer) Write(ctx context.Context, chunks []types.Chunk) (WriteReport, error) {
	var (
		mu     sync.Mutex
		report WriteReport
		errs   []error
		failed = make(map[string]Source)
	)

	g := new(errgroup.Group)
	g.SetLimit(w.workers)
	for start := 0; start < len(chunks); start += w.batchSize {
		end := min(start+w.batchSize, len(chunks))
		batch := chunks[start:end]
		n := start / w.batchSize

		g.Go(func() error {
			err := w.writeBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			report.Batches++
			if err != nil {
				report.FailedBatches++
				report.Failed += len(batch)
				for _, c := range batch {
					src := Source{DocType: c.DocType, Filename: c.Filename}
					failed[src.Key()] = src
				}
				errs = append(errs, fmt.Errorf("batch %d: %w", n, err))
				w.logger.Error("[WRITER] batch failed", "batch", n, "size", len(batch), "error", err)
				return nil
			}
			report.Written += len(batch)
			w.logger.Debug("[WRITER] batch written", "batch", n, "size", len(batch))
			return nil
		})
	}
	g.Wait()

	for _, src := range failed {
		report.FailedSources = append(report.FailedSources, src)
	}
	sort.Slice(report.FailedSources, func(i, j int) bool {
		return report.FailedSources[i].Key() < report.FailedSources[j].Key()
	})
	return report, errors.Join(errs...)
}

func (w *Writer) writeBatch(ctx context.Context, batch []types.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.SearchText
		if texts[i] == "" {
			texts[i] = c.FullText
		}
	}

	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embed: got %d vectors for %d chunks", len(vecs), len(batch))
	}

	records := make([]types.Record, len(batch))
	for i, c := range batch {
		records[i] = types.Record{Chunk: c, Embedding: vecs[i]}
	}

	_, err = model.Retry(ctx, w.retry, "upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.index.Upsert(ctx, records)
	})
	return err
}
