package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"legischat/textnorm"
	"legischat/types"
)

// NewChunkID builds "<doc_type>:<filename>:<page>:<suffix>" from ASCII-safe
// components and a random 8 character suffix.
func NewChunkID(docType types.DocType, filename string, page int) string {
	return fmt.Sprintf("%s:%s:%d:%s",
		textnorm.ASCII(string(docType)),
		textnorm.ASCII(filename),
		page,
		uuid.New().String()[:8],
	)
}

// Identify assigns a fresh id and creation time to every chunk.
func Identify(chunks []types.Chunk, now time.Time) {
	for i := range chunks {
		chunks[i].ID = NewChunkID(chunks[i].DocType, chunks[i].Filename, chunks[i].Page)
		chunks[i].CreatedAt = now
	}
}

// SourceProber lists the sources already present in the index, keyed by
// types.SourceKey.
type SourceProber interface {
	ExistingSources(ctx context.Context) (map[string]struct{}, error)
}

type Deduper struct {
	prober SourceProber
	logger *slog.Logger
}

func NewDeduper(prober SourceProber, logger *slog.Logger) *Deduper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduper{prober: prober, logger: logger}
}

// Filter drops documents whose source is already indexed, and repeats of a
// source within docs. With reset the index is treated as empty. A failed
// probe is logged and every document is treated as new.
func (d *Deduper) Filter(ctx context.Context, docs []types.Document, reset bool) ([]types.Document, int) {
	existing := map[string]struct{}{}
	if !reset {
		found, err := d.prober.ExistingSources(ctx)
		if err != nil {
			d.logger.Warn("[DEDUP] existing sources probe failed, treating all documents as new", "error", err)
		} else {
			existing = found
		}
	}

	fresh := make([]types.Document, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		key := doc.Key()
		if _, ok := existing[key]; ok {
			d.logger.Info("[DEDUP] already indexed, skipping", "source", key)
			skipped++
			continue
		}
		existing[key] = struct{}{}
		fresh = append(fresh, doc)
	}
	return fresh, skipped
}
