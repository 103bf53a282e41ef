// Package service runs the ingestion pipeline over the corpus directories.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"legischat/loader/internal"
	"legischat/model"
	"legischat/store"
	"legischat/textnorm"
	"legischat/types"
)

// Report summarizes one ingestion run.
type Report struct {
	Documents   int // loaded from the corpus
	Skipped     int // already indexed
	Ingested    int
	Chunks      int
	Written     int
	Failed      int
	Fallbacks   int // chunks whose search text is their full text
	RolledBack  int // records removed from partially written documents
	MissingDirs []string
	Duration    time.Duration
}

func (r *Report) add(o Report) {
	r.Documents += o.Documents
	r.Skipped += o.Skipped
	r.Ingested += o.Ingested
	r.Chunks += o.Chunks
	r.Written += o.Written
	r.Failed += o.Failed
	r.Fallbacks += o.Fallbacks
	r.RolledBack += o.RolledBack
}

type Service struct {
	cfg         types.Config
	index       store.Index
	loader      *internal.DocumentLoader
	chunker     *internal.Chunker
	dedup       *internal.Deduper
	representer *internal.Representer
	writer      *internal.Writer
	logger      *slog.Logger

	// serializes runs so two ingestions never probe and write concurrently
	mu  sync.Mutex
	now func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(cfg types.Config, index store.Index, embedder model.EmbedderInterface, summarizer internal.Summarizer, normalizer textnorm.Normalizer, retry model.RetryPolicy, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		index:  index,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loader = internal.NewDocumentLoader(normalizer, s.logger)
	s.chunker = internal.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	s.dedup = internal.NewDeduper(index, s.logger)
	s.representer = internal.NewRepresenter(summarizer, cfg.RepresentWorkers, s.logger)
	s.writer = internal.NewWriter(embedder, index, cfg.BatchSize, cfg.WriterWorkers, retry, s.logger)
	return s
}

// Run ingests every corpus directory. With reset the index is cleared first
// and every document is ingested; otherwise only sources not yet indexed are.
// A missing directory is logged and skipped.
func (s *Service) Run(ctx context.Context, reset bool) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	var report Report

	if reset {
		s.logger.Info("[INGEST] reset requested, clearing index")
		if err := s.index.Clear(ctx); err != nil {
			return report, fmt.Errorf("clear index: %w", err)
		}
	}

	var docs []types.Document
	for _, dir := range s.directories() {
		path := filepath.Join(s.cfg.DataPath, dir)
		loaded, err := s.loader.LoadDirectory(path, s.cfg.Corpus[dir])
		if errors.Is(err, types.ErrSourceMissing) {
			s.logger.Warn("[INGEST] directory not found", "dir", path)
			report.MissingDirs = append(report.MissingDirs, path)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("load %s: %w", path, err)
		}
		s.logger.Info("[INGEST] loaded directory", "dir", path, "doc_type", s.cfg.Corpus[dir], "documents", len(loaded))
		docs = append(docs, loaded...)
	}

	res, err := s.ingest(ctx, docs, reset)
	report.add(res)
	report.Duration = s.now().Sub(start)
	s.logger.Info("[INGEST] run finished",
		"documents", report.Documents,
		"skipped", report.Skipped,
		"chunks", report.Chunks,
		"written", report.Written,
		"failed", report.Failed,
		"fallbacks", report.Fallbacks,
		"rolled_back", report.RolledBack,
		"duration", report.Duration,
	)
	return report, err
}

// IngestFile ingests a single file unless its source is already indexed.
func (s *Service) IngestFile(ctx context.Context, path string, docType types.DocType) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loader.LoadFile(path, docType)
	if err != nil {
		return Report{}, fmt.Errorf("load %s: %w", path, err)
	}
	return s.ingest(ctx, []types.Document{doc}, false)
}

func (s *Service) ingest(ctx context.Context, docs []types.Document, reset bool) (Report, error) {
	report := Report{Documents: len(docs)}

	fresh, skipped := s.dedup.Filter(ctx, docs, reset)
	report.Skipped = skipped
	report.Ingested = len(fresh)
	if len(fresh) == 0 {
		s.logger.Info("[INGEST] nothing new to ingest", "documents", len(docs))
		return report, nil
	}

	var chunks []types.Chunk
	for _, doc := range fresh {
		c := s.chunker.Chunk(doc)
		if len(c) == 0 {
			s.logger.Warn("[INGEST] document has no text", "source", doc.Key())
			continue
		}
		chunks = append(chunks, c...)
	}
	internal.Identify(chunks, s.now())
	report.Chunks = len(chunks)

	fallbacks, err := s.representer.Represent(ctx, chunks)
	report.Fallbacks = fallbacks
	if err != nil {
		return report, err
	}

	wr, err := s.writer.Write(ctx, chunks)
	report.Written = wr.Written
	report.Failed = wr.Failed
	if err != nil {
		err = fmt.Errorf("%d of %d batches failed: %w", wr.FailedBatches, wr.Batches, err)
		removed, rbErr := s.rollback(ctx, wr.FailedSources)
		report.RolledBack = removed
		report.Written -= removed
		return report, errors.Join(err, rbErr)
	}
	return report, nil
}

// rollback removes what was written of documents with a failed batch, so
// the next incremental run does not take them as already indexed.
func (s *Service) rollback(ctx context.Context, sources []internal.Source) (int, error) {
	var (
		removed int
		errs    []error
	)
	for _, src := range sources {
		n, err := s.index.DeleteSource(ctx, src.DocType, src.Filename)
		if err != nil {
			s.logger.Error("[INGEST] rollback failed, run with --reset to recover", "source", src.Key(), "error", err)
			errs = append(errs, fmt.Errorf("roll back %s: %w", src.Key(), err))
			continue
		}
		removed += n
		s.logger.Warn("[INGEST] partially written document rolled back", "source", src.Key(), "removed", n)
	}
	return removed, errors.Join(errs...)
}

func (s *Service) directories() []string {
	dirs := make([]string, 0, len(s.cfg.Corpus))
	for dir := range s.cfg.Corpus {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Watch runs an incremental ingestion and then ingests files added to the
// corpus until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	if _, err := s.Run(ctx, false); err != nil {
		s.logger.Error("[INGEST] initial run failed", "error", err)
	}

	dirs := make(map[string]types.DocType, len(s.cfg.Corpus))
	for dir, dt := range s.cfg.Corpus {
		dirs[filepath.Join(s.cfg.DataPath, dir)] = dt
	}
	watcher := internal.NewWatcher(dirs, s.cfg.WatchInterval, s.cfg.MonitoringTime, s.logger)

	events := make(chan internal.FileEvent, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(events)
		watcher.Watch(ctx, events)
	}()

	for ev := range events {
		report, err := s.IngestFile(ctx, ev.Path, ev.DocType)
		if err != nil {
			s.logger.Error("[INGEST] failed to ingest file", "path", ev.Path, "error", err)
			continue
		}
		s.logger.Info("[INGEST] file processed", "path", ev.Path, "skipped", report.Skipped, "chunks", report.Chunks, "written", report.Written)
	}

	wg.Wait()
	return ctx.Err()
}
