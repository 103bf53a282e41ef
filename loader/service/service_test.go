package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legischat/model"
	"legischat/model/modeltest"
	"legischat/store"
	"legischat/textnorm"
	"legischat/types"
)

type summarizerFunc func(ctx context.Context, text string) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

var keywords = summarizerFunc(func(_ context.Context, text string) (string, error) {
	return "términos clave: " + text, nil
})

type brokenProbe struct {
	*store.MemoryStore
}

func (brokenProbe) ExistingSources(context.Context) (map[string]struct{}, error) {
	return nil, errors.New("index unreachable")
}

// failingUpsert fails upsert call number failOn, counting from 1.
type failingUpsert struct {
	*store.MemoryStore
	mu     sync.Mutex
	calls  int
	failOn int
}

func (f *failingUpsert) Upsert(ctx context.Context, records []types.Record) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.MemoryStore.Upsert(ctx, records)
}

func writeCorpusFile(t *testing.T, root, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, dir, name), []byte(content), 0o644))
}

func corpusConfig(root string) types.Config {
	return types.Config{
		DataPath: root,
		Corpus: map[string]types.DocType{
			"01_constitucion":              types.DocTypeConstitution,
			"02_convenios_internacionales": types.DocTypeInternationalAgreement,
			"03_leyes":                     types.DocTypeStatute,
			"04_codigos":                   types.DocTypeCode,
		},
		ChunkSize:        200,
		ChunkOverlap:     20,
		BatchSize:        3,
		WriterWorkers:    2,
		RepresentWorkers: 2,
	}
}

func seedCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeCorpusFile(t, root, "01_constitucion", "Constitución_de_la_República.txt",
		strings.Repeat("Art. 66.- Se reconoce y garantizará a las personas el derecho a la inviolabilidad de la vida.\n\n", 6))
	writeCorpusFile(t, root, "03_leyes", "Ley-de-Compañías.txt",
		"Art. 1.- Contrato de compañía es aquél por el cual dos o más personas unen sus capitales.")
	return root
}

func allRecords(t *testing.T, index *store.MemoryStore, e model.EmbedderInterface) []types.Record {
	t.Helper()
	vec, err := e.Embed(context.Background(), "consulta")
	require.NoError(t, err)
	records, err := index.Search(context.Background(), vec, 0, types.Filter{})
	require.NoError(t, err)
	return records
}

func newService(cfg types.Config, index store.Index, e model.EmbedderInterface, s summarizerFunc) *Service {
	return New(cfg, index, e, s, textnorm.Normalizer{}, model.RetryPolicy{MaxAttempts: 1})
}

func TestRunIngestsCorpus(t *testing.T) {
	root := seedCorpus(t)
	index := store.NewMemoryStore()
	embedder := modeltest.NewHashEmbedder(64)

	report, err := newService(corpusConfig(root), index, embedder, keywords).Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 0, report.Skipped)
	assert.Greater(t, report.Chunks, 2)
	assert.Equal(t, report.Chunks, report.Written)
	assert.Equal(t, 0, report.Fallbacks)
	assert.Len(t, report.MissingDirs, 2)
	assert.Equal(t, report.Chunks, index.Len())

	sources, err := index.ExistingSources(context.Background())
	require.NoError(t, err)
	assert.Contains(t, sources, types.SourceKey(types.DocTypeConstitution, "constitución de la república.txt"))
	assert.Contains(t, sources, types.SourceKey(types.DocTypeStatute, "ley de compañías.txt"))

	for _, r := range allRecords(t, index, embedder) {
		assert.True(t, strings.HasPrefix(r.SearchText, "términos clave: "))
		assert.True(t, strings.HasPrefix(r.FullText, "Tipo: "+string(r.DocType)+". Archivo: "+r.Filename))
		assert.Equal(t, "0", r.PageLabel)
		assert.False(t, r.CreatedAt.IsZero())
	}
}

func TestRunIsIncremental(t *testing.T) {
	root := seedCorpus(t)
	index := store.NewMemoryStore()
	svc := newService(corpusConfig(root), index, modeltest.NewHashEmbedder(64), keywords)

	first, err := svc.Run(context.Background(), false)
	require.NoError(t, err)

	second, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Chunks)
	assert.Equal(t, first.Chunks, index.Len())

	writeCorpusFile(t, root, "04_codigos", "Código Civil.txt", "Art. 81.- Matrimonio es un contrato solemne.")
	third, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Documents)
	assert.Equal(t, 2, third.Skipped)
	assert.Equal(t, 1, third.Ingested)
	assert.Equal(t, first.Chunks+third.Chunks, index.Len())
}

func TestRunReset(t *testing.T) {
	root := seedCorpus(t)
	index := store.NewMemoryStore()
	embedder := modeltest.NewHashEmbedder(64)
	svc := newService(corpusConfig(root), index, embedder, keywords)

	first, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	before := allRecords(t, index, embedder)

	again, err := svc.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Skipped)
	assert.Equal(t, first.Chunks, again.Chunks)
	assert.Equal(t, first.Chunks, index.Len())

	ids := make(map[string]bool)
	for _, r := range before {
		ids[r.ID] = true
	}
	for _, r := range allRecords(t, index, embedder) {
		assert.False(t, ids[r.ID], "id %s survived the reset", r.ID)
	}
}

func TestRunRepresentationFallback(t *testing.T) {
	root := seedCorpus(t)
	index := store.NewMemoryStore()
	embedder := modeltest.NewHashEmbedder(64)
	failing := summarizerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("summary model offline")
	})

	report, err := newService(corpusConfig(root), index, embedder, failing).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, report.Fallbacks)
	assert.Equal(t, report.Chunks, report.Written)

	for _, r := range allRecords(t, index, embedder) {
		assert.Equal(t, r.FullText, r.SearchText)
	}
}

func TestRunProbeFailureIngestsAll(t *testing.T) {
	root := seedCorpus(t)
	index := brokenProbe{store.NewMemoryStore()}

	report, err := newService(corpusConfig(root), index, modeltest.NewHashEmbedder(64), keywords).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, report.Chunks, index.Len())
}

func TestRunWriteFailure(t *testing.T) {
	root := seedCorpus(t)
	embedder := modeltest.NewHashEmbedder(64)
	embedder.Fail = errors.New("embeddings unavailable")

	report, err := newService(corpusConfig(root), store.NewMemoryStore(), embedder, keywords).Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embeddings unavailable")
	assert.Equal(t, report.Chunks, report.Failed)
	assert.Equal(t, 0, report.Written)
}

func TestRunRollsBackPartiallyWrittenDocument(t *testing.T) {
	root := seedCorpus(t)
	cfg := corpusConfig(root)
	cfg.BatchSize = 1
	cfg.WriterWorkers = 1
	index := &failingUpsert{MemoryStore: store.NewMemoryStore(), failOn: 2}
	svc := newService(cfg, index, modeltest.NewHashEmbedder(64), keywords)

	// The constitution comes first and spans several chunks; its second
	// chunk fails, the statute's single chunk lands.
	first, err := svc.Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, first.Chunks-2, first.RolledBack)
	assert.Equal(t, 1, first.Written)
	assert.Equal(t, 1, index.Len())

	constitution := types.SourceKey(types.DocTypeConstitution, "constitución de la república.txt")
	statute := types.SourceKey(types.DocTypeStatute, "ley de compañías.txt")
	sources, err := index.ExistingSources(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, sources, constitution)
	assert.Contains(t, sources, statute)

	second, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, second.Ingested)
	assert.Equal(t, second.Chunks, second.Written)
	assert.Equal(t, first.Chunks-1, second.Chunks)
	assert.Equal(t, first.Chunks, index.Len())
}

func TestIngestFile(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "02_convenios_internacionales", "Convención_Americana.md", "Artículo 4. Derecho a la vida.")
	path := filepath.Join(root, "02_convenios_internacionales", "Convención_Americana.md")

	index := store.NewMemoryStore()
	svc := newService(corpusConfig(root), index, modeltest.NewHashEmbedder(64), keywords)

	report, err := svc.IngestFile(context.Background(), path, types.DocTypeInternationalAgreement)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, index.Len())

	report, err = svc.IngestFile(context.Background(), path, types.DocTypeInternationalAgreement)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, index.Len())
}

func TestWatchStopsWithContext(t *testing.T) {
	root := seedCorpus(t)
	cfg := corpusConfig(root)
	index := store.NewMemoryStore()
	svc := newService(cfg, index, modeltest.NewHashEmbedder(64), keywords)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Watch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
