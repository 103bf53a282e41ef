package store

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"legischat/textnorm"
	"legischat/types"
)

// MemoryStore is an in-process Index. With a path it snapshots itself to
// disk after every write so the loader and the app can share it.
type MemoryStore struct {
	mu      sync.RWMutex
	records []types.Record
	byID    map[string]int
	path    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// OpenMemoryStore loads the snapshot at path, if any.
func OpenMemoryStore(path string) (*MemoryStore, error) {
	m := NewMemoryStore()
	m.path = path

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&m.records); err != nil {
		return nil, fmt.Errorf("decode index snapshot: %w", err)
	}
	for i, r := range m.records {
		m.byID[r.ID] = i
	}
	return m, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, records []types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("record %s has no embedding", r.ID)
		}
	}
	for _, r := range records {
		if i, ok := m.byID[r.ID]; ok {
			m.records[i] = r
			continue
		}
		m.byID[r.ID] = len(m.records)
		m.records = append(m.records, r)
	}
	return m.persist()
}

func (m *MemoryStore) Search(ctx context.Context, vec []float32, k int, f types.Filter) ([]types.Record, error) {
	if len(vec) == 0 {
		return nil, errors.New("empty query vector")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []types.Record
	for _, r := range m.records {
		if !matches(r, f) {
			continue
		}
		r.Score = cosineSimilarity(vec, r.Embedding)
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func matches(r types.Record, f types.Filter) bool {
	if len(f.DocTypes) > 0 {
		found := false
		for _, dt := range f.DocTypes {
			if r.DocType == dt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.FilenameContains != "" && !strings.Contains(textnorm.Fold(r.Filename), textnorm.Fold(f.FilenameContains)) {
		return false
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (m *MemoryStore) ExistingSources(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	existing := make(map[string]struct{})
	for _, r := range m.records {
		existing[types.SourceKey(r.DocType, r.Filename)] = struct{}{}
	}
	return existing, nil
}

func (m *MemoryStore) DeleteSource(ctx context.Context, docType types.DocType, filename string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	removed := 0
	for _, r := range m.records {
		if r.DocType == docType && r.Filename == filename {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	m.records = kept
	m.byID = make(map[string]int, len(kept))
	for i, r := range kept {
		m.byID[r.ID] = i
	}
	return removed, m.persist()
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.byID = make(map[string]int)
	return m.persist()
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// persist writes the snapshot atomically. Callers hold the write lock.
func (m *MemoryStore) persist() error {
	if m.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(file).Encode(m.records); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Close is a no-op: every write is already persisted.
func (m *MemoryStore) Close() error {
	return nil
}
