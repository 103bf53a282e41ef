package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"legischat/textnorm"
	"legischat/types"
)

// Index is the external vector index: upsert by id, filtered similarity
// search, provenance probe and reset.
type Index interface {
	Upsert(ctx context.Context, records []types.Record) error
	Search(ctx context.Context, vec []float32, k int, f types.Filter) ([]types.Record, error)
	ExistingSources(ctx context.Context) (map[string]struct{}, error)
	// DeleteSource removes every record of one document and returns how
	// many were removed.
	DeleteSource(ctx context.Context, docType types.DocType, filename string) (int, error)
	Clear(ctx context.Context) error
}

// maxIndexedDim is the largest vector dimension pgvector can build an HNSW index for.
const maxIndexedDim = 2000

type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	dim    int
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr, table string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		table:  table,
		dim:    dim,
		logger: slog.Default(),
	}, nil
}

func (p *PostgresStore) ident() string {
	return pgx.Identifier{p.table}.Sanitize()
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	t := p.ident()
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;
	CREATE EXTENSION IF NOT EXISTS unaccent;

	CREATE TABLE IF NOT EXISTS %[1]s (
		id TEXT PRIMARY KEY,
		doc_type TEXT NOT NULL,
		filename TEXT NOT NULL,
		source TEXT,
		page INT NOT NULL,
		page_label TEXT,
		position INT NOT NULL,
		search_text TEXT NOT NULL,
		full_text TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		embedding vector(%[2]d) NOT NULL
	);

	-- filter indexes
	CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s(doc_type);
	CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s(filename);
	`, t, p.dim,
		pgx.Identifier{"idx_" + p.table + "_doc_type"}.Sanitize(),
		pgx.Identifier{"idx_" + p.table + "_filename"}.Sanitize(),
	)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return err
	}

	if p.dim > maxIndexedDim {
		p.logger.Info("[STORE] embedding dimension too large for an ANN index, using exact search", "dim", p.dim)
		return nil
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{"idx_" + p.table + "_embedding"}.Sanitize(), t))
	return err
}

// Upsert writes all records in one transaction, so a batch either lands
// completely or not at all.
func (p *PostgresStore) Upsert(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
	INSERT INTO %s (id, doc_type, filename, source, page, page_label, position, search_text, full_text, created_at, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
		search_text = EXCLUDED.search_text,
		full_text = EXCLUDED.full_text,
		embedding = EXCLUDED.embedding
	`, p.ident())

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(query,
				r.ID, string(r.DocType), r.Filename, r.Source, r.Page, r.PageLabel, r.Index,
				r.SearchText, r.FullText, r.CreatedAt, pgvector.NewVector(r.Embedding),
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d records: %w", types.ErrIndexUnavailable, len(records), err)
	}
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, vec []float32, k int, f types.Filter) ([]types.Record, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	query, args := buildSearchQuery(p.ident(), pgvector.NewVector(vec), k, f)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", types.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		var r types.Record
		var docType string
		if err := rows.Scan(
			&r.ID,
			&docType,
			&r.Filename,
			&r.Source,
			&r.Page,
			&r.PageLabel,
			&r.Index,
			&r.SearchText,
			&r.FullText,
			&r.CreatedAt,
			&r.Score); err != nil {
			return nil, err
		}
		r.DocType = types.DocType(docType)
		p.logger.Debug("[SEARCH] found chunk", "id", r.ID, "score", r.Score)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search: %w", types.ErrIndexUnavailable, err)
	}
	return records, nil
}

// buildSearchQuery renders the filtered nearest-neighbour query. The vector
// is always $1.
func buildSearchQuery(table string, vec any, k int, f types.Filter) (string, []any) {
	args := []any{vec}
	var where []string
	if len(f.DocTypes) > 0 {
		docTypes := make([]string, len(f.DocTypes))
		for i, dt := range f.DocTypes {
			docTypes[i] = string(dt)
		}
		args = append(args, docTypes)
		where = append(where, fmt.Sprintf("doc_type = ANY($%d)", len(args)))
	}
	if f.FilenameContains != "" {
		args = append(args, "%"+escapeLike(textnorm.Fold(f.FilenameContains))+"%")
		where = append(where, fmt.Sprintf("unaccent(lower(filename)) LIKE $%d", len(args)))
	}
	args = append(args, k)

	var sb strings.Builder
	sb.WriteString("SELECT id, doc_type, filename, source, page, page_label, position, search_text, full_text, created_at,\n")
	sb.WriteString("       1 - (embedding <=> $1) AS score\n")
	sb.WriteString("FROM " + table + "\n")
	if len(where) > 0 {
		sb.WriteString("WHERE " + strings.Join(where, " AND ") + "\n")
	}
	sb.WriteString(fmt.Sprintf("ORDER BY embedding <=> $1\nLIMIT $%d", len(args)))
	return sb.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (p *PostgresStore) ExistingSources(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT DISTINCT doc_type, filename FROM %s", p.ident()))
	if err != nil {
		return nil, fmt.Errorf("%w: existing sources: %w", types.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var docType, filename string
		if err := rows.Scan(&docType, &filename); err != nil {
			return nil, err
		}
		existing[types.SourceKey(types.DocType(docType), filename)] = struct{}{}
	}
	return existing, rows.Err()
}

func (p *PostgresStore) DeleteSource(ctx context.Context, docType types.DocType, filename string) (int, error) {
	tag, err := p.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE doc_type = $1 AND filename = $2", p.ident()),
		string(docType), filename)
	if err != nil {
		return 0, fmt.Errorf("%w: delete %s: %w", types.ErrIndexUnavailable, types.SourceKey(docType, filename), err)
	}
	return int(tag.RowsAffected()), nil
}

// Clear removes every record but keeps the schema.
func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", p.ident())); err != nil {
		return fmt.Errorf("%w: clear: %w", types.ErrIndexUnavailable, err)
	}
	p.logger.Info("[STORE] index cleared", "table", p.table)
	return nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("Postgres connection pool is closed")
	}
	return nil
}
