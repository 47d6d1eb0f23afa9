package chunk

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/tokens"
)

// PgStore is a Store backed by PostgreSQL with the pgvector extension.
// Similarity search uses the cosine distance operator; text search uses
// ts_rank over a 'simple' text search configuration.
type PgStore struct {
	db *sql.DB
}

// NewPgStore opens a connection pool to databaseURL.
func NewPgStore(ctx context.Context, databaseURL string) (*PgStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "open database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "ping database", err)
	}
	return &PgStore{db: db}, nil
}

func (s *PgStore) Close() error {
	return s.db.Close()
}

var pgSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS ckg_chunks (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		node_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		chunk_type TEXT NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ckg_chunks_node ON ckg_chunks(node_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ckg_chunks_project ON ckg_chunks(project)`,
	`CREATE INDEX IF NOT EXISTS idx_ckg_chunks_tsv ON ckg_chunks USING GIN (tsv)`,
	`CREATE TABLE IF NOT EXISTS ckg_embeddings (
		chunk_id TEXT NOT NULL REFERENCES ckg_chunks(id) ON DELETE CASCADE,
		model TEXT NOT NULL,
		vector vector NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (chunk_id, model)
	)`,
}

func (s *PgStore) InitSchema(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeErr(ctx, "init chunk schema", err)
		}
	}
	return nil
}

func (s *PgStore) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	return s.ReplaceNodes(ctx, nil, chunks)
}

func (s *PgStore) DeleteByNode(ctx context.Context, nodeID string) error {
	return s.ReplaceNodes(ctx, []string{nodeID}, nil)
}

func (s *PgStore) DeleteByNodes(ctx context.Context, nodeIDs []string) error {
	return s.ReplaceNodes(ctx, nodeIDs, nil)
}

func (s *PgStore) ReplaceNodes(ctx context.Context, nodeIDs []string, chunks []Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return ckgerr.Wrap(ckgerr.InvalidArgument, "replace chunks", err)
	}
	ids := make([]string, len(chunks))
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		hashes[i] = c.ContentHash
	}
	return s.tx(ctx, "replace chunks", func(tx *sql.Tx) error {
		if len(nodeIDs) > 0 {
			// Chunks that reappear unchanged keep their row and embeddings.
			_, err := tx.ExecContext(ctx, `
				DELETE FROM ckg_chunks c
				WHERE c.node_id = ANY($1)
				AND NOT EXISTS (
					SELECT 1 FROM unnest($2::text[], $3::text[]) AS k(id, hash)
					WHERE k.id = c.id AND k.hash = c.content_hash
				)`, pq.Array(nodeIDs), pq.Array(ids), pq.Array(hashes))
			if err != nil {
				return err
			}
		}
		for _, c := range chunks {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM ckg_embeddings WHERE chunk_id = $1 AND content_hash <> $2`, c.ID, c.ContentHash); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ckg_chunks (id, project, node_id, file_path, chunk_type, content, token_count, start_line, end_line, ordinal, content_hash)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (id) DO UPDATE SET
					project = EXCLUDED.project,
					node_id = EXCLUDED.node_id,
					file_path = EXCLUDED.file_path,
					chunk_type = EXCLUDED.chunk_type,
					content = EXCLUDED.content,
					token_count = EXCLUDED.token_count,
					start_line = EXCLUDED.start_line,
					end_line = EXCLUDED.end_line,
					ordinal = EXCLUDED.ordinal,
					content_hash = EXCLUDED.content_hash`,
				c.ID, c.ProjectID, c.NodeID, c.FilePath, string(c.ChunkType), c.Content,
				c.TokenCount, c.StartLine, c.EndLine, c.Ordinal, c.ContentHash)
			if err != nil {
				return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *PgStore) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	return s.tx(ctx, "upsert embeddings", func(tx *sql.Tx) error {
		for _, e := range embeddings {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ckg_chunks WHERE id = $1)`, e.ChunkID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ckgerr.Errorf(ckgerr.IndexCorruption, "embedding for missing chunk %s", e.ChunkID)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ckg_embeddings (chunk_id, model, vector, content_hash) VALUES ($1, $2, $3::vector, $4)
				ON CONFLICT (chunk_id, model) DO UPDATE SET vector = EXCLUDED.vector, content_hash = EXCLUDED.content_hash`,
				e.ChunkID, e.Model, vectorLiteral(e.Vector), e.ContentHash)
			if err != nil {
				return fmt.Errorf("upsert embedding %s: %w", e.ChunkID, err)
			}
		}
		return nil
	})
}

const pgChunkColumns = `c.id, c.project, c.node_id, c.file_path, c.chunk_type, c.content, c.token_count, c.start_line, c.end_line, c.ordinal, c.content_hash`

func (s *PgStore) ChunksByNode(ctx context.Context, nodeID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pgChunkColumns+` FROM ckg_chunks c WHERE c.node_id = $1`, nodeID)
	if err != nil {
		return nil, storeErr(ctx, "chunks by node", err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, storeErr(ctx, "scan chunk", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, "chunks by node", err)
	}
	sortChunks(out)
	return out, nil
}

func (s *PgStore) Embeddings(ctx context.Context, chunkIDs []string, model string) ([]Embedding, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, vector::text, content_hash FROM ckg_embeddings
		WHERE chunk_id = ANY($1) AND model = $2
		ORDER BY chunk_id`, pq.Array(chunkIDs), model)
	if err != nil {
		return nil, storeErr(ctx, "embeddings", err)
	}
	defer rows.Close()
	var out []Embedding
	for rows.Next() {
		var e Embedding
		var lit string
		if err := rows.Scan(&e.ChunkID, &lit, &e.ContentHash); err != nil {
			return nil, storeErr(ctx, "scan embedding", err)
		}
		v, err := parseVectorLiteral(lit)
		if err != nil {
			return nil, ckgerr.Wrap(ckgerr.IndexCorruption, "decode vector of "+e.ChunkID, err)
		}
		e.Model = model
		e.Vector = v
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, "embeddings", err)
	}
	return out, nil
}

func (s *PgStore) SimilaritySearch(ctx context.Context, projectID, model string, vector []float32, limit int, minScore float64) ([]ScoredChunk, error) {
	minScore = minScoreOrDefault(minScore)
	if limit <= 0 {
		limit = 10
	}
	// The materialized CTE filters out other dimensions before the distance
	// operator sees them.
	rows, err := s.db.QueryContext(ctx, `
		WITH candidates AS MATERIALIZED (
			SELECT `+pgChunkColumns+`, e.vector
			FROM ckg_embeddings e JOIN ckg_chunks c ON c.id = e.chunk_id
			WHERE c.project = $2 AND e.model = $3 AND vector_dims(e.vector) = $4
		)
		SELECT id, project, node_id, file_path, chunk_type, content, token_count, start_line, end_line, ordinal, content_hash,
			1 - (vector <=> $1::vector) AS score
		FROM candidates
		WHERE 1 - (vector <=> $1::vector) >= $5
		ORDER BY vector <=> $1::vector, id
		LIMIT $6`, vectorLiteral(vector), projectID, model, len(vector), minScore, limit)
	if err != nil {
		return nil, storeErr(ctx, "similarity search", err)
	}
	return collectScored(ctx, rows, "similarity search", false)
}

func (s *PgStore) TextSearch(ctx context.Context, projectID, text string, limit int) ([]ScoredChunk, error) {
	words := tokens.Words(text)
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgChunkColumns+`, ts_rank(c.tsv, q) AS score
		FROM ckg_chunks c, to_tsquery('simple', $1) q
		WHERE c.project = $2 AND c.tsv @@ q
		ORDER BY score DESC, c.id
		LIMIT $3`, strings.Join(words, " | "), projectID, limit)
	if err != nil {
		return nil, storeErr(ctx, "text search", err)
	}
	return collectScored(ctx, rows, "text search", true)
}

func collectScored(ctx context.Context, rows *sql.Rows, op string, lexical bool) ([]ScoredChunk, error) {
	defer rows.Close()
	var hits []ScoredChunk
	for rows.Next() {
		var score float64
		c, err := scanChunk(rows, &score)
		if err != nil {
			return nil, storeErr(ctx, "scan chunk", err)
		}
		hits = append(hits, ScoredChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, op, err)
	}
	if lexical {
		normalize(hits)
	}
	sortScored(hits)
	return hits, nil
}

func (s *PgStore) NodeIDs(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT node_id FROM ckg_chunks WHERE project = $1 ORDER BY node_id`, projectID)
	if err != nil {
		return nil, storeErr(ctx, "chunk node ids", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr(ctx, "chunk node ids", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, "chunk node ids", err)
	}
	return out, nil
}

func (s *PgStore) Stats(ctx context.Context, projectID string) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ckg_chunks WHERE project = $1),
			(SELECT COUNT(*) FROM ckg_embeddings e JOIN ckg_chunks c ON c.id = e.chunk_id WHERE c.project = $1)`,
		projectID).Scan(&st.Chunks, &st.Embeddings)
	if err != nil {
		return nil, storeErr(ctx, "chunk stats", err)
	}
	return st, nil
}

func (s *PgStore) tx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(ctx, op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if ckgerr.CodeOf(err) != "" {
			return err
		}
		return storeErr(ctx, op, err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr(ctx, op, err)
	}
	return nil
}

// vectorLiteral formats v in pgvector's text form: [1,2,3].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		v[i] = float32(f)
	}
	return v, nil
}
