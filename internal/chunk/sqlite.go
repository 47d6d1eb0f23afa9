package chunk

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/tokens"
)

// SQLiteStore is a Store backed by a SQLite database. Chunk text is indexed
// by an external-content FTS5 table kept in sync by triggers; vectors are
// stored as little-endian float32 blobs and scanned in process.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create chunk db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "open chunk db", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "set pragma", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS chunks (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		project TEXT NOT NULL,
		node_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		chunk_type TEXT NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		content_hash TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_node ON chunks(node_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		model TEXT NOT NULL,
		vector BLOB NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (chunk_id, model)
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		content,
		content='chunks',
		content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_au AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	END`,
}

func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return ckgerr.Wrap(ckgerr.StoreUnavailable, "init chunk schema", err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	return s.ReplaceNodes(ctx, nil, chunks)
}

func (s *SQLiteStore) DeleteByNode(ctx context.Context, nodeID string) error {
	return s.ReplaceNodes(ctx, []string{nodeID}, nil)
}

func (s *SQLiteStore) DeleteByNodes(ctx context.Context, nodeIDs []string) error {
	return s.ReplaceNodes(ctx, nodeIDs, nil)
}

func (s *SQLiteStore) ReplaceNodes(ctx context.Context, nodeIDs []string, chunks []Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return ckgerr.Wrap(ckgerr.InvalidArgument, "replace chunks", err)
	}
	return s.tx(ctx, "replace chunks", func(tx *sql.Tx) error {
		keep := make(map[string]string, len(chunks))
		for _, c := range chunks {
			keep[c.ID] = c.ContentHash
		}
		for _, nodeID := range nodeIDs {
			rows, err := tx.QueryContext(ctx, `SELECT id, content_hash FROM chunks WHERE node_id = ?`, nodeID)
			if err != nil {
				return err
			}
			var drop []string
			for rows.Next() {
				var id, hash string
				if err := rows.Scan(&id, &hash); err != nil {
					rows.Close()
					return err
				}
				if h, ok := keep[id]; !ok || h != hash {
					drop = append(drop, id)
				}
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
			// Chunks that reappear unchanged keep their row and embeddings.
			for _, id := range drop {
				if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE chunk_id = ?`, id); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
					return err
				}
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, project, node_id, file_path, chunk_type, content, token_count, start_line, end_line, ordinal, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				project = excluded.project,
				node_id = excluded.node_id,
				file_path = excluded.file_path,
				chunk_type = excluded.chunk_type,
				content = excluded.content,
				token_count = excluded.token_count,
				start_line = excluded.start_line,
				end_line = excluded.end_line,
				ordinal = excluded.ordinal,
				content_hash = excluded.content_hash`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range chunks {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM embeddings WHERE chunk_id = ? AND content_hash <> ?`, c.ID, c.ContentHash); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.ProjectID, c.NodeID, c.FilePath, string(c.ChunkType),
				c.Content, c.TokenCount, c.StartLine, c.EndLine, c.Ordinal, c.ContentHash); err != nil {
				return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	return s.tx(ctx, "upsert embeddings", func(tx *sql.Tx) error {
		for _, e := range embeddings {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE id = ?`, e.ChunkID).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				return ckgerr.Errorf(ckgerr.IndexCorruption, "embedding for missing chunk %s", e.ChunkID)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO embeddings (chunk_id, model, vector, content_hash) VALUES (?, ?, ?, ?)
				ON CONFLICT(chunk_id, model) DO UPDATE SET vector = excluded.vector, content_hash = excluded.content_hash`,
				e.ChunkID, e.Model, encodeVector(e.Vector), e.ContentHash); err != nil {
				return fmt.Errorf("upsert embedding %s: %w", e.ChunkID, err)
			}
		}
		return nil
	})
}

const chunkColumns = `c.id, c.project, c.node_id, c.file_path, c.chunk_type, c.content, c.token_count, c.start_line, c.end_line, c.ordinal, c.content_hash`

func scanChunk(sc interface{ Scan(...any) error }, extra ...any) (Chunk, error) {
	var c Chunk
	var t string
	dest := append([]any{&c.ID, &c.ProjectID, &c.NodeID, &c.FilePath, &t, &c.Content,
		&c.TokenCount, &c.StartLine, &c.EndLine, &c.Ordinal, &c.ContentHash}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return Chunk{}, err
	}
	c.ChunkType = Type(t)
	return c, nil
}

func (s *SQLiteStore) ChunksByNode(ctx context.Context, nodeID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks c WHERE c.node_id = ?`, nodeID)
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

func (s *SQLiteStore) Embeddings(ctx context.Context, chunkIDs []string, model string) ([]Embedding, error) {
	var out []Embedding
	for _, id := range chunkIDs {
		var blob []byte
		var hash string
		err := s.db.QueryRowContext(ctx,
			`SELECT vector, content_hash FROM embeddings WHERE chunk_id = ? AND model = ?`, id, model).Scan(&blob, &hash)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, storeErr(ctx, "embeddings", err)
		}
		out = append(out, Embedding{ChunkID: id, Model: model, Vector: decodeVector(blob), ContentHash: hash})
	}
	return out, nil
}

func (s *SQLiteStore) SimilaritySearch(ctx context.Context, projectID, model string, vector []float32, limit int, minScore float64) ([]ScoredChunk, error) {
	minScore = minScoreOrDefault(minScore)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`, e.vector
		FROM embeddings e JOIN chunks c ON c.id = e.chunk_id
		WHERE c.project = ? AND e.model = ?`, projectID, model)
	if err != nil {
		return nil, storeErr(ctx, "similarity search", err)
	}
	defer rows.Close()
	var hits []ScoredChunk
	for rows.Next() {
		var blob []byte
		c, err := scanChunk(rows, &blob)
		if err != nil {
			return nil, storeErr(ctx, "scan chunk", err)
		}
		if score := Cosine(vector, decodeVector(blob)); score >= minScore {
			hits = append(hits, ScoredChunk{Chunk: c, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(ctx, "similarity search", err)
	}
	sortScored(hits)
	return truncate(hits, limit), nil
}

func (s *SQLiteStore) TextSearch(ctx context.Context, projectID, text string, limit int) ([]ScoredChunk, error) {
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	// bm25 is lower-is-better; negate so larger scores rank first.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`, -bm25(chunks_fts) AS score
		FROM chunks_fts JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND c.project = ?
		ORDER BY score DESC
		LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, storeErr(ctx, "text search", err)
	}
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
		return nil, storeErr(ctx, "text search", err)
	}
	normalize(hits)
	sortScored(hits)
	return hits, nil
}

func (s *SQLiteStore) NodeIDs(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT node_id FROM chunks WHERE project = ? ORDER BY node_id`, projectID)
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

func (s *SQLiteStore) Stats(ctx context.Context, projectID string) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks WHERE project = ?),
			(SELECT COUNT(*) FROM embeddings e JOIN chunks c ON c.id = e.chunk_id WHERE c.project = ?)`,
		projectID, projectID).Scan(&st.Chunks, &st.Embeddings)
	if err != nil {
		return nil, storeErr(ctx, "chunk stats", err)
	}
	return st, nil
}

// tx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) tx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
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

// storeErr classifies a driver error: cancellations become Timeout, the
// rest StoreUnavailable.
func storeErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ckgerr.Wrap(ckgerr.Timeout, op, err)
	}
	return ckgerr.Wrap(ckgerr.StoreUnavailable, op, err)
}

// ftsQuery turns free text into an FTS5 OR-query of quoted words.
func ftsQuery(text string) string {
	words := tokens.Words(text)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " OR ")
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
