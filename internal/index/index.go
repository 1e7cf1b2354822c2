// Package index implements the persistent vector index over SQLite.
// Documents are stored with their embedding (JSON-serialized) and a flat
// metadata record; queries run a cosine similarity scan with an optional
// single-clause metadata equality filter.
//
// The serving path only reads; writes happen through the ingestor. A single
// connection with WAL keeps concurrent readers safe.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"taskrag/internal/embedding"
	"taskrag/internal/logging"
)

// IndexedDocument is one knowledge-base entry to upsert.
type IndexedDocument struct {
	DocID     string
	Content   string
	Embedding []float32
	Metadata  map[string]interface{}
}

// Candidate is a query result, sorted ascending by Distance (most similar
// first). Distance = 1 - cosine similarity.
type Candidate struct {
	DocID      string
	Content    string
	Metadata   map[string]interface{}
	Similarity float64
	Distance   float64
}

// Filter is a single metadata equality clause. Only one clause is ever
// applied per query; the retriever picks it by precedence.
type Filter struct {
	Key   string
	Value interface{}
}

// VectorIndex is a SQLite-backed nearest-neighbor store.
type VectorIndex struct {
	db         *sql.DB
	mu         sync.RWMutex
	dbPath     string
	collection string
}

// Open initializes the SQLite database at the given path and scopes all
// operations to the named collection.
func Open(path, collection string) (*VectorIndex, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "Open")
	defer timer.Stop()

	if collection == "" {
		return nil, fmt.Errorf("collection name required")
	}

	logging.Index("Opening vector index at %s (collection=%s)", path, collection)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.IndexDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.IndexDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.IndexDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	idx := &VectorIndex{db: db, dbPath: path, collection: collection}
	if err := idx.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

func (x *VectorIndex) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		model      TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS documents (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		doc_id     TEXT NOT NULL,
		content    TEXT NOT NULL,
		embedding  TEXT NOT NULL,
		metadata   TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(collection, doc_id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`
	_, err := x.db.Exec(schema)
	return err
}

// EnsureCollection records (or verifies) the embedding model and dimensions
// for this collection. Mixing models within a collection is rejected because
// their similarity scores are not comparable.
func (x *VectorIndex) EnsureCollection(model string, dimensions int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var existingModel string
	var existingDims int
	err := x.db.QueryRow(
		"SELECT model, dimensions FROM collections WHERE name = ?", x.collection,
	).Scan(&existingModel, &existingDims)

	switch {
	case err == sql.ErrNoRows:
		_, err = x.db.Exec(
			"INSERT INTO collections (name, model, dimensions) VALUES (?, ?, ?)",
			x.collection, model, dimensions,
		)
		return err
	case err != nil:
		return err
	}

	if existingModel != model {
		return fmt.Errorf("collection %q was built with model %q, refusing to write with %q (re-ingest with --reset)",
			x.collection, existingModel, model)
	}
	if existingDims != dimensions {
		return fmt.Errorf("collection %q stores %d-dim vectors, engine produces %d", x.collection, existingDims, dimensions)
	}
	return nil
}

// Upsert inserts or replaces documents by doc_id. Re-ingesting the same id
// overwrites its vector and metadata.
func (x *VectorIndex) Upsert(ctx context.Context, docs []IndexedDocument) error {
	timer := logging.StartTimer(logging.CategoryIndex, "Upsert")
	defer timer.Stop()

	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, doc_id, content, embedding, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, doc_id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if doc.DocID == "" {
			return fmt.Errorf("document with empty doc_id")
		}

		embJSON, err := json.Marshal(doc.Embedding)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding for %s: %w", doc.DocID, err)
		}
		metaJSON, _ := json.Marshal(doc.Metadata)

		if _, err := stmt.ExecContext(ctx, x.collection, doc.DocID, doc.Content, string(embJSON), string(metaJSON)); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", doc.DocID, err)
		}
		logging.IndexDebug("Upserted document %s (content=%d bytes)", doc.DocID, len(doc.Content))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	logging.Index("Upserted %d documents into collection %s", len(docs), x.collection)
	return nil
}

// Query performs a cosine similarity search, optionally restricted by a
// single metadata equality filter. Results are sorted ascending by distance;
// at most topK candidates are returned.
func (x *VectorIndex) Query(ctx context.Context, queryEmbedding []float32, topK int, filter *Filter) ([]Candidate, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "Query")
	defer timer.Stop()

	x.mu.RLock()
	defer x.mu.RUnlock()

	if topK <= 0 {
		topK = 10
	}

	rows, err := x.db.QueryContext(ctx,
		"SELECT doc_id, content, embedding, metadata FROM documents WHERE collection = ?",
		x.collection,
	)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	skipped := 0

	for rows.Next() {
		var docID, content, embJSON string
		var metaJSON sql.NullString

		if err := rows.Scan(&docID, &content, &embJSON, &metaJSON); err != nil {
			skipped++
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			skipped++
			continue
		}

		var meta map[string]interface{}
		if metaJSON.Valid && metaJSON.String != "" {
			json.Unmarshal([]byte(metaJSON.String), &meta)
		}

		if filter != nil && !matchesMetadata(meta, filter.Key, filter.Value) {
			continue
		}

		similarity, err := embedding.CosineSimilarity(queryEmbedding, vec)
		if err != nil {
			skipped++
			continue
		}

		candidates = append(candidates, Candidate{
			DocID:      docID,
			Content:    content,
			Metadata:   meta,
			Similarity: similarity,
			Distance:   1 - similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	if skipped > 0 {
		logging.Get(logging.CategoryIndex).Warn("Query skipped %d unreadable or mismatched rows", skipped)
	}

	// Ascending distance: most similar first.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	logging.IndexDebug("Query returned %d candidates (topK=%d, filtered=%v)", len(candidates), topK, filter != nil)
	return candidates, nil
}

// matchesMetadata checks a single equality clause against a metadata record.
// Values are compared through their string form so JSON number decoding
// (float64) still matches integer filter values.
func matchesMetadata(meta map[string]interface{}, key string, value interface{}) bool {
	if key == "" {
		return true
	}
	if meta == nil {
		return false
	}
	got, ok := meta[key]
	if !ok {
		return false
	}
	if got == value {
		return true
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", value)
}

// Count returns the number of documents in the collection.
func (x *VectorIndex) Count() (int64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var n int64
	err := x.db.QueryRow("SELECT COUNT(*) FROM documents WHERE collection = ?", x.collection).Scan(&n)
	return n, err
}

// Stats returns statistics about the collection.
func (x *VectorIndex) Stats() (map[string]interface{}, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["collection"] = x.collection

	var total int64
	x.db.QueryRow("SELECT COUNT(*) FROM documents WHERE collection = ?", x.collection).Scan(&total)
	stats["total_documents"] = total

	var model string
	var dims int
	err := x.db.QueryRow("SELECT model, dimensions FROM collections WHERE name = ?", x.collection).Scan(&model, &dims)
	if err == nil {
		stats["embedding_model"] = model
		stats["dimensions"] = dims
	}

	return stats, nil
}

// DeleteCollection removes all documents and the collection record.
// Only the ingestor's --reset path calls this; the serving path never deletes.
func (x *VectorIndex) DeleteCollection() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.Exec("DELETE FROM documents WHERE collection = ?", x.collection); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	if _, err := x.db.Exec("DELETE FROM collections WHERE name = ?", x.collection); err != nil {
		return fmt.Errorf("failed to delete collection record: %w", err)
	}
	logging.Index("Deleted collection %s", x.collection)
	return nil
}

// Close closes the underlying database.
func (x *VectorIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.db.Close()
}
