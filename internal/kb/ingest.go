package kb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"taskrag/internal/embedding"
	"taskrag/internal/index"
	"taskrag/internal/logging"
)

// embedConcurrency bounds parallel embedding calls during ingestion.
// Ollama serializes internally anyway; the Gemini API benefits from fan-out.
const embedConcurrency = 8

// Ingestor embeds template documents and writes them into the vector index.
type Ingestor struct {
	engine embedding.EmbeddingEngine
	index  *index.VectorIndex
}

// NewIngestor creates an Ingestor bound to an embedding engine and index.
func NewIngestor(engine embedding.EmbeddingEngine, idx *index.VectorIndex) *Ingestor {
	return &Ingestor{engine: engine, index: idx}
}

// IngestDir loads every template under dir, embeds it, and upserts it into
// the index. With reset, the collection is wiped first so stale documents
// from removed files do not linger. Returns the number of documents indexed.
func (g *Ingestor) IngestDir(ctx context.Context, dir string, reset bool) (int, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "IngestDir")
	defer timer.Stop()

	docs, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("no template documents found in %s", dir)
	}

	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			return 0, err
		}
	}

	indexed := make([]index.IndexedDocument, len(docs))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(embedConcurrency)

	for i, doc := range docs {
		i, doc := i, doc
		eg.Go(func() error {
			text := doc.EmbeddableText()
			vec, err := embedding.EmbedForTask(ectx, g.engine, text, embedding.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("failed to embed %s: %w", doc.DocID, err)
			}
			indexed[i] = index.IndexedDocument{
				DocID:     doc.DocID,
				Content:   text,
				Embedding: vec,
				Metadata:  doc.BuildMetadata(),
			}
			logging.IngestDebug("Embedded %s (%d chars)", doc.DocID, len(text))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	if reset {
		if err := g.index.DeleteCollection(); err != nil {
			return 0, fmt.Errorf("failed to reset collection: %w", err)
		}
		logging.Ingest("Collection reset before ingestion")
	}

	// Record dimensions from the vectors actually produced, not the engine's
	// advertised value: Ollama only learns its true dimension on first embed.
	if err := g.index.EnsureCollection(g.engine.Name(), len(indexed[0].Embedding)); err != nil {
		return 0, err
	}

	if err := g.index.Upsert(ctx, indexed); err != nil {
		return 0, err
	}

	logging.Ingest("Ingested %d documents from %s", len(indexed), dir)
	return len(indexed), nil
}

// Watch re-ingests the directory whenever a *.json file under it changes.
// Events are debounced so a burst of editor saves triggers one re-ingest.
// Blocks until ctx is canceled.
func (g *Ingestor) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Ingest("Watching directory: %s", dir)

	const debounce = 500 * time.Millisecond
	var mu sync.Mutex
	var pending *time.Timer

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(debounce, func() {
			n, err := g.IngestDir(ctx, dir, false)
			if err != nil {
				logging.Get(logging.CategoryIngest).Error("Re-ingest failed: %v", err)
				return
			}
			logging.Ingest("Re-ingested %d documents after change", n)
		})
	}
	defer func() {
		mu.Lock()
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logging.IngestDebug("Change detected: %s (%s)", event.Name, event.Op)
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryIngest).Warn("Watcher error: %v", err)
		}
	}
}
