package index

import (
	"context"
	"testing"
)

func openTestIndex(t *testing.T) *VectorIndex {
	t.Helper()
	idx, err := Open(":memory:", "test_kb")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpsertAndCount(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docs := []IndexedDocument{
		{DocID: "a", Content: "alpha", Embedding: []float32{1, 0, 0}},
		{DocID: "b", Content: "beta", Embedding: []float32{0, 1, 0}},
	}
	if err := idx.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	n, err := idx.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestUpsertReplacesByDocID(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, []IndexedDocument{
		{DocID: "a", Content: "old", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	if err := idx.Upsert(ctx, []IndexedDocument{
		{DocID: "a", Content: "new", Embedding: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	n, _ := idx.Count()
	if n != 1 {
		t.Fatalf("Count = %d, want 1 after replace", n)
	}

	cands, err := idx.Query(ctx, []float32{0, 1}, 5, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cands) != 1 || cands[0].Content != "new" {
		t.Errorf("expected replaced content, got %+v", cands)
	}
}

func TestUpsertRejectsEmptyDocID(t *testing.T) {
	idx := openTestIndex(t)
	err := idx.Upsert(context.Background(), []IndexedDocument{{DocID: "", Content: "x"}})
	if err == nil {
		t.Fatal("expected error for empty doc_id")
	}
}

func TestQueryOrdering(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docs := []IndexedDocument{
		{DocID: "far", Content: "far", Embedding: []float32{0, 1, 0}},
		{DocID: "near", Content: "near", Embedding: []float32{1, 0, 0}},
		{DocID: "mid", Content: "mid", Embedding: []float32{1, 1, 0}},
	}
	if err := idx.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cands, err := idx.Query(ctx, []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}
	if cands[0].DocID != "near" || cands[1].DocID != "mid" || cands[2].DocID != "far" {
		t.Errorf("unexpected order: %s, %s, %s", cands[0].DocID, cands[1].DocID, cands[2].DocID)
	}
	if cands[0].Distance > cands[1].Distance || cands[1].Distance > cands[2].Distance {
		t.Errorf("distances not ascending: %v %v %v", cands[0].Distance, cands[1].Distance, cands[2].Distance)
	}
	if d := cands[0].Distance; d > 1e-6 {
		t.Errorf("identical vector distance = %v, want ~0", d)
	}
}

func TestQueryTopK(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	var docs []IndexedDocument
	for i := 0; i < 5; i++ {
		docs = append(docs, IndexedDocument{
			DocID:     string(rune('a' + i)),
			Content:   "doc",
			Embedding: []float32{1, float32(i)},
		})
	}
	if err := idx.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cands, err := idx.Query(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cands) != 2 {
		t.Errorf("got %d candidates, want 2", len(cands))
	}
}

func TestQueryMetadataFilter(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docs := []IndexedDocument{
		{DocID: "vip", Content: "vip doc", Embedding: []float32{1, 0},
			Metadata: map[string]interface{}{"tag_vip": true, "event_type_primary_lower": "gala"}},
		{DocID: "plain", Content: "plain doc", Embedding: []float32{1, 0},
			Metadata: map[string]interface{}{"tag_vip": false, "event_type_primary_lower": "meetup"}},
	}
	if err := idx.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cands, err := idx.Query(ctx, []float32{1, 0}, 10, &Filter{Key: "tag_vip", Value: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cands) != 1 || cands[0].DocID != "vip" {
		t.Fatalf("filter tag_vip=true returned %+v", cands)
	}

	cands, err = idx.Query(ctx, []float32{1, 0}, 10, &Filter{Key: "event_type_primary_lower", Value: "meetup"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cands) != 1 || cands[0].DocID != "plain" {
		t.Fatalf("filter event_type returned %+v", cands)
	}

	// Filter on a key no document carries matches nothing.
	cands, err = idx.Query(ctx, []float32{1, 0}, 10, &Filter{Key: "tag_outdoor", Value: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("expected no matches, got %d", len(cands))
	}
}

func TestQuerySkipsDimensionMismatch(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docs := []IndexedDocument{
		{DocID: "good", Content: "good", Embedding: []float32{1, 0, 0}},
		{DocID: "bad", Content: "bad", Embedding: []float32{1, 0}},
	}
	if err := idx.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cands, err := idx.Query(ctx, []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(cands) != 1 || cands[0].DocID != "good" {
		t.Errorf("expected mismatched row skipped, got %+v", cands)
	}
}

func TestEnsureCollectionModelGuard(t *testing.T) {
	idx := openTestIndex(t)

	if err := idx.EnsureCollection("all-minilm", 384); err != nil {
		t.Fatalf("first EnsureCollection failed: %v", err)
	}
	if err := idx.EnsureCollection("all-minilm", 384); err != nil {
		t.Fatalf("idempotent EnsureCollection failed: %v", err)
	}
	if err := idx.EnsureCollection("other-model", 384); err == nil {
		t.Error("expected model mismatch error")
	}
	if err := idx.EnsureCollection("all-minilm", 768); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestDeleteCollection(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.EnsureCollection("all-minilm", 2); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	if err := idx.Upsert(ctx, []IndexedDocument{
		{DocID: "a", Content: "x", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := idx.DeleteCollection(); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	n, _ := idx.Count()
	if n != 0 {
		t.Errorf("Count = %d after delete, want 0", n)
	}

	// A fresh model registration must now succeed.
	if err := idx.EnsureCollection("other-model", 768); err != nil {
		t.Errorf("EnsureCollection after delete failed: %v", err)
	}
}

func TestStats(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.EnsureCollection("all-minilm", 2); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	if err := idx.Upsert(ctx, []IndexedDocument{
		{DocID: "a", Content: "x", Embedding: []float32{1, 0}},
		{DocID: "b", Content: "y", Embedding: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	stats, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["total_documents"].(int64) != 2 {
		t.Errorf("total_documents = %v, want 2", stats["total_documents"])
	}
	if stats["embedding_model"] != "all-minilm" {
		t.Errorf("embedding_model = %v", stats["embedding_model"])
	}
}
