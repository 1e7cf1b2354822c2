package retrieval

import (
	"context"
	"testing"

	"taskrag/internal/index"
	"taskrag/internal/types"
)

// fakeEngine counts calls so tests can assert the index was never touched
// for empty queries.
type fakeEngine struct {
	embedCalls int
	vec        []float32
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.vec != nil {
		return f.vec, nil
	}
	return []float32{1, 0}, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 2 }
func (f *fakeEngine) Name() string    { return "fake" }

func seedIndex(t *testing.T) *index.VectorIndex {
	t.Helper()
	idx, err := index.Open(":memory:", "test_kb")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	docs := []index.IndexedDocument{
		{
			DocID: "vip_gala", Content: "vip gala template", Embedding: []float32{1, 0},
			Metadata: map[string]interface{}{"tag_vip": true, "tag_sponsor": false, "tag_outdoor": false, "event_type_primary_lower": "gala"},
		},
		{
			DocID: "sponsor_expo", Content: "sponsor expo template", Embedding: []float32{1, 0.1},
			Metadata: map[string]interface{}{"tag_vip": false, "tag_sponsor": true, "tag_outdoor": false, "event_type_primary_lower": "expo"},
		},
		{
			DocID: "outdoor_fair", Content: "outdoor fair template", Embedding: []float32{0.9, 0.2},
			Metadata: map[string]interface{}{"tag_vip": false, "tag_sponsor": false, "tag_outdoor": true, "event_type_primary_lower": "fair"},
		},
	}
	if err := idx.Upsert(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	return idx
}

func boolPtr(b bool) *bool { return &b }

func TestRetrieveEmptyQuerySkipsIndex(t *testing.T) {
	engine := &fakeEngine{}
	r := New(engine, seedIndex(t), Options{})

	doc, err := r.Retrieve(context.Background(), types.EventInput{})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil document, got %+v", doc)
	}
	if engine.embedCalls != 0 {
		t.Errorf("embedder called %d times for empty query, want 0", engine.embedCalls)
	}
}

func TestRetrieveTopOne(t *testing.T) {
	r := New(&fakeEngine{}, seedIndex(t), Options{})

	doc, err := r.Retrieve(context.Background(), types.EventInput{Description: "a fancy gala dinner"})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc == nil {
		t.Fatal("expected a document")
	}
	if doc.DocID != "vip_gala" {
		t.Errorf("DocID = %q, want closest vector vip_gala", doc.DocID)
	}
	if doc.Metadata["similarity"] == nil || doc.Metadata["distance"] == nil {
		t.Error("metadata should carry similarity and distance scores")
	}
}

func TestRetrieveVIPPrecedesSponsor(t *testing.T) {
	r := New(&fakeEngine{vec: []float32{1, 0.1}}, seedIndex(t), Options{})

	event := types.EventInput{
		Description: "corporate event",
		HasVIP:      boolPtr(true),
		HasSponsor:  boolPtr(true),
	}
	doc, err := r.Retrieve(context.Background(), event)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc == nil || doc.DocID != "vip_gala" {
		t.Fatalf("expected vip filter to win over sponsor, got %+v", doc)
	}
}

func TestRetrieveSponsorPrecedesOutdoor(t *testing.T) {
	r := New(&fakeEngine{}, seedIndex(t), Options{})

	event := types.EventInput{
		Description: "corporate event",
		HasSponsor:  boolPtr(true),
		Outdoor:     boolPtr(true),
	}
	doc, err := r.Retrieve(context.Background(), event)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc == nil || doc.DocID != "sponsor_expo" {
		t.Fatalf("expected sponsor filter to win over outdoor, got %+v", doc)
	}
}

func TestRetrieveEventTypeFilter(t *testing.T) {
	r := New(&fakeEngine{}, seedIndex(t), Options{})

	event := types.EventInput{
		Description:    "something by the lake",
		EventTypeGuess: "Fair",
	}
	doc, err := r.Retrieve(context.Background(), event)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc == nil || doc.DocID != "outdoor_fair" {
		t.Fatalf("expected lowercased event_type filter match, got %+v", doc)
	}
}

func TestRetrieveFalseFlagsDeriveNoFilter(t *testing.T) {
	r := New(&fakeEngine{}, seedIndex(t), Options{})

	event := types.EventInput{
		Description: "plain event",
		HasVIP:      boolPtr(false),
		HasSponsor:  boolPtr(false),
		Outdoor:     boolPtr(false),
	}
	doc, err := r.Retrieve(context.Background(), event)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc == nil {
		t.Fatal("expected unfiltered top-1 result")
	}
	if doc.DocID != "vip_gala" {
		t.Errorf("DocID = %q, want closest overall", doc.DocID)
	}
}

func TestRetrieveCustomPrecedence(t *testing.T) {
	r := New(&fakeEngine{}, seedIndex(t), Options{
		Precedence: []string{FilterOutdoor, FilterVIP},
	})

	event := types.EventInput{
		Description: "corporate event",
		HasVIP:      boolPtr(true),
		Outdoor:     boolPtr(true),
	}
	doc, err := r.Retrieve(context.Background(), event)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc == nil || doc.DocID != "outdoor_fair" {
		t.Fatalf("custom precedence should pick outdoor first, got %+v", doc)
	}
}

func TestRetrieveBelowFloorStillReturns(t *testing.T) {
	idx, err := index.Open(":memory:", "test_kb")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	// Orthogonal vector: similarity 0, well below the floor.
	if err := idx.Upsert(context.Background(), []index.IndexedDocument{
		{DocID: "weak", Content: "weak", Embedding: []float32{0, 1}},
	}); err != nil {
		t.Fatal(err)
	}

	r := New(&fakeEngine{}, idx, Options{MinSimilarity: 0.30})
	doc, err := r.Retrieve(context.Background(), types.EventInput{Description: "anything"})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc == nil || doc.DocID != "weak" {
		t.Fatalf("floor must not exclude the only candidate, got %+v", doc)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	idx, err := index.Open(":memory:", "test_kb")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	r := New(&fakeEngine{}, idx, Options{})
	doc, err := r.Retrieve(context.Background(), types.EventInput{Description: "anything"})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil from empty index, got %+v", doc)
	}
}
