package kb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddableText(t *testing.T) {
	doc := &SourceDocument{
		DocID: "wedding_outdoor",
		BaselineTasks: []BaselineTask{
			{Name: "Book venue", OwnerDepartment: "Operations", Notes: "confirm capacity"},
			{Name: "Arrange catering", OwnerDepartment: "F&B", Notes: "dietary options"},
		},
	}

	want := "Book venue (Operations): confirm capacity\nArrange catering (F&B): dietary options"
	if got := doc.EmbeddableText(); got != want {
		t.Errorf("EmbeddableText = %q, want %q", got, want)
	}
}

func TestBuildMetadata(t *testing.T) {
	doc := &SourceDocument{
		DocID:       "gala",
		EventType:   []string{"Gala Dinner", "Banquet"},
		ContextTags: []string{"VIP", " sponsor "},
	}

	meta := doc.BuildMetadata()
	if meta["event_type_primary"] != "Gala Dinner" {
		t.Errorf("event_type_primary = %v", meta["event_type_primary"])
	}
	if meta["event_type_primary_lower"] != "gala dinner" {
		t.Errorf("event_type_primary_lower = %v", meta["event_type_primary_lower"])
	}
	if meta["tag_vip"] != true {
		t.Error("tag_vip should be true")
	}
	if meta["tag_sponsor"] != true {
		t.Error("tag_sponsor should be true (tags are trimmed and lowercased)")
	}
	if meta["tag_outdoor"] != false {
		t.Error("tag_outdoor should be false")
	}
}

func TestBuildMetadataEmptyEventType(t *testing.T) {
	doc := &SourceDocument{DocID: "bare"}
	meta := doc.BuildMetadata()
	if meta["event_type_primary"] != "" || meta["event_type_primary_lower"] != "" {
		t.Errorf("empty event type should yield empty primary, got %v / %v",
			meta["event_type_primary"], meta["event_type_primary_lower"])
	}
}

func TestLoadFileDocIDFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "company_retreat.json")
	content := `{"event_type": ["Retreat"], "baseline_tasks": [{"name": "Plan agenda", "owner_department": "HR", "notes": "two days"}]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if doc.DocID != "company_retreat" {
		t.Errorf("DocID = %q, want filename fallback %q", doc.DocID, "company_retreat")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b_doc.json": `{"doc_id": "b", "baseline_tasks": [{"name": "x", "owner_department": "Ops", "notes": ""}]}`,
		"a_doc.json": `{"doc_id": "a", "baseline_tasks": [{"name": "y", "owner_department": "Ops", "notes": ""}]}`,
		"notes.txt":  `ignored`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	// Sorted by filename: a_doc before b_doc.
	if docs[0].DocID != "a" || docs[1].DocID != "b" {
		t.Errorf("unexpected order: %s, %s", docs[0].DocID, docs[1].DocID)
	}
}

func TestLoadDirBadJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected parse error")
	}
}
