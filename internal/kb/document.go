// Package kb loads knowledge-base template documents and ingests them into
// the vector index. Each source document describes one event template: its
// event types, context tags, and the baseline task list departments run for
// that kind of event.
package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BaselineTask is one task row inside a template document.
type BaselineTask struct {
	Name            string `json:"name"`
	OwnerDepartment string `json:"owner_department"`
	Notes           string `json:"notes"`
}

// SourceDocument is one knowledge-base template as stored on disk.
type SourceDocument struct {
	DocID         string         `json:"doc_id"`
	EventType     []string       `json:"event_type"`
	ContextTags   []string       `json:"context_tags"`
	BaselineTasks []BaselineTask `json:"baseline_tasks"`
}

// EmbeddableText renders the document into the flat text that gets embedded
// and later pasted into the prompt context. One line per baseline task:
// "{name} ({owner_department}): {notes}".
func (d *SourceDocument) EmbeddableText() string {
	lines := make([]string, 0, len(d.BaselineTasks))
	for _, t := range d.BaselineTasks {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", t.Name, t.OwnerDepartment, t.Notes))
	}
	return strings.Join(lines, "\n")
}

// BuildMetadata produces the flat metadata record stored alongside the
// vector. Filters at query time match against exactly these keys.
func (d *SourceDocument) BuildMetadata() map[string]interface{} {
	primary := ""
	if len(d.EventType) > 0 {
		primary = d.EventType[0]
	}

	meta := map[string]interface{}{
		"event_type_primary":       primary,
		"event_type_primary_lower": strings.ToLower(primary),
		"tag_vip":                  false,
		"tag_sponsor":              false,
		"tag_outdoor":              false,
	}
	for _, tag := range d.ContextTags {
		switch strings.ToLower(strings.TrimSpace(tag)) {
		case "vip":
			meta["tag_vip"] = true
		case "sponsor":
			meta["tag_sponsor"] = true
		case "outdoor":
			meta["tag_outdoor"] = true
		}
	}
	return meta
}

// Validate reports whether the document carries enough content to be worth
// indexing.
func (d *SourceDocument) Validate() error {
	if len(d.BaselineTasks) == 0 {
		return fmt.Errorf("document %q has no baseline tasks", d.DocID)
	}
	return nil
}

// LoadFile reads one template document. A missing doc_id falls back to the
// filename without extension.
func LoadFile(path string) (*SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc SourceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if doc.DocID == "" {
		base := filepath.Base(path)
		doc.DocID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &doc, nil
}

// LoadDir reads every *.json file directly under dir, sorted by filename so
// ingestion order is stable. Unreadable files are reported, not skipped.
func LoadDir(dir string) ([]*SourceDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]*SourceDocument, 0, len(names))
	for _, name := range names {
		doc, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
