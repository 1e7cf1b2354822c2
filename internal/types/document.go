package types

// RetrievedDocument is the ephemeral result of a knowledge-base query.
// Metadata is derived strictly from the backing document at ingest time;
// Similarity and Distance are attached by the index at query time
// (distance = 1 - cosine similarity, so candidates sort ascending by
// distance, most similar first).
type RetrievedDocument struct {
	DocID      string                 `json:"doc_id"`
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity"`
	Distance   float64                `json:"distance"`
}

// PipelineResult is the response shape assembled once per request.
// RetrievedDocs carries document ids only (at most one in this design) to
// keep the payload small while still surfacing which template was used.
type PipelineResult struct {
	Event         EventInput      `json:"event"`
	RetrievedDocs []string        `json:"retrieved_docs"`
	Tasks         []GeneratedTask `json:"tasks"`
}
