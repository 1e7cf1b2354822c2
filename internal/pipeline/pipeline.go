// Package pipeline sequences retrieval and generation for one event request.
// It carries no business logic of its own: one retriever call, a
// single-element context list, one generator call, result assembly.
package pipeline

import (
	"context"
	"fmt"

	"taskrag/internal/generate"
	"taskrag/internal/logging"
	"taskrag/internal/retrieval"
	"taskrag/internal/types"
)

// FailurePolicy decides what a retrieval-side failure (embedding call or
// index unreachable) does to the request.
type FailurePolicy string

const (
	// PolicyDegrade continues with empty context; generation still runs.
	PolicyDegrade FailurePolicy = "degrade"
	// PolicyAbort fails the whole request.
	PolicyAbort FailurePolicy = "abort"
)

// RetrievalError wraps a retrieval-side failure so callers can map it to a
// distinct response (the HTTP layer returns 502 under PolicyAbort).
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval failed: %v", e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }

// Pipeline wires the retriever and generator.
type Pipeline struct {
	retriever *retrieval.Retriever
	generator *generate.Generator
	policy    FailurePolicy
}

// New creates a Pipeline. An unrecognized policy falls back to PolicyDegrade.
func New(retriever *retrieval.Retriever, generator *generate.Generator, policy FailurePolicy) *Pipeline {
	if policy != PolicyAbort {
		policy = PolicyDegrade
	}
	return &Pipeline{retriever: retriever, generator: generator, policy: policy}
}

// Run processes one validated event: retrieve the best template, generate
// tasks against it, assemble the result. The task list is never empty of
// structure; on total generation failure it carries the sentinel task.
func (p *Pipeline) Run(ctx context.Context, event types.EventInput) (*types.PipelineResult, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "Run")
	defer timer.Stop()

	var contextDocs []*types.RetrievedDocument
	retrievedIDs := []string{}

	doc, err := p.retriever.Retrieve(ctx, event)
	switch {
	case err != nil && p.policy == PolicyAbort:
		return nil, &RetrievalError{Err: err}
	case err != nil:
		logging.Get(logging.CategoryPipeline).Warn("Retrieval failed, continuing with empty context: %v", err)
	case doc != nil:
		contextDocs = []*types.RetrievedDocument{doc}
		retrievedIDs = []string{doc.DocID}
	}

	tasks := p.generator.GenerateOrSentinel(ctx, event, contextDocs)

	logging.Pipeline("Completed: retrieved=%d tasks=%d", len(retrievedIDs), len(tasks))
	return &types.PipelineResult{
		Event:         event,
		RetrievedDocs: retrievedIDs,
		Tasks:         tasks,
	}, nil
}
