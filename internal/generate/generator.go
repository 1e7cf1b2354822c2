// Package generate turns an event plus retrieved template context into a
// task list by prompting an LLM and repairing its output. The generator
// never surfaces a hard failure to callers of GenerateOrSentinel: when the
// whole retry ladder is exhausted it degrades to a single visible sentinel
// task carrying the diagnostic, so the HTTP layer is insulated from LLM
// flakiness.
package generate

import (
	"context"
	"fmt"
	"strings"

	"taskrag/internal/llm"
	"taskrag/internal/logging"
	"taskrag/internal/repair"
	"taskrag/internal/types"
)

// Options tunes the generator.
type Options struct {
	// Temperature for the completion call.
	Temperature float64
	// MaxOutputTokens for the first, full-prompt attempt.
	MaxOutputTokens int
	// ContextCharBudget caps the retrieved-context block pasted into the
	// prompt.
	ContextCharBudget int
}

// Generator builds prompts, calls the LLM, and repairs the output.
type Generator struct {
	client        llm.Client
	temperature   float64
	maxTokens     int
	contextBudget int
}

// New creates a Generator over an LLM client.
func New(client llm.Client, opts Options) *Generator {
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.2
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 1600
	}
	budget := opts.ContextCharBudget
	if budget <= 0 {
		budget = 6000
	}
	return &Generator{
		client:        client,
		temperature:   temperature,
		maxTokens:     maxTokens,
		contextBudget: budget,
	}
}

const systemPrompt = `You are an experienced event operations planner. Given an event description and a reference checklist from similar past events, you produce the high-level tasks needed to organize the event. You respond with JSON only.`

// Generate runs the retry ladder and returns the parsed task list. An empty
// list is a valid success (the model returned a well-formed but fully
// filtered response). The returned error is the last attempt's failure when
// every rung fails.
func (g *Generator) Generate(ctx context.Context, event types.EventInput, contextDocs []*types.RetrievedDocument) ([]types.GeneratedTask, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "Generate")
	defer timer.Stop()

	contextBlock := g.buildContextBlock(contextDocs)

	attempts := []struct {
		label      string
		userPrompt string
		opts       llm.Options
	}{
		{
			label:      "full",
			userPrompt: g.buildUserPrompt(event, contextBlock, false),
			opts:       llm.Options{Temperature: g.temperature, MaxTokens: g.maxTokens, ForceJSON: true},
		},
		{
			label:      "short",
			userPrompt: g.buildUserPrompt(event, contextBlock, true),
			opts:       llm.Options{Temperature: g.temperature, MaxTokens: 1200, ForceJSON: true},
		},
		{
			label:      "plain",
			userPrompt: g.buildUserPrompt(event, contextBlock, true),
			opts:       llm.Options{Temperature: g.temperature, MaxTokens: 1200, ForceJSON: false},
		},
	}

	var lastErr error
	for i, attempt := range attempts {
		if i > 0 {
			logging.LLM("Generation retry %d (%s): previous attempt failed: %v", i, attempt.label, lastErr)
		}

		raw, err := g.client.Complete(ctx, systemPrompt, attempt.userPrompt, attempt.opts)
		if err != nil {
			lastErr = fmt.Errorf("completion failed: %w", err)
			continue
		}

		tasks, err := repair.Parse(raw)
		if err != nil {
			lastErr = err
			logging.LLMDebug("Attempt %s parse failed: %v (raw_len=%d)", attempt.label, err, len(raw))
			continue
		}

		logging.LLM("Generated %d tasks on attempt %s", len(tasks), attempt.label)
		return tasks, nil
	}

	return nil, fmt.Errorf("all generation attempts failed: %w", lastErr)
}

// GenerateOrSentinel never fails: on total failure it returns the single
// sentinel task whose description carries the final error.
func (g *Generator) GenerateOrSentinel(ctx context.Context, event types.EventInput, contextDocs []*types.RetrievedDocument) []types.GeneratedTask {
	tasks, err := g.Generate(ctx, event, contextDocs)
	if err != nil {
		logging.Get(logging.CategoryLLM).Error("Generation degraded to sentinel: %v", err)
		return []types.GeneratedTask{types.SentinelTask(err.Error())}
	}
	return tasks
}

// buildContextBlock concatenates retrieved document texts under the
// character budget. With zero documents the block states that explicitly so
// the model does not hallucinate a reference checklist.
func (g *Generator) buildContextBlock(docs []*types.RetrievedDocument) string {
	var sb strings.Builder
	for _, doc := range docs {
		if doc == nil || doc.Text == "" {
			continue
		}
		section := fmt.Sprintf("Reference checklist (%s):\n%s\n\n", doc.DocID, doc.Text)
		if sb.Len()+len(section) > g.contextBudget {
			remaining := g.contextBudget - sb.Len()
			if remaining > 0 {
				sb.WriteString(section[:remaining])
			}
			break
		}
		sb.WriteString(section)
	}
	if sb.Len() == 0 {
		return "No reference checklist is available for this event."
	}
	return strings.TrimSpace(sb.String())
}

// buildUserPrompt renders the event attributes and context block. The short
// variant drops the verbose field guidance and pins the count to exactly 6,
// trading quality for a smaller completion that survives token limits.
func (g *Generator) buildUserPrompt(event types.EventInput, contextBlock string, short bool) string {
	var sb strings.Builder

	sb.WriteString("Event:\n")
	if event.Name != "" {
		fmt.Fprintf(&sb, "- Name: %s\n", event.Name)
	}
	if event.Description != "" {
		fmt.Fprintf(&sb, "- Description: %s\n", event.Description)
	}
	if event.EventTypeGuess != "" {
		fmt.Fprintf(&sb, "- Type: %s\n", event.EventTypeGuess)
	}
	if event.Outdoor != nil {
		fmt.Fprintf(&sb, "- Outdoor: %v\n", *event.Outdoor)
	}
	if event.HasSponsor != nil {
		fmt.Fprintf(&sb, "- Has sponsors: %v\n", *event.HasSponsor)
	}
	if event.HasVIP != nil {
		fmt.Fprintf(&sb, "- Has VIP guests: %v\n", *event.HasVIP)
	}

	sb.WriteString("\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\n")

	if short {
		sb.WriteString(`Produce exactly 6 top-level tasks for organizing this event. ` +
			`Respond with JSON only, no explanation, in the shape ` +
			`{"tasks": [{"title", "description", "departmentId", "parentId": null, "assigneeId": null, "status": "pending", "estimate", "estimateUnit", "progressPct"}]}.`)
		return sb.String()
	}

	sb.WriteString(`Produce 6-8 top-level tasks for organizing this event. Respond with a JSON object of the shape:
{"tasks": [{"title": string, "description": string, "departmentId": string, "parentId": null, "assigneeId": null, "status": "pending", "estimate": integer, "estimateUnit": "hour"|"day"|"week", "progressPct": 0}]}

Constraints:
- Only top-level tasks, no subtasks: parentId and assigneeId are always null.
- description is at most 35 words.
- estimate is a non-negative integer in the given estimateUnit.
- Respond with JSON only.`)
	return sb.String()
}
