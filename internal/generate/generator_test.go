package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"taskrag/internal/llm"
	"taskrag/internal/types"
)

// mockClient replays scripted completions and records each call's options.
type mockClient struct {
	responses []string
	errs      []error
	calls     []llm.Options
	prompts   []string
}

func (m *mockClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.Options) (string, error) {
	i := len(m.calls)
	m.calls = append(m.calls, opts)
	m.prompts = append(m.prompts, userPrompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (m *mockClient) Name() string { return "mock:test" }

func testDoc() *types.RetrievedDocument {
	return &types.RetrievedDocument{
		DocID: "career_fair_template",
		Text:  "Book venue (Ops): large hall\nInvite employers (Marketing): 30 booths",
	}
}

func TestGenerateFirstAttemptSucceeds(t *testing.T) {
	client := &mockClient{responses: []string{`{"tasks": [{"title": "Book venue"}, {"title": "Invite employers"}]}`}}
	g := New(client, Options{})

	tasks, err := g.Generate(context.Background(), types.EventInput{Name: "Career Fair"}, []*types.RetrievedDocument{testDoc()})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if len(client.calls) != 1 {
		t.Errorf("made %d calls, want 1", len(client.calls))
	}
	if !client.calls[0].ForceJSON {
		t.Error("first attempt should request JSON mode")
	}
	if client.calls[0].MaxTokens != 1600 {
		t.Errorf("first attempt MaxTokens = %d, want 1600", client.calls[0].MaxTokens)
	}
	if !strings.Contains(client.prompts[0], "career_fair_template") {
		t.Error("prompt should embed the retrieved context")
	}
	if !strings.Contains(client.prompts[0], "6-8 top-level tasks") {
		t.Error("first attempt should use the full prompt")
	}
}

func TestGenerateRetryLadder(t *testing.T) {
	truncated := `{"tasks": [{"title": "Venue Booking", "estimate": 2`
	client := &mockClient{responses: []string{
		truncated,
		truncated,
		`{"tasks": [{"title": "Venue Booking", "estimate": 2}]}`,
	}}
	g := New(client, Options{})

	tasks, err := g.Generate(context.Background(), types.EventInput{Name: "Fair"}, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Venue Booking" {
		t.Fatalf("tasks = %+v", tasks)
	}

	if len(client.calls) != 3 {
		t.Fatalf("made %d calls, want 3", len(client.calls))
	}
	// Retry 1 shortens the prompt and pins the count; retry 2 drops JSON mode.
	if client.calls[1].MaxTokens != 1200 || !client.calls[1].ForceJSON {
		t.Errorf("retry 1 opts = %+v", client.calls[1])
	}
	if !strings.Contains(client.prompts[1], "exactly 6") {
		t.Error("retry 1 should pin the task count")
	}
	if client.calls[2].ForceJSON {
		t.Error("retry 2 should drop JSON mode")
	}
	if !strings.Contains(client.prompts[2], "JSON only, no explanation") {
		t.Error("retry 2 still instructs JSON-only output")
	}
}

func TestGenerateAllAttemptsFail(t *testing.T) {
	client := &mockClient{responses: []string{"garbage", "more garbage", "still garbage"}}
	g := New(client, Options{})

	_, err := g.Generate(context.Background(), types.EventInput{Name: "Fair"}, nil)
	if err == nil {
		t.Fatal("expected error after exhausting the ladder")
	}
	if len(client.calls) != 3 {
		t.Errorf("made %d calls, want 3", len(client.calls))
	}
}

func TestGenerateEmptyListNotRetried(t *testing.T) {
	// A parseable response whose every element is filtered is a success,
	// not a retry trigger.
	client := &mockClient{responses: []string{`{"tasks": [{"description": "no title"}]}`}}
	g := New(client, Options{})

	tasks, err := g.Generate(context.Background(), types.EventInput{Name: "Fair"}, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("got %d tasks, want 0", len(tasks))
	}
	if len(client.calls) != 1 {
		t.Errorf("made %d calls, want 1 (empty list is not retried)", len(client.calls))
	}
}

func TestGenerateNetworkErrorFoldedIntoLadder(t *testing.T) {
	client := &mockClient{
		responses: []string{"", `{"tasks": [{"title": "A"}]}`},
		errs:      []error{errors.New("connection refused"), nil},
	}
	g := New(client, Options{})

	tasks, err := g.Generate(context.Background(), types.EventInput{Name: "Fair"}, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if len(client.calls) != 2 {
		t.Errorf("made %d calls, want 2", len(client.calls))
	}
}

func TestGenerateOrSentinel(t *testing.T) {
	client := &mockClient{responses: []string{"x", "y", "z"}}
	g := New(client, Options{})

	tasks := g.GenerateOrSentinel(context.Background(), types.EventInput{Name: "Fair"}, nil)
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want single sentinel", len(tasks))
	}
	if tasks[0].Title != types.SentinelErrorTitle {
		t.Errorf("Title = %q", tasks[0].Title)
	}
	if tasks[0].Description == "" {
		t.Error("sentinel description should carry the diagnostic")
	}
	if tasks[0].DepartmentID != "N/A" {
		t.Errorf("DepartmentID = %q, want N/A", tasks[0].DepartmentID)
	}
}

func TestContextBlockBudget(t *testing.T) {
	g := New(&mockClient{}, Options{ContextCharBudget: 100})

	long := strings.Repeat("Task line (Dept): notes\n", 50)
	block := g.buildContextBlock([]*types.RetrievedDocument{{DocID: "big", Text: long}})
	if len(block) > 100 {
		t.Errorf("context block is %d chars, budget 100", len(block))
	}
}

func TestContextBlockEmpty(t *testing.T) {
	g := New(&mockClient{}, Options{})
	block := g.buildContextBlock(nil)
	if !strings.Contains(block, "No reference checklist") {
		t.Errorf("empty context block = %q", block)
	}
}
