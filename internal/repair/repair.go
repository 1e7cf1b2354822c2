// Package repair recovers a structured task list from an LLM completion that
// may wrap its JSON in code fences, prose, or commentary, or cut it off at a
// token limit. It is a bounded state machine: fence extraction, a bracket
// depth scan with string and escape awareness, trailing-content trim, then
// strict JSON decoding and per-task normalization.
//
// The parser never calls the LLM and has no side effects, so every failure
// mode is unit-testable with plain strings.
package repair

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"taskrag/internal/types"
)

// ==============================================================================
// ERROR TAXONOMY
// ==============================================================================

// Kind classifies a parse failure. All kinds are recoverable at the
// generator level via its retry ladder.
type Kind string

const (
	// KindEmptyOutput means no JSON value was found in the text at all.
	KindEmptyOutput Kind = "empty_output"
	// KindTruncatedOutput means brackets never balanced, the completion was
	// most likely cut off by a token limit. Callers should retry rather than
	// accept a partial list.
	KindTruncatedOutput Kind = "truncated_output"
	// KindJSONSyntax means a well-bounded candidate was found but is not
	// valid JSON.
	KindJSONSyntax Kind = "json_syntax_error"
	// KindUnexpectedShape means the JSON parsed but is neither an object
	// with a "tasks" array nor a bare array.
	KindUnexpectedShape Kind = "unexpected_shape"
)

// ParseError is a typed parse failure. Line, Col, and Offset are populated
// only for KindJSONSyntax; Context carries a bounded window around the
// failure point for diagnostics.
type ParseError struct {
	Kind    Kind
	Detail  string
	Line    int
	Col     int
	Offset  int64
	Context string
}

func (e *ParseError) Error() string {
	if e.Kind == KindJSONSyntax && e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, col %d)", e.Kind, e.Detail, e.Line, e.Col)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// ==============================================================================
// PARSE
// ==============================================================================

// Parse extracts, repairs, and validates the task list embedded in raw LLM
// output. On success the returned list preserves the model's task order and
// every task has a non-empty trimmed title, nil parentId, and nil
// assigneeId. An empty list is a valid outcome (every element was filtered
// out), not an error. All failures are *ParseError.
func Parse(raw string) ([]types.GeneratedTask, error) {
	working := extractFenced(raw)
	working = strings.TrimPrefix(working, "\uFEFF")

	start := strings.IndexAny(working, "{[")
	if start < 0 {
		return nil, &ParseError{Kind: KindEmptyOutput, Detail: "no JSON object or array found in output"}
	}

	end, ok := scanBalanced(working, start)
	if !ok {
		return nil, &ParseError{Kind: KindTruncatedOutput, Detail: "unbalanced brackets, output appears truncated"}
	}

	candidate := sanitizeMinor(working[start:end])

	var value interface{}
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil, syntaxError(candidate, err)
	}

	items, err := acceptShape(value)
	if err != nil {
		return nil, err
	}

	tasks := make([]types.GeneratedTask, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		task, ok := normalizeTask(obj)
		if !ok {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// extractFenced returns the inner content of the first triple-backtick code
// block (with an optional language tag), or the input unchanged if no
// complete fence is present.
func extractFenced(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	rest := text[open+3:]

	// Drop the language tag line, e.g. ```json.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}

	closing := strings.Index(rest, "```")
	if closing < 0 {
		return text
	}
	return rest[:closing]
}

// scanBalanced walks forward from the opening bracket at start, tracking
// nesting depth of that bracket type while skipping quoted strings (with
// backslash-escape handling so \" does not toggle). Returns the exclusive
// end offset of the balanced value, or ok=false when depth never returns to
// zero.
func scanBalanced(text string, start int) (int, bool) {
	openCh := text[start]
	var closeCh byte
	if openCh == '{' {
		closeCh = '}'
	} else {
		closeCh = ']'
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// sanitizeMinor strips a leading byte-order-mark and trims anything after
// the last closing bracket, guarding against trailing commentary that the
// forward scan could not have included anyway.
func sanitizeMinor(candidate string) string {
	candidate = strings.TrimPrefix(candidate, "\uFEFF")
	last := strings.LastIndexAny(candidate, "}]")
	if last >= 0 {
		candidate = candidate[:last+1]
	}
	return strings.TrimSpace(candidate)
}

// syntaxError converts a json decoding failure into a KindJSONSyntax
// ParseError with line, column, and a bounded context window.
func syntaxError(candidate string, err error) *ParseError {
	pe := &ParseError{Kind: KindJSONSyntax, Detail: err.Error()}

	var offset int64
	switch e := err.(type) {
	case *json.SyntaxError:
		offset = e.Offset
	case *json.UnmarshalTypeError:
		offset = e.Offset
	default:
		return pe
	}

	pe.Offset = offset
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(candidate)); i++ {
		if candidate[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	pe.Line = line
	pe.Col = col

	const window = 40
	lo := offset - window
	if lo < 0 {
		lo = 0
	}
	hi := offset + window
	if hi > int64(len(candidate)) {
		hi = int64(len(candidate))
	}
	pe.Context = candidate[lo:hi]
	return pe
}

// acceptShape extracts the task array from the decoded value: either an
// object carrying a "tasks" array, or a bare array.
func acceptShape(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		tasksVal, ok := v["tasks"]
		if !ok {
			return nil, &ParseError{Kind: KindUnexpectedShape, Detail: `object has no "tasks" field`}
		}
		arr, ok := tasksVal.([]interface{})
		if !ok {
			return nil, &ParseError{Kind: KindUnexpectedShape, Detail: `"tasks" field is not an array`}
		}
		return arr, nil
	case []interface{}:
		return v, nil
	default:
		return nil, &ParseError{Kind: KindUnexpectedShape, Detail: fmt.Sprintf("top-level value is %T, not object or array", value)}
	}
}

// ==============================================================================
// NORMALIZATION
// ==============================================================================

// normalizeTask converts one raw element into a GeneratedTask. Returns
// ok=false when the element has no usable title and must be skipped.
func normalizeTask(obj map[string]interface{}) (types.GeneratedTask, bool) {
	title := strings.TrimSpace(stringValue(obj["title"]))
	if title == "" {
		return types.GeneratedTask{}, false
	}

	task := types.GeneratedTask{
		Title:        title,
		Description:  strings.TrimSpace(stringValue(obj["description"])),
		DepartmentID: departmentID(obj),
		Status:       types.StatusPending,
		Estimate:     coerceInt(obj["estimate"]),
		EstimateUnit: types.UnitDay,
		ProgressPct:  coerceInt(obj["progressPct"]),
	}

	if s := strings.TrimSpace(stringValue(obj["status"])); s != "" {
		task.Status = s
	}
	if u := strings.TrimSpace(stringValue(obj["estimateUnit"])); types.ValidEstimateUnit(u) {
		task.EstimateUnit = u
	}
	if task.Estimate < 0 {
		task.Estimate = 0
	}

	// ParentID and AssigneeID stay nil no matter what the model emitted:
	// this generator only produces top-level, unassigned tasks.
	return task, true
}

// departmentID falls back through departmentId, department, dept.
func departmentID(obj map[string]interface{}) string {
	for _, key := range []string{"departmentId", "department", "dept"} {
		if s := strings.TrimSpace(stringValue(obj[key])); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// coerceInt converts a decoded JSON value to an integer, defaulting to 0 on
// any coercion failure. Models emit estimates as numbers, numeric strings,
// and occasionally floats.
func coerceInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
	case int:
		return n
	}
	return 0
}
