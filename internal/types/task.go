package types

// Task status values. Only "pending" is ever produced by the generator; the
// enum exists because downstream consumers track richer lifecycles.
const (
	StatusPending = "pending"
)

// Estimate units accepted on generated tasks.
const (
	UnitHour = "hour"
	UnitDay  = "day"
	UnitWeek = "week"
)

// SentinelErrorTitle is the title of the degenerate task returned when every
// generation attempt failed. Callers receive it as data instead of an error so
// a flaky model never turns into a server fault.
const SentinelErrorTitle = "Error parsing LLM output"

// GeneratedTask is one high-level task produced by the generator. JSON tags
// match the downstream task-management wire contract exactly.
//
// Structural invariants: ParentID and AssigneeID are always nil. This
// generator only emits top-level tasks, and assignment happens elsewhere.
type GeneratedTask struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	DepartmentID string  `json:"departmentId"`
	ParentID     *string `json:"parentId"`
	AssigneeID   *string `json:"assigneeId"`
	Status       string  `json:"status"`
	Estimate     int     `json:"estimate"`
	EstimateUnit string  `json:"estimateUnit"`
	ProgressPct  int     `json:"progressPct"`
}

// SentinelTask builds the all-retries-exhausted fallback task, carrying the
// final failure message in the description for observability.
func SentinelTask(detail string) GeneratedTask {
	return GeneratedTask{
		Title:        SentinelErrorTitle,
		Description:  detail,
		DepartmentID: "N/A",
		Status:       StatusPending,
		Estimate:     0,
		EstimateUnit: UnitDay,
		ProgressPct:  0,
	}
}

// ValidEstimateUnit reports whether u is one of the accepted estimate units.
func ValidEstimateUnit(u string) bool {
	switch u {
	case UnitHour, UnitDay, UnitWeek:
		return true
	}
	return false
}
