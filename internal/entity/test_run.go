package entity

import "time"

// RunState is the executor's view of a run.
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunPassed  RunState = "passed"
	RunFailed  RunState = "failed"
)

// StepResult is the outcome of one executed step.
type StepResult struct {
	StepIndex     int      `json:"step_index"`
	StepType      StepKind `json:"step_type"`
	Passed        bool     `json:"passed"`
	DurationMs    int64    `json:"duration_ms"`
	Error         string   `json:"error,omitempty"`
	ScreenshotRef string   `json:"screenshot_ref,omitempty"`
}

// ConsoleLog is a browser console message or failed request seen during a run.
type ConsoleLog struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TestRunResult aggregates the step results of one execution.
type TestRunResult struct {
	TestCaseID      string       `json:"test_case_id"`
	State           RunState     `json:"state"`
	OverallPassed   bool         `json:"overall_passed"`
	TotalDurationMs int64        `json:"total_duration_ms"`
	Error           string       `json:"error,omitempty"`
	Steps           []StepResult `json:"steps"`
	ConsoleLogs     []ConsoleLog `json:"console_logs"`
	ScreenshotRefs  []string     `json:"screenshot_refs"`
}

// TestRun is the persisted record of one requested execution.
type TestRun struct {
	ID          string         `json:"id"`
	TestCaseID  string         `json:"test_case_id"`
	WebsiteID   string         `json:"website_id"`
	UserID      string         `json:"user_id"`
	Status      Status         `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Result      *TestRunResult `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
