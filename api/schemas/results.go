package schemas

import "time"

// -- Test Result Schemas --

// Status is the terminal state of a single test case.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed" // The test body (call phase) failed.
	StatusBroken  Status = "broken" // Setup failed before the body ran.
	StatusSkipped Status = "skipped"
)

// Phase identifies which part of a test case produced its outcome.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// Attachment is a binary artifact linked to a test result.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	// Path is where the artifact was persisted locally, if anywhere.
	Path string `json:"-"`
	Data []byte `json:"-"`
}

// TestResult is the reporter-agnostic record of one executed test case.
type TestResult struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	FullName    string       `json:"fullName"`
	Status      Status       `json:"status"`
	Phase       Phase        `json:"phase"`
	Message     string       `json:"message,omitempty"`
	Start       time.Time    `json:"start"`
	Stop        time.Time    `json:"stop"`
	Options     RunOptions   `json:"-"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Duration is the wall time between Start and Stop.
func (r *TestResult) Duration() time.Duration {
	return r.Stop.Sub(r.Start)
}

// Failed reports whether the result should fail the run.
func (r *TestResult) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusBroken
}
