// ABOUTME: Result and Attempt records produced by a recovery run
// ABOUTME: Steps are recorded both per attempt and in the flat operator log

package recovery

import (
	"fmt"
	"time"
)

// Outcome is the final state of a single attempt.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeStarted  Outcome = "started"
	OutcomeStable   Outcome = "stable"
	OutcomeUnstable Outcome = "unstable"
	OutcomeFailed   Outcome = "failed"
)

// Reason explains why a run did not succeed.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMaxAttempts        Reason = "max_attempts"
	ReasonNoPluginsToDisable Reason = "no_plugins_to_disable"
	ReasonUnstable           Reason = "unstable"
	ReasonInternal           Reason = "internal"
)

// Operator-facing summary messages.
const (
	MessageSucceeded = "Server restarted successfully"
	MessageFailed    = "Server restart failed after all recovery attempts"
	MessageInternal  = "Failed to restart server with recovery"
)

// Attempt records one stop/start/verify iteration.
type Attempt struct {
	Ordinal  int      `json:"ordinal"`
	Outcome  Outcome  `json:"outcome"`
	Steps    []string `json:"steps"`
	Disabled string   `json:"disabled,omitempty"`
}

// Result is the full record of a recovery run.
type Result struct {
	ID             string    `json:"id"`
	Succeeded      bool      `json:"success"`
	Message        string    `json:"message"`
	Attempts       int       `json:"attempts"`
	Log            []string  `json:"recovery_log"`
	AttemptRecords []Attempt `json:"attempt_records"`
	Disabled       []string  `json:"disabled"`
	Reason         Reason    `json:"reason,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// begin opens a new attempt record and returns its index.
func (r *Result) begin(ordinal int) *Attempt {
	r.AttemptRecords = append(r.AttemptRecords, Attempt{
		Ordinal: ordinal,
		Outcome: OutcomePending,
		Steps:   []string{},
	})
	r.Attempts = ordinal
	return &r.AttemptRecords[len(r.AttemptRecords)-1]
}

// step appends a line to both the current attempt and the flat log.
func (r *Result) step(a *Attempt, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	a.Steps = append(a.Steps, line)
	r.Log = append(r.Log, line)
}
