package agent

import (
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/stackscan/pkg/errors"
)

// Status is an agent lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed-out"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is final. Terminal records are never
// reconciled again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Focus selects what a worker analyzes.
type Focus string

const (
	FocusSecurity     Focus = "security"
	FocusPerformance  Focus = "performance"
	FocusQuality      Focus = "quality"
	FocusArchitecture Focus = "architecture"
	FocusStructure    Focus = "structure"
	FocusAll          Focus = "all"
)

var focuses = []Focus{FocusSecurity, FocusPerformance, FocusQuality, FocusArchitecture, FocusStructure, FocusAll}

// Focuses returns the accepted focus values.
func Focuses() []Focus { return slices.Clone(focuses) }

// ParseFocus validates s. The empty string selects FocusAll.
func ParseFocus(s string) (Focus, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FocusAll, nil
	}
	if f := Focus(s); slices.Contains(focuses, f) {
		return f, nil
	}
	names := make([]string, len(focuses))
	for i, f := range focuses {
		names[i] = string(f)
	}
	return "", errors.New(errors.ErrCodeInvalidFocus, "unknown focus %q (valid: %s)", s, strings.Join(names, ", "))
}

// Record is the persisted state of one agent (agent.json).
type Record struct {
	ID           string     `json:"id"`
	PID          int        `json:"pid,omitempty"`
	Resource     string     `json:"resource"`
	ResourcePath string     `json:"resource_path"`
	Focus        Focus      `json:"focus"`
	Command      []string   `json:"command"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Stdout       string     `json:"stdout"`
	Stderr       string     `json:"stderr"`
	Findings     string     `json:"findings"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Duration returns the run time so far, or the total for terminal records.
func (r *Record) Duration(now time.Time) time.Duration {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// SpawnRequest describes an agent to start.
type SpawnRequest struct {
	// ID is optional; one is generated when empty. It must be unique among
	// non-terminal agents.
	ID           string
	Resource     string
	ResourcePath string
	Focus        Focus
	// Timeout bounds the run. Zero uses the manager's default; a negative
	// value disables the deadline.
	Timeout     time.Duration
	Fingerprint string
}

// WaitRequest selects agents to wait for.
type WaitRequest struct {
	// IDs to wait for. Empty means every agent that is non-terminal when
	// Wait is called.
	IDs []string
	// Timeout bounds the wait; zero waits until the context ends.
	Timeout time.Duration
}

// WaitResult splits the waited-for agents by outcome.
type WaitResult struct {
	Terminal    []*Record `json:"terminal"`
	NonTerminal []*Record `json:"non_terminal"`
	TimedOut    bool      `json:"timed_out"`
}

// Done reports whether every waited-for agent is terminal.
func (w *WaitResult) Done() bool { return len(w.NonTerminal) == 0 }

// LogPaths locates an agent's captured output.
type LogPaths struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Spec is what the supervisor executes (spec.json).
type Spec struct {
	AgentID      string     `json:"agent_id"`
	Command      []string   `json:"command"`
	WorkDir      string     `json:"work_dir"`
	Env          []string   `json:"env"`
	Stdout       string     `json:"stdout"`
	Stderr       string     `json:"stderr"`
	FindingsFile string     `json:"findings_file"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// Exit is the supervisor's final report (exit.json).
type Exit struct {
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	TimedOut   bool      `json:"timed_out,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
