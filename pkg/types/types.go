package types

import (
	"sort"
	"time"
)

// HealthReport maps a failed node name to the reason it was excluded
type HealthReport map[string]string

// Add records reason for node unless the node already has one
func (r HealthReport) Add(node, reason string) {
	if _, exists := r[node]; !exists {
		r[node] = reason
	}
}

// Merge adds every entry of other, keeping existing reasons
func (r HealthReport) Merge(other HealthReport) {
	for node, reason := range other {
		r.Add(node, reason)
	}
}

// Nodes returns the failed node names in sorted order
func (r HealthReport) Nodes() []string {
	nodes := make([]string, 0, len(r))
	for node := range r {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// NodeOutput is the result of one remote command on one node.
// ExitCode is nil when the node never reported back.
type NodeOutput struct {
	Stdout   string
	Stderr   string
	ExitCode *int
}

// Succeeded reports whether the node returned exit code zero
func (o NodeOutput) Succeeded() bool {
	return o.ExitCode != nil && *o.ExitCode == 0
}

// RemoteResult maps node name to its command output
type RemoteResult map[string]NodeOutput

// ExitClass classifies how a run attempt ended
type ExitClass string

const (
	ExitNormal         ExitClass = "normal"
	ExitHalted         ExitClass = "halted"
	ExitWatchdogKilled ExitClass = "watchdog-killed"
	ExitLaunchFailed   ExitClass = "launch-failed"
)

// RunAttempt is one launch of the application within an invocation
type RunAttempt struct {
	ID           string
	InvocationID string
	JobID        string
	Number       int
	StartedAt    time.Time
	EndedAt      time.Time
	Nodes        []string // Survivors the attempt ran on
	Excluded     []string // Nodes excluded for this attempt
	Exit         ExitClass
	Success      bool
}

// Elapsed returns the wall time of the attempt
func (a *RunAttempt) Elapsed() time.Duration {
	if a.EndedAt.IsZero() {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}

// DatasetKind distinguishes checkpoints from output datasets
type DatasetKind string

const (
	DatasetCheckpoint DatasetKind = "checkpoint"
	DatasetOutput     DatasetKind = "output"
)

// DatasetRecord is an entry of the checkpoint library's dataset index
type DatasetRecord struct {
	ID      int
	Name    string
	Kind    DatasetKind
	Flushed bool
}

// HaltCondition is the persisted directive to stop launching attempts
type HaltCondition struct {
	CheckpointsLeft *int       `yaml:"checkpoints_left,omitempty"`
	ExitBefore      *time.Time `yaml:"exit_before,omitempty"`
	ExitAfter       *time.Time `yaml:"exit_after,omitempty"`
	ExitReason      string     `yaml:"exit_reason,omitempty"`
	HaltSeconds     int        `yaml:"halt_seconds,omitempty"` // Stop this many seconds before the allocation ends
}

// IsZero reports whether no condition is set
func (h *HaltCondition) IsZero() bool {
	return h == nil || (h.CheckpointsLeft == nil && h.ExitBefore == nil &&
		h.ExitAfter == nil && h.ExitReason == "" && h.HaltSeconds == 0)
}
