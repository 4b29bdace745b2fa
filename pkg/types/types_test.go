package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthReport_FirstReasonWins(t *testing.T) {
	r := HealthReport{}
	r.Add("n1", "Excluded by user")
	r.Add("n1", "Failed to ping")
	r.Merge(HealthReport{"n1": "other", "n2": "Failed to ping"})

	assert.Equal(t, "Excluded by user", r["n1"])
	assert.Equal(t, "Failed to ping", r["n2"])
	assert.Equal(t, []string{"n1", "n2"}, r.Nodes())
}

func TestNodeOutput_Succeeded(t *testing.T) {
	zero, one := 0, 1
	assert.True(t, NodeOutput{ExitCode: &zero}.Succeeded())
	assert.False(t, NodeOutput{ExitCode: &one}.Succeeded())
	assert.False(t, NodeOutput{}.Succeeded())
}

func TestHaltCondition_IsZero(t *testing.T) {
	var nilCond *HaltCondition
	assert.True(t, nilCond.IsZero())
	assert.True(t, (&HaltCondition{}).IsZero())
	assert.False(t, (&HaltCondition{ExitReason: "stop"}).IsZero())
}

func TestRunAttempt_Elapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &RunAttempt{StartedAt: start}
	assert.Zero(t, a.Elapsed())
	a.EndedAt = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, a.Elapsed())
}
