package halt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/scrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestLoad_Missing(t *testing.T) {
	cond, err := Load(filepath.Join(t.TempDir(), "halt.yaml"))
	require.NoError(t, err)
	assert.True(t, cond.IsZero())

	cond, err = Load("")
	require.NoError(t, err)
	assert.True(t, cond.IsZero())
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkpoints_left: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "halt.yaml")
	before := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)

	in := &types.HaltCondition{
		CheckpointsLeft: intPtr(2),
		ExitBefore:      timePtr(before),
		HaltSeconds:     600,
	}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, out.CheckpointsLeft)
	assert.Equal(t, 2, *out.CheckpointsLeft)
	require.NotNil(t, out.ExitBefore)
	assert.True(t, before.Equal(*out.ExitBefore))
	assert.Equal(t, 600, out.HaltSeconds)
	assert.Empty(t, out.ExitReason)
}

func TestUpdateRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halt.yaml")

	cond, err := Update(path, func(c *types.HaltCondition) { c.ExitReason = "maintenance" })
	require.NoError(t, err)
	assert.Equal(t, "maintenance", cond.ExitReason)

	cond, err = Update(path, func(c *types.HaltCondition) { c.HaltSeconds = 60 })
	require.NoError(t, err)
	assert.Equal(t, "maintenance", cond.ExitReason)
	assert.Equal(t, 60, cond.HaltSeconds)

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))

	cond, err = Load(path)
	require.NoError(t, err)
	assert.True(t, cond.IsZero())
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		cond    *types.HaltCondition
		endTime int64
		halt    bool
	}{
		{name: "nil", cond: nil},
		{name: "empty", cond: &types.HaltCondition{}},
		{name: "explicit reason", cond: &types.HaltCondition{ExitReason: "user"}, halt: true},
		{name: "checkpoints left", cond: &types.HaltCondition{CheckpointsLeft: intPtr(1)}},
		{name: "checkpoints exhausted", cond: &types.HaltCondition{CheckpointsLeft: intPtr(0)}, halt: true},
		{name: "exit after passed", cond: &types.HaltCondition{ExitAfter: timePtr(now.Add(-time.Minute))}, halt: true},
		{name: "exit after pending", cond: &types.HaltCondition{ExitAfter: timePtr(now.Add(time.Minute))}},
		{name: "exit before reached", cond: &types.HaltCondition{ExitBefore: timePtr(now)}, halt: true},
		{name: "exit before pending", cond: &types.HaltCondition{ExitBefore: timePtr(now.Add(time.Hour))}},
		{
			name: "exit before within margin",
			cond: &types.HaltCondition{ExitBefore: timePtr(now.Add(5 * time.Minute)), HaltSeconds: 600},
			halt: true,
		},
		{
			name:    "allocation ending",
			cond:    &types.HaltCondition{HaltSeconds: 600},
			endTime: now.Add(5 * time.Minute).Unix(),
			halt:    true,
		},
		{
			name:    "allocation has time",
			cond:    &types.HaltCondition{HaltSeconds: 600},
			endTime: now.Add(time.Hour).Unix(),
		},
		{
			name:    "allocation unlimited",
			cond:    &types.HaltCondition{HaltSeconds: 600},
			endTime: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, halt := Evaluate(tt.cond, now, tt.endTime)
			assert.Equal(t, tt.halt, halt)
			assert.Equal(t, tt.halt, reason != "")
		})
	}
}
