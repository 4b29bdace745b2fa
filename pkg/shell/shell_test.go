package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOS_Success(t *testing.T) {
	res := OS{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")

	assert.True(t, res.Success())
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
}

func TestOS_ExitCode(t *testing.T) {
	res := OS{}.Run(context.Background(), "sh", "-c", "exit 3")

	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)
	assert.Error(t, res.Err)
}

func TestOS_MissingBinary(t *testing.T) {
	res := OS{}.Run(context.Background(), "/nonexistent/scrun-test-binary")

	assert.False(t, res.Success())
	assert.Equal(t, -1, res.ExitCode)
}

func TestOS_Env(t *testing.T) {
	res := OS{Env: []string{"SCRUN_TEST_VALUE=abc"}}.Run(context.Background(), "sh", "-c", "printf %s \"$SCRUN_TEST_VALUE\"")

	assert.True(t, res.Success())
	assert.Equal(t, "abc", string(res.Stdout))
}

func TestRunnerFunc(t *testing.T) {
	var got []string
	r := RunnerFunc(func(ctx context.Context, name string, args ...string) Result {
		got = append([]string{name}, args...)
		return Result{Stdout: []byte("ok")}
	})

	res := r.Run(context.Background(), "tool", "--flag")
	assert.Equal(t, []string{"tool", "--flag"}, got)
	assert.Equal(t, "ok", string(res.Stdout))
}
