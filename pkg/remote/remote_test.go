package remote

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPdshExecutor_TaggedOutput(t *testing.T) {
	var gotArgs []string
	runner := shell.RunnerFunc(func(ctx context.Context, name string, args ...string) shell.Result {
		gotArgs = append([]string{name}, args...)
		return shell.Result{
			Stdout:   []byte("n1: UP\nn2: UP\nn1: second line\n"),
			Stderr:   []byte("pdsh@login: n3: ssh exited with exit code 2\nn3: boom\n"),
			ExitCode: 2,
		}
	})

	exec := NewPdshExecutor(Config{Fanout: 16, Rcmd: "ssh"}, runner)
	res, err := exec.Execute(context.Background(), []string{"echo", "UP"}, hostlist.NodeSet{"n1", "n2", "n3", "n4"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pdsh", "-f", "16", "-S", "-R", "ssh", "-w", "n[1-4]", "echo", "UP"}, gotArgs)

	require.Len(t, res, 4)
	assert.Equal(t, "UP\nsecond line", res["n1"].Stdout)
	assert.True(t, res["n1"].Succeeded())
	assert.True(t, res["n2"].Succeeded())

	require.NotNil(t, res["n3"].ExitCode)
	assert.Equal(t, 2, *res["n3"].ExitCode)
	assert.Equal(t, "boom", res["n3"].Stderr)

	// silent node is present with no exit code
	assert.Nil(t, res["n4"].ExitCode)
	assert.Empty(t, res["n4"].Stdout)
}

func TestPdshExecutor_ConnectFailure(t *testing.T) {
	runner := shell.RunnerFunc(func(ctx context.Context, name string, args ...string) shell.Result {
		return shell.Result{
			Stdout:   []byte("n1: UP\n"),
			Stderr:   []byte("pdsh@login: n2: connect: Connection refused\n"),
			ExitCode: 1,
		}
	})

	res, err := NewPdshExecutor(Config{}, runner).Execute(context.Background(), []string{"true"}, hostlist.NodeSet{"n1", "n2"})
	require.NoError(t, err)
	require.NotNil(t, res["n2"].ExitCode)
	assert.Equal(t, 255, *res["n2"].ExitCode)
	assert.Contains(t, res["n2"].Stderr, "Connection refused")
}

func TestPdshExecutor_ToolMissing(t *testing.T) {
	runner := shell.RunnerFunc(func(ctx context.Context, name string, args ...string) shell.Result {
		return shell.Result{ExitCode: -1, Err: assert.AnError}
	})

	res, err := NewPdshExecutor(Config{}, runner).Execute(context.Background(), []string{"true"}, hostlist.NodeSet{"n1", "n2"})
	require.Error(t, err)
	require.Len(t, res, 2)
	assert.Nil(t, res["n1"].ExitCode)
	assert.Nil(t, res["n2"].ExitCode)
}

func TestPdshExecutor_NoNodes(t *testing.T) {
	called := false
	runner := shell.RunnerFunc(func(ctx context.Context, name string, args ...string) shell.Result {
		called = true
		return shell.Result{}
	})

	res, err := NewPdshExecutor(Config{}, runner).Execute(context.Background(), []string{"true"}, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.False(t, called)
}

func TestParallelExecutor(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	runner := shell.RunnerFunc(func(ctx context.Context, name string, args ...string) shell.Result {
		mu.Lock()
		calls = append(calls, append([]string{name}, args...))
		mu.Unlock()

		node := args[len(args)-3]
		switch node {
		case "n1":
			return shell.Result{Stdout: []byte("UP\n")}
		case "n2":
			return shell.Result{Stderr: []byte("disk full\n"), ExitCode: 1, Err: assert.AnError}
		default:
			return shell.Result{ExitCode: -1, Err: assert.AnError}
		}
	})

	exec := NewParallelExecutor(Config{Shell: []string{"ssh", "-o", "BatchMode=yes"}, Fanout: 2}, runner)
	res, err := exec.Execute(context.Background(), []string{"echo", "UP"}, hostlist.NodeSet{"n1", "n2", "n3"})
	require.NoError(t, err)

	assert.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "ssh -o BatchMode=yes", strings.Join(c[:3], " "))
	}

	assert.Equal(t, "UP", res["n1"].Stdout)
	assert.True(t, res["n1"].Succeeded())
	require.NotNil(t, res["n2"].ExitCode)
	assert.Equal(t, 1, *res["n2"].ExitCode)
	assert.Equal(t, "disk full", res["n2"].Stderr)
	assert.Nil(t, res["n3"].ExitCode)
}

func TestNew(t *testing.T) {
	e, err := New(Config{Strategy: StrategyParallel}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ParallelExecutor{}, e)

	e, err = New(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PdshExecutor{}, e)

	_, err = New(Config{Strategy: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
