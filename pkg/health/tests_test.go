package health

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDown struct {
	report types.HealthReport
	err    error
}

func (f *fakeDown) DownNodes(ctx context.Context) (types.HealthReport, error) {
	return f.report, f.err
}

// flakyProber fails each node a set number of times before succeeding
type flakyProber struct {
	failures map[string]int
	calls    map[string]int
}

func (f *flakyProber) Probe(ctx context.Context, node string) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[node]++
	if f.calls[node] <= f.failures[node] {
		return errors.New("unreachable")
	}
	return nil
}

// fakeExec returns a fixed result and records commands
type fakeExec struct {
	result   types.RemoteResult
	err      error
	commands [][]string
}

func (f *fakeExec) Execute(ctx context.Context, command []string, nodes hostlist.NodeSet) (types.RemoteResult, error) {
	f.commands = append(f.commands, command)
	if f.err != nil {
		return nil, f.err
	}
	out := types.RemoteResult{}
	for _, n := range nodes {
		out[n] = f.result[n]
	}
	return out, nil
}

func code(v int) *int { return &v }

func TestExcludedTest(t *testing.T) {
	test := &ExcludedTest{Nodes: hostlist.NodeSet{"n2", "n9"}}
	report, err := test.Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1", "n2"}})
	require.NoError(t, err)
	assert.Equal(t, types.HealthReport{"n2": ReasonExcluded}, report)
}

func TestResourceManagerTest(t *testing.T) {
	rm := &fakeDown{report: types.HealthReport{"n1": "", "n3": "drained: bad dimm", "n7": "down"}}
	report, err := (&ResourceManagerTest{RM: rm}).Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1", "n2", "n3"}})
	require.NoError(t, err)
	assert.Equal(t, types.HealthReport{"n1": ReasonReportedDown, "n3": "drained: bad dimm"}, report)

	_, err = (&ResourceManagerTest{RM: &fakeDown{err: errors.New("sinfo failed")}}).Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1"}})
	assert.Error(t, err)
}

func TestReachabilityTest_RetriesOnce(t *testing.T) {
	prober := &flakyProber{failures: map[string]int{"n2": 1, "n3": 2}}
	report, err := (&ReachabilityTest{Prober: prober}).Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1", "n2", "n3"}})
	require.NoError(t, err)

	assert.Equal(t, types.HealthReport{"n3": ReasonPing}, report)
	assert.Equal(t, 1, prober.calls["n1"])
	assert.Equal(t, 2, prober.calls["n2"])
	assert.Equal(t, 2, prober.calls["n3"])
}

func TestEchoTest(t *testing.T) {
	exec := &fakeExec{result: types.RemoteResult{
		"n1": {Stdout: "UP", ExitCode: code(0)},
		"n2": {Stdout: "something else", ExitCode: code(0)},
		"n3": {},
	}}
	report, err := (&EchoTest{Exec: exec}).Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1", "n2", "n3"}})
	require.NoError(t, err)

	assert.Equal(t, types.HealthReport{"n2": ReasonEcho, "n3": ReasonEcho}, report)
	assert.Equal(t, []string{"echo", "UP"}, exec.commands[0])
}

func TestEchoTest_ExecutorError(t *testing.T) {
	_, err := (&EchoTest{Exec: &fakeExec{err: errors.New("pdsh missing")}}).Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1"}})
	assert.Error(t, err)
}

func TestCapacityTest_FreeOnFirstAttemptTotalLater(t *testing.T) {
	test := &CapacityTest{
		Exec:    &fakeExec{},
		Agent:   []string{"/opt/scrun", "check-node"},
		Control: DirCheck{Path: "/dev/shm", MinBytes: 1024},
		Cache:   DirCheck{Path: "/tmp/cache", MinBytes: 2048},
	}

	assert.Equal(t,
		[]string{"/opt/scrun", "check-node", "--cntl", "/dev/shm:1024", "--cache", "/tmp/cache:2048", "--free"},
		test.Command(Input{Attempt: 1}))
	assert.Equal(t,
		[]string{"/opt/scrun", "check-node", "--cntl", "/dev/shm:1024", "--cache", "/tmp/cache:2048"},
		test.Command(Input{Attempt: 2}))
}

func TestCapacityTest_Reasons(t *testing.T) {
	exec := &fakeExec{result: types.RemoteResult{
		"n1": {Stdout: PassMarker, ExitCode: code(0)},
		"n2": {Stdout: "FAIL: insufficient free space in /tmp/cache", ExitCode: code(1)},
		"n3": {},
	}}
	test := &CapacityTest{
		Exec:  exec,
		Agent: []string{"scrun", "check-node"},
		Cache: DirCheck{Path: "/tmp/cache", MinBytes: 10},
	}

	report, err := test.Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1", "n2", "n3"}, Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, types.HealthReport{
		"n2": "insufficient free space in /tmp/cache",
		"n3": ReasonCapacity,
	}, report)
}

func TestCapacityTest_NothingToCheck(t *testing.T) {
	exec := &fakeExec{}
	report, err := (&CapacityTest{Exec: exec}).Run(context.Background(), Input{Nodes: hostlist.NodeSet{"n1"}})
	require.NoError(t, err)
	assert.Empty(t, report)
	assert.Empty(t, exec.commands)
}
