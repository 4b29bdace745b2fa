package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cuemby/scrun/pkg/shell"
	"github.com/cuemby/scrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cannedRunner answers commands by their joined command line
type cannedRunner struct {
	results map[string]shell.Result
	calls   []string
}

func (r *cannedRunner) Run(ctx context.Context, name string, args ...string) shell.Result {
	line := shell.CommandString(name, args)
	r.calls = append(r.calls, line)
	if res, ok := r.results[line]; ok {
		return res
	}
	return shell.Result{ExitCode: -1, Err: errors.New("unexpected command " + line)}
}

func ok(stdout string) shell.Result {
	return shell.Result{Stdout: []byte(stdout)}
}

func exit(code int) shell.Result {
	return shell.Result{ExitCode: code, Err: errors.New("exit status")}
}

func TestCLI_Lists(t *testing.T) {
	r := &cannedRunner{results: map[string]shell.Result{
		"scr_flush_file --dir /p --list-output":          ok("4\n"),
		"scr_flush_file --dir /p --list-ckpt":            ok("6 1 3\n2 5\n"),
		"scr_flush_file --dir /p --list-ckpt --before 4": ok("1 2 3 5\n"),
	}}
	idx := NewCLI("/p", r)
	ctx := context.Background()

	out, err := idx.ListOutput(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, out)

	all, err := idx.ListCheckpoints(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 5, 6}, all)

	// ids at or past the boundary are dropped even if the tool lists them
	before, err := idx.ListCheckpoints(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, before)
}

func TestCLI_ListBadOutput(t *testing.T) {
	r := &cannedRunner{results: map[string]shell.Result{
		"scr_flush_file --dir /p --list-output": ok("4 x\n"),
	}}
	_, err := NewCLI("/p", r).ListOutput(context.Background())
	assert.Error(t, err)
}

func TestCLI_Queries(t *testing.T) {
	r := &cannedRunner{results: map[string]shell.Result{
		"scr_flush_file --dir /p --need-flush 3": ok(""),
		"scr_flush_file --dir /p --need-flush 2": exit(1),
		"scr_flush_file --dir /p --name 3":       ok("ckpt.3\n"),
		"scr_flush_file --dir /p --latest":       ok("6\n"),
		"scr_flush_file --dir /p --location 6":   ok("FLUSHING\n"),
	}}
	idx := NewCLI("/p", r)
	ctx := context.Background()

	needs, err := idx.NeedsFlush(ctx, 3)
	require.NoError(t, err)
	assert.True(t, needs)

	needs, err = idx.NeedsFlush(ctx, 2)
	require.NoError(t, err)
	assert.False(t, needs)

	_, err = idx.NeedsFlush(ctx, 9)
	assert.Error(t, err)

	name, err := idx.Name(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "ckpt.3", name)

	latest, err := idx.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, latest)

	loc, err := idx.Location(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, LocationFlushing, loc)
}

func TestCLI_LatestEmpty(t *testing.T) {
	r := &cannedRunner{results: map[string]shell.Result{
		"scr_flush_file --dir /p --latest": exit(1),
	}}
	latest, err := NewCLI("/p", r).Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoDataset, latest)
}

func TestCLI_BuildAndCurrent(t *testing.T) {
	r := &cannedRunner{results: map[string]shell.Result{
		"scr_index --prefix /p --build 3":        ok(""),
		"scr_index --prefix /p --build 4":        exit(1),
		"scr_index --prefix /p --current ckpt.3": ok(""),
		"scr_index --prefix /p --current":        ok("ckpt.3\n"),
	}}
	idx := NewCLI("/p", r)
	ctx := context.Background()

	built, err := idx.Build(ctx, 3)
	require.NoError(t, err)
	assert.True(t, built)

	built, err = idx.Build(ctx, 4)
	require.NoError(t, err)
	assert.False(t, built)

	require.NoError(t, idx.SetCurrent(ctx, "ckpt.3"))

	cur, err := idx.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ckpt.3", cur)
}

func TestRecords(t *testing.T) {
	r := &cannedRunner{results: map[string]shell.Result{
		"scr_flush_file --dir /p --list-output":  ok("2\n"),
		"scr_flush_file --dir /p --list-ckpt":    ok("1\n"),
		"scr_flush_file --dir /p --name 1":       ok("ckpt.1\n"),
		"scr_flush_file --dir /p --name 2":       ok("out.2\n"),
		"scr_flush_file --dir /p --need-flush 1": exit(1),
		"scr_flush_file --dir /p --need-flush 2": ok(""),
	}}

	records, err := Records(context.Background(), NewCLI("/p", r))
	require.NoError(t, err)
	assert.Equal(t, []types.DatasetRecord{
		{ID: 1, Name: "ckpt.1", Kind: types.DatasetCheckpoint, Flushed: true},
		{ID: 2, Name: "out.2", Kind: types.DatasetOutput, Flushed: false},
	}, records)
}

func TestRestartCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     []string
		current string
		want    []string
	}{
		{
			name:    "substitutes placeholder",
			cmd:     []string{"./app", "--restart=SCR_CKPT_NAME"},
			current: "ckpt.3",
			want:    []string{"./app", "--restart=ckpt.3"},
		},
		{
			name:    "no placeholder",
			cmd:     []string{"./app"},
			current: "ckpt.3",
			want:    []string{"./app"},
		},
		{
			name: "placeholder without dataset",
			cmd:  []string{"./app", "SCR_CKPT_NAME"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RestartCommand(tt.cmd, tt.current))
		})
	}
}

func TestNewCLI_Tools(t *testing.T) {
	r := &cannedRunner{results: map[string]shell.Result{}}
	idx := NewCLI("/p", r)
	idx.FlushFile = "/opt/scr/bin/scr_flush_file"

	_, _ = idx.Latest(context.Background())
	require.Len(t, r.calls, 1)
	assert.True(t, strings.HasPrefix(r.calls[0], "/opt/scr/bin/scr_flush_file --dir /p"))
}
