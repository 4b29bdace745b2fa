// Package index queries and updates the checkpoint library's dataset index
// through its command line tools.
package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/scrun/pkg/shell"
	"github.com/cuemby/scrun/pkg/types"
)

// RestartPlaceholder is replaced in a restart command with the name of the
// dataset to restart from
const RestartPlaceholder = "SCR_CKPT_NAME"

// LocationFlushing is reported by Location while a flush to the parallel file
// system is in progress
const LocationFlushing = "FLUSHING"

// NoDataset is returned by Latest when the index holds no dataset
const NoDataset = -1

// Index is the checkpoint library's view of datasets in the cache and on the
// parallel file system
type Index interface {
	// ListOutput returns output dataset ids still known to the cache, oldest
	// first. Some may already be flushed; see NeedsFlush.
	ListOutput(ctx context.Context) ([]int, error)

	// ListCheckpoints returns checkpoint ids, oldest first. before > 0
	// restricts the list to ids strictly less than before.
	ListCheckpoints(ctx context.Context, before int) ([]int, error)

	NeedsFlush(ctx context.Context, id int) (bool, error)
	Name(ctx context.Context, id int) (string, error)
	Latest(ctx context.Context) (int, error)
	Location(ctx context.Context, id int) (string, error)

	// Build rebuilds the dataset's redundancy on the parallel file system
	// and registers it in the index
	Build(ctx context.Context, id int) (bool, error)

	// SetCurrent marks the named dataset as the one to restart from
	SetCurrent(ctx context.Context, name string) error

	// Current returns the restart dataset name, "" if none is set
	Current(ctx context.Context) (string, error)
}

// CLI implements Index with scr_flush_file and scr_index
type CLI struct {
	Prefix    string
	FlushFile string // default "scr_flush_file"
	IndexTool string // default "scr_index"

	runner shell.Runner
}

// NewCLI creates an index client for the datasets under prefix
func NewCLI(prefix string, runner shell.Runner) *CLI {
	if runner == nil {
		runner = shell.OS{}
	}
	return &CLI{Prefix: prefix, FlushFile: "scr_flush_file", IndexTool: "scr_index", runner: runner}
}

func (c *CLI) flushFile(ctx context.Context, args ...string) shell.Result {
	return c.runner.Run(ctx, c.FlushFile, append([]string{"--dir", c.Prefix}, args...)...)
}

func (c *CLI) indexTool(ctx context.Context, args ...string) shell.Result {
	return c.runner.Run(ctx, c.IndexTool, append([]string{"--prefix", c.Prefix}, args...)...)
}

func (c *CLI) ListOutput(ctx context.Context) ([]int, error) {
	res := c.flushFile(ctx, "--list-output")
	if !res.Success() {
		return nil, fmt.Errorf("list output datasets: %w", res.Err)
	}
	return parseIDs(res.Stdout)
}

func (c *CLI) ListCheckpoints(ctx context.Context, before int) ([]int, error) {
	args := []string{"--list-ckpt"}
	if before > 0 {
		args = append(args, "--before", strconv.Itoa(before))
	}
	res := c.flushFile(ctx, args...)
	if !res.Success() {
		return nil, fmt.Errorf("list checkpoints: %w", res.Err)
	}
	ids, err := parseIDs(res.Stdout)
	if err != nil {
		return nil, err
	}
	if before > 0 {
		kept := ids[:0]
		for _, id := range ids {
			if id < before {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	return ids, nil
}

// NeedsFlush reports whether the dataset still has to be copied. The tool
// exits zero when a flush is needed and one when it isn't.
func (c *CLI) NeedsFlush(ctx context.Context, id int) (bool, error) {
	res := c.flushFile(ctx, "--need-flush", strconv.Itoa(id))
	switch {
	case res.Success():
		return true, nil
	case res.ExitCode > 0:
		return false, nil
	default:
		return false, fmt.Errorf("need-flush %d: %w", id, res.Err)
	}
}

func (c *CLI) Name(ctx context.Context, id int) (string, error) {
	res := c.flushFile(ctx, "--name", strconv.Itoa(id))
	if !res.Success() {
		return "", fmt.Errorf("name of dataset %d: %w", id, res.Err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Latest returns the most recent dataset id, or NoDataset
func (c *CLI) Latest(ctx context.Context) (int, error) {
	res := c.flushFile(ctx, "--latest")
	if !res.Success() {
		if res.ExitCode > 0 {
			return NoDataset, nil
		}
		return NoDataset, fmt.Errorf("latest dataset: %w", res.Err)
	}
	text := strings.TrimSpace(string(res.Stdout))
	if text == "" {
		return NoDataset, nil
	}
	id, err := strconv.Atoi(text)
	if err != nil {
		return NoDataset, fmt.Errorf("latest dataset: unexpected output %q", text)
	}
	return id, nil
}

func (c *CLI) Location(ctx context.Context, id int) (string, error) {
	res := c.flushFile(ctx, "--location", strconv.Itoa(id))
	if !res.Success() {
		return "", fmt.Errorf("location of dataset %d: %w", id, res.Err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Build returns false without error when the tool ran but the rebuild failed
func (c *CLI) Build(ctx context.Context, id int) (bool, error) {
	res := c.indexTool(ctx, "--build", strconv.Itoa(id))
	switch {
	case res.Success():
		return true, nil
	case res.ExitCode > 0:
		return false, nil
	default:
		return false, fmt.Errorf("build dataset %d: %w", id, res.Err)
	}
}

func (c *CLI) SetCurrent(ctx context.Context, name string) error {
	res := c.indexTool(ctx, "--current", name)
	if !res.Success() {
		return fmt.Errorf("set current dataset %s: %w", name, res.Err)
	}
	return nil
}

func (c *CLI) Current(ctx context.Context) (string, error) {
	res := c.indexTool(ctx, "--current")
	if !res.Success() {
		if res.ExitCode > 0 {
			return "", nil
		}
		return "", fmt.Errorf("current dataset: %w", res.Err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Records describes every listed checkpoint and output dataset,
// ordered by id
func Records(ctx context.Context, idx Index) ([]types.DatasetRecord, error) {
	outputs, err := idx.ListOutput(ctx)
	if err != nil {
		return nil, err
	}
	ckpts, err := idx.ListCheckpoints(ctx, 0)
	if err != nil {
		return nil, err
	}

	kinds := map[int]types.DatasetKind{}
	for _, id := range ckpts {
		kinds[id] = types.DatasetCheckpoint
	}
	for _, id := range outputs {
		kinds[id] = types.DatasetOutput
	}

	records := make([]types.DatasetRecord, 0, len(kinds))
	for id, kind := range kinds {
		name, err := idx.Name(ctx, id)
		if err != nil {
			return nil, err
		}
		needs, err := idx.NeedsFlush(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, types.DatasetRecord{ID: id, Name: name, Kind: kind, Flushed: !needs})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// RestartCommand substitutes the current restart name into cmd. It returns
// nil when cmd carries the placeholder but no restart dataset is known.
func RestartCommand(cmd []string, current string) []string {
	out := make([]string, 0, len(cmd))
	found := false
	for _, arg := range cmd {
		if strings.Contains(arg, RestartPlaceholder) {
			found = true
			arg = strings.ReplaceAll(arg, RestartPlaceholder, current)
		}
		out = append(out, arg)
	}
	if found && current == "" {
		return nil
	}
	return out
}

// parseIDs reads whitespace separated dataset ids and sorts them ascending
func parseIDs(out []byte) ([]int, error) {
	fields := strings.Fields(string(out))
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("unexpected dataset id %q", f)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}
