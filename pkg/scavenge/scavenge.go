package scavenge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/scrun/pkg/events"
	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/index"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/cuemby/scrun/pkg/metrics"
	"github.com/cuemby/scrun/pkg/remote"
	"github.com/cuemby/scrun/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNoUpNodes is returned when there is no node left to copy from
var ErrNoUpNodes = errors.New("no up nodes to scavenge from")

// CopyOptions configures the per-node copy tool
type CopyOptions struct {
	Tool    string // default "scr_copy"
	Prefix  string
	BufSize int64
	CRC     bool
	Partner bool
}

// Result summarizes one recovery
type Result struct {
	Succeeded []int
	Failed    []int

	// Current is the checkpoint name set as the restart point, "" if none
	Current string

	// FailureBoundary is the first output dataset that failed, 0 if none did
	FailureBoundary int
}

// Scavenger copies datasets from node-local cache to the prefix directory
// and rebuilds them there
type Scavenger struct {
	Exec   remote.Executor
	Index  index.Index
	Copy   CopyOptions
	Events *events.Recorder

	logger zerolog.Logger
}

// New creates a scavenger
func New(exec remote.Executor, idx index.Index, opts CopyOptions, rec *events.Recorder) *Scavenger {
	if opts.Tool == "" {
		opts.Tool = "scr_copy"
	}
	return &Scavenger{
		Exec:   exec,
		Index:  idx,
		Copy:   opts,
		Events: rec,
		logger: log.WithComponent("scavenge"),
	}
}

// CopyCommand returns the command run on every node to copy dataset id
func (s *Scavenger) CopyCommand(cntlDir string, id int) []string {
	cmd := []string{s.Copy.Tool, "--cntldir", cntlDir, "--id", strconv.Itoa(id), "--prefix", s.Copy.Prefix}
	if s.Copy.BufSize > 0 {
		cmd = append(cmd, "--buf", strconv.FormatInt(s.Copy.BufSize, 10))
	}
	if s.Copy.CRC {
		cmd = append(cmd, "--crc")
	}
	if s.Copy.Partner {
		cmd = append(cmd, "--partner")
	}
	return cmd
}

// Recover flushes what it can from nodes. Unflushed output datasets are
// flushed oldest first until one fails; that id becomes the failure
// boundary. Checkpoints older than the boundary are then tried newest first
// and the first one flushed becomes the restart point.
func (s *Scavenger) Recover(ctx context.Context, nodes hostlist.NodeSet, cntlDir string) (*Result, error) {
	res := &Result{}
	if len(nodes) == 0 {
		return res, ErrNoUpNodes
	}

	s.logger.Info().
		Str("nodes", hostlist.Compress(nodes)).
		Str("cntl_dir", cntlDir).
		Msg("Starting scavenge")

	// id -> copy and build succeeded
	attempted := map[int]bool{}

	outputs, err := s.Index.ListOutput(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list output datasets, skipping output pass")
	}
	for _, id := range outputs {
		needs, err := s.Index.NeedsFlush(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Int("dataset_id", id).Msg("Failed to query flush state, copying output dataset")
		} else if !needs {
			s.logger.Debug().Int("dataset_id", id).Msg("Output dataset already flushed")
			continue
		}

		ok := s.flush(ctx, nodes, cntlDir, id, types.DatasetOutput)
		attempted[id] = ok
		if !ok {
			res.Failed = append(res.Failed, id)
			res.FailureBoundary = id
			s.logger.Warn().Int("dataset_id", id).Msg("Output dataset failed, limiting checkpoint pass to older datasets")
			break
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	ckpts, err := s.Index.ListCheckpoints(ctx, res.FailureBoundary)
	if err != nil {
		return res, fmt.Errorf("list checkpoints: %w", err)
	}

	for i := len(ckpts) - 1; i >= 0; i-- {
		id := ckpts[i]

		if ok, seen := attempted[id]; seen {
			if ok {
				if err := s.setCurrent(ctx, id, res); err != nil {
					return res, err
				}
				break
			}
			continue
		}

		needs, err := s.Index.NeedsFlush(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Int("dataset_id", id).Msg("Failed to query flush state, trying older checkpoint")
			continue
		}
		if !needs {
			s.logger.Info().Int("dataset_id", id).Msg("Newest checkpoint already flushed")
			break
		}

		if !s.flush(ctx, nodes, cntlDir, id, types.DatasetCheckpoint) {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
		if err := s.setCurrent(ctx, id, res); err != nil {
			return res, err
		}
		break
	}

	s.logger.Info().
		Ints("succeeded", res.Succeeded).
		Ints("failed", res.Failed).
		Str("current", res.Current).
		Msg("Scavenge complete")
	return res, nil
}

func (s *Scavenger) setCurrent(ctx context.Context, id int, res *Result) error {
	name, err := s.Index.Name(ctx, id)
	if err != nil {
		return fmt.Errorf("name of checkpoint %d: %w", id, err)
	}
	if err := s.Index.SetCurrent(ctx, name); err != nil {
		return err
	}
	res.Current = name
	s.logger.Info().Int("dataset_id", id).Str("name", name).Msg("Set restart checkpoint")
	return nil
}

// flush copies one dataset from every node and rebuilds it
func (s *Scavenger) flush(ctx context.Context, nodes hostlist.NodeSet, cntlDir string, id int, kind types.DatasetKind) bool {
	logger := log.WithDataset(id)
	start := time.Now()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ScavengeDuration)

	s.Events.Emit(events.Event{Type: events.EventScavengeStart, Note: string(kind)}.WithDataset(id))

	ok := s.copy(ctx, nodes, cntlDir, id)
	note := "copy failed"
	if ok {
		built, err := s.Index.Build(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to run rebuild")
		}
		ok = built && err == nil
		note = "build failed"
	}
	if ok {
		note = "success"
	}

	result := "failed"
	if ok {
		result = "success"
	}
	metrics.ScavengeDatasetsTotal.WithLabelValues(string(kind), result).Inc()

	s.Events.Emit(events.Event{
		Type: events.EventScavengeEnd,
		Note: string(kind) + ": " + note,
	}.WithDataset(id).WithElapsed(time.Since(start)))

	logger.Info().Str("kind", string(kind)).Str("result", note).Dur("elapsed", time.Since(start)).Msg("Scavenged dataset")
	return ok
}

// copy succeeds only if every node ran the copy tool with exit code zero
func (s *Scavenger) copy(ctx context.Context, nodes hostlist.NodeSet, cntlDir string, id int) bool {
	out, err := s.Exec.Execute(ctx, s.CopyCommand(cntlDir, id), nodes)
	if err != nil {
		s.logger.Warn().Err(err).Int("dataset_id", id).Msg("Copy command failed")
		return false
	}

	var failed []string
	for _, node := range nodes {
		if !out[node].Succeeded() {
			failed = append(failed, node)
		}
	}
	if len(failed) > 0 {
		s.logger.Warn().
			Int("dataset_id", id).
			Str("nodes", hostlist.Compress(failed)).
			Msg("Copy failed on nodes")
		return false
	}
	return true
}
