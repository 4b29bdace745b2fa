package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/scrun/pkg/events"
	"github.com/cuemby/scrun/pkg/halt"
	"github.com/cuemby/scrun/pkg/health"
	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/index"
	"github.com/cuemby/scrun/pkg/launcher"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/cuemby/scrun/pkg/metrics"
	"github.com/cuemby/scrun/pkg/rm"
	"github.com/cuemby/scrun/pkg/scavenge"
	"github.com/cuemby/scrun/pkg/storage"
	"github.com/cuemby/scrun/pkg/types"
	"github.com/cuemby/scrun/pkg/watchdog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNoJobID is returned when the resource manager cannot name the job
	ErrNoJobID = errors.New("unable to determine job id")

	// ErrNoNodes is returned when the allocation's node list is unknown or empty
	ErrNoNodes = errors.New("unable to determine allocated nodes")
)

// Config holds the run loop settings
type Config struct {
	// Runs is the attempt budget; zero means a single attempt
	Runs int

	// NodesNeeded overrides the minimum node count when positive
	NodesNeeded int

	// Settle is the pause between a failed attempt and the next one
	Settle time.Duration

	RunCmd     []string
	RestartCmd []string // may carry index.RestartPlaceholder

	HaltFile        string
	CntlDir         string
	MetricsTextfile string

	// Disabled launches once on the whole allocation without diagnostics
	// or recovery
	Disabled bool
}

// Recoverer flushes cached datasets after the last attempt
type Recoverer interface {
	Recover(ctx context.Context, nodes hostlist.NodeSet, cntlDir string) (*scavenge.Result, error)
}

// Summary is the outcome of one invocation
type Summary struct {
	InvocationID string
	JobID        string
	Attempts     []*types.RunAttempt

	// Down holds every node excluded during the invocation
	Down types.HealthReport

	// StopReason says why no further attempt was launched
	StopReason string

	// RunSize is the node count the last launch asked for
	RunSize int

	Recovery    *scavenge.Result
	RecoveryErr error
}

// Success reports whether the final attempt succeeded
func (s *Summary) Success() bool {
	if len(s.Attempts) == 0 {
		return false
	}
	return s.Attempts[len(s.Attempts)-1].Success
}

// Runner drives the diagnose, launch and retry cycle for one allocation
type Runner struct {
	cfg       Config
	rm        rm.ResourceManager
	diag      *health.Diagnostics
	launcher  launcher.Launcher
	watchdog  *watchdog.Watchdog
	scavenger Recoverer
	index     index.Index
	store     storage.Store
	events    *events.Recorder

	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures optional collaborators
type Option func(*Runner)

// WithWatchdog supervises each launch with w instead of waiting directly
func WithWatchdog(w *watchdog.Watchdog) Option {
	return func(r *Runner) { r.watchdog = w }
}

// WithRecoverer sets the postrun recovery
func WithRecoverer(rec Recoverer) Option {
	return func(r *Runner) { r.scavenger = rec }
}

// WithIndex sets the index used to resolve the restart dataset
func WithIndex(idx index.Index) Option {
	return func(r *Runner) { r.index = idx }
}

// WithStore persists attempts and the run size
func WithStore(s storage.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithEvents sets the event recorder
func WithEvents(rec *events.Recorder) Option {
	return func(r *Runner) { r.events = rec }
}

// New creates a runner
func New(cfg Config, manager rm.ResourceManager, diag *health.Diagnostics, l launcher.Launcher, opts ...Option) *Runner {
	if diag == nil {
		diag = health.NewDiagnostics()
	}
	r := &Runner{
		cfg:      cfg,
		rm:       manager,
		diag:     diag,
		launcher: l,
		logger:   log.WithComponent("runner"),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the invocation. It returns an error only when the allocation
// itself cannot be determined; every other fault ends up in the summary.
// Recovery runs once after the loop however it ended, even if ctx was
// cancelled.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	jobID, err := r.rm.JobID()
	if err != nil || jobID == "" {
		return nil, fmt.Errorf("%w: %v", ErrNoJobID, err)
	}
	nodes, err := r.rm.AllocatedNodes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoNodes, err)
	}
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	sum := &Summary{InvocationID: uuid.New().String(), JobID: jobID, Down: types.HealthReport{}}
	r.logger = log.ForJob("runner", jobID)
	r.events.SetJobID(jobID)
	metrics.NodesAllocated.Set(float64(len(nodes)))

	r.logger.Info().
		Str("invocation_id", sum.InvocationID).
		Str("nodes", hostlist.Compress(nodes)).
		Int("runs", max(r.cfg.Runs, 1)).
		Msg("Starting job")

	if r.cfg.Disabled {
		r.attempt(ctx, sum, 1, nodes, nil)
		sum.StopReason = "disabled"
		return sum, nil
	}

	r.loop(ctx, sum, nodes)
	r.recover(context.WithoutCancel(ctx), sum, nodes)
	return sum, nil
}

func (r *Runner) loop(ctx context.Context, sum *Summary, nodes hostlist.NodeSet) {
	budget := max(r.cfg.Runs, 1)

	// pending holds diagnostics already run after the previous attempt
	var pending types.HealthReport
	for attempt := 1; ; attempt++ {
		if pending == nil {
			pending = r.diagnose(ctx, nodes, sum.Down, attempt)
			r.logDown(pending, attempt)
		}
		sum.Down.Merge(pending)
		pending = nil

		survivors := hostlist.Diff(nodes, sum.Down.Nodes())
		metrics.NodesRemaining.Set(float64(len(survivors)))

		needed := r.nodesNeeded(sum, len(nodes))
		if len(survivors) < needed {
			sum.StopReason = fmt.Sprintf("%d nodes remaining, %d needed", len(survivors), needed)
			r.logger.Warn().
				Int("remaining", len(survivors)).
				Int("needed", needed).
				Str("down", hostlist.Compress(sum.Down.Nodes())).
				Msg("Not enough nodes to continue")
			return
		}
		if reason, stop := r.checkHalt(ctx); stop {
			sum.StopReason = "halt: " + reason
			return
		}

		a := r.attempt(ctx, sum, attempt, survivors, sum.Down.Nodes())
		if ctx.Err() != nil {
			sum.StopReason = "cancelled"
			return
		}

		// Re-diagnose what is left so this attempt's failures are recorded
		// and recovery sees the current up set
		pending = r.diagnose(ctx, nodes, sum.Down, attempt+1)
		all := types.HealthReport{}
		all.Merge(sum.Down)
		all.Merge(pending)
		r.logDown(all, attempt)

		if attempt >= budget {
			sum.Down.Merge(pending)
			sum.StopReason = "run budget exhausted"
			return
		}
		if reason, stop := r.checkHalt(ctx); stop {
			sum.Down.Merge(pending)
			sum.StopReason = "halt: " + reason
			if a.Exit == types.ExitNormal {
				a.Exit = types.ExitHalted
				r.save(a)
			}
			return
		}

		r.logger.Info().Dur("settle", r.cfg.Settle).Int("next_attempt", attempt+1).Msg("Retrying")
		if err := r.sleep(ctx, r.cfg.Settle); err != nil {
			sum.Down.Merge(pending)
			sum.StopReason = "cancelled"
			return
		}
	}
}

// diagnose checks every node not already excluded
func (r *Runner) diagnose(ctx context.Context, nodes hostlist.NodeSet, down types.HealthReport, attempt int) types.HealthReport {
	candidates := hostlist.Diff(nodes, down.Nodes())
	report := r.diag.Run(ctx, candidates, attempt)
	if len(report) > 0 {
		logger := log.WithAttempt(r.logger, attempt)
		logger.Info().
			Str("failed", hostlist.Compress(report.Nodes())).
			Msg("Diagnostics found bad nodes")
	}
	return report
}

// logDown emits one NODE_FAIL per node in report
func (r *Runner) logDown(report types.HealthReport, attempt int) {
	attemptLogger := log.WithAttempt(r.logger, attempt)
	for _, node := range report.Nodes() {
		logger := log.WithNode(attemptLogger, node)
		logger.Warn().Str("reason", report[node]).Msg("Node down")
		r.events.Emit(events.Event{Type: events.EventNodeFail, Node: node, Note: report[node]})
	}
}

// nodesNeeded prefers an explicit count, then the size of the last launch in
// this invocation, then the size recorded by a previous invocation
func (r *Runner) nodesNeeded(sum *Summary, allocated int) int {
	if r.cfg.NodesNeeded > 0 {
		return r.cfg.NodesNeeded
	}
	if sum.RunSize > 0 {
		return sum.RunSize
	}
	if r.store != nil {
		size, err := r.store.RunSize(sum.JobID)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Failed to read last run size")
		} else if size > 0 {
			return size
		}
	}
	return allocated
}

// checkHalt re-reads the halt file and evaluates it against the allocation
// end time
func (r *Runner) checkHalt(ctx context.Context) (string, bool) {
	cond, err := halt.Load(r.cfg.HaltFile)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to read halt file, ignoring")
		return "", false
	}
	if cond.IsZero() {
		return "", false
	}

	end := rm.EndTimeUnknown
	if cond.HaltSeconds > 0 {
		end, err = r.rm.EndTime(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Failed to query allocation end time")
			end = rm.EndTimeUnknown
		}
	}

	reason, stop := halt.Evaluate(cond, r.now(), end)
	if stop {
		r.logger.Info().Str("reason", reason).Msg("Halt condition detected")
		r.events.Emit(events.Event{Type: events.EventHalt, Note: reason})
	}
	return reason, stop
}

// command picks the restart command when a restart dataset is known
func (r *Runner) command(ctx context.Context) []string {
	if len(r.cfg.RestartCmd) == 0 || r.index == nil {
		return r.cfg.RunCmd
	}
	current, err := r.index.Current(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to query restart dataset, using run command")
		return r.cfg.RunCmd
	}
	if current == "" {
		return r.cfg.RunCmd
	}
	if cmd := index.RestartCommand(r.cfg.RestartCmd, current); cmd != nil {
		r.logger.Info().Str("restart", current).Msg("Restarting from checkpoint")
		return cmd
	}
	return r.cfg.RunCmd
}

// attempt launches once on survivors and waits for the launch to end
func (r *Runner) attempt(ctx context.Context, sum *Summary, number int, survivors, excluded hostlist.NodeSet) *types.RunAttempt {
	a := &types.RunAttempt{
		ID:           uuid.New().String(),
		InvocationID: sum.InvocationID,
		JobID:        sum.JobID,
		Number:       number,
		StartedAt:    r.now(),
		Nodes:        survivors,
		Excluded:     excluded,
	}
	logger := log.WithAttempt(r.logger, number)
	sum.Attempts = append(sum.Attempts, a)
	r.save(a)

	argv := r.command(ctx)
	sum.RunSize = launcher.RequestedNodes(argv)
	if sum.RunSize == 0 {
		sum.RunSize = len(survivors)
	}
	if r.store != nil {
		if err := r.store.SetRunSize(sum.JobID, sum.RunSize); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run size")
		}
	}
	logger.Info().
		Str("nodes", hostlist.Compress(survivors)).
		Str("excluded", hostlist.Compress(excluded)).
		Msg("Launching")
	r.events.Emit(events.Event{Type: events.EventRunStart, Note: fmt.Sprintf("attempt %d on %d nodes", number, len(survivors))})

	p, err := r.launcher.Launch(ctx, survivors, excluded, argv)
	if err != nil {
		logger.Error().Err(err).Msg("Launch failed")
		a.Exit = types.ExitLaunchFailed
	} else if r.watchdog != nil {
		out := r.watchdog.Watch(ctx, p)
		a.Success = out.Success
		a.Exit = types.ExitNormal
		if out.Killed {
			a.Exit = types.ExitWatchdogKilled
		}
	} else {
		_, a.Success = r.launcher.Wait(ctx, p, 0)
		a.Exit = types.ExitNormal
	}
	a.EndedAt = r.now()

	metrics.AttemptsTotal.WithLabelValues(string(a.Exit)).Inc()
	metrics.AttemptDuration.Observe(a.Elapsed().Seconds())
	r.events.Emit(events.Event{
		Type: events.EventRunEnd,
		Note: fmt.Sprintf("attempt %d %s success=%t", number, a.Exit, a.Success),
	}.WithElapsed(a.Elapsed()))
	r.save(a)

	if err := metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
		logger.Warn().Err(err).Msg("Failed to write metrics textfile")
	}

	logger.Info().
		Bool("success", a.Success).
		Str("exit", string(a.Exit)).
		Dur("elapsed", a.Elapsed()).
		Msg("Attempt finished")
	return a
}

func (r *Runner) save(a *types.RunAttempt) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveAttempt(a); err != nil {
		r.logger.Warn().Err(err).Int("attempt", a.Number).Msg("Failed to save attempt")
	}
}

// recover runs postrun recovery against the nodes still up
func (r *Runner) recover(ctx context.Context, sum *Summary, nodes hostlist.NodeSet) {
	if r.scavenger == nil {
		return
	}
	up := hostlist.Diff(nodes, sum.Down.Nodes())
	res, err := r.scavenger.Recover(ctx, up, r.cfg.CntlDir)
	sum.Recovery = res
	sum.RecoveryErr = err
	if err != nil {
		r.logger.Error().Err(err).Msg("Recovery failed")
		return
	}

	if err := metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to write metrics textfile")
	}
}
