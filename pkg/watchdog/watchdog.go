// Package watchdog supervises a launched application and kills it when the
// checkpoint library shows no progress within a timeout.
package watchdog

import (
	"context"
	"strings"
	"time"

	"github.com/cuemby/scrun/pkg/events"
	"github.com/cuemby/scrun/pkg/index"
	"github.com/cuemby/scrun/pkg/launcher"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/cuemby/scrun/pkg/metrics"
)

// Progress is the flush-state query the watchdog polls
type Progress interface {
	Latest(ctx context.Context) (int, error)
	Location(ctx context.Context, id int) (string, error)
}

// Outcome describes how a watched process ended
type Outcome struct {
	Success bool
	Killed  bool
	Polls   int
}

// Watchdog waits on a process in timeout sized slices. The flush state is
// read once when watching starts and again after each slice without exit;
// no change in latest dataset id or location since the prior read means
// the job is hung.
type Watchdog struct {
	Launcher launcher.Launcher
	Progress Progress
	Events   *events.Recorder

	// Timeout bounds the wait between two checkpoints
	Timeout time.Duration
	// PFSTimeout is used while a flush to the parallel file system is in progress
	PFSTimeout time.Duration
}

// New creates a watchdog
func New(l launcher.Launcher, progress Progress, timeout, pfsTimeout time.Duration) *Watchdog {
	if pfsTimeout < timeout {
		pfsTimeout = timeout
	}
	return &Watchdog{Launcher: l, Progress: progress, Timeout: timeout, PFSTimeout: pfsTimeout}
}

type snapshot struct {
	latest   int
	location string
}

// NextTimeout picks the wait for the next slice from the last seen location
func (w *Watchdog) NextTimeout(location string) time.Duration {
	if strings.Contains(strings.ToUpper(location), index.LocationFlushing) {
		return w.PFSTimeout
	}
	return w.Timeout
}

// Watch blocks until p is no longer running
func (w *Watchdog) Watch(ctx context.Context, p *launcher.Process) Outcome {
	logger := log.WithComponent("watchdog")

	prev := w.poll(ctx)
	timeout := w.NextTimeout(prev.location)
	logger.Debug().
		Int("latest", prev.latest).
		Str("location", prev.location).
		Dur("timeout", timeout).
		Msg("Watchdog armed")

	var out Outcome
	for {
		finished, success := w.Launcher.Wait(ctx, p, timeout)
		if finished {
			out.Success = success
			return out
		}
		out.Polls++

		cur := w.poll(ctx)
		if cur == prev {
			logger.Warn().
				Int("latest", cur.latest).
				Str("location", cur.location).
				Dur("timeout", timeout).
				Msg("No checkpoint progress, killing job")

			metrics.WatchdogKillsTotal.Inc()
			w.Events.Emit(events.Event{
				Type: events.EventWatchdogKill,
				Note: "no progress within " + timeout.String(),
			}.WithDataset(cur.latest))

			if err := w.Launcher.Kill(p); err != nil {
				logger.Error().Err(err).Msg("Failed to kill hung job")
			}
			out.Killed = true
			return out
		}

		prev = cur
		timeout = w.NextTimeout(cur.location)
		logger.Debug().
			Int("latest", cur.latest).
			Str("location", cur.location).
			Dur("next_timeout", timeout).
			Msg("Progress seen")
	}
}

// poll reads the current flush state. Query failures read as sentinel
// values so that a query that keeps failing looks like no progress.
func (w *Watchdog) poll(ctx context.Context) snapshot {
	logger := log.WithComponent("watchdog")

	latest, err := w.Progress.Latest(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to query latest dataset")
		return snapshot{latest: index.NoDataset}
	}
	if latest == index.NoDataset {
		return snapshot{latest: latest}
	}

	location, err := w.Progress.Location(ctx, latest)
	if err != nil {
		logger.Warn().Err(err).Int("dataset_id", latest).Msg("Failed to query dataset location")
		location = ""
	}
	return snapshot{latest: latest, location: location}
}
