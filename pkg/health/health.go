package health

import (
	"context"
	"time"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/cuemby/scrun/pkg/metrics"
	"github.com/cuemby/scrun/pkg/types"
)

// Input is what each diagnostic test receives
type Input struct {
	// Nodes still considered healthy when the test starts
	Nodes hostlist.NodeSet

	// Attempt is the 1-based run attempt number within this invocation.
	// Attempt 1 is the first run; some tests are stricter then.
	Attempt int
}

// IsFirstAttempt reports whether this is the first attempt of the invocation
func (in Input) IsFirstAttempt() bool {
	return in.Attempt <= 1
}

// Test is one step of the node diagnostic sequence. It returns the nodes it
// found bad with a reason each. An error means the test itself could not
// run; its nodes are then left untouched.
type Test interface {
	Name() string
	Run(ctx context.Context, in Input) (types.HealthReport, error)
}

// Diagnostics runs an ordered sequence of tests against a node set
type Diagnostics struct {
	tests []Test
}

// NewDiagnostics creates a diagnostic sequence. Tests run in the given order.
func NewDiagnostics(tests ...Test) *Diagnostics {
	return &Diagnostics{tests: tests}
}

// Tests returns the configured sequence
func (d *Diagnostics) Tests() []Test {
	return d.tests
}

// Run applies each test in order. Nodes marked bad by a test are removed
// before the next one runs. The first reason recorded for a node wins.
func (d *Diagnostics) Run(ctx context.Context, nodes hostlist.NodeSet, attempt int) types.HealthReport {
	logger := log.WithComponent("health")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DiagnosticsDuration)

	report := types.HealthReport{}
	for _, test := range d.tests {
		remaining := hostlist.Diff(nodes, report.Nodes())
		if len(remaining) == 0 {
			break
		}

		start := time.Now()
		partial, err := test.Run(ctx, Input{Nodes: remaining, Attempt: attempt})
		if err != nil {
			logger.Warn().Err(err).Str("test", test.Name()).Msg("Diagnostic test failed to run, skipping")
			continue
		}

		failed := 0
		for _, node := range remaining {
			reason, bad := partial[node]
			if !bad {
				continue
			}
			report.Add(node, reason)
			metrics.NodeFailuresTotal.WithLabelValues(test.Name()).Inc()
			failed++
		}

		logger.Debug().
			Str("test", test.Name()).
			Int("checked", len(remaining)).
			Int("failed", failed).
			Dur("duration", time.Since(start)).
			Msg("Diagnostic test complete")
	}

	return report
}
