package publish

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/cache"
	"github.com/matzehuels/cratestack/pkg/dag"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/ledger"
	"github.com/matzehuels/cratestack/pkg/observability"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// Registry publishes packages and reports their visibility.
type Registry interface {
	VisibilityChecker
	Publish(ctx context.Context, pkg *workspace.Package) error
}

// Options configures a run.
type Options struct {
	// FromExisting publishes the versions already in the manifests
	// without a version step. The scheduler behaves the same either way;
	// the flag is carried for logging.
	FromExisting bool
	Backoff      Backoff
}

// Scheduler publishes packages in dependency order.
type Scheduler struct {
	Registry Registry
	// Ledger defaults to one that remembers nothing.
	Ledger *ledger.Ledger
	// Clock defaults to the wall clock.
	Clock  Clock
	Logger *log.Logger
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Report lists what happened to every package of a run.
type Report struct {
	Confirmed []string `json:"confirmed" yaml:"confirmed"`
	Skipped   []string `json:"skipped" yaml:"skipped"`
	// Unconfirmed packages were uploaded but not yet seen in the index.
	// A rerun resumes waiting for them without uploading again.
	Unconfirmed  []string `json:"unconfirmed" yaml:"unconfirmed"`
	Failed       []string `json:"failed" yaml:"failed"`
	NotAttempted []string `json:"not_attempted" yaml:"not_attempted"`
}

// visibilityChecks is how often the pre-upload visibility check is tried
// before a transient index error fails the package.
const visibilityChecks = 3

// Order returns the publish order for targets: public packages only,
// dependencies first, ties by name.
func Order(ws *workspace.Workspace, g *dag.DAG, targets map[string]*semver.Version) ([]string, error) {
	sub := g.Subgraph(func(name string) bool {
		p, ok := ws.Packages[name]
		_, wanted := targets[name]
		return ok && wanted && !p.Private
	})
	order, err := sub.Order()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeGraph, err, "publish order")
	}
	return order, nil
}

// Run publishes every public package in targets at its target version.
// It stops at the first failure; the returned report is complete even
// when err is not nil.
func (s *Scheduler) Run(ctx context.Context, ws *workspace.Workspace, g *dag.DAG, targets map[string]*semver.Version, opts Options) (*Report, error) {
	report := &Report{}
	order, err := Order(ws, g, targets)
	if err != nil {
		return report, err
	}
	if s.Ledger == nil {
		s.Ledger = ledger.New(cache.NewNullCache(), "")
	}
	if s.Clock == nil {
		s.Clock = RealClock{}
	}
	s.logger().Debug("publish order", "packages", order, "from_existing", opts.FromExisting, "run", s.Ledger.RunID())

	for i, name := range order {
		if err := ctx.Err(); err != nil {
			report.NotAttempted = append(report.NotAttempted, order[i:]...)
			return report, errors.Interrupted(err, "publish")
		}
		outcome, err := s.publishOne(ctx, ws.Packages[name], targets[name].String(), opts)
		switch outcome {
		case outcomeConfirmed:
			report.Confirmed = append(report.Confirmed, name)
		case outcomeSkipped:
			report.Skipped = append(report.Skipped, name)
		case outcomeUnconfirmed:
			report.Unconfirmed = append(report.Unconfirmed, name)
			report.NotAttempted = append(report.NotAttempted, order[i+1:]...)
			return report, err
		case outcomeFailed:
			report.Failed = append(report.Failed, name)
			report.NotAttempted = append(report.NotAttempted, order[i+1:]...)
			return report, err
		}
	}
	return report, nil
}

type outcome int

const (
	outcomeConfirmed outcome = iota
	outcomeSkipped
	outcomeUnconfirmed
	outcomeFailed
)

func (s *Scheduler) publishOne(ctx context.Context, pkg *workspace.Package, version string, opts Options) (outcome, error) {
	hooks := observability.Publish()
	logger := s.logger().With("package", pkg.Name, "version", version)

	rec, err := s.Ledger.Get(ctx, pkg.Name, version)
	if err != nil {
		return outcomeFailed, errors.Wrap(errors.ErrCodePublish, err, "read ledger")
	}
	if rec != nil && rec.State == ledger.StateConfirmed {
		logger.Info("already published")
		hooks.OnPublishSkipped(ctx, pkg.Name, version, "ledger")
		return outcomeSkipped, nil
	}

	resume := rec != nil && rec.State == ledger.StateInFlight
	if !resume {
		visible, err := s.isVisible(ctx, pkg.Name, version, opts.Backoff.WithDefaults().Initial)
		if err != nil {
			if ctx.Err() != nil {
				return outcomeFailed, errors.Interrupted(ctx.Err(), "publish of %s", pkg.Name)
			}
			return outcomeFailed, errors.Wrap(errors.ErrCodePublish, err, "check %s@%s", pkg.Name, version)
		}
		if visible {
			logger.Info("already published")
			hooks.OnPublishSkipped(ctx, pkg.Name, version, "registry")
			if _, err := s.Ledger.Mark(ctx, pkg.Name, version, ledger.StateConfirmed, nil); err != nil {
				logger.Warn("ledger update failed", "err", err)
			}
			return outcomeSkipped, nil
		}
	}

	start := time.Now()
	if resume {
		logger.Info("resuming visibility wait", "attempts", rec.Attempts)
	} else {
		if _, err := s.Ledger.Mark(ctx, pkg.Name, version, ledger.StateInFlight, nil); err != nil {
			return outcomeFailed, errors.Wrap(errors.ErrCodePublish, err, "write ledger")
		}
		logger.Info("publishing")
		hooks.OnPublishStart(ctx, pkg.Name, version)
		if err := s.Registry.Publish(ctx, pkg); err != nil {
			if _, lerr := s.Ledger.Mark(ctx, pkg.Name, version, ledger.StateFailed, err); lerr != nil {
				logger.Warn("ledger update failed", "err", lerr)
			}
			hooks.OnPublishComplete(ctx, pkg.Name, version, time.Since(start), err)
			if ctx.Err() != nil {
				return outcomeFailed, errors.Interrupted(ctx.Err(), "publish of %s", pkg.Name)
			}
			if errors.GetCode(err) != errors.ErrCodePublish {
				err = errors.Wrap(errors.ErrCodePublish, err, "publish %s@%s", pkg.Name, version)
			}
			return outcomeFailed, err
		}
	}

	w := &Waiter{
		Name:    pkg.Name,
		Version: version,
		Checker: s.Registry,
		Clock:   s.Clock,
		Backoff: opts.Backoff,
		Logger:  logger,
	}
	state, err := w.Wait(ctx)
	if err != nil {
		// The ledger keeps the upload in flight.
		hooks.OnPublishComplete(ctx, pkg.Name, version, time.Since(start), err)
		return outcomeUnconfirmed, errors.Interrupted(err, "publish of %s while waiting for the registry", pkg.Name)
	}
	if state != WaitConfirmed {
		err := errors.New(errors.ErrCodePublish,
			"%s@%s was uploaded but is not visible after %s; rerun to resume waiting", pkg.Name, version, w.Backoff.WithDefaults().MaxWait)
		if last := w.LastError(); last != nil {
			err.Cause = last
		}
		hooks.OnPublishComplete(ctx, pkg.Name, version, time.Since(start), err)
		return outcomeUnconfirmed, err
	}

	if _, err := s.Ledger.Mark(ctx, pkg.Name, version, ledger.StateConfirmed, nil); err != nil {
		logger.Warn("ledger update failed", "err", err)
	}
	hooks.OnPublishComplete(ctx, pkg.Name, version, time.Since(start), nil)
	logger.Info("published", "polls", w.Attempts())
	return outcomeConfirmed, nil
}

// isVisible checks the registry before an upload. Transient failures are
// retried with the scheduler's clock so all waiting stays observable.
func (s *Scheduler) isVisible(ctx context.Context, name, version string, delay time.Duration) (bool, error) {
	var lastErr error
	for i := range visibilityChecks {
		visible, err := s.Registry.IsVisible(ctx, name, version)
		if err == nil {
			return visible, nil
		}
		lastErr = err
		if i == visibilityChecks-1 {
			break
		}
		if err := s.Clock.Sleep(ctx, delay); err != nil {
			return false, err
		}
		delay *= 2
	}
	return false, lastErr
}
