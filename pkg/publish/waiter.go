package publish

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/observability"
)

// Backoff bounds visibility polling.
type Backoff struct {
	// Initial is the delay after the first unsuccessful poll.
	Initial time.Duration
	// Max caps the doubling delay.
	Max time.Duration
	// MaxWait is the total time to wait before giving up.
	MaxWait time.Duration
}

// DefaultBackoff polls after 1s, 2s, 4s ... up to 30s apart, for at most
// five minutes.
var DefaultBackoff = Backoff{Initial: time.Second, Max: 30 * time.Second, MaxWait: 5 * time.Minute}

// WithDefaults fills zero fields from [DefaultBackoff].
func (b Backoff) WithDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff.Initial
	}
	if b.Max <= 0 {
		b.Max = DefaultBackoff.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.MaxWait <= 0 {
		b.MaxWait = DefaultBackoff.MaxWait
	}
	return b
}

// WaitState is the state of a [Waiter].
type WaitState int

const (
	WaitPending WaitState = iota
	WaitPolling
	WaitConfirmed
	WaitTimedOut
)

func (s WaitState) String() string {
	switch s {
	case WaitPending:
		return "pending"
	case WaitPolling:
		return "polling"
	case WaitConfirmed:
		return "confirmed"
	case WaitTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// VisibilityChecker answers whether a version is visible in the registry.
type VisibilityChecker interface {
	IsVisible(ctx context.Context, name, version string) (bool, error)
}

// Waiter polls until name@version is visible or MaxWait has passed.
type Waiter struct {
	Name, Version string
	Checker       VisibilityChecker
	Clock         Clock
	Backoff       Backoff
	Logger        *log.Logger

	state    WaitState
	attempts int
	lastErr  error
}

// State returns the current state.
func (w *Waiter) State() WaitState { return w.state }

// Attempts returns the number of polls made.
func (w *Waiter) Attempts() int { return w.attempts }

// LastError returns the error of the most recent failed poll, if any.
func (w *Waiter) LastError() error { return w.lastErr }

// Wait drives the waiter to a final state. The waiter is pending until the
// first poll answers and polling after the first negative answer. Wait
// returns an error only when ctx ends; a timeout is reported through State.
func (w *Waiter) Wait(ctx context.Context) (WaitState, error) {
	b := w.Backoff.WithDefaults()
	start := w.Clock.Now()
	delay := b.Initial
	w.state = WaitPending

	defer func() {
		observability.Publish().OnVisibilityResult(ctx, w.Name, w.Version,
			w.Clock.Now().Sub(start), w.state == WaitConfirmed)
	}()

	for {
		w.attempts++
		visible, err := w.Checker.IsVisible(ctx, w.Name, w.Version)
		observability.Publish().OnVisibilityPoll(ctx, w.Name, w.Version, w.attempts, visible)
		if err != nil {
			// Transient registry errors count as "not yet".
			w.lastErr = err
			if w.Logger != nil {
				w.Logger.Debug("visibility poll failed", "package", w.Name, "version", w.Version, "err", err)
			}
		}
		if visible {
			w.state = WaitConfirmed
			return w.state, nil
		}

		w.state = WaitPolling

		elapsed := w.Clock.Now().Sub(start)
		if elapsed >= b.MaxWait {
			w.state = WaitTimedOut
			return w.state, nil
		}
		if remaining := b.MaxWait - elapsed; delay > remaining {
			delay = remaining
		}
		if err := w.Clock.Sleep(ctx, delay); err != nil {
			return w.state, err
		}
		delay = min(delay*2, b.Max)
	}
}
