// Package ledger records the publish state of each package version so an
// interrupted publish run can resume without republishing.
//
// Records live in a [cache.Cache] with no expiry: the file cache for a
// single machine, Redis when several runners share one release.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/cratestack/pkg/cache"
)

// State is the publish state of one package version.
type State string

const (
	StatePending   State = "pending"
	StateInFlight  State = "in-flight"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Record is the ledger entry for name@version.
type Record struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	State     State     `json:"state"`
	RunID     string    `json:"run_id"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// Ledger reads and writes records for one run.
type Ledger struct {
	store cache.Cache
	runID string
	now   func() time.Time
}

// New returns a ledger over store. An empty runID gets a fresh UUID.
func New(store cache.Cache, runID string) *Ledger {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Ledger{store: store, runID: runID, now: time.Now}
}

// RunID identifies this run in every record it writes.
func (l *Ledger) RunID() string { return l.runID }

func key(name, version string) string {
	return "ledger:" + name + "@" + version
}

// Get returns the record for name@version, or nil when there is none.
func (l *Ledger) Get(ctx context.Context, name, version string) (*Record, error) {
	data, ok, err := l.store.Get(ctx, key(name, version))
	if err != nil || !ok {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ledger record %s@%s: %w", name, version, err)
	}
	return &r, nil
}

// Mark moves name@version to state. Entering in-flight counts an attempt.
// cause is recorded for the failed state.
func (l *Ledger) Mark(ctx context.Context, name, version string, state State, cause error) (*Record, error) {
	r, err := l.Get(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = &Record{Name: name, Version: version}
	}
	r.State = state
	r.RunID = l.runID
	r.UpdatedAt = l.now().UTC()
	r.Error = ""
	if state == StateInFlight {
		r.Attempts++
	}
	if cause != nil {
		r.Error = cause.Error()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	if err := l.store.Set(ctx, key(name, version), data, 0); err != nil {
		return nil, fmt.Errorf("ledger write %s@%s: %w", name, version, err)
	}
	return r, nil
}

// Forget removes the record for name@version.
func (l *Ledger) Forget(ctx context.Context, name, version string) error {
	return l.store.Delete(ctx, key(name, version))
}
