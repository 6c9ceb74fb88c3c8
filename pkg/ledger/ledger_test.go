package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/cratestack/pkg/cache"
)

func TestLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	l := New(store, "")
	if _, err := uuid.Parse(l.RunID()); err != nil {
		t.Fatalf("RunID %q is not a UUID: %v", l.RunID(), err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	if r, err := l.Get(ctx, "core", "1.0.0"); err != nil || r != nil {
		t.Fatalf("Get on empty ledger = %v, %v", r, err)
	}

	steps := []struct {
		state    State
		cause    error
		attempts int
	}{
		{StatePending, nil, 0},
		{StateInFlight, nil, 1},
		{StateFailed, errors.New("registry down"), 1},
		{StateInFlight, nil, 2},
		{StateConfirmed, nil, 2},
	}
	for _, s := range steps {
		r, err := l.Mark(ctx, "core", "1.0.0", s.state, s.cause)
		if err != nil {
			t.Fatalf("Mark(%s): %v", s.state, err)
		}
		if r.State != s.state || r.Attempts != s.attempts {
			t.Errorf("after %s: %+v", s.state, r)
		}
	}

	r, err := l.Get(ctx, "core", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if r.State != StateConfirmed || r.Error != "" || !r.UpdatedAt.Equal(fixed) || r.RunID != l.RunID() {
		t.Errorf("final record = %+v", r)
	}

	// A second run sees the first run's records under its own ID.
	other := New(store, "run-2")
	if r, _ := other.Get(ctx, "core", "1.0.0"); r == nil || r.State != StateConfirmed {
		t.Errorf("other run sees %+v", r)
	}
	if r, _ := other.Get(ctx, "core", "1.0.1"); r != nil {
		t.Errorf("unrelated version sees %+v", r)
	}

	if err := other.Forget(ctx, "core", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if r, _ := l.Get(ctx, "core", "1.0.0"); r != nil {
		t.Error("record survived Forget")
	}
}

func TestLedgerFailedRecordsCause(t *testing.T) {
	l := New(cache.NewNullCache(), "run")
	r, err := l.Mark(context.Background(), "cli", "0.1.0", StateFailed, errors.New("boom"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Error != "boom" {
		t.Errorf("Error = %q", r.Error)
	}
}
