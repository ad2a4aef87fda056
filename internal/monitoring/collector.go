package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/concierge-labs/concierge/internal/ledger"
	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/internal/store"
)

// Snapshot holds a point-in-time view of ledger and pipeline health.
type Snapshot struct {
	// Ledger.
	LedgerExists   bool   `json:"ledger_exists"`
	Owner          string `json:"owner,omitempty"`
	TotalWei       string `json:"total_wei,omitempty"`
	LockedWei      string `json:"locked_wei,omitempty"`
	AvailableUnits int64  `json:"available_units"`
	Clamped        bool   `json:"clamped"`

	// Recent insight runs.
	RunsTotal    int     `json:"runs_total"`
	RunsDone     int     `json:"runs_done"`
	RunsFailed   int     `json:"runs_failed"`
	RunsFailRate float64 `json:"runs_fail_rate"`

	CollectedAt time.Time `json:"collected_at"`
}

// BalanceChecker reads the current ledger balance.
type BalanceChecker interface {
	Check(ctx context.Context) (ledger.Balance, bool, error)
}

// Collector gathers a Snapshot from the ledger and the run store.
type Collector struct {
	ledger BalanceChecker
	store  store.Store
}

// NewCollector creates a new Collector. st may be nil, in which case run
// metrics are left at zero.
func NewCollector(l BalanceChecker, st store.Store) *Collector {
	return &Collector{ledger: l, store: st}
}

// Collect gathers a snapshot covering the last lookbackRuns runs.
func (c *Collector) Collect(ctx context.Context, lookbackRuns int) (*Snapshot, error) {
	snap := &Snapshot{CollectedAt: time.Now().UTC()}

	bal, exists, err := c.ledger.Check(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: check ledger")
	}
	snap.LedgerExists = exists
	if exists {
		snap.Owner = bal.Ledger.Owner
		snap.TotalWei = bal.Ledger.Total.String()
		snap.LockedWei = bal.Ledger.Locked.String()
		snap.AvailableUnits = bal.AvailableUnits.Int64()
		snap.Clamped = bal.Clamped
	}

	if c.store == nil {
		return snap, nil
	}
	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: lookbackRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusDone:
			snap.RunsDone++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
	}
	if finished := snap.RunsDone + snap.RunsFailed; finished > 0 {
		snap.RunsFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}
