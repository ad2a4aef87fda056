package ledger

import (
	"context"
	"math/big"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/lock"
	"github.com/concierge-labs/concierge/pkg/broker"
)

// FundOption configures one EnsureFunded call.
type FundOption func(*fundOpts)

type fundOpts struct {
	onTopUp func()
}

// OnTopUp registers fn to run just before a top-up deposit is sent.
func OnTopUp(fn func()) FundOption {
	return func(o *fundOpts) {
		o.onTopUp = fn
	}
}

// Reconciler makes sure the ledger can pay for a request before it is made.
type Reconciler struct {
	base
}

// NewReconciler creates a Reconciler.
func NewReconciler(b Broker, l lock.Locker, s Settings) *Reconciler {
	return &Reconciler{base{broker: b, locker: l, settings: s}}
}

// EnsureFunded returns a balance with at least requiredUnits available. A
// missing ledger is opened with the opening deposit. A short balance gets
// exactly one top-up of max(shortfall+buffer, floor) units; if that is not
// enough the call fails with ErrInsufficientBalance.
func (r *Reconciler) EnsureFunded(ctx context.Context, requiredUnits int64, opts ...FundOption) (Balance, error) {
	var o fundOpts
	for _, opt := range opts {
		opt(&o)
	}
	log := zap.L().With(zap.String("component", "ledger"), zap.Int64("required_units", requiredUnits))

	unlock, err := r.lock(ctx)
	if err != nil {
		return Balance{}, err
	}
	defer unlock()

	created := false
	bal, err := r.fetch(ctx)
	if eris.Is(err, broker.ErrLedgerNotFound) {
		log.Info("ledger: not found, opening with initial deposit",
			zap.String("deposit_wei", r.settings.OpeningDeposit.String()))
		if err := r.broker.AddLedger(ctx, r.settings.OpeningDeposit); err != nil {
			return Balance{}, eris.Wrap(err, "ledger: open")
		}
		created = true
		bal, err = r.fetch(ctx)
	}
	if err != nil {
		return Balance{}, eris.Wrap(err, "ledger: fetch balance")
	}
	bal.Created = created

	required := big.NewInt(requiredUnits)
	if bal.AvailableUnits.Cmp(required) >= 0 {
		return bal, nil
	}

	shortfall := new(big.Int).Sub(required, bal.AvailableUnits).Int64()
	topUp := max(shortfall+r.settings.TopUpBufferUnits, r.settings.MinTopUpUnits)
	wei := r.settings.Units.ToWei(topUp)

	log.Info("ledger: balance short, topping up",
		zap.String("available_units", bal.AvailableUnits.String()),
		zap.Int64("top_up_units", topUp),
		zap.String("top_up_wei", wei.String()),
	)
	if o.onTopUp != nil {
		o.onTopUp()
	}
	if err := r.broker.DepositFund(ctx, wei); err != nil {
		return Balance{}, eris.Wrap(err, "ledger: top up")
	}

	bal, err = r.fetch(ctx)
	if err != nil {
		return Balance{}, eris.Wrap(err, "ledger: fetch balance after top-up")
	}
	bal.Created = created
	bal.ToppedUp = true

	if bal.AvailableUnits.Cmp(required) < 0 {
		return bal, eris.Wrapf(ErrInsufficientBalance, "available %s units, required %d after top-up",
			bal.AvailableUnits.String(), requiredUnits)
	}
	return bal, nil
}
