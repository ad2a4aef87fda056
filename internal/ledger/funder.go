package ledger

import (
	"context"
	"math/big"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/lock"
)

// Funder moves funds from the main ledger into provider sub-accounts.
type Funder struct {
	base
}

// NewFunder creates a Funder.
func NewFunder(b Broker, l lock.Locker, s Settings) *Funder {
	return &Funder{base{broker: b, locker: l, settings: s}}
}

// FundProvider transfers wei to provider's sub-account and returns the
// updated balance. The amount is checked against a balance fetched inside
// the lock; nothing is transferred when it exceeds what is available.
func (f *Funder) FundProvider(ctx context.Context, provider string, wei *big.Int) (Balance, error) {
	if wei == nil || wei.Sign() <= 0 {
		return Balance{}, eris.New("ledger: transfer amount must be positive")
	}

	unlock, err := f.lock(ctx)
	if err != nil {
		return Balance{}, err
	}
	defer unlock()

	bal, err := f.fetch(ctx)
	if err != nil {
		return Balance{}, eris.Wrap(err, "ledger: fetch balance")
	}
	if wei.Cmp(bal.Available) > 0 {
		zap.L().Warn("ledger: transfer exceeds available balance",
			zap.String("provider", provider),
			zap.String("amount_wei", wei.String()),
			zap.String("available_wei", bal.Available.String()),
		)
		return bal, eris.Wrapf(ErrInsufficientAvailable, "requested %s wei, available %s wei", wei.String(), bal.Available.String())
	}

	if err := f.broker.TransferFund(ctx, provider, wei); err != nil {
		return Balance{}, err
	}
	return f.fetch(ctx)
}
