// Package ledger keeps the compute broker's prepaid balance funded and moves
// funds to provider sub-accounts. Every mutation runs under a per-owner lock
// and acts on a balance fetched inside that lock.
package ledger

import (
	"context"
	"math/big"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/config"
	"github.com/concierge-labs/concierge/internal/lock"
	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/pkg/broker"
)

var (
	// ErrInsufficientBalance is returned when the balance is still short
	// after the single top-up attempt.
	ErrInsufficientBalance = eris.New("ledger: insufficient balance")
	// ErrInsufficientAvailable is returned when a sub-account transfer
	// exceeds the available balance.
	ErrInsufficientAvailable = eris.New("ledger: insufficient available balance")
)

// Broker is the ledger side of the compute broker.
type Broker interface {
	Account() string
	GetLedger(ctx context.Context) (model.Ledger, error)
	AddLedger(ctx context.Context, wei *big.Int) error
	DepositFund(ctx context.Context, wei *big.Int) error
	TransferFund(ctx context.Context, provider string, wei *big.Int) error
}

// Balance is a fetched ledger together with its derived amounts.
type Balance struct {
	Ledger         model.Ledger
	Available      *big.Int
	AvailableUnits *big.Int
	Clamped        bool
	Created        bool
	ToppedUp       bool
}

// Settings controls funding amounts.
type Settings struct {
	Units            Units
	OpeningDeposit   *big.Int
	TopUpBufferUnits int64
	MinTopUpUnits    int64
}

// SettingsFromConfig builds Settings from the ledger config section.
func SettingsFromConfig(cfg config.LedgerConfig) (Settings, error) {
	units, err := NewUnits(cfg.UnitWei)
	if err != nil {
		return Settings{}, err
	}
	opening, err := OGToWei(decimal.NewFromFloat(cfg.OpeningDepositOG))
	if err != nil {
		return Settings{}, eris.Wrap(err, "ledger: opening deposit")
	}
	return Settings{
		Units:            units,
		OpeningDeposit:   opening,
		TopUpBufferUnits: cfg.TopUpBufferUnits,
		MinTopUpUnits:    cfg.MinTopUpUnits,
	}, nil
}

type base struct {
	broker   Broker
	locker   lock.Locker
	settings Settings
}

func (b *base) lock(ctx context.Context) (func(), error) {
	return b.locker.Lock(ctx, "ledger:"+b.broker.Account())
}

func (b *base) fetch(ctx context.Context) (Balance, error) {
	l, err := b.broker.GetLedger(ctx)
	if err != nil {
		return Balance{}, err
	}
	return b.balanceOf(l), nil
}

func (b *base) balanceOf(l model.Ledger) Balance {
	avail, clamped := l.Available()
	if clamped {
		zap.L().Warn("ledger: locked exceeds total, clamping available to total",
			zap.String("owner", l.Owner),
			zap.String("total", l.Total.String()),
			zap.String("locked", l.Locked.String()),
		)
	}
	return Balance{
		Ledger:         l,
		Available:      avail,
		AvailableUnits: b.settings.Units.FromWei(avail),
		Clamped:        clamped,
	}
}

// Account serves the user-triggered ledger actions.
type Account struct {
	base
}

// NewAccount creates an Account.
func NewAccount(b Broker, l lock.Locker, s Settings) *Account {
	return &Account{base{broker: b, locker: l, settings: s}}
}

// Check returns the current balance. exists is false when no ledger has
// been opened yet.
func (a *Account) Check(ctx context.Context) (bal Balance, exists bool, err error) {
	bal, err = a.fetch(ctx)
	if eris.Is(err, broker.ErrLedgerNotFound) {
		return Balance{}, false, nil
	}
	if err != nil {
		return Balance{}, false, err
	}
	return bal, true, nil
}

// Create opens the ledger with an initial deposit and returns it.
func (a *Account) Create(ctx context.Context, wei *big.Int) (Balance, error) {
	unlock, err := a.lock(ctx)
	if err != nil {
		return Balance{}, err
	}
	defer unlock()

	if err := a.broker.AddLedger(ctx, wei); err != nil {
		return Balance{}, err
	}
	bal, err := a.fetch(ctx)
	if err != nil {
		return Balance{}, err
	}
	bal.Created = true
	return bal, nil
}

// Deposit adds wei to the ledger and returns the updated balance.
func (a *Account) Deposit(ctx context.Context, wei *big.Int) (Balance, error) {
	if wei == nil || wei.Sign() <= 0 {
		return Balance{}, eris.New("ledger: deposit amount must be positive")
	}
	unlock, err := a.lock(ctx)
	if err != nil {
		return Balance{}, err
	}
	defer unlock()

	if err := a.broker.DepositFund(ctx, wei); err != nil {
		return Balance{}, err
	}
	return a.fetch(ctx)
}
