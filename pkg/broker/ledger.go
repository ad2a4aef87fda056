package broker

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/pkg/chain"
)

// GetLedger fetches the account's prepaid balance. It returns an error
// wrapping ErrLedgerNotFound when no ledger exists.
func (c *Client) GetLedger(ctx context.Context) (model.Ledger, error) {
	out, err := c.ledger.Call(ctx, "getLedger", c.account)
	if err != nil {
		if chain.IsRevert(err, "LedgerNotExists") || strings.Contains(err.Error(), "LedgerNotExists") {
			return model.Ledger{}, eris.Wrapf(ErrLedgerNotFound, "account %s", c.account.Hex())
		}
		return model.Ledger{}, eris.Wrap(err, "broker: get ledger")
	}
	if len(out) != 3 {
		return model.Ledger{}, eris.Errorf("broker: get ledger: expected 3 outputs, got %d", len(out))
	}

	owner, ok1 := out[0].(common.Address)
	total, ok2 := out[1].(*big.Int)
	locked, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return model.Ledger{}, eris.New("broker: get ledger: unexpected output types")
	}

	return model.Ledger{Owner: owner.Hex(), Total: total, Locked: locked}, nil
}

// AddLedger opens the account's ledger with an initial deposit in wei.
func (c *Client) AddLedger(ctx context.Context, wei *big.Int) error {
	if _, err := c.ledger.Transact(ctx, wei, "addLedger", ""); err != nil {
		return eris.Wrap(err, "broker: add ledger")
	}
	zap.L().Info("broker: ledger created", zap.String("account", c.account.Hex()), zap.String("wei", wei.String()))
	return nil
}

// DepositFund adds wei to the account's ledger.
func (c *Client) DepositFund(ctx context.Context, wei *big.Int) error {
	if _, err := c.ledger.Transact(ctx, wei, "depositFund"); err != nil {
		return eris.Wrap(err, "broker: deposit fund")
	}
	zap.L().Info("broker: deposit confirmed", zap.String("account", c.account.Hex()), zap.String("wei", wei.String()))
	return nil
}

// TransferFund moves wei from the main balance to a provider sub-account.
func (c *Client) TransferFund(ctx context.Context, provider string, wei *big.Int) error {
	addr, err := parseAddress(provider)
	if err != nil {
		return err
	}
	if _, err := c.ledger.Transact(ctx, nil, "transferFund", addr, ServiceTypeInference, wei); err != nil {
		return eris.Wrapf(err, "broker: transfer fund to %s", addr.Hex())
	}
	zap.L().Info("broker: transfer confirmed", zap.String("provider", addr.Hex()), zap.String("wei", wei.String()))
	return nil
}
