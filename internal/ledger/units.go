package ledger

import (
	"math/big"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// weiDecimals is the number of decimal places between OG and wei.
const weiDecimals = 18

// Units converts between wei and the broker's fee units.
type Units struct {
	unitWei *big.Int
}

// NewUnits parses the wei size of one fee unit.
func NewUnits(unitWei string) (Units, error) {
	v, ok := new(big.Int).SetString(unitWei, 10)
	if !ok || v.Sign() <= 0 {
		return Units{}, eris.Errorf("ledger: invalid unit size %q", unitWei)
	}
	return Units{unitWei: v}, nil
}

// FromWei returns the whole fee units covered by wei, rounded down.
func (u Units) FromWei(wei *big.Int) *big.Int {
	if wei == nil || wei.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(wei, u.unitWei)
}

// ToWei returns the wei value of n fee units.
func (u Units) ToWei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), u.unitWei)
}

// ParseOG parses a decimal OG amount into wei. Amounts must be positive and
// have no more than 18 decimal places.
func ParseOG(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: parse amount %q", s)
	}
	return OGToWei(d)
}

// OGToWei converts a decimal OG amount into wei.
func OGToWei(og decimal.Decimal) (*big.Int, error) {
	if !og.IsPositive() {
		return nil, eris.Errorf("ledger: amount must be positive, got %s", og.String())
	}
	wei := og.Shift(weiDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, eris.Errorf("ledger: amount %s has more than %d decimal places", og.String(), weiDecimals)
	}
	return wei.BigInt(), nil
}

// WeiToOG renders wei as a decimal OG amount.
func WeiToOG(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}
