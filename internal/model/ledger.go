// Package model holds the domain types shared across the Concierge services.
package model

import (
	"math/big"
)

// Ledger is the prepaid balance record kept by the compute broker. Amounts
// are in wei.
type Ledger struct {
	Owner  string
	Total  *big.Int
	Locked *big.Int
}

// Available returns total minus locked. When locked exceeds total the result
// is clamped to total and clamped reports true.
func (l Ledger) Available() (available *big.Int, clamped bool) {
	total := orZero(l.Total)
	locked := orZero(l.Locked)
	if total.Cmp(locked) >= 0 {
		return new(big.Int).Sub(total, locked), false
	}
	return new(big.Int).Set(total), true
}

// LedgerView is the JSON form of a Ledger returned by the API.
type LedgerView struct {
	Owner     string `json:"owner"`
	Total     string `json:"total"`
	Locked    string `json:"locked"`
	Available string `json:"available"`
}

// View renders the ledger with decimal-string amounts.
func (l Ledger) View() LedgerView {
	avail, _ := l.Available()
	return LedgerView{
		Owner:     l.Owner,
		Total:     orZero(l.Total).String(),
		Locked:    orZero(l.Locked).String(),
		Available: avail.String(),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
