package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerAvailable(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		locked      int64
		wantAvail   int64
		wantClamped bool
	}{
		{"normal", 100, 40, 60, false},
		{"fully locked", 100, 100, 0, false},
		{"empty", 0, 0, 0, false},
		{"locked exceeds total", 100, 150, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Ledger{Total: big.NewInt(tt.total), Locked: big.NewInt(tt.locked)}
			avail, clamped := l.Available()
			assert.Equal(t, tt.wantAvail, avail.Int64())
			assert.Equal(t, tt.wantClamped, clamped)
			assert.GreaterOrEqual(t, avail.Sign(), 0)
		})
	}
}

func TestLedgerAvailable_NilAmounts(t *testing.T) {
	avail, clamped := Ledger{}.Available()
	assert.Equal(t, int64(0), avail.Int64())
	assert.False(t, clamped)
}

func TestLedgerView(t *testing.T) {
	l := Ledger{Owner: "0xabc", Total: big.NewInt(500), Locked: big.NewInt(200)}
	v := l.View()
	assert.Equal(t, LedgerView{Owner: "0xabc", Total: "500", Locked: "200", Available: "300"}, v)
}

func TestServiceView(t *testing.T) {
	s := Service{
		Provider:      "0xprov",
		Model:         "llama-3.3-70b-instruct",
		Verifiability: "TeeML",
		InputPrice:    big.NewInt(7),
		OutputPrice:   big.NewInt(5),
	}
	assert.Equal(t, "12", s.View().MinUnits)
	assert.Equal(t, int64(12), s.MinFee().Int64())
	assert.Equal(t, "0", Service{}.MinFee().String())
}

func TestRunStatusTerminal(t *testing.T) {
	assert.True(t, RunStatusDone.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.False(t, RunStatusInvoking.Terminal())
}
