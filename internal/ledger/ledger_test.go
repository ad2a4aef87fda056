package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-labs/concierge/internal/config"
	"github.com/concierge-labs/concierge/internal/lock"
	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/pkg/broker"
)

const unitWei = 100_000_000_000_000 // 1e14

type fakeBroker struct {
	mu        sync.Mutex
	exists    bool
	total     *big.Int
	locked    *big.Int
	gets      int
	adds      []*big.Int
	deposits  []*big.Int
	transfers []*big.Int
	// creditDeposits controls whether DepositFund increases total.
	creditDeposits bool
	transferErr    error
}

func newFakeBroker(total, locked int64) *fakeBroker {
	return &fakeBroker{
		exists:         true,
		total:          big.NewInt(total),
		locked:         big.NewInt(locked),
		creditDeposits: true,
	}
}

func (f *fakeBroker) Account() string { return "0xowner" }

func (f *fakeBroker) GetLedger(context.Context) (model.Ledger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if !f.exists {
		return model.Ledger{}, eris.Wrap(broker.ErrLedgerNotFound, "account 0xowner")
	}
	return model.Ledger{Owner: "0xowner", Total: new(big.Int).Set(f.total), Locked: new(big.Int).Set(f.locked)}, nil
}

func (f *fakeBroker) AddLedger(_ context.Context, wei *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, wei)
	f.exists = true
	f.total = new(big.Int).Set(wei)
	f.locked = new(big.Int)
	return nil
}

func (f *fakeBroker) DepositFund(_ context.Context, wei *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits = append(f.deposits, wei)
	if f.creditDeposits {
		f.total = new(big.Int).Add(f.total, wei)
	}
	return nil
}

func (f *fakeBroker) TransferFund(_ context.Context, _ string, wei *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return f.transferErr
	}
	f.transfers = append(f.transfers, wei)
	f.locked = new(big.Int).Add(f.locked, wei)
	return nil
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	s, err := SettingsFromConfig(config.LedgerConfig{
		UnitWei:          "100000000000000",
		OpeningDepositOG: 1.0,
		TopUpBufferUnits: 2000,
		MinTopUpUnits:    5000,
	})
	require.NoError(t, err)
	return s
}

func units(n int64) int64 { return n * unitWei }

func TestSettingsFromConfig(t *testing.T) {
	s := testSettings(t)
	assert.Equal(t, "1000000000000000000", s.OpeningDeposit.String())
	assert.Equal(t, int64(unitWei), s.Units.ToWei(1).Int64())

	_, err := SettingsFromConfig(config.LedgerConfig{UnitWei: "abc", OpeningDepositOG: 1})
	require.Error(t, err)
	_, err = SettingsFromConfig(config.LedgerConfig{UnitWei: "1", OpeningDepositOG: 0})
	require.Error(t, err)
}

func TestEnsureFunded_NoDepositWhenSufficient(t *testing.T) {
	tests := []struct {
		name          string
		total, locked int64
	}{
		{"exact", units(8000), 0},
		{"surplus", units(20000), units(1000)},
		{"locked leaves enough", units(10000), units(2000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBroker(tt.total, tt.locked)
			r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

			bal, err := r.EnsureFunded(context.Background(), 8000)

			require.NoError(t, err)
			assert.Empty(t, fb.deposits)
			assert.False(t, bal.ToppedUp)
			assert.GreaterOrEqual(t, bal.AvailableUnits.Int64(), int64(8000))
		})
	}
}

func TestEnsureFunded_SingleTopUp(t *testing.T) {
	fb := newFakeBroker(units(7000), 0)
	r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

	hooked := 0
	bal, err := r.EnsureFunded(context.Background(), 8000, OnTopUp(func() { hooked++ }))

	require.NoError(t, err)
	require.Len(t, fb.deposits, 1)
	// shortfall 1000 + buffer 2000 is below the 5000 floor.
	assert.Equal(t, big.NewInt(units(5000)), fb.deposits[0])
	assert.True(t, bal.ToppedUp)
	assert.Equal(t, int64(12000), bal.AvailableUnits.Int64())
	assert.Equal(t, 1, hooked)
}

func TestEnsureFunded_TopUpCoversShortfallPlusBuffer(t *testing.T) {
	fb := newFakeBroker(units(1000), 0)
	r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

	_, err := r.EnsureFunded(context.Background(), 8000)

	require.NoError(t, err)
	require.Len(t, fb.deposits, 1)
	assert.Equal(t, big.NewInt(units(9000)), fb.deposits[0])
}

func TestEnsureFunded_InsufficientAfterTopUp(t *testing.T) {
	fb := newFakeBroker(units(100), 0)
	fb.creditDeposits = false
	r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

	bal, err := r.EnsureFunded(context.Background(), 8000)

	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInsufficientBalance))
	assert.Len(t, fb.deposits, 1, "exactly one remediation attempt")
	assert.True(t, bal.ToppedUp)
}

func TestEnsureFunded_ClampsLockedAboveTotal(t *testing.T) {
	fb := newFakeBroker(units(9000), units(12000))
	r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

	bal, err := r.EnsureFunded(context.Background(), 8000)

	require.NoError(t, err)
	assert.True(t, bal.Clamped)
	assert.Equal(t, big.NewInt(units(9000)), bal.Available)
	assert.Equal(t, 1, bal.Available.Sign())
	assert.Empty(t, fb.deposits)
}

func TestEnsureFunded_CreatesMissingLedger(t *testing.T) {
	fb := newFakeBroker(0, 0)
	fb.exists = false
	r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

	bal, err := r.EnsureFunded(context.Background(), 8000)

	require.NoError(t, err)
	require.Len(t, fb.adds, 1)
	assert.Equal(t, "1000000000000000000", fb.adds[0].String())
	assert.True(t, bal.Created)
	assert.Equal(t, int64(10000), bal.AvailableUnits.Int64())
	assert.Empty(t, fb.deposits)
	assert.Equal(t, 2, fb.gets, "balance re-fetched after opening")
}

func TestEnsureFunded_FetchError(t *testing.T) {
	fb := &errBroker{err: errors.New("rpc unavailable")}
	r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

	_, err := r.EnsureFunded(context.Background(), 8000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")
}

func TestEnsureFunded_ConcurrentCallersTopUpOnce(t *testing.T) {
	fb := newFakeBroker(units(1000), 0)
	r := NewReconciler(fb, lock.NewLocal(), testSettings(t))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.EnsureFunded(context.Background(), 8000)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, fb.deposits, 1)
}

func TestFundProvider_RejectsAboveAvailable(t *testing.T) {
	fb := newFakeBroker(units(100), units(60))
	f := NewFunder(fb, lock.NewLocal(), testSettings(t))

	_, err := f.FundProvider(context.Background(), "0xprovider", big.NewInt(units(41)))

	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInsufficientAvailable))
	assert.Empty(t, fb.transfers)
}

func TestFundProvider_UsesFreshBalance(t *testing.T) {
	fb := newFakeBroker(units(100), 0)
	f := NewFunder(fb, lock.NewLocal(), testSettings(t))
	ctx := context.Background()

	_, err := f.FundProvider(ctx, "0xprovider", big.NewInt(units(70)))
	require.NoError(t, err)

	// The first transfer reduced available to 30 units; a second 70 must fail.
	_, err = f.FundProvider(ctx, "0xprovider", big.NewInt(units(70)))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInsufficientAvailable))
	assert.Len(t, fb.transfers, 1)
}

func TestFundProvider_ReturnsUpdatedBalance(t *testing.T) {
	fb := newFakeBroker(units(100), 0)
	f := NewFunder(fb, lock.NewLocal(), testSettings(t))

	bal, err := f.FundProvider(context.Background(), "0xprovider", big.NewInt(units(40)))

	require.NoError(t, err)
	assert.Equal(t, big.NewInt(units(60)), bal.Available)
}

func TestFundProvider_InvalidAmount(t *testing.T) {
	fb := newFakeBroker(units(100), 0)
	f := NewFunder(fb, lock.NewLocal(), testSettings(t))

	_, err := f.FundProvider(context.Background(), "0xprovider", big.NewInt(0))
	require.Error(t, err)
	assert.Equal(t, 0, fb.gets)
}

func TestFundProvider_TransferError(t *testing.T) {
	fb := newFakeBroker(units(100), 0)
	fb.transferErr = errors.New("reverted")
	f := NewFunder(fb, lock.NewLocal(), testSettings(t))

	_, err := f.FundProvider(context.Background(), "0xprovider", big.NewInt(units(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
}

func TestAccount_Check(t *testing.T) {
	fb := newFakeBroker(units(10), units(2))
	a := NewAccount(fb, lock.NewLocal(), testSettings(t))

	bal, exists, err := a.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(8), bal.AvailableUnits.Int64())

	fb.exists = false
	_, exists, err = a.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAccount_CreateAndDeposit(t *testing.T) {
	fb := newFakeBroker(0, 0)
	fb.exists = false
	a := NewAccount(fb, lock.NewLocal(), testSettings(t))
	ctx := context.Background()

	bal, err := a.Create(ctx, big.NewInt(units(1000)))
	require.NoError(t, err)
	assert.True(t, bal.Created)
	assert.Equal(t, int64(1000), bal.AvailableUnits.Int64())

	bal, err = a.Deposit(ctx, big.NewInt(units(500)))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), bal.AvailableUnits.Int64())

	_, err = a.Deposit(ctx, big.NewInt(0))
	require.Error(t, err)
}

func TestUnits(t *testing.T) {
	u, err := NewUnits("100000000000000")
	require.NoError(t, err)

	assert.Equal(t, int64(8000), u.FromWei(big.NewInt(units(8000)+unitWei-1)).Int64())
	assert.Equal(t, int64(0), u.FromWei(big.NewInt(-5)).Int64())
	assert.Equal(t, int64(0), u.FromWei(nil).Int64())

	_, err = NewUnits("0")
	require.Error(t, err)
}

func TestParseOG(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1", want: "1000000000000000000"},
		{in: "0.1", want: "100000000000000000"},
		{in: "0.000000000000000001", want: "1"},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOG(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestWeiToOG(t *testing.T) {
	assert.True(t, decimal.RequireFromString("0.5").Equal(WeiToOG(big.NewInt(500_000_000_000_000_000))))
	assert.True(t, WeiToOG(nil).IsZero())
}

type errBroker struct {
	fakeBroker
	err error
}

func (e *errBroker) GetLedger(context.Context) (model.Ledger, error) {
	return model.Ledger{}, e.err
}
