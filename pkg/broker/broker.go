// Package broker is a client for the decentralized compute broker: the
// prepaid ledger contract, the inference serving contract, and the signed
// request/response handshake with providers.
package broker

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rotisserie/eris"
)

// ServiceTypeInference is the service type used for sub-account transfers.
const ServiceTypeInference = "inference"

// ErrLedgerNotFound is returned when the account has no ledger yet.
var ErrLedgerNotFound = eris.New("broker: ledger not found")

// Contract is the subset of chain.Contract the broker needs.
type Contract interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
	Transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error)
}

// Option configures the broker client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock overrides the time source used for request nonces (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client talks to the broker contracts on behalf of one account.
type Client struct {
	ledger  Contract
	serving Contract
	key     *ecdsa.PrivateKey
	account common.Address
	http    *http.Client
	now     func() time.Time
}

// New creates a broker client. key signs request headers; the contracts
// must already be bound to the same key.
func New(ledger, serving Contract, key *ecdsa.PrivateKey, opts ...Option) *Client {
	c := &Client{
		ledger:  ledger,
		serving: serving,
		key:     key,
		account: crypto.PubkeyToAddress(key.PublicKey),
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account returns the address that owns the ledger.
func (c *Client) Account() string { return c.account.Hex() }

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, eris.Errorf("broker: invalid provider address %q", s)
	}
	return common.HexToAddress(s), nil
}
