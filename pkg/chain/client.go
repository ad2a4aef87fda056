// Package chain wraps go-ethereum for the contract calls the services make:
// read-only calls, signed transactions that wait for their receipt, and
// decoding of custom revert errors.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config configures a chain client.
type Config struct {
	RPCURL     string
	PrivateKey string
	// ChainID is queried from the node when zero.
	ChainID   int64
	TxTimeout time.Duration
}

// Client is a signing JSON-RPC client bound to one account. It is safe for
// concurrent use; transactions are submitted one at a time with a locally
// tracked nonce.
type Client struct {
	eth       *ethclient.Client
	key       *ecdsa.PrivateKey
	from      common.Address
	chainID   *big.Int
	txTimeout time.Duration

	txMu       sync.Mutex
	nonce      uint64
	nonceKnown bool
}

// Dial connects to the RPC endpoint and loads the signer key.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	key, err := ParseKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, eris.Wrap(err, "chain: dial rpc")
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, eris.Wrap(err, "chain: query chain id")
		}
	}

	timeout := cfg.TxTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	c := &Client{
		eth:       eth,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:   chainID,
		txTimeout: timeout,
	}
	zap.L().Info("chain: connected",
		zap.String("account", c.from.Hex()),
		zap.String("chain_id", chainID.String()),
	)
	return c, nil
}

// ParseKey decodes a hex private key with or without the 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, eris.Wrap(err, "chain: parse private key")
	}
	return key, nil
}

// Address returns the signer's account address.
func (c *Client) Address() common.Address { return c.from }

// Key returns the signer's private key.
func (c *Client) Key() *ecdsa.PrivateKey { return c.key }

// Close releases the RPC connection.
func (c *Client) Close() { c.eth.Close() }

// Bind returns a Contract for the ABI at address.
func (c *Client) Bind(address, abiJSON string) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, eris.Errorf("chain: invalid contract address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, eris.Wrap(err, "chain: parse abi")
	}
	addr := common.HexToAddress(address)
	return &Contract{
		address: addr,
		abi:     parsed,
		bound:   bind.NewBoundContract(addr, parsed, c.eth, c.eth, c.eth),
		client:  c,
	}, nil
}

// Contract is a bound contract that signs with the client's key.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	client  *Client
}

// Address returns the contract address.
func (k *Contract) Address() common.Address { return k.address }

// Call runs a read-only method and returns its unpacked outputs.
func (k *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx, From: k.client.from}
	if err := k.bound.Call(opts, &out, method, args...); err != nil {
		return nil, k.decodeRevert(err, method)
	}
	return out, nil
}

// Transact sends a signed transaction and blocks until it is mined. A
// reverted receipt is an error.
func (k *Contract) Transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	tx, err := k.client.send(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		opts.Value = value
		return k.bound.Transact(opts, method, args...)
	})
	if err != nil {
		return nil, k.decodeRevert(err, method)
	}

	log := zap.L().With(zap.String("method", method), zap.String("tx", tx.Hash().Hex()))
	log.Debug("chain: transaction submitted")

	waitCtx, cancel := context.WithTimeout(ctx, k.client.txTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, k.client.eth, tx)
	if err != nil {
		return nil, eris.Wrapf(err, "chain: wait for %s tx %s", method, tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, eris.Errorf("chain: %s tx %s reverted", method, tx.Hash().Hex())
	}

	log.Info("chain: transaction confirmed", zap.Uint64("block", receipt.BlockNumber.Uint64()))
	return receipt, nil
}

// send signs and submits one transaction with the next nonce. Only the
// submission is serialized; callers wait for their receipts concurrently.
func (c *Client) send(ctx context.Context, submit func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	if !c.nonceKnown {
		n, err := c.eth.PendingNonceAt(ctx, c.from)
		if err != nil {
			return nil, eris.Wrap(err, "chain: pending nonce")
		}
		c.nonce, c.nonceKnown = n, true
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, eris.Wrap(err, "chain: build transactor")
	}
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(c.nonce)

	tx, err := submit(opts)
	if err != nil {
		// Resync from the node on the next send.
		c.nonceKnown = false
		return nil, err
	}
	c.nonce++
	return tx, nil
}

// RevertError is a call that reverted with a custom error declared in the ABI.
type RevertError struct {
	Method string
	Name   string
	Err    error
}

func (e *RevertError) Error() string {
	return "chain: " + e.Method + " reverted: " + e.Name
}

func (e *RevertError) Unwrap() error { return e.Err }

// IsRevert reports whether err is a revert with the named custom error.
func IsRevert(err error, name string) bool {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Name == name
	}
	return false
}

func (k *Contract) decodeRevert(err error, method string) error {
	var de rpc.DataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(hexData); decErr == nil {
				if name := k.revertName(data); name != "" {
					return &RevertError{Method: method, Name: name, Err: err}
				}
			}
		}
	}
	return eris.Wrapf(err, "chain: %s", method)
}

func (k *Contract) revertName(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for name, e := range k.abi.Errors {
		if string(e.ID[:4]) == string(data[:4]) {
			return name
		}
	}
	return ""
}
