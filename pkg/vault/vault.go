// Package vault reads and writes file records on the Vault contract.
package vault

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/internal/model"
)

// Contract is the subset of chain.Contract the vault needs.
type Contract interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
	Transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error)
}

// Client wraps a bound Vault contract.
type Client struct {
	contract Contract
}

// New creates a vault client.
func New(contract Contract) *Client {
	return &Client{contract: contract}
}

// RootHashToBytes32 encodes an identifier as a bytes32 argument. A 0x-prefixed
// 32-byte hex string is decoded as-is; anything else is taken as UTF-8 and
// right-padded with zeros. Inputs longer than 32 bytes are rejected.
func RootHashToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) == 2+2*common.HashLength && strings.HasPrefix(s, "0x") {
		if b, err := hexutil.Decode(s); err == nil {
			copy(out[:], b)
			return out, nil
		}
	}
	if len(s) > len(out) {
		return out, eris.Errorf("vault: %q is too long for bytes32", s)
	}
	copy(out[:], s)
	return out, nil
}

// Bytes32ToString reverses RootHashToBytes32. Values that decode to
// printable text are returned as text, everything else as 0x hex.
func Bytes32ToString(b [32]byte) string {
	trimmed := bytes.TrimRight(b[:], "\x00")
	if len(trimmed) == 0 {
		return ""
	}
	for _, c := range trimmed {
		if c < 0x20 || c > 0x7e {
			return hexutil.Encode(b[:])
		}
	}
	return string(trimmed)
}

// UpdateInsights records the category and insights CID for a stored file.
func (c *Client) UpdateInsights(ctx context.Context, rootHash, category, insightsCID string) (string, error) {
	fileHash, err := RootHashToBytes32(rootHash)
	if err != nil {
		return "", err
	}
	cid, err := RootHashToBytes32(insightsCID)
	if err != nil {
		return "", err
	}

	receipt, err := c.contract.Transact(ctx, nil, "updateInsights", fileHash, category, cid)
	if err != nil {
		return "", eris.Wrapf(err, "vault: update insights for %s", rootHash)
	}
	zap.L().Info("vault: insights recorded",
		zap.String("root_hash", rootHash),
		zap.String("category", category),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return receipt.TxHash.Hex(), nil
}

// AddFile registers a new file record owned by the signer.
func (c *Client) AddFile(ctx context.Context, rootHash, category, encryptedKey, insightsCID string) (string, error) {
	if category == "" {
		category = model.DefaultCategory
	}
	fileHash, err := RootHashToBytes32(rootHash)
	if err != nil {
		return "", err
	}
	cid, err := RootHashToBytes32(insightsCID)
	if err != nil {
		return "", err
	}

	receipt, err := c.contract.Transact(ctx, nil, "addFile", fileHash, category, encryptedKey, cid)
	if err != nil {
		return "", eris.Wrapf(err, "vault: add file %s", rootHash)
	}
	return receipt.TxHash.Hex(), nil
}

type fileRecord struct {
	FileHash     [32]byte
	Category     string
	EncryptedKey string
	InsightsCID  [32]byte
	Timestamp    *big.Int
}

// FilesByUser lists the vault records owned by owner.
func (c *Client) FilesByUser(ctx context.Context, owner string) ([]model.VaultFile, error) {
	if !common.IsHexAddress(owner) {
		return nil, eris.Errorf("vault: invalid owner address %q", owner)
	}
	out, err := c.contract.Call(ctx, "viewFilesByUser", common.HexToAddress(owner))
	if err != nil {
		return nil, eris.Wrapf(err, "vault: files of %s", owner)
	}
	if len(out) == 0 {
		return nil, nil
	}

	records := *abi.ConvertType(out[0], new([]fileRecord)).(*[]fileRecord)
	files := make([]model.VaultFile, 0, len(records))
	for _, r := range records {
		var ts time.Time
		if r.Timestamp != nil && r.Timestamp.Sign() > 0 {
			ts = time.Unix(r.Timestamp.Int64(), 0).UTC()
		}
		files = append(files, model.VaultFile{
			RootHash:    Bytes32ToString(r.FileHash),
			Category:    r.Category,
			InsightsCID: Bytes32ToString(r.InsightsCID),
			Timestamp:   ts,
		})
	}
	return files, nil
}
