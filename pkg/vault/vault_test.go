package vault

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-labs/concierge/internal/model"
)

type tx struct {
	method string
	args   []any
}

type fakeContract struct {
	txs     []tx
	callOut []any
	err     error
}

func (f *fakeContract) Call(_ context.Context, method string, args ...any) ([]any, error) {
	return f.callOut, f.err
}

func (f *fakeContract) Transact(_ context.Context, _ *big.Int, method string, args ...any) (*types.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.txs = append(f.txs, tx{method: method, args: args})
	return &types.Receipt{TxHash: common.HexToHash("0x01")}, nil
}

func TestRootHashToBytes32(t *testing.T) {
	hexRoot := "0x" + strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		in      string
		want    [32]byte
		wantErr bool
	}{
		{name: "hex root decoded", in: hexRoot, want: [32]byte(common.FromHex(hexRoot))},
		{name: "short text padded", in: "cid-1", want: func() [32]byte {
			var b [32]byte
			copy(b[:], "cid-1")
			return b
		}()},
		{name: "empty", in: ""},
		{name: "too long", in: strings.Repeat("x", 33), wantErr: true},
		{name: "long hex with wrong length", in: "0x" + strings.Repeat("ab", 20), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RootHashToBytes32(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBytes32ToString_RoundTrip(t *testing.T) {
	hexRoot := "0x" + strings.Repeat("cd", 32)
	for _, s := range []string{"cid-1", hexRoot, ""} {
		b, err := RootHashToBytes32(s)
		require.NoError(t, err)
		assert.Equal(t, s, Bytes32ToString(b))
	}
}

func TestUpdateInsights(t *testing.T) {
	fc := &fakeContract{}
	c := New(fc)
	root := "0x" + strings.Repeat("11", 32)
	cid := "0x" + strings.Repeat("22", 32)

	txHash, err := c.UpdateInsights(context.Background(), root, "finance", cid)

	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x01").Hex(), txHash)
	require.Len(t, fc.txs, 1)
	assert.Equal(t, "updateInsights", fc.txs[0].method)
	assert.Equal(t, [32]byte(common.FromHex(root)), fc.txs[0].args[0])
	assert.Equal(t, "finance", fc.txs[0].args[1])
	assert.Equal(t, [32]byte(common.FromHex(cid)), fc.txs[0].args[2])
}

func TestUpdateInsights_BadRoot(t *testing.T) {
	fc := &fakeContract{}
	_, err := New(fc).UpdateInsights(context.Background(), strings.Repeat("z", 40), "c", "cid")
	require.Error(t, err)
	assert.Empty(t, fc.txs)
}

func TestUpdateInsights_TxError(t *testing.T) {
	fc := &fakeContract{err: errors.New("nonce too low")}
	_, err := New(fc).UpdateInsights(context.Background(), "root", "c", "cid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestAddFile_DefaultCategory(t *testing.T) {
	fc := &fakeContract{}
	_, err := New(fc).AddFile(context.Background(), "root", "", "", "cid")

	require.NoError(t, err)
	require.Len(t, fc.txs, 1)
	assert.Equal(t, "addFile", fc.txs[0].method)
	assert.Equal(t, model.DefaultCategory, fc.txs[0].args[1])
}

type recordTuple struct {
	FileHash     [32]byte
	Category     string
	EncryptedKey string
	InsightsCID  [32]byte
	Timestamp    *big.Int
}

func TestFilesByUser(t *testing.T) {
	root := "0x" + strings.Repeat("aa", 32)
	var cid [32]byte
	copy(cid[:], "cid-9")

	fc := &fakeContract{callOut: []any{[]recordTuple{
		{FileHash: [32]byte(hexutil.MustDecode(root)), Category: "legal", InsightsCID: cid, Timestamp: big.NewInt(1700000000)},
	}}}

	files, err := New(fc).FilesByUser(context.Background(), "0x1111111111111111111111111111111111111111")

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, root, files[0].RootHash)
	assert.Equal(t, "legal", files[0].Category)
	assert.Equal(t, "cid-9", files[0].InsightsCID)
	assert.Equal(t, int64(1700000000), files[0].Timestamp.Unix())
}

func TestFilesByUser_InvalidOwner(t *testing.T) {
	_, err := New(&fakeContract{}).FilesByUser(context.Background(), "bob")
	require.Error(t, err)
}
