package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodeABI = `[
	{"type":"function","name":"getLedger","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"owner","type":"address"}]},
	{"type":"function","name":"addFile","stateMutability":"nonpayable","inputs":[{"name":"rootHash","type":"bytes32"}],"outputs":[]}
]`

const contractAddr = "0x00000000000000000000000000000000000000c0"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode is a minimal JSON-RPC node. It accepts a raw transaction only
// when its nonce is exactly the account's next nonce.
type fakeNode struct {
	mu         sync.Mutex
	next       uint64
	revert     bool
	callResult []byte
	sent       []*types.Transaction
	receipts   map[common.Hash]*types.Receipt
}

func newFakeNode() *fakeNode {
	return &fakeNode{receipts: make(map[common.Hash]*types.Receipt)}
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, errMsg := n.handle(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if errMsg != "" {
		resp["error"] = map[string]any{"code": -32000, "message": errMsg}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) handle(req rpcRequest) (any, string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		return hexutil.Uint64(1337), ""
	case "eth_getBlockByNumber":
		return &types.Header{
			Number:     big.NewInt(1),
			Difficulty: big.NewInt(0),
			BaseFee:    big.NewInt(1_000_000_000),
			GasLimit:   30_000_000,
		}, ""
	case "eth_maxPriorityFeePerGas":
		return (*hexutil.Big)(big.NewInt(1)), ""
	case "eth_getCode":
		return hexutil.Bytes{0x60, 0x01}, ""
	case "eth_estimateGas":
		return hexutil.Uint64(50_000), ""
	case "eth_getTransactionCount":
		return hexutil.Uint64(n.next), ""
	case "eth_call":
		return hexutil.Bytes(n.callResult), ""
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		if err := json.Unmarshal(req.Params[0], &raw); err != nil {
			return nil, err.Error()
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, err.Error()
		}
		switch {
		case tx.Nonce() < n.next:
			return nil, "nonce too low"
		case tx.Nonce() > n.next:
			return nil, "nonce too high"
		}
		n.next++
		n.sent = append(n.sent, tx)

		status := types.ReceiptStatusSuccessful
		if n.revert {
			status = types.ReceiptStatusFailed
		}
		n.receipts[tx.Hash()] = &types.Receipt{
			Type:              tx.Type(),
			Status:            status,
			CumulativeGasUsed: 21_000,
			Logs:              []*types.Log{},
			TxHash:            tx.Hash(),
			GasUsed:           21_000,
			BlockNumber:       big.NewInt(2),
		}
		return tx.Hash(), ""
	case "eth_getTransactionReceipt":
		var h common.Hash
		if err := json.Unmarshal(req.Params[0], &h); err != nil {
			return nil, err.Error()
		}
		if rcpt, ok := n.receipts[h]; ok {
			return rcpt, ""
		}
		return nil, ""
	}
	return nil, "method not found: " + req.Method
}

func (n *fakeNode) nonces() []uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]uint64, 0, len(n.sent))
	for _, tx := range n.sent {
		out = append(out, tx.Nonce())
	}
	return out
}

func dialNode(t *testing.T, node *fakeNode) (*Client, *Contract) {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	c, err := Dial(context.Background(), Config{
		RPCURL:     srv.URL,
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
		ChainID:    1337,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	k, err := c.Bind(contractAddr, nodeABI)
	require.NoError(t, err)
	return c, k
}

func rootHash(b byte) [32]byte {
	var h [32]byte
	h[31] = b
	return h
}

func TestDial_QueriesChainID(t *testing.T) {
	srv := httptest.NewServer(newFakeNode())
	defer srv.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	c, err := Dial(context.Background(), Config{
		RPCURL:     srv.URL,
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, int64(1337), c.chainID.Int64())
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c.Address())
}

func TestBind_InvalidAddress(t *testing.T) {
	c, _ := dialNode(t, newFakeNode())

	_, err := c.Bind("not-an-address", nodeABI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid contract address")
}

func TestCall_UnpacksOutputs(t *testing.T) {
	node := newFakeNode()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	parsed, err := abi.JSON(strings.NewReader(nodeABI))
	require.NoError(t, err)
	node.callResult, err = parsed.Methods["getLedger"].Outputs.Pack(owner)
	require.NoError(t, err)

	c, k := dialNode(t, node)

	out, err := k.Call(context.Background(), "getLedger", c.Address())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, owner, out[0])
}

func TestTransact_Success(t *testing.T) {
	node := newFakeNode()
	node.next = 7
	_, k := dialNode(t, node)

	receipt, err := k.Transact(context.Background(), nil, "addFile", rootHash(1))
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, []uint64{7}, node.nonces())
}

func TestTransact_RevertedReceipt(t *testing.T) {
	node := newFakeNode()
	node.revert = true
	_, k := dialNode(t, node)

	receipt, err := k.Transact(context.Background(), nil, "addFile", rootHash(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addFile")
	assert.Contains(t, err.Error(), "reverted")
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestTransact_ConcurrentSendsUseDistinctNonces(t *testing.T) {
	node := newFakeNode()
	_, k := dialNode(t, node)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = k.Transact(context.Background(), nil, "addFile", rootHash(byte(i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "transaction %d", i)
	}
	assert.ElementsMatch(t, []uint64{0, 1, 2, 3}, node.nonces())
}

func TestTransact_ResyncsNonceAfterRejection(t *testing.T) {
	node := newFakeNode()
	_, k := dialNode(t, node)
	ctx := context.Background()

	_, err := k.Transact(ctx, nil, "addFile", rootHash(1))
	require.NoError(t, err)

	// Another sender with the same key used nonces 1..4.
	node.mu.Lock()
	node.next = 5
	node.mu.Unlock()

	_, err = k.Transact(ctx, nil, "addFile", rootHash(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")

	_, err = k.Transact(ctx, nil, "addFile", rootHash(3))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 5}, node.nonces())
}
