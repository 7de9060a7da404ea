package onchain_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/onchain"
	"github.com/alejandrodnm/polycopy/internal/domain"
)

const testCondition = "0x1111111111111111111111111111111111111111111111111111111111111111"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeRPC responde JSON-RPC con handlers por método.
type fakeRPC struct {
	mu       sync.Mutex
	handlers map[string]func(params []json.RawMessage) any
	calls    map[string]int
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{handlers: map[string]func([]json.RawMessage) any{}, calls: map[string]int{}}
}

func (f *fakeRPC) on(method string, h func(params []json.RawMessage) any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeRPC) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	h, ok := f.handlers[req.Method]
	f.calls[req.Method]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method %s not found"}}`, req.ID, req.Method)
		return
	}
	result, _ := json.Marshal(h(req.Params))
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
}

func newClient(t *testing.T, rpc http.Handler) (*onchain.CTFClient, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	srv := httptest.NewServer(rpc)
	t.Cleanup(srv.Close)

	c, err := onchain.NewCTFClient(srv.URL, hex.EncodeToString(crypto.FromECDSA(key)), onchain.CTFOptions{
		ReceiptTimeout: 2 * time.Second,
		PollInterval:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, crypto.PubkeyToAddress(key.PublicKey)
}

func word(n int64) string {
	return hexutil.Encode(common.LeftPadBytes(big.NewInt(n).Bytes(), 32))
}

func receiptJSON(txHash string, status uint64) map[string]any {
	return map[string]any{
		"status":            hexutil.EncodeUint64(status),
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"logsBloom":         hexutil.Encode(make([]byte, 256)),
		"logs":              []any{},
		"transactionHash":   txHash,
		"transactionIndex":  "0x0",
		"blockNumber":       "0x10",
		"blockHash":         common.Hash{1}.Hex(),
		"type":              "0x0",
	}
}

func TestPayoutNumerator(t *testing.T) {
	rpc := newFakeRPC()
	rpc.on("eth_call", func(params []json.RawMessage) any {
		var msg struct {
			To    string `json:"to"`
			Input string `json:"input"`
			Data  string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(params[0], &msg))
		assert.True(t, strings.EqualFold("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045", msg.To))
		return word(1)
	})
	c, _ := newClient(t, rpc)

	n, err := c.PayoutNumerator(context.Background(), testCondition, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n.Int64())
}

func TestPayoutNumerator_InvalidCondition(t *testing.T) {
	c, _ := newClient(t, newFakeRPC())

	_, err := c.PayoutNumerator(context.Background(), "0xshort", 0)
	assert.Error(t, err)
}

func TestRedeemPositions_SignsExpectedCall(t *testing.T) {
	var rawTx string
	rpc := newFakeRPC()
	rpc.on("eth_getTransactionCount", func([]json.RawMessage) any { return "0x7" })
	rpc.on("eth_gasPrice", func([]json.RawMessage) any { return "0x3b9aca00" })
	rpc.on("eth_estimateGas", func([]json.RawMessage) any { return "0x186a0" })
	rpc.on("eth_sendRawTransaction", func(params []json.RawMessage) any {
		require.NoError(t, json.Unmarshal(params[0], &rawTx))
		return common.Hash{}.Hex()
	})
	c, addr := newClient(t, rpc)

	txRef, err := c.RedeemPositions(context.Background(), testCondition, []domain.IndexSet{1, 2})
	require.NoError(t, err)

	raw, err := hexutil.Decode(rawTx)
	require.NoError(t, err)
	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(raw))

	assert.Equal(t, tx.Hash().Hex(), txRef)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(100_000*12/10), tx.Gas(), "estimate + 20%")
	assert.Equal(t, common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"), *tx.To())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(137)), &tx)
	require.NoError(t, err)
	assert.Equal(t, addr, sender)

	parsed, err := abi.JSON(strings.NewReader(`[{"name":"redeemPositions","type":"function","inputs":[
		{"name":"collateralToken","type":"address"},
		{"name":"parentCollectionId","type":"bytes32"},
		{"name":"conditionId","type":"bytes32"},
		{"name":"indexSets","type":"uint256[]"}],"outputs":[]}]`))
	require.NoError(t, err)
	var cond [32]byte
	copy(cond[:], common.FromHex(testCondition))
	want, err := parsed.Pack("redeemPositions",
		common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		[32]byte{},
		cond,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	)
	require.NoError(t, err)
	assert.Equal(t, want, tx.Data())
}

func TestRedeemPositions_EmptyIndexSets(t *testing.T) {
	c, _ := newClient(t, newFakeRPC())

	_, err := c.RedeemPositions(context.Background(), testCondition, nil)
	assert.ErrorIs(t, err, domain.ErrExecutionFailure)
}

func TestRedeemPositions_SendFailureIsExecutionFailure(t *testing.T) {
	rpc := newFakeRPC()
	rpc.on("eth_getTransactionCount", func([]json.RawMessage) any { return "0x0" })
	rpc.on("eth_gasPrice", func([]json.RawMessage) any { return "0x1" })
	rpc.on("eth_estimateGas", func([]json.RawMessage) any { return "0x5208" })
	c, _ := newClient(t, rpc)

	_, err := c.RedeemPositions(context.Background(), testCondition, []domain.IndexSet{1})
	assert.ErrorIs(t, err, domain.ErrExecutionFailure)
}

func TestWaitSettlement(t *testing.T) {
	txHash := common.Hash{0xaa}.Hex()

	t.Run("success after pending", func(t *testing.T) {
		var polls atomic.Int32
		rpc := newFakeRPC()
		rpc.on("eth_getTransactionReceipt", func([]json.RawMessage) any {
			if polls.Add(1) < 3 {
				return nil
			}
			return receiptJSON(txHash, 1)
		})
		c, _ := newClient(t, rpc)

		ok, err := c.WaitSettlement(context.Background(), txHash)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, rpc.count("eth_getTransactionReceipt"), 3)
	})

	t.Run("reverted", func(t *testing.T) {
		rpc := newFakeRPC()
		rpc.on("eth_getTransactionReceipt", func([]json.RawMessage) any { return receiptJSON(txHash, 0) })
		c, _ := newClient(t, rpc)

		ok, err := c.WaitSettlement(context.Background(), txHash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("timeout", func(t *testing.T) {
		rpc := newFakeRPC()
		rpc.on("eth_getTransactionReceipt", func([]json.RawMessage) any { return nil })
		c, _ := newClient(t, rpc)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := c.WaitSettlement(ctx, txHash)
		assert.ErrorIs(t, err, domain.ErrTransient)
	})
}
