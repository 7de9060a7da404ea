package onchain

// ctf.go: Conditional Token Framework client for Polymarket on Polygon.
//
// Once a market resolves the oracle reports payoutNumerators on the CTF
// contract. redeemPositions() burns the winning outcome tokens held by the
// wallet and pays out USDC.e collateral:
//   100 YES tokens of a market resolved YES → $100 USDC.e

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// CTF contract: holds conditional tokens (ERC1155)
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	// Fallback when eth_estimateGas fails
	redeemGasLimit = uint64(300_000)

	// Gas price update interval
	gasPriceUpdateInterval = 5 * time.Minute

	defaultReceiptTimeout = 2 * time.Minute
	defaultPollInterval   = 3 * time.Second
)

// Contract ABIs
var (
	ctfABI     abi.ABI
	erc1155ABI abi.ABI
	erc20ABI   abi.ABI
)

func init() {
	var err error

	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "redeemPositions",
			"type": "function",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "indexSets", "type": "uint256[]"}
			],
			"outputs": []
		},
		{
			"name": "payoutNumerators",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "conditionId", "type": "bytes32"},
				{"name": "index", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}

	erc1155ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "setApprovalForAll",
			"type": "function",
			"inputs": [
				{"name": "operator", "type": "address"},
				{"name": "approved", "type": "bool"}
			],
			"outputs": []
		},
		{
			"name": "isApprovedForAll",
			"type": "function",
			"inputs": [
				{"name": "account", "type": "address"},
				{"name": "operator", "type": "address"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`))
	if err != nil {
		panic("erc1155 abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// CTFOptions tunes receipt polling. Zero values use the defaults.
type CTFOptions struct {
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// CTFClient implements ports.ConditionalTokens.
type CTFClient struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address

	receiptTimeout time.Duration
	pollInterval   time.Duration

	// txMu serializes nonce allocation: one pending tx per call.
	txMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewCTFClient creates a CTF client connected to the given Polygon RPC.
// privateKeyHex may carry a 0x prefix.
func NewCTFClient(rpcURL, privateKeyHex string, opts CTFOptions) (*CTFClient, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ctf: decode private key: %w", err)
	}

	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("ctf: invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ctf: dial rpc: %w", err)
	}

	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaultReceiptTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &CTFClient{
		client:         client,
		privateKey:     privKey,
		address:        crypto.PubkeyToAddress(privKey.PublicKey),
		receiptTimeout: opts.ReceiptTimeout,
		pollInterval:   opts.PollInterval,
	}, nil
}

// Address returns the wallet address that signs redemptions.
func (c *CTFClient) Address() string {
	return c.address.Hex()
}

// Close releases the RPC connection.
func (c *CTFClient) Close() {
	c.client.Close()
}

// PayoutNumerator reads payoutNumerators(conditionId, index) from the CTF.
// Zero for every index means the market is not resolved yet.
func (c *CTFClient) PayoutNumerator(ctx context.Context, conditionID string, index int) (*big.Int, error) {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return nil, fmt.Errorf("ctf.PayoutNumerator: %w", err)
	}

	callData, err := ctfABI.Pack("payoutNumerators", condBytes, big.NewInt(int64(index)))
	if err != nil {
		return nil, fmt.Errorf("ctf.PayoutNumerator: pack: %w", err)
	}

	ctfAddr := common.HexToAddress(ctfAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &ctfAddr,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("ctf.PayoutNumerator: %w: %v", domain.ErrTransient, err)
	}

	vals, err := ctfABI.Unpack("payoutNumerators", result)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("ctf.PayoutNumerator: unpack: %v", err)
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ctf.PayoutNumerator: unexpected type %T", vals[0])
	}
	return n, nil
}

// RedeemPositions sends redeemPositions(USDC.e, 0x0, conditionId, indexSets)
// and returns the transaction hash without waiting for it to be mined.
func (c *CTFClient) RedeemPositions(ctx context.Context, conditionID string, indexSets []domain.IndexSet) (string, error) {
	if len(indexSets) == 0 {
		return "", fmt.Errorf("ctf.RedeemPositions: %w: empty index sets", domain.ErrExecutionFailure)
	}

	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return "", fmt.Errorf("ctf.RedeemPositions: %w: %v", domain.ErrExecutionFailure, err)
	}

	sets := make([]*big.Int, len(indexSets))
	for i, s := range indexSets {
		sets[i] = new(big.Int).SetUint64(uint64(s))
	}

	callData, err := ctfABI.Pack("redeemPositions",
		common.HexToAddress(usdcEAddress),
		[32]byte{},
		condBytes,
		sets,
	)
	if err != nil {
		return "", fmt.Errorf("ctf.RedeemPositions: pack: %w", err)
	}

	signed, err := c.signAndSend(ctx, common.HexToAddress(ctfAddress), callData, 0)
	if err != nil {
		return "", fmt.Errorf("ctf.RedeemPositions: %w: %v", domain.ErrExecutionFailure, err)
	}

	txHash := signed.Hash().Hex()
	slog.Info("ctf: redemption sent",
		"condition", domain.ShortAddr(conditionID),
		"index_sets", indexSets,
		"tx", txHash,
	)
	return txHash, nil
}

// WaitSettlement polls for the receipt of txRef. It returns false when the
// transaction reverted and an error when it could not be confirmed in time.
func (c *CTFClient) WaitSettlement(ctx context.Context, txRef string) (bool, error) {
	receiptCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, common.HexToHash(txRef))
	if err != nil {
		return false, fmt.Errorf("ctf.WaitSettlement %s: %w: %v", txRef, domain.ErrTransient, err)
	}

	ok := receipt.Status == types.ReceiptStatusSuccessful
	slog.Debug("ctf: settlement",
		"tx", txRef,
		"success", ok,
		"gas_used", receipt.GasUsed,
	)
	return ok, nil
}

// signAndSend signs an EIP-155 transaction to `to` and broadcasts it.
// gasLimit 0 means estimate (+20% buffer).
func (c *CTFClient) signAndSend(ctx context.Context, to common.Address, callData []byte, gasLimit uint64) (*types.Transaction, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := c.getGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	if gasLimit == 0 {
		gasLimit, err = c.client.EstimateGas(ctx, ethereum.CallMsg{
			From:     c.address,
			To:       &to,
			GasPrice: gasPrice,
			Data:     callData,
		})
		if err != nil {
			gasLimit = redeemGasLimit
			slog.Warn("ctf: gas estimate failed, using default", "err", err, "limit", redeemGasLimit)
		}
		gasLimit = gasLimit * 12 / 10
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, callData)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

// getGasPrice returns the current gas price, with caching to avoid excessive RPC calls.
func (c *CTFClient) getGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return big.NewInt(30_000_000_000), nil // 30 gwei fallback
	}

	// +10% for faster inclusion (copy to avoid mutating SuggestGasPrice return)
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.cachedGasWei = buffered
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()

	return buffered, nil
}

// waitForReceipt polls for a transaction receipt until confirmed or timeout.
func (c *CTFClient) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

// hexToBytes32 converts a 0x-prefixed hex string to [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
