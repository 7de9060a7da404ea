package polymarket

// trading.go: real order execution via Polymarket CLOB API.
//
// Implements ports.OrderExecutor using AuthClient for L1/L2 auth.
// Mirrored orders are sent as FOK (fill-or-kill) limit orders at the
// slippage-adjusted price, so a copy either fills now or not at all.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	orderTypeFOK = "FOK"
)

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client
}

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain balance checks.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{auth: auth, rpcClient: rpc}, nil
}

// Submit signs and submits a FOK order for the intent.
// Every failure after validation is wrapped in domain.ErrExecutionFailure.
func (tc *TradingClient) Submit(ctx context.Context, intent domain.TradeIntent) (domain.OrderResult, error) {
	if intent.InstrumentID == "" {
		return domain.OrderResult{}, fmt.Errorf("submit: %w: empty instrument id", domain.ErrExecutionFailure)
	}
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.OrderResult{}, fmt.Errorf("submit: creds: %w: %v", domain.ErrExecutionFailure, err)
	}

	negRisk, err := tc.auth.IsNegRisk(ctx, intent.ConditionID)
	if err != nil {
		slog.Warn("neg-risk lookup failed, assuming standard exchange",
			"condition_id", intent.ConditionID,
			"err", err,
		)
	}

	signed, err := tc.auth.buildSignedOrder(intent, negRisk)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("submit: sign: %w: %v", domain.ErrExecutionFailure, err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       intent.InstrumentID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(intent.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: orderTypeFOK,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("submit: post: %w: %v", domain.ErrExecutionFailure, err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.OrderResult{}, fmt.Errorf("submit: %w: clob error: %s", domain.ErrExecutionFailure, resp.ErrorMsg)
	}

	// BUY: making = USDC paid. SELL: taking = USDC received.
	filled := parseUSDC(resp.MakingAmount)
	if intent.Side == domain.SideSell {
		filled = parseUSDC(resp.TakingAmount)
	}

	return domain.OrderResult{
		OrderRef: resp.OrderID,
		Status:   resp.Status,
		Filled:   filled,
	}, nil
}

// Balance returns the on-chain USDC.e balance of the funder address.
func (tc *TradingClient) Balance(ctx context.Context) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("balance: rpc call: %w: %v", domain.ErrTransient, err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil {
		return 0, fmt.Errorf("balance: unpack: %w", err)
	}
	if len(vals) == 0 {
		return 0, errors.New("balance: empty balanceOf result")
	}

	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("balance: unexpected type %T", vals[0])
	}
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetFloat64(1e6)).Float64()
	return bal, nil
}

// Close releases the RPC connection.
func (tc *TradingClient) Close() {
	tc.rpcClient.Close()
}

// parseUSDC converts a decimal USDC string (e.g., "10.5") or a micro-USDC
// integer string (e.g., "10500000") to USDC float.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	if strings.Contains(s, ".") {
		f, ok := new(big.Float).SetString(s)
		if !ok {
			return 0
		}
		v, _ := f.Float64()
		return v
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}
