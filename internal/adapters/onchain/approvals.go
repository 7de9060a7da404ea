package onchain

// approvals.go: one-time allowances a live trading wallet needs.
//
// BUY orders spend USDC.e through the exchange contracts (ERC20 approve) and
// SELL orders move conditional tokens (ERC1155 setApprovalForAll).

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	// Exchange contracts that need ERC1155 setApprovalForAll
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	approvalGasLimit = uint64(80_000)
)

// EnsureApprovals checks and sets both:
//   - ERC1155 setApprovalForAll on the three exchange contracts (for token transfers)
//   - ERC20 USDC.e approve for both exchange contracts (for BUY collateral)
func (c *CTFClient) EnsureApprovals(ctx context.Context) error {
	operators := []string{normalExchange, negRiskExchange, negRiskAdapter}

	for _, op := range operators {
		approved, err := c.isApprovedForAll(ctx, common.HexToAddress(op))
		if err != nil {
			return fmt.Errorf("check ERC1155 approval for %s: %w", op, err)
		}
		if approved {
			slog.Debug("approvals: ERC1155 approval already set", "operator", op)
			continue
		}

		slog.Info("approvals: setting ERC1155 approval", "operator", op)
		if err := c.setApprovalForAll(ctx, common.HexToAddress(op)); err != nil {
			return fmt.Errorf("set ERC1155 approval for %s: %w", op, err)
		}
		slog.Info("approvals: ERC1155 approval set", "operator", op)
	}

	exchanges := []string{normalExchange, negRiskExchange}
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	minAllowance := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)) // 1M USDC.e

	for _, ex := range exchanges {
		allowance, err := c.erc20Allowance(ctx, common.HexToAddress(usdcEAddress), common.HexToAddress(ex))
		if err != nil {
			return fmt.Errorf("check USDC.e allowance for %s: %w", ex, err)
		}
		if allowance.Cmp(minAllowance) >= 0 {
			slog.Debug("approvals: USDC.e allowance sufficient", "exchange", ex)
			continue
		}

		slog.Info("approvals: setting USDC.e approval", "exchange", ex)
		if err := c.erc20Approve(ctx, common.HexToAddress(usdcEAddress), common.HexToAddress(ex), maxUint256); err != nil {
			return fmt.Errorf("set USDC.e approval for %s: %w", ex, err)
		}
		slog.Info("approvals: USDC.e approval set", "exchange", ex)
	}

	return nil
}

// isApprovedForAll checks ERC1155 approval for an operator on the CTF contract.
func (c *CTFClient) isApprovedForAll(ctx context.Context, operator common.Address) (bool, error) {
	callData, err := erc1155ABI.Pack("isApprovedForAll", c.address, operator)
	if err != nil {
		return false, err
	}

	ctfAddr := common.HexToAddress(ctfAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &ctfAddr,
		Data: callData,
	}, nil)
	if err != nil {
		return false, err
	}

	vals, err := erc1155ABI.Unpack("isApprovedForAll", result)
	if err != nil || len(vals) == 0 {
		return false, err
	}
	return vals[0].(bool), nil
}

// setApprovalForAll sends a setApprovalForAll transaction on the CTF contract.
func (c *CTFClient) setApprovalForAll(ctx context.Context, operator common.Address) error {
	callData, err := erc1155ABI.Pack("setApprovalForAll", operator, true)
	if err != nil {
		return err
	}
	return c.sendAndConfirm(ctx, common.HexToAddress(ctfAddress), callData, "setApprovalForAll")
}

// erc20Allowance queries the current ERC20 allowance.
func (c *CTFClient) erc20Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("allowance", c.address, spender)
	if err != nil {
		return nil, err
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, err
	}

	vals, err := erc20ABI.Unpack("allowance", result)
	if err != nil || len(vals) == 0 {
		return big.NewInt(0), err
	}
	return vals[0].(*big.Int), nil
}

// erc20Approve sends an ERC20 approve transaction.
func (c *CTFClient) erc20Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	callData, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return err
	}
	return c.sendAndConfirm(ctx, token, callData, "ERC20 approve")
}

// sendAndConfirm signs a fixed-gas transaction and waits up to 30s for success.
func (c *CTFClient) sendAndConfirm(ctx context.Context, to common.Address, callData []byte, what string) error {
	signed, err := c.signAndSend(ctx, to, callData, approvalGasLimit)
	if err != nil {
		return err
	}

	receiptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s tx reverted", what)
	}
	return nil
}
