package handler

import (
	"net/http"
	"strings"

	"github.com/GoPolymarket/polysession/internal/middleware"
	"github.com/GoPolymarket/polysession/internal/model"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/relay"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const usdcDecimals = 6

// WalletHandler serves the configured wallet. Any nil dependency means no
// signing key was configured.
type WalletHandler struct {
	wallet    Wallet
	approvals ApprovalReader
	creds     CredentialsProvider
}

func NewWalletHandler(wallet Wallet, approvals ApprovalReader, creds CredentialsProvider) *WalletHandler {
	return &WalletHandler{wallet: wallet, approvals: approvals, creds: creds}
}

func (h *WalletHandler) Info(c *gin.Context) {
	if h.wallet == nil {
		notConfigured(c)
		return
	}
	c.JSON(http.StatusOK, h.wallet.Info())
}

func (h *WalletHandler) Approvals(c *gin.Context) {
	if h.wallet == nil || h.approvals == nil {
		notConfigured(c)
		return
	}
	status, err := h.approvals.Check(c.Request.Context(), h.wallet.ProxyAddress())
	if err != nil {
		abort(c, apperrors.NewUpstream("Failed to check approvals", err))
		return
	}
	c.JSON(http.StatusOK, status)
}

// Balance reports the proxy's USDC.e balance in raw units and whole units.
func (h *WalletHandler) Balance(c *gin.Context) {
	if h.wallet == nil || h.approvals == nil {
		notConfigured(c)
		return
	}
	raw, err := h.approvals.BalanceOf(c.Request.Context(), h.wallet.ProxyAddress())
	if err != nil {
		abort(c, apperrors.NewUpstream("Failed to fetch balance", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": h.wallet.ProxyAddress().Hex(),
		"raw":     raw.String(),
		"balance": decimal.NewFromBigInt(raw, -usdcDecimals).String(),
	})
}

func (h *WalletHandler) Credentials(c *gin.Context) {
	if h.creds == nil {
		notConfigured(c)
		return
	}
	creds, err := h.creds.DeriveOrCreateCredentials(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	middleware.AddAuditContext(c, "action", "derive_credentials")
	c.JSON(http.StatusOK, gin.H{"credentials": creds})
}

func (h *WalletHandler) Relay(c *gin.Context) {
	if h.wallet == nil {
		notConfigured(c)
		return
	}
	var req model.RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Transactions) == 0 {
		badRequest(c, "Missing or invalid transactions array")
		return
	}
	calls, err := toCalls(req.Transactions)
	if err != nil {
		abort(c, err)
		return
	}

	result, err := h.wallet.Execute(c.Request.Context(), calls, req.Description)
	h.respond(c, "relay", result, err)
}

func (h *WalletHandler) Transfer(c *gin.Context) {
	if h.wallet == nil {
		notConfigured(c)
		return
	}
	var req model.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid transfer request")
		return
	}
	result, err := h.wallet.Transfer(c.Request.Context(), req.Recipient, req.Amount)
	h.respond(c, "transfer", result, err)
}

func (h *WalletHandler) Redeem(c *gin.Context) {
	if h.wallet == nil {
		notConfigured(c)
		return
	}
	var req model.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid redeem request")
		return
	}
	result, err := h.wallet.Redeem(c.Request.Context(), req.ConditionID, req.IndexSets)
	h.respond(c, "redeem", result, err)
}

func (h *WalletHandler) respond(c *gin.Context, action string, result *relay.Result, err error) {
	middleware.AddAuditContext(c, "action", action)
	if err != nil {
		abort(c, err)
		return
	}
	middleware.AddAuditContext(c, "transaction_id", result.TransactionID)
	middleware.AddAuditContext(c, "tx_hash", result.TransactionHash)
	c.JSON(http.StatusOK, model.RelayResponse{
		Success:         true,
		TransactionHash: result.TransactionHash,
		TransactionID:   result.TransactionID,
	})
}

func toCalls(in []model.RelayCall) ([]relay.Call, error) {
	calls := make([]relay.Call, 0, len(in))
	for _, tx := range in {
		if !common.IsHexAddress(tx.To) {
			return nil, apperrors.NewInvalidRequest("Invalid transaction target")
		}
		var data []byte
		if d := strings.TrimSpace(tx.Data); d != "" && d != "0x" {
			decoded, err := hexutil.Decode(d)
			if err != nil {
				return nil, apperrors.New(apperrors.ErrInvalidRequest, "Invalid transaction data", err)
			}
			data = decoded
		}
		calls = append(calls, relay.Call{
			To:    common.HexToAddress(tx.To),
			Data:  data,
			Value: tx.Value,
		})
	}
	return calls, nil
}
