package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/polysession/internal/approvals"
	"github.com/GoPolymarket/polysession/internal/manager"
	"github.com/GoPolymarket/polysession/internal/model"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/GoPolymarket/polysession/internal/relay"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

const (
	msgTxFailed       = "Transaction failed on-chain"
	msgTxUnknown      = "Unable to confirm relay transaction status"
	msgRelayFailed    = "Relay transaction failed"
	msgMissingTxs     = "Missing or invalid transactions array"
	usdcDecimals      = 6
	defaultRedeemDesc = "Redeem positions"
)

// RelayAPI is the relayer surface WalletService drives.
type RelayAPI interface {
	GetRelayPayload(ctx context.Context, from, txType string) (*relay.Payload, error)
	Submit(ctx context.Context, req *relay.TransactionRequest) (string, error)
	PollUntilState(ctx context.Context, id string, success []relay.State, failure relay.State) (*relay.Transaction, error)
}

// WalletService executes batches of calls through the wallet's proxy via the
// gasless relayer.
type WalletService struct {
	signer  relay.MessageSigner
	proxies relay.ProxyDeriver
	builder *relay.RequestBuilder
	relayer RelayAPI
	nonces  *manager.RelayNonceManager
	usdc    common.Address
	ctf     common.Address
}

func NewWalletService(signer relay.MessageSigner, proxies relay.ProxyDeriver, relayHub common.Address, relayer RelayAPI, tokens approvals.Addresses) *WalletService {
	return &WalletService{
		signer:  signer,
		proxies: proxies,
		builder: relay.NewRequestBuilder(proxies, relayHub),
		relayer: relayer,
		nonces:  manager.NewRelayNonceManager(),
		usdc:    tokens.USDC,
		ctf:     tokens.CTF,
	}
}

func (s *WalletService) Info() model.WalletInfo {
	eoa := s.signer.Address()
	return model.WalletInfo{
		EOAAddress:   eoa.Hex(),
		ProxyAddress: s.proxies.Derive(eoa).Hex(),
	}
}

func (s *WalletService) ProxyAddress() common.Address {
	return s.proxies.Derive(s.signer.Address())
}

// Execute relays calls as one proxy batch and waits for it to be mined.
func (s *WalletService) Execute(ctx context.Context, calls []relay.Call, metadata string) (*relay.Result, error) {
	if len(calls) == 0 {
		return nil, apperrors.NewInvalidRequest(msgMissingTxs)
	}
	log := logger.FromContext(ctx)
	from := s.signer.Address()

	unlock, err := s.nonces.Lock(ctx, from)
	if err != nil {
		return nil, apperrors.NewRelayFailure(msgRelayFailed, err)
	}
	defer unlock()

	payload, err := s.relayer.GetRelayPayload(ctx, from.Hex(), relay.TxTypeProxy)
	if err != nil {
		return nil, apperrors.NewRelayFailure("Failed to fetch relay payload", err)
	}
	nonce, err := s.nonces.Next(from, payload.Nonce)
	if err != nil {
		return nil, apperrors.NewRelayFailure("Failed to fetch relay payload", err)
	}

	data, err := relay.EncodeBatch(relay.ToProxyCalls(calls))
	if err != nil {
		if errors.Is(err, relay.ErrEmptyBatch) {
			return nil, apperrors.NewInvalidRequest(msgMissingTxs)
		}
		return nil, apperrors.New(apperrors.ErrInvalidRequest, "Invalid transaction data", err)
	}

	req, err := s.builder.Build(ctx, s.signer, relay.ProxyTransactionArgs{
		From:     from,
		Data:     data,
		GasLimit: relay.ComputeGasLimit(len(calls)),
		Relay:    common.HexToAddress(payload.Address),
		Nonce:    nonce,
	}, metadata)
	if err != nil {
		return nil, apperrors.NewRelayFailure(msgRelayFailed, err)
	}

	id, err := s.relayer.Submit(ctx, req)
	if err != nil {
		s.nonces.Reset(from)
		var subErr *relay.SubmissionError
		if errors.As(err, &subErr) {
			return nil, apperrors.NewRelayFailure(subErr.Error(), err)
		}
		return nil, apperrors.NewRelayFailure(msgRelayFailed, err)
	}
	s.nonces.Commit(from, req.Nonce)
	log.Info("relay transaction submitted",
		"transaction_id", id,
		"calls", len(calls),
		"gas_limit", req.SignatureParams.GasLimit,
		"nonce", req.Nonce,
		"metadata", metadata,
	)

	tx, err := s.relayer.PollUntilState(ctx, id,
		[]relay.State{relay.StateMined, relay.StateConfirmed},
		relay.StateFailed,
	)
	if err != nil {
		s.nonces.Reset(from)
		return nil, pollError(err)
	}
	return &relay.Result{
		TransactionID:   id,
		TransactionHash: tx.TransactionHash,
		State:           tx.State,
	}, nil
}

// pollError separates an on-chain failure from not knowing the outcome. A
// poll that ran out while the relayer was unreachable, or was cut short by
// the caller, is an upstream problem: the transaction may still be mined.
func pollError(err error) error {
	switch {
	case errors.Is(err, relay.ErrTransactionFailed):
		return apperrors.NewRelayFailure(msgTxFailed, err)
	case errors.Is(err, relay.ErrLookupFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewUpstream(msgTxUnknown, err)
	default:
		return apperrors.NewRelayFailure(msgTxFailed, err)
	}
}

// Transfer sends amount USDC.e (whole units, 6 decimals) from the proxy.
func (s *WalletService) Transfer(ctx context.Context, recipient string, amount float64) (*relay.Result, error) {
	if !common.IsHexAddress(recipient) {
		return nil, apperrors.NewInvalidRequest("Invalid recipient address")
	}
	units := decimal.NewFromFloat(amount).Shift(usdcDecimals).Truncate(0)
	if !units.IsPositive() {
		return nil, apperrors.NewInvalidRequest("Amount must be positive")
	}
	to := common.HexToAddress(recipient)
	data, err := approvals.ERC20ABI.Pack("transfer", to, units.BigInt())
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "Failed to encode transfer", err)
	}
	desc := fmt.Sprintf("Transfer %s USDC.e to %s", units.Shift(-usdcDecimals).String(), to.Hex())
	return s.Execute(ctx, []relay.Call{{To: s.usdc, Data: data}}, desc)
}

// Redeem claims resolved positions of a condition back into USDC.e.
// indexSets defaults to both outcomes of a binary market.
func (s *WalletService) Redeem(ctx context.Context, conditionID string, indexSets []int64) (*relay.Result, error) {
	raw, err := hexutil.Decode(conditionID)
	if err != nil || len(raw) != common.HashLength {
		return nil, apperrors.NewInvalidRequest("Invalid condition ID")
	}
	if len(indexSets) == 0 {
		indexSets = []int64{1, 2}
	}
	sets := make([]*big.Int, len(indexSets))
	for i, v := range indexSets {
		if v <= 0 {
			return nil, apperrors.NewInvalidRequest("Index sets must be positive")
		}
		sets[i] = big.NewInt(v)
	}

	var parent, condition [32]byte
	copy(condition[:], raw)
	data, err := approvals.ERC1155ABI.Pack("redeemPositions", s.usdc, parent, condition, sets)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "Failed to encode redeem", err)
	}
	return s.Execute(ctx, []relay.Call{{To: s.ctf, Data: data}}, defaultRedeemDesc)
}
