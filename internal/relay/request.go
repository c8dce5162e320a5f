package relay

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ProxyDeriver maps a signing address to its proxy wallet.
type ProxyDeriver interface {
	Derive(signer common.Address) common.Address
	Factory() common.Address
}

// RequestBuilder turns signed proxy arguments into relayer submissions.
type RequestBuilder struct {
	proxies  ProxyDeriver
	relayHub common.Address
}

func NewRequestBuilder(proxies ProxyDeriver, relayHub common.Address) *RequestBuilder {
	return &RequestBuilder{proxies: proxies, relayHub: relayHub}
}

// Build signs the canonical relay hash and assembles the request. The relayer
// fee and gas price are always zero.
func (b *RequestBuilder) Build(ctx context.Context, signer MessageSigner, args ProxyTransactionArgs, metadata string) (*TransactionRequest, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if signer.Address() != args.From {
		return nil, fmt.Errorf("signer %s does not match sender %s", signer.Address().Hex(), args.From.Hex())
	}
	nonce, err := parseUint(args.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid relay nonce: %w", err)
	}

	const relayerFee, gasPrice = "0", "0"
	to := b.proxies.Factory()
	gasLimit := new(big.Int).SetUint64(args.GasLimit)

	hash := ComputeRelayHash(RelayHashInput{
		From:       args.From,
		To:         to,
		Data:       args.Data,
		RelayerFee: big.NewInt(0),
		GasPrice:   big.NewInt(0),
		GasLimit:   gasLimit,
		Nonce:      nonce,
		RelayHub:   b.relayHub,
		Relay:      args.Relay,
	})

	signature, err := signer.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign relay hash: %w", err)
	}

	return &TransactionRequest{
		From:        args.From.Hex(),
		To:          to.Hex(),
		ProxyWallet: b.proxies.Derive(args.From).Hex(),
		Data:        hexutil.Encode(args.Data),
		Nonce:       nonce.String(),
		Signature:   signature,
		SignatureParams: SignatureParams{
			GasPrice:   gasPrice,
			GasLimit:   strconv.FormatUint(args.GasLimit, 10),
			RelayerFee: relayerFee,
			RelayHub:   b.relayHub.Hex(),
			Relay:      args.Relay.Hex(),
		},
		Type:     TxTypeProxy,
		Metadata: metadata,
	}, nil
}
