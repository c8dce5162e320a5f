package signer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// OrderTypedData renders the order through the generic EIP-712 encoder.
func OrderTypedData(order *Order, chainID int64, exchange common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              EIP712DomainName,
			Version:           EIP712DomainVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: exchange.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          hexOrDecimal(order.Salt),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       hexOrDecimal(order.TokenID),
			"makerAmount":   hexOrDecimal(order.MakerAmount),
			"takerAmount":   hexOrDecimal(order.TakerAmount),
			"expiration":    hexOrDecimal(order.Expiration),
			"nonce":         hexOrDecimal(order.Nonce),
			"feeRateBps":    hexOrDecimal(order.FeeRateBps),
			"side":          math.NewHexOrDecimal256(int64(order.Side)),
			"signatureType": math.NewHexOrDecimal256(int64(order.SignatureType)),
		},
	}
}

func hexOrDecimal(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return math.NewHexOrDecimal256(0)
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

// VerifyOrderSignature recovers the order signer and compares it to expected.
func VerifyOrderSignature(order *Order, signature string, expected common.Address, chainID int64, exchange common.Address) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	hash, _, err := apitypes.TypedDataAndHash(OrderTypedData(order, chainID, exchange))
	if err != nil {
		return fmt.Errorf("failed to hash typed data: %w", err)
	}
	return verifyDigest(hash, signature, expected)
}

// RecoverMessageSigner returns the address behind an EIP-191 personal signature.
func RecoverMessageSigner(msg []byte, signature string) (common.Address, error) {
	return recoverDigest(accounts.TextHash(msg), signature)
}

func verifyDigest(digest []byte, signature string, expected common.Address) error {
	recovered, err := recoverDigest(digest, signature)
	if err != nil {
		return err
	}
	if recovered != expected {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func recoverDigest(digest []byte, signature string) (common.Address, error) {
	rawSig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding")
	}
	if len(rawSig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length")
	}
	// Normalize V to 0/1 for recovery.
	if rawSig[64] >= 27 {
		rawSig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, rawSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
