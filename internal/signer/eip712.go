package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Constants for EIP-712
const (
	EIP712DomainName    = "Polymarket CTF Exchange"
	EIP712DomainVersion = "1"

	// Exchange contracts on Polygon
	ExchangeContractAddress        = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskExchangeContractAddress = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	ClobAuthDomainName = "ClobAuthDomain"
	ClobAuthMessage    = "This message attests that I control the given wallet"
)

// Signature types understood by the exchange.
const (
	SignatureTypeEOA       uint8 = 0
	SignatureTypePolyProxy uint8 = 1
	SignatureTypeGnosis    uint8 = 2
)

// Order sides as encoded in the signed struct.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

var (
	// "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	OrderTypeHash = crypto.Keccak256Hash([]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"))
)

// Order represents the struct to be signed
type Order struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// VerifyingContract picks the exchange that settles the order.
func VerifyingContract(negRisk bool) common.Address {
	if negRisk {
		return common.HexToAddress(NegRiskExchangeContractAddress)
	}
	return common.HexToAddress(ExchangeContractAddress)
}
