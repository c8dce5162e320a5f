package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the custodial key. It produces EIP-712 order signatures, EIP-712
// ClobAuth signatures and EIP-191 personal signatures.
type Signer struct {
	key              *ecdsa.PrivateKey
	address          common.Address
	chainID          *big.Int
	exchanges        [2]common.Address // [standard, neg risk]
	domainSeparators map[common.Address]common.Hash
}

// NewSigner creates a new EIP-712 signer with pre-calculated domain separators
// for both exchanges. A zero exchange address selects the Polygon deployment.
func NewSigner(privateKeyHex string, chainID int64, exchange, negRiskExchange common.Address) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	s := &Signer{
		key:              key,
		address:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:          big.NewInt(chainID),
		domainSeparators: make(map[common.Address]common.Hash, 2),
	}
	for i, contract := range []common.Address{exchange, negRiskExchange} {
		if contract == (common.Address{}) {
			contract = VerifyingContract(i == 1)
		}
		s.exchanges[i] = contract
		s.domainSeparators[contract] = domainSeparator(chainID, contract)
	}
	if s.exchanges[0] == s.exchanges[1] {
		return nil, fmt.Errorf("exchange and neg risk exchange must differ")
	}
	return s, nil
}

// keccak256(abi.encode(EIP712DomainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
func domainSeparator(chainID int64, verifyingContract common.Address) common.Hash {
	domainData := make([]byte, 32*5)
	copy(domainData[0:32], EIP712DomainTypeHash.Bytes())
	copy(domainData[32:64], crypto.Keccak256([]byte(EIP712DomainName)))
	copy(domainData[64:96], crypto.Keccak256([]byte(EIP712DomainVersion)))
	copy(domainData[96:128], math.U256Bytes(big.NewInt(chainID)))
	copy(domainData[128+12:160], verifyingContract.Bytes())
	return crypto.Keccak256Hash(domainData)
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) ChainID() int64 {
	return s.chainID.Int64()
}

// Exchange is the verifying contract orders are signed for.
func (s *Signer) Exchange(negRisk bool) common.Address {
	if negRisk {
		return s.exchanges[1]
	}
	return s.exchanges[0]
}

// SignOrder hashes the order under the exchange domain and signs it.
func (s *Signer) SignOrder(order *Order, negRisk bool) (string, error) {
	if order == nil {
		return "", fmt.Errorf("order is required")
	}
	separator, ok := s.domainSeparators[s.Exchange(negRisk)]
	if !ok {
		return "", fmt.Errorf("no domain separator for exchange")
	}
	hashStruct := hashOrder(order)

	// keccak256("\x19\x01" ++ domainSeparator ++ hashStruct)
	digest := crypto.Keccak256([]byte{0x19, 0x01}, separator.Bytes(), hashStruct)
	return s.sign(digest)
}

// SignMessage produces an EIP-191 personal signature over msg. The relay
// hash is signed as its raw 32 bytes, not as a hex string.
func (s *Signer) SignMessage(_ context.Context, msg []byte) (string, error) {
	return s.sign(accounts.TextHash(msg))
}

// SignClobAuth signs the ClobAuth struct used for L1 exchange headers.
func (s *Signer) SignClobAuth(timestamp int64, nonce int64) (string, error) {
	typedData := ClobAuthTypedData(s.address, s.chainID.Int64(), timestamp, nonce)
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("failed to hash clob auth: %w", err)
	}
	return s.sign(digest)
}

func (s *Signer) sign(digest []byte) (string, error) {
	signature, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", err
	}
	// crypto.Sign returns V as 0/1; the exchange and relay expect 27/28.
	if signature[64] < 27 {
		signature[64] += 27
	}
	return hexutil.Encode(signature), nil
}

// ClobAuthTypedData builds the L1 authentication payload.
func ClobAuthTypedData(address common.Address, chainID, timestamp, nonce int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": []apitypes.Type{
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    ClobAuthDomainName,
			Version: "1",
			ChainId: math.NewHexOrDecimal256(chainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   address.Hex(),
			"timestamp": strconv.FormatInt(timestamp, 10),
			"nonce":     math.NewHexOrDecimal256(nonce),
			"message":   ClobAuthMessage,
		},
	}
}

// hashOrder calculates hashStruct(order)
// keccak256(abi.encode(typeHash, salt, maker, ...))
func hashOrder(order *Order) []byte {
	// typeHash + 12 fields, 32 bytes each
	data := make([]byte, 32*13)
	copy(data[0:32], OrderTypeHash.Bytes())

	putUint(data[32:64], order.Salt)
	copy(data[64+12:96], order.Maker.Bytes())
	copy(data[96+12:128], order.Signer.Bytes())
	copy(data[128+12:160], order.Taker.Bytes())
	putUint(data[160:192], order.TokenID)
	putUint(data[192:224], order.MakerAmount)
	putUint(data[224:256], order.TakerAmount)
	putUint(data[256:288], order.Expiration)
	putUint(data[288:320], order.Nonce)
	putUint(data[320:352], order.FeeRateBps)
	data[383] = order.Side
	data[415] = order.SignatureType

	return crypto.Keccak256(data)
}

func putUint(dst []byte, v *big.Int) {
	if v == nil {
		return
	}
	copy(dst, math.U256Bytes(new(big.Int).Set(v)))
}
