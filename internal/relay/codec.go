package relay

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Gas budget negotiated with the relay hub. These are not on-chain estimates.
const (
	BaseGasPerTx       = 150_000
	RelayHubPadding    = 3_450_000
	OverheadBuffer     = 450_000
	IntrinsicCost      = 30_000
	MinExecutionBuffer = 500_000
	MinGasLimit        = 3_000_000
)

var relayHashPrefix = []byte("rlx:")

const proxyFactoryABI = `[{"inputs":[{"components":[{"internalType":"enum ProxyWalletLib.CallType","name":"typeCode","type":"uint8"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"bytes","name":"data","type":"bytes"}],"internalType":"struct ProxyWalletLib.ProxyCall[]","name":"calls","type":"tuple[]"}],"name":"proxy","outputs":[{"internalType":"bytes[]","name":"returnValues","type":"bytes[]"}],"stateMutability":"payable","type":"function"}]`

var factoryABI = mustABI(proxyFactoryABI)

var ErrEmptyBatch = errors.New("batch has no transactions")

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("relay: invalid abi: %v", err))
	}
	return parsed
}

// ComputeGasLimit returns min(maxSignable, max(executionNeeds, 3_000_000)).
func ComputeGasLimit(transactionCount int) uint64 {
	if transactionCount < 0 {
		transactionCount = 0
	}
	txGas := uint64(transactionCount) * BaseGasPerTx
	relayerWillSend := txGas + RelayHubPadding
	maxSignable := relayerWillSend - IntrinsicCost - OverheadBuffer
	executionNeeds := txGas + MinExecutionBuffer

	return min(maxSignable, max(executionNeeds, MinGasLimit))
}

// proxyCallTuple mirrors the factory's ProxyCall struct for the abi packer.
type proxyCallTuple struct {
	TypeCode uint8
	To       common.Address
	Value    *big.Int
	Data     []byte
}

// ToProxyCalls tags every call as a plain Call.
func ToProxyCalls(calls []Call) []ProxyCall {
	out := make([]ProxyCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, ProxyCall{
			TypeCode: CallTypeCall,
			To:       c.To,
			Value:    c.Value,
			Data:     c.Data,
		})
	}
	return out
}

// EncodeBatch packs calls as the calldata of factory.proxy(calls).
func EncodeBatch(calls []ProxyCall) ([]byte, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}
	tuples := make([]proxyCallTuple, 0, len(calls))
	for i, c := range calls {
		value, err := parseUint(c.Value)
		if err != nil {
			return nil, fmt.Errorf("call %d: invalid value %q", i, c.Value)
		}
		data := c.Data
		if data == nil {
			data = []byte{}
		}
		tuples = append(tuples, proxyCallTuple{
			TypeCode: uint8(c.TypeCode),
			To:       c.To,
			Value:    value,
			Data:     data,
		})
	}
	packed, err := factoryABI.Pack("proxy", tuples)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxy batch: %w", err)
	}
	return packed, nil
}

// RelayHashInput lists the fields of the canonical relay hash in wire order.
type RelayHashInput struct {
	From       common.Address
	To         common.Address
	Data       []byte
	RelayerFee *big.Int
	GasPrice   *big.Int
	GasLimit   *big.Int
	Nonce      *big.Int
	RelayHub   common.Address
	Relay      common.Address
}

// ComputeRelayHash returns keccak256("rlx:" ++ from ++ to ++ data ++
// uint256(fee) ++ uint256(gasPrice) ++ uint256(gasLimit) ++ uint256(nonce) ++ relayHub ++ relay).
func ComputeRelayHash(in RelayHashInput) common.Hash {
	buf := make([]byte, 0, len(relayHashPrefix)+20*4+len(in.Data)+32*4)
	buf = append(buf, relayHashPrefix...)
	buf = append(buf, in.From.Bytes()...)
	buf = append(buf, in.To.Bytes()...)
	buf = append(buf, in.Data...)
	buf = append(buf, word(in.RelayerFee)...)
	buf = append(buf, word(in.GasPrice)...)
	buf = append(buf, word(in.GasLimit)...)
	buf = append(buf, word(in.Nonce)...)
	buf = append(buf, in.RelayHub.Bytes()...)
	buf = append(buf, in.Relay.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

func word(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}

// parseUint accepts decimal or 0x-prefixed hex; empty is zero.
func parseUint(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid uint256 %q", s)
	}
	return v, nil
}
