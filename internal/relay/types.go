package relay

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const TxTypeProxy = "PROXY"

type CallType uint8

const (
	CallTypeInvalid      CallType = 0
	CallTypeCall         CallType = 1
	CallTypeDelegateCall CallType = 2
)

// Call is one contract call executed by the proxy wallet.
type Call struct {
	To    common.Address
	Data  []byte
	Value string // decimal wei, empty means 0
}

// ProxyCall is a Call tagged with its call type, in the factory's tuple order.
type ProxyCall struct {
	TypeCode CallType
	To       common.Address
	Value    string
	Data     []byte
}

// MessageSigner signs raw bytes with an EIP-191 personal signature. It may be
// a local key or a remote custodial service.
type MessageSigner interface {
	Address() common.Address
	SignMessage(ctx context.Context, msg []byte) (string, error)
}

type SignatureParams struct {
	GasPrice   string `json:"gasPrice"`
	GasLimit   string `json:"gasLimit"`
	RelayerFee string `json:"relayerFee"`
	RelayHub   string `json:"relayHub"`
	Relay      string `json:"relay"`
}

// ProxyTransactionArgs are the inputs to the canonical relay hash.
type ProxyTransactionArgs struct {
	From     common.Address
	Data     []byte
	GasLimit uint64
	Relay    common.Address
	Nonce    string
}

// TransactionRequest is the body POSTed to the relayer's submit endpoint.
type TransactionRequest struct {
	From            string          `json:"from"`
	To              string          `json:"to"`
	ProxyWallet     string          `json:"proxyWallet"`
	Data            string          `json:"data"`
	Nonce           string          `json:"nonce"`
	Signature       string          `json:"signature"`
	SignatureParams SignatureParams `json:"signatureParams"`
	Type            string          `json:"type"`
	Metadata        string          `json:"metadata"`
}

// Payload is the relay address and nonce assigned by the relayer.
type Payload struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
}

type State string

const (
	StateNew       State = "STATE_NEW"
	StateExecuted  State = "STATE_EXECUTED"
	StateMined     State = "STATE_MINED"
	StateInvalid   State = "STATE_INVALID"
	StateConfirmed State = "STATE_CONFIRMED"
	StateFailed    State = "STATE_FAILED"
)

type Transaction struct {
	TransactionID   string    `json:"transactionID"`
	TransactionHash string    `json:"transactionHash"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	ProxyAddress    string    `json:"proxyAddress"`
	Data            string    `json:"data"`
	Nonce           string    `json:"nonce"`
	Value           string    `json:"value"`
	State           State     `json:"state"`
	Type            string    `json:"type"`
	Metadata        string    `json:"metadata"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type SubmitResponse struct {
	TransactionID   string `json:"transactionID"`
	State           string `json:"state"`
	Hash            string `json:"hash"`
	TransactionHash string `json:"transactionHash"`
}

// Result is the outcome of a confirmed relay execution.
type Result struct {
	TransactionID   string `json:"transactionId"`
	TransactionHash string `json:"transactionHash"`
	State           State  `json:"state"`
}
