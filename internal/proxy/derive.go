// Package proxy computes the counterfactual address of the proxy wallet that
// the factory deploys for a signing address.
package proxy

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultFactory      = "0xaB45c5A4B0c941a2F231C04C3f49182e1A254052"
	DefaultInitCodeHash = "0xd21df8dc65880a8606f09fe0ce3df9b8869287ab0b058be05aa9e8af6330a00b"
)

// Deriver holds the factory parameters used by CREATE2.
type Deriver struct {
	factory      common.Address
	initCodeHash common.Hash
}

func NewDeriver(factory, initCodeHash string) (*Deriver, error) {
	if !common.IsHexAddress(factory) {
		return nil, fmt.Errorf("invalid proxy factory address %q", factory)
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(initCodeHash, "0x"), "0X")
	if len(raw) != 64 {
		return nil, fmt.Errorf("invalid init code hash %q", initCodeHash)
	}
	return &Deriver{
		factory:      common.HexToAddress(factory),
		initCodeHash: common.HexToHash(initCodeHash),
	}, nil
}

// MustDefault returns a Deriver for the Polygon proxy factory.
func MustDefault() *Deriver {
	d, err := NewDeriver(DefaultFactory, DefaultInitCodeHash)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Deriver) Factory() common.Address {
	return d.factory
}

// Derive returns keccak256(0xff ++ factory ++ salt ++ initCodeHash)[12:]
// where salt = keccak256(abi.encodePacked(signer)).
func (d *Deriver) Derive(signer common.Address) common.Address {
	salt := crypto.Keccak256Hash(signer.Bytes())
	return crypto.CreateAddress2(d.factory, salt, d.initCodeHash.Bytes())
}

// DeriveHex accepts a hex address and returns the checksummed proxy address.
func (d *Deriver) DeriveHex(signer string) (string, error) {
	if !common.IsHexAddress(signer) {
		return "", fmt.Errorf("invalid signing address %q", signer)
	}
	return d.Derive(common.HexToAddress(signer)).Hex(), nil
}
