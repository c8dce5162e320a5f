package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apitypesHash(td apitypes.TypedData) ([]byte, string, error) {
	return apitypes.TypedDataAndHash(td)
}

// The hand-packed order hash must agree with the generic EIP-712 encoder.
func TestVerifyOrderSignature(t *testing.T) {
	for _, negRisk := range []bool{false, true} {
		s := newTestSigner(t)
		order := testOrder(s)

		sig, err := s.SignOrder(order, negRisk)
		require.NoError(t, err)

		assert.NoError(t, VerifyOrderSignature(order, sig, s.Address(), 137, VerifyingContract(negRisk)))

		wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
		assert.Error(t, VerifyOrderSignature(order, sig, wrongAddr, 137, VerifyingContract(negRisk)))

		// Signed for one exchange, checked against the other.
		assert.Error(t, VerifyOrderSignature(order, sig, s.Address(), 137, VerifyingContract(!negRisk)))
	}
}

func TestRecoverRejectsMalformed(t *testing.T) {
	_, err := RecoverMessageSigner([]byte("x"), "0x1234")
	assert.Error(t, err)
	_, err = RecoverMessageSigner([]byte("x"), "nothex")
	assert.Error(t, err)
}
