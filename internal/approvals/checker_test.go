package approvals

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc     = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	ctf      = common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")
	spenders = []common.Address{
		common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
		common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"),
	}
	owner = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

type fakeChain struct {
	mu         sync.Mutex
	allowances map[common.Address]*big.Int
	approved   map[common.Address]bool
	failures   int
	calls      int
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}

	allowance := ERC20ABI.Methods["allowance"]
	approvedForAll := ERC1155ABI.Methods["isApprovedForAll"]
	switch {
	case *msg.To == usdc && bytes.Equal(msg.Data[:4], allowance.ID):
		args, err := allowance.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		value := f.allowances[args[1].(common.Address)]
		if value == nil {
			value = big.NewInt(0)
		}
		return allowance.Outputs.Pack(value)
	case *msg.To == ctf && bytes.Equal(msg.Data[:4], approvedForAll.ID):
		args, err := approvedForAll.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		return approvedForAll.Outputs.Pack(f.approved[args[1].(common.Address)])
	}
	return nil, errors.New("unexpected call")
}

func fullyApproved() *fakeChain {
	f := &fakeChain{allowances: map[common.Address]*big.Int{}, approved: map[common.Address]bool{}}
	for _, s := range spenders {
		f.allowances[s] = math.MaxBig256
		f.approved[s] = true
	}
	return f
}

func newTestChecker(f *fakeChain, retries int) *Checker {
	return NewCheckerWithCaller(f, Addresses{USDC: usdc, CTF: ctf, Spenders: spenders}, time.Second, retries)
}

func TestCheckAllApproved(t *testing.T) {
	status, err := newTestChecker(fullyApproved(), 0).Check(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, status.AllApproved)
	assert.Len(t, status.USDC, 3)
	assert.Len(t, status.CTF, 3)
}

func TestCheckAllowanceThreshold(t *testing.T) {
	f := fullyApproved()
	f.allowances[spenders[1]] = new(big.Int).Sub(MinAllowance, big.NewInt(1))

	status, err := newTestChecker(f, 0).Check(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, status.AllApproved)
	assert.False(t, status.USDC[spenders[1].Hex()])
	assert.True(t, status.USDC[spenders[0].Hex()])

	f.allowances[spenders[1]] = new(big.Int).Set(MinAllowance)
	status, err = newTestChecker(f, 0).Check(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, status.AllApproved)
}

func TestCheckMissingOperatorApproval(t *testing.T) {
	f := fullyApproved()
	f.approved[spenders[2]] = false

	status, err := newTestChecker(f, 0).Check(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, status.AllApproved)
	assert.False(t, status.CTF[spenders[2].Hex()])
}

func TestCheckRetriesTransientErrors(t *testing.T) {
	f := fullyApproved()
	f.failures = 1

	status, err := newTestChecker(f, 1).Check(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, status.AllApproved)
}

func TestCheckGivesUpAfterRetries(t *testing.T) {
	f := fullyApproved()
	f.failures = 10

	_, err := newTestChecker(f, 0).Check(context.Background(), owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, f.calls)
}

func TestCheckWithoutRPC(t *testing.T) {
	c := NewChecker("", Addresses{USDC: usdc, CTF: ctf, Spenders: spenders}, time.Second, 0)
	_, err := c.Check(context.Background(), owner)
	assert.ErrorContains(t, err, "rpc url not configured")
}

func TestCalls(t *testing.T) {
	calls, err := newTestChecker(fullyApproved(), 0).Calls()
	require.NoError(t, err)
	require.Len(t, calls, 6)

	approve := ERC20ABI.Methods["approve"]
	for i, spender := range spenders {
		call := calls[i]
		assert.Equal(t, usdc, call.To)
		assert.Equal(t, approve.ID, call.Data[:4])
		args, err := approve.Inputs.Unpack(call.Data[4:])
		require.NoError(t, err)
		assert.Equal(t, spender, args[0])
		assert.Equal(t, 0, math.MaxBig256.Cmp(args[1].(*big.Int)))
	}

	setApproval := ERC1155ABI.Methods["setApprovalForAll"]
	for i, spender := range spenders {
		call := calls[3+i]
		assert.Equal(t, ctf, call.To)
		args, err := setApproval.Inputs.Unpack(call.Data[4:])
		require.NoError(t, err)
		assert.Equal(t, spender, args[0])
		assert.Equal(t, true, args[1])
	}
}
