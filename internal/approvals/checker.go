// Package approvals checks and repairs the token approvals a proxy wallet
// needs before it can trade on the exchange contracts.
package approvals

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polysession/internal/relay"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/ethclient"
)

// MinAllowance is the USDC.e allowance (raw units, 1,000,000 USDC.e) treated
// as unlimited.
var MinAllowance = big.NewInt(1_000_000_000_000)

// ContractCaller is the read-only slice of an RPC client used here.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Addresses are the tokens and the spenders that must be allowed to move them.
type Addresses struct {
	USDC     common.Address
	CTF      common.Address
	Spenders []common.Address
}

// Status reports each approval keyed by spender address.
type Status struct {
	AllApproved bool            `json:"allApproved"`
	USDC        map[string]bool `json:"usdcApprovals"`
	CTF         map[string]bool `json:"ctfApprovals"`
}

type Checker struct {
	addrs   Addresses
	rpcURL  string
	timeout time.Duration
	retries int

	mu     sync.Mutex
	caller ContractCaller
}

func NewChecker(rpcURL string, addrs Addresses, timeout time.Duration, retries int) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Checker{
		addrs:   addrs,
		rpcURL:  strings.TrimSpace(rpcURL),
		timeout: timeout,
		retries: retries,
	}
}

// NewCheckerWithCaller skips dialing and reads through caller.
func NewCheckerWithCaller(caller ContractCaller, addrs Addresses, timeout time.Duration, retries int) *Checker {
	c := NewChecker("", addrs, timeout, retries)
	c.caller = caller
	return c
}

func (c *Checker) Addresses() Addresses {
	return c.addrs
}

// Calls returns the approval batch: approve(spender, max) on USDC.e and
// setApprovalForAll(spender, true) on the CTF for every spender.
func (c *Checker) Calls() ([]relay.Call, error) {
	calls := make([]relay.Call, 0, 2*len(c.addrs.Spenders))
	for _, spender := range c.addrs.Spenders {
		data, err := ERC20ABI.Pack("approve", spender, math.MaxBig256)
		if err != nil {
			return nil, fmt.Errorf("failed to encode approve: %w", err)
		}
		calls = append(calls, relay.Call{To: c.addrs.USDC, Data: data})
	}
	for _, spender := range c.addrs.Spenders {
		data, err := ERC1155ABI.Pack("setApprovalForAll", spender, true)
		if err != nil {
			return nil, fmt.Errorf("failed to encode setApprovalForAll: %w", err)
		}
		calls = append(calls, relay.Call{To: c.addrs.CTF, Data: data})
	}
	return calls, nil
}

// Check reads every allowance for owner.
func (c *Checker) Check(ctx context.Context, owner common.Address) (*Status, error) {
	status := &Status{
		AllApproved: true,
		USDC:        make(map[string]bool, len(c.addrs.Spenders)),
		CTF:         make(map[string]bool, len(c.addrs.Spenders)),
	}
	for _, spender := range c.addrs.Spenders {
		allowance, err := c.allowance(ctx, owner, spender)
		if err != nil {
			return nil, err
		}
		ok := allowance.Cmp(MinAllowance) >= 0
		status.USDC[spender.Hex()] = ok
		status.AllApproved = status.AllApproved && ok
	}
	for _, spender := range c.addrs.Spenders {
		ok, err := c.isApprovedForAll(ctx, owner, spender)
		if err != nil {
			return nil, err
		}
		status.CTF[spender.Hex()] = ok
		status.AllApproved = status.AllApproved && ok
	}
	return status, nil
}

func (c *Checker) allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, c.addrs.USDC, data)
	if err != nil {
		return nil, fmt.Errorf("failed to read USDC allowance for %s: %w", spender.Hex(), err)
	}
	values, err := ERC20ABI.Unpack("allowance", out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("failed to decode USDC allowance: %v", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T", values[0])
	}
	return amount, nil
}

func (c *Checker) isApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	data, err := ERC1155ABI.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	out, err := c.call(ctx, c.addrs.CTF, data)
	if err != nil {
		return false, fmt.Errorf("failed to read CTF approval for %s: %w", operator.Hex(), err)
	}
	values, err := ERC1155ABI.Unpack("isApprovedForAll", out)
	if err != nil || len(values) != 1 {
		return false, fmt.Errorf("failed to decode CTF approval: %v", err)
	}
	approved, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected approval type %T", values[0])
	}
	return approved, nil
}

// BalanceOf returns the raw USDC.e balance of account.
func (c *Checker) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, c.addrs.USDC, data)
	if err != nil {
		return nil, fmt.Errorf("failed to read USDC balance: %w", err)
	}
	values, err := ERC20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("failed to decode USDC balance: %v", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balance type %T", values[0])
	}
	return balance, nil
}

func (c *Checker) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		caller, err := c.getCaller(attemptCtx)
		if err != nil {
			cancel()
			lastErr = err
			if !shouldRetry(ctx, attempt, c.retries) {
				break
			}
			continue
		}
		out, err := caller.CallContract(attemptCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("rpc call failed: %w", err)
			if !shouldRetry(ctx, attempt, c.retries) {
				break
			}
			continue
		}
		return out, nil
	}
	return nil, lastErr
}

func (c *Checker) getCaller(ctx context.Context) (ContractCaller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caller != nil {
		return c.caller, nil
	}
	if c.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	c.caller = client
	return c.caller, nil
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
