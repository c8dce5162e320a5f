package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GoPolymarket/polysession/internal/approvals"
	"github.com/GoPolymarket/polysession/internal/auth"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/GoPolymarket/polysession/internal/pkg/metrics"
	"github.com/GoPolymarket/polysession/internal/relay"
	"github.com/ethereum/go-ethereum/common"
)

const (
	approvalsMetadata  = "Set all token approvals for trading"
	msgApprovalsFailed = "Failed to set token approvals"
	msgInitInProgress  = "Session initialization already in progress"
)

type CredentialsProvider interface {
	DeriveOrCreateCredentials(ctx context.Context) (auth.Credentials, error)
}

type ApprovalChecker interface {
	Check(ctx context.Context, owner common.Address) (*approvals.Status, error)
	Calls() ([]relay.Call, error)
}

type RelayExecutor interface {
	Execute(ctx context.Context, calls []relay.Call, metadata string) (*relay.Result, error)
}

// Status is a snapshot of the machine for rendering.
type Status struct {
	Step       Step     `json:"step"`
	Error      string   `json:"error,omitempty"`
	Session    *Session `json:"session"`
	IsComplete bool     `json:"isComplete"`
}

type Options struct {
	EOA       common.Address
	Proxy     common.Address
	Creds     CredentialsProvider
	Approvals ApprovalChecker
	Relay     RelayExecutor
	Store     Store
	MaxAge    time.Duration
	Now       func() time.Time
}

// Machine drives idle → credentials → approvals → complete for one wallet.
// Any failure returns it to idle with the error recorded.
type Machine struct {
	opts Options

	// init serializes Initialize; a second caller is rejected, not queued.
	init sync.Mutex

	mu      sync.RWMutex
	step    Step
	lastErr error
	current *Session
}

func NewMachine(opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	return &Machine{opts: opts, step: StepIdle}
}

func (m *Machine) address() string {
	return m.opts.EOA.Hex()
}

func (m *Machine) setStep(ctx context.Context, step Step) {
	m.mu.Lock()
	m.step = step
	m.mu.Unlock()
	metrics.SessionTransitions.WithLabelValues(string(step), "entered").Inc()
	logger.FromContext(ctx).Info("trading session step", "address", m.address(), "step", step)
}

func (m *Machine) fail(ctx context.Context, failed Step, err error) error {
	m.mu.Lock()
	m.step = StepIdle
	m.lastErr = err
	m.mu.Unlock()
	metrics.SessionTransitions.WithLabelValues(string(failed), "failed").Inc()
	logger.LogError(ctx, err, "trading session initialization failed", "address", m.address(), "step", failed)
	return err
}

// Initialize runs the whole setup. On failure nothing is persisted and any
// previously loaded session is left as it was.
func (m *Machine) Initialize(ctx context.Context) (*Status, error) {
	if !m.init.TryLock() {
		return nil, apperrors.NewConflict(msgInitInProgress)
	}
	defer m.init.Unlock()

	m.mu.Lock()
	m.step = StepIdle
	m.lastErr = nil
	m.mu.Unlock()

	m.setStep(ctx, StepCredentials)
	creds, err := m.opts.Creds.DeriveOrCreateCredentials(ctx)
	if err != nil {
		return nil, m.fail(ctx, StepCredentials, err)
	}

	m.setStep(ctx, StepApprovals)
	status, err := m.opts.Approvals.Check(ctx, m.opts.Proxy)
	if err != nil {
		return nil, m.fail(ctx, StepApprovals, apperrors.NewUpstream("Failed to check approvals", err))
	}
	if !status.AllApproved {
		logger.FromContext(ctx).Info("deploying proxy wallet with token approvals", "proxy", m.opts.Proxy.Hex())
		if err := m.setApprovals(ctx); err != nil {
			return nil, m.fail(ctx, StepApprovals, apperrors.NewRelayFailure(msgApprovalsFailed, err))
		}
	}

	// The proxy exists once an approval batch has executed through it.
	sess := &Session{
		EOAAddress:        m.opts.EOA.Hex(),
		ProxyAddress:      m.opts.Proxy.Hex(),
		IsProxyDeployed:   true,
		HasAPICredentials: true,
		HasApprovals:      true,
		APICredentials:    &creds,
		LastChecked:       m.opts.Now().UTC(),
	}
	if err := m.opts.Store.Save(ctx, m.address(), sess); err != nil {
		return nil, m.fail(ctx, StepApprovals, apperrors.New(apperrors.ErrInternal, "Failed to save session", err))
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	m.setStep(ctx, StepComplete)
	metrics.SessionTransitions.WithLabelValues(string(StepComplete), "succeeded").Inc()

	return m.Status(ctx)
}

func (m *Machine) setApprovals(ctx context.Context) error {
	calls, err := m.opts.Approvals.Calls()
	if err != nil {
		return err
	}
	result, err := m.opts.Relay.Execute(ctx, calls, approvalsMetadata)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("token approvals confirmed",
		"transaction_id", result.TransactionID,
		"tx_hash", result.TransactionHash,
	)
	return nil
}

// Status reports the current step. With no session in memory it resumes one
// from the store unless that record has expired.
func (m *Machine) Status(ctx context.Context) (*Status, error) {
	m.mu.RLock()
	step, lastErr, current := m.step, m.lastErr, m.current
	m.mu.RUnlock()

	if current == nil && step == StepIdle {
		loaded, err := m.load(ctx)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			m.mu.Lock()
			if m.current == nil {
				m.current = loaded
				if loaded.IsComplete() && m.step == StepIdle && m.lastErr == nil {
					m.step = StepComplete
				}
			}
			step, lastErr, current = m.step, m.lastErr, m.current
			m.mu.Unlock()
		}
	}

	if current != nil && current.Expired(m.opts.MaxAge, m.opts.Now()) {
		if err := m.End(ctx); err != nil {
			return nil, err
		}
		return &Status{Step: StepIdle}, nil
	}

	st := &Status{Step: step, Session: current, IsComplete: current.IsComplete()}
	if lastErr != nil {
		st.Error = apperrors.Wrap(lastErr).PublicMessage()
	}
	return st, nil
}

func (m *Machine) load(ctx context.Context) (*Session, error) {
	s, err := m.opts.Store.Load(ctx, m.address())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "Failed to load session", err)
	}
	if s.Expired(m.opts.MaxAge, m.opts.Now()) {
		logger.FromContext(ctx).Info("stored trading session expired", "address", m.address(), "last_checked", s.LastChecked)
		if err := m.opts.Store.Clear(ctx, m.address()); err != nil {
			return nil, apperrors.New(apperrors.ErrInternal, "Failed to clear session", err)
		}
		return nil, nil
	}
	return s, nil
}

// End clears the stored record and resets to idle. Safe to call repeatedly.
func (m *Machine) End(ctx context.Context) error {
	if err := m.opts.Store.Clear(ctx, m.address()); err != nil {
		return apperrors.New(apperrors.ErrInternal, "Failed to clear session", err)
	}
	m.mu.Lock()
	m.step = StepIdle
	m.lastErr = nil
	m.current = nil
	m.mu.Unlock()
	logger.FromContext(ctx).Info("trading session ended", "address", m.address())
	return nil
}
